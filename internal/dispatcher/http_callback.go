package dispatcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/hououinkami/wegram/internal/wire"
)

// maxCallbackBody is spec.md §4.6's "Bodies > 5 MiB are rejected with 400".
const maxCallbackBody = 5 * 1024 * 1024

// CallbackHandler implements the HTTP callback source (spec.md §4.6 Source
// 1): POST /msg/SyncMessage/{wxid}. Unlike the teacher's ipad.CallbackHandler
// — which dispatches synchronously before writing its 200 response — this
// handler responds immediately and dispatches on a separate goroutine, per
// spec.md's explicit "MUST respond 200 immediately (before processing), to
// prevent the gateway from retrying" requirement.
type CallbackHandler struct {
	dispatcher *Dispatcher
}

// NewCallbackHandler creates a CallbackHandler feeding d.
func NewCallbackHandler(d *Dispatcher) *CallbackHandler {
	return &CallbackHandler{dispatcher: d}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody+1))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	if len(body) > maxCallbackBody {
		http.Error(w, "body too large", http.StatusBadRequest)
		return
	}

	var payload wire.SyncMessageCallback
	if err := json.Unmarshal(body, &payload); err != nil {
		h.dispatcher.log.Warn("invalid callback payload", "error", err)
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	// Respond first: the gateway must see 200 immediately to avoid retrying
	// this delivery, independent of how long translation/send takes.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"success":true}`))

	// Detached from the request's context, which net/http cancels the
	// moment ServeHTTP returns — processing must outlive this handler call.
	go h.dispatcher.HandleSync(context.Background(), payload.Message, payload.Data.AddMsgs)
}
