package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hououinkami/wegram/internal/wire"
)

func bufferResponse(t *testing.T, buf []byte) map[string]any {
	t.Helper()
	return map[string]any{
		"Success": true,
		"Data": map[string]any{
			"data": map[string]any{
				"buffer": base64.StdEncoding.EncodeToString(buf),
			},
		},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

// TestFetchChunked_KnownLength exercises the ordinary path: DataLen is
// known up front, the loop runs until offset reaches it.
func TestFetchChunked_KnownLength(t *testing.T) {
	want := []byte("hello chunked world")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, bufferResponse(t, want))
	}))
	defer srv.Close()

	c := New(srv.URL, "wxid_test", slog.Default())
	got, err := c.fetchChunked(context.Background(), Descriptor{MsgID: 1, DataLen: int64(len(want))})
	if err != nil {
		t.Fatalf("fetchChunked: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("fetchChunked = %q, want %q", got, want)
	}
}

// TestFetchChunked_ZeroDataLenAdaptiveRetry is spec.md §8's named boundary
// case: a descriptor with DataLen == 0 must trigger the adaptive-retry
// path exactly once, not fail immediately on the first missing buffer.
func TestFetchChunked_ZeroDataLenAdaptiveRetry(t *testing.T) {
	want := []byte("recovered payload")
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// First call: no DataLen supplied, gateway has no buffer yet but
			// reports the real totalLen for the adaptive retry to adopt.
			writeJSON(t, w, map[string]any{
				"Success": true,
				"Data":    map[string]any{"totalLen": float64(len(want))},
			})
			return
		}
		writeJSON(t, w, bufferResponse(t, want))
	}))
	defer srv.Close()

	c := New(srv.URL, "wxid_test", slog.Default())
	got, err := c.fetchChunked(context.Background(), Descriptor{MsgID: 1, DataLen: 0})
	if err != nil {
		t.Fatalf("fetchChunked: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("fetchChunked = %q, want %q", got, want)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 requests (initial + single adaptive retry), got %d", calls)
	}
}

// TestFetchChunked_RetryOnlyOnce confirms a second missing buffer after the
// adaptive retry has already fired is a hard failure, not a second retry.
func TestFetchChunked_RetryOnlyOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(t, w, map[string]any{
			"Success": true,
			"Data":    map[string]any{"totalLen": float64(64)},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "wxid_test", slog.Default())
	_, err := c.fetchChunked(context.Background(), Descriptor{MsgID: 1, DataLen: 0})
	if err == nil {
		t.Fatal("expected error after the adaptive retry also returns no buffer")
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 requests (initial + single adaptive retry), got %d", calls)
	}
}

// TestFetchChunked_MultiChunk confirms the loop issues multiple requests
// when DataLen exceeds a single chunk, and offsets advance by chunkSize.
func TestFetchChunked_MultiChunk(t *testing.T) {
	total := int64(chunkSize + 10)
	first := make([]byte, chunkSize)
	second := make([]byte, 10)
	for i := range first {
		first[i] = byte(i % 256)
	}
	for i := range second {
		second[i] = byte(0xAA)
	}

	var offsets []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		section, _ := body["Section"].(map[string]any)
		startPos, _ := section["StartPos"].(float64)
		offsets = append(offsets, int64(startPos))
		if int64(startPos) == 0 {
			writeJSON(t, w, bufferResponse(t, first))
		} else {
			writeJSON(t, w, bufferResponse(t, second))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "wxid_test", slog.Default())
	got, err := c.fetchChunked(context.Background(), Descriptor{MsgID: 1, ToWxid: "peer", DataLen: total, Kind: wire.MediaVideo})
	if err != nil {
		t.Fatalf("fetchChunked: %v", err)
	}
	if int64(len(got)) != total {
		t.Fatalf("fetchChunked returned %d bytes, want %d", len(got), total)
	}
	if len(offsets) != 2 || offsets[0] != 0 || offsets[1] != chunkSize {
		t.Fatalf("unexpected request offsets: %v", offsets)
	}
}
