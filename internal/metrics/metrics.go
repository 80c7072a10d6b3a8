// Package metrics collects bridge performance counters and exposes them
// in Prometheus text exposition format, adapted directly from the
// teacher's bridge/metrics.go: a hand-rolled histogram and counter/gauge
// writers with no external Prometheus client, since the teacher itself
// never reaches for one for this concern.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects bridge performance metrics for Prometheus exposition.
type Metrics struct {
	messagesReceived atomic.Int64
	messagesSent     atomic.Int64
	messagesFailed   atomic.Int64

	mediaUploaded   atomic.Int64
	mediaDownloaded atomic.Int64

	loginAttempts      atomic.Int64
	loginSuccesses     atomic.Int64
	loginFailures      atomic.Int64
	groupsProvisioned  atomic.Int64
	floodControlHits   atomic.Int64
	gatewayErrors      atomic.Int64
	mediaConvertErrors atomic.Int64
	reconnectAttempts  atomic.Int64
	reconnectSuccesses atomic.Int64
	revocationsHandled atomic.Int64

	activeContacts atomic.Int64
	connectedState atomic.Int64 // 1=connected, 0=disconnected

	wechatToTelegramLatency *histogram
	telegramToWechatLatency *histogram

	messagesByType sync.Map // map[string]*atomic.Int64

	startTime time.Time
}

// New creates a Metrics instance with its latency histograms ready.
func New() *Metrics {
	return &Metrics{
		startTime:               time.Now(),
		wechatToTelegramLatency: newHistogram(defaultBuckets),
		telegramToWechatLatency: newHistogram(defaultBuckets),
	}
}

// --- Counter increments ---

func (m *Metrics) IncrMessagesReceived()    { m.messagesReceived.Add(1) }
func (m *Metrics) IncrMessagesSent()        { m.messagesSent.Add(1) }
func (m *Metrics) IncrMessagesFailed()      { m.messagesFailed.Add(1) }
func (m *Metrics) IncrMediaUploaded()       { m.mediaUploaded.Add(1) }
func (m *Metrics) IncrMediaDownloaded()     { m.mediaDownloaded.Add(1) }
func (m *Metrics) IncrGatewayErrors()       { m.gatewayErrors.Add(1) }
func (m *Metrics) IncrMediaConvertErrors()  { m.mediaConvertErrors.Add(1) }
func (m *Metrics) IncrFloodControlHits()    { m.floodControlHits.Add(1) }
func (m *Metrics) IncrReconnectAttempts()   { m.reconnectAttempts.Add(1) }
func (m *Metrics) IncrReconnectSuccesses()  { m.reconnectSuccesses.Add(1) }
func (m *Metrics) IncrLoginAttempts()       { m.loginAttempts.Add(1) }
func (m *Metrics) IncrLoginSuccesses()      { m.loginSuccesses.Add(1) }
func (m *Metrics) IncrLoginFailures()       { m.loginFailures.Add(1) }
func (m *Metrics) IncrGroupsProvisioned()   { m.groupsProvisioned.Add(1) }
func (m *Metrics) IncrRevocationsHandled()  { m.revocationsHandled.Add(1) }

// IncrMessagesByType increments the counter for a specific (direction, msgType) pair.
func (m *Metrics) IncrMessagesByType(direction, msgType string) {
	key := direction + ":" + msgType
	val, _ := m.messagesByType.LoadOrStore(key, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// --- Gauge setters ---

func (m *Metrics) SetActiveContacts(n int64) { m.activeContacts.Store(n) }
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.connectedState.Store(1)
	} else {
		m.connectedState.Store(0)
	}
}

// --- Latency observations ---

func (m *Metrics) ObserveWeChatToTelegramLatency(d time.Duration) {
	m.wechatToTelegramLatency.observe(d.Seconds())
}

func (m *Metrics) ObserveTelegramToWeChatLatency(d time.Duration) {
	m.telegramToWechatLatency.observe(d.Seconds())
}

// --- Health ---

// HealthStatus returns a structured health snapshot for a JSON health endpoint.
func (m *Metrics) HealthStatus() map[string]interface{} {
	return map[string]interface{}{
		"connected":   m.connectedState.Load() == 1,
		"uptime_secs": time.Since(m.startTime).Seconds(),
		"messages": map[string]int64{
			"received": m.messagesReceived.Load(),
			"sent":     m.messagesSent.Load(),
			"failed":   m.messagesFailed.Load(),
		},
		"errors": map[string]int64{
			"gateway":        m.gatewayErrors.Load(),
			"media_convert":  m.mediaConvertErrors.Load(),
			"flood_control":  m.floodControlHits.Load(),
		},
		"reconnects": map[string]int64{
			"attempts":  m.reconnectAttempts.Load(),
			"successes": m.reconnectSuccesses.Load(),
		},
	}
}

// --- Prometheus exposition ---

// Handler returns an HTTP handler serving Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		m.writeMetrics(w)
	})
}

func (m *Metrics) writeMetrics(w http.ResponseWriter) {
	uptime := time.Since(m.startTime).Seconds()

	writeGauge(w, "wegram_uptime_seconds", "Bridge uptime in seconds", uptime)
	writeGauge(w, "wegram_connected", "Whether the gateway session is connected (1=yes, 0=no)", float64(m.connectedState.Load()))
	writeGauge(w, "wegram_active_contacts", "Number of contacts with is_receive set", float64(m.activeContacts.Load()))

	writeCounter(w, "wegram_messages_received_total", "Total messages received from WeChat", float64(m.messagesReceived.Load()))
	writeCounter(w, "wegram_messages_sent_total", "Total messages sent to WeChat", float64(m.messagesSent.Load()))
	writeCounter(w, "wegram_messages_failed_total", "Total failed message deliveries", float64(m.messagesFailed.Load()))

	writeCounter(w, "wegram_media_uploaded_total", "Total media files uploaded", float64(m.mediaUploaded.Load()))
	writeCounter(w, "wegram_media_downloaded_total", "Total media files downloaded", float64(m.mediaDownloaded.Load()))

	writeCounter(w, "wegram_login_attempts_total", "Total secondary-login attempts", float64(m.loginAttempts.Load()))
	writeCounter(w, "wegram_login_successes_total", "Total successful logins", float64(m.loginSuccesses.Load()))
	writeCounter(w, "wegram_login_failures_total", "Total failed logins", float64(m.loginFailures.Load()))
	writeCounter(w, "wegram_groups_provisioned_total", "Total Telegram mirror groups created", float64(m.groupsProvisioned.Load()))
	writeCounter(w, "wegram_revocations_handled_total", "Total revocation/edit actions handled", float64(m.revocationsHandled.Load()))

	writeCounter(w, "wegram_gateway_errors_total", "Total WeChat gateway call errors", float64(m.gatewayErrors.Load()))
	writeCounter(w, "wegram_media_convert_errors_total", "Total media transcode failures", float64(m.mediaConvertErrors.Load()))
	writeCounter(w, "wegram_flood_control_hits_total", "Total Telegram flood-control (429) responses", float64(m.floodControlHits.Load()))

	writeCounter(w, "wegram_reconnect_attempts_total", "Total reconnection attempts", float64(m.reconnectAttempts.Load()))
	writeCounter(w, "wegram_reconnect_successes_total", "Total successful reconnections", float64(m.reconnectSuccesses.Load()))

	m.wechatToTelegramLatency.writePrometheus(w, "wegram_wechat_to_telegram_latency_seconds", "Message bridging latency from WeChat to Telegram")
	m.telegramToWechatLatency.writePrometheus(w, "wegram_telegram_to_wechat_latency_seconds", "Message bridging latency from Telegram to WeChat")

	var typeKeys []string
	m.messagesByType.Range(func(key, _ interface{}) bool {
		typeKeys = append(typeKeys, key.(string))
		return true
	})
	sort.Strings(typeKeys)

	if len(typeKeys) > 0 {
		fmt.Fprintf(w, "# HELP wegram_messages_by_type_total Messages by direction and type\n")
		fmt.Fprintf(w, "# TYPE wegram_messages_by_type_total counter\n")
		for _, key := range typeKeys {
			val, _ := m.messagesByType.Load(key)
			count := val.(*atomic.Int64).Load()
			direction, msgType := splitTypeKey(key)
			fmt.Fprintf(w, "wegram_messages_by_type_total{direction=%q,msg_type=%q} %d\n", direction, msgType, count)
		}
		fmt.Fprintln(w)
	}
}

func writeCounter(w http.ResponseWriter, name, help string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %g\n\n", name, value)
}

func writeGauge(w http.ResponseWriter, name, help string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	fmt.Fprintf(w, "%s %g\n\n", name, value)
}

func splitTypeKey(key string) (string, string) {
	for i, c := range key {
		if c == ':' {
			return key[:i], key[i+1:]
		}
	}
	return key, "unknown"
}

// Default latency buckets in seconds: 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
var defaultBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	total   uint64
	sum     float64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{buckets: buckets, counts: make([]uint64, len(buckets))}
}

func (h *histogram) observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.total++
	h.sum += value
	for i, b := range h.buckets {
		if value <= b {
			h.counts[i]++
		}
	}
}

func (h *histogram) writePrometheus(w http.ResponseWriter, name, help string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s histogram\n", name)
	for i, b := range h.buckets {
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", name, fmt.Sprintf("%g", b), h.counts[i])
	}
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", name, h.total)
	fmt.Fprintf(w, "%s_sum %s\n", name, formatFloat(h.sum))
	fmt.Fprintf(w, "%s_count %d\n\n", name, h.total)
}

func formatFloat(f float64) string {
	if f == 0 {
		return "0"
	}
	if f == math.Trunc(f) {
		return fmt.Sprintf("%.1f", f)
	}
	return fmt.Sprintf("%g", f)
}
