package telegramuser

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Reconnector drives automatic reconnection of the user client with
// exponential backoff and jitter, adapted from the teacher's
// ipad.Reconnector. The heartbeat/state-machine shape is unchanged; the
// callbacks are rebound from WeChat provider liveness checks to gotd's
// connection lifecycle (CheckAlive pings the client, DoReconnect re-runs
// telegram.Client.Run against the persisted session).
type Reconnector struct {
	mu     sync.Mutex
	log    *slog.Logger
	state  reconnectState
	stopCh chan struct{}

	heartbeatInterval time.Duration
	maxBackoff        time.Duration
	baseBackoff       time.Duration

	checkAlive     func(ctx context.Context) bool
	doReconnect    func(ctx context.Context) error
	onConnected    func()
	onDisconnected func()

	reconnectCount   int
	lastConnected    time.Time
	lastDisconnected time.Time
}

type reconnectState int

const (
	stateConnected reconnectState = iota
	stateDisconnected
	stateReconnecting
	stateStopped
)

// ReconnectorConfig configures a Reconnector.
type ReconnectorConfig struct {
	Log               *slog.Logger
	HeartbeatInterval time.Duration
	MaxBackoff        time.Duration
	BaseBackoff       time.Duration

	CheckAlive     func(ctx context.Context) bool
	DoReconnect    func(ctx context.Context) error
	OnConnected    func()
	OnDisconnected func()
}

// NewReconnector creates a Reconnector, defaulting unset intervals to the
// same values the teacher's WeChat reconnector uses.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = 2 * time.Second
	}
	return &Reconnector{
		log:               cfg.Log,
		state:             stateDisconnected,
		stopCh:            make(chan struct{}),
		heartbeatInterval: cfg.HeartbeatInterval,
		maxBackoff:        cfg.MaxBackoff,
		baseBackoff:       cfg.BaseBackoff,
		checkAlive:        cfg.CheckAlive,
		doReconnect:       cfg.DoReconnect,
		onConnected:       cfg.OnConnected,
		onDisconnected:    cfg.OnDisconnected,
	}
}

// Start begins the heartbeat loop on a new goroutine.
func (r *Reconnector) Start() { go r.heartbeatLoop() }

// Stop halts the heartbeat loop.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateStopped {
		return
	}
	r.state = stateStopped
	close(r.stopCh)
}

// MarkConnected records a successful connection and resets the backoff.
func (r *Reconnector) MarkConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateConnected
	r.lastConnected = time.Now()
	r.reconnectCount = 0
}

// MarkDisconnected records a dropped connection.
func (r *Reconnector) MarkDisconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateConnected {
		r.state = stateDisconnected
		r.lastDisconnected = time.Now()
		if r.onDisconnected != nil {
			go r.onDisconnected()
		}
	}
}

// IsConnected reports the current connection state.
func (r *Reconnector) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateConnected
}

func (r *Reconnector) heartbeatLoop() {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.checkAndReconnect()
		}
	}
}

func (r *Reconnector) checkAndReconnect() {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	if state == stateStopped || state == stateReconnecting {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if state == stateConnected {
		if r.checkAlive != nil && !r.checkAlive(ctx) {
			r.log.Warn("user client heartbeat failed, connection lost")
			r.MarkDisconnected()
			go r.reconnectWithBackoff()
		}
		return
	}

	go r.reconnectWithBackoff()
}

func (r *Reconnector) reconnectWithBackoff() {
	r.mu.Lock()
	if r.state == stateReconnecting || r.state == stateStopped {
		r.mu.Unlock()
		return
	}
	r.state = stateReconnecting
	attempt := r.reconnectCount
	r.mu.Unlock()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		delay := r.calculateBackoff(attempt)
		r.log.Info("attempting user client reconnection", "attempt", attempt+1, "backoff", delay)

		select {
		case <-r.stopCh:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := r.doReconnect(ctx)
		cancel()

		if err == nil {
			r.log.Info("user client reconnection successful", "attempt", attempt+1)
			r.mu.Lock()
			r.state = stateConnected
			r.lastConnected = time.Now()
			r.reconnectCount = attempt + 1
			r.mu.Unlock()
			if r.onConnected != nil {
				r.onConnected()
			}
			return
		}

		r.log.Error("user client reconnection failed", "attempt", attempt+1, "error", err)
		attempt++
		r.mu.Lock()
		r.reconnectCount = attempt
		r.mu.Unlock()
	}
}

func (r *Reconnector) calculateBackoff(attempt int) time.Duration {
	backoff := float64(r.baseBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(r.maxBackoff) {
		backoff = float64(r.maxBackoff)
	}
	jitter := 0.75 + 0.5*rand.Float64()
	return time.Duration(backoff * jitter)
}
