package telegrambot

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// poolSize is the shared connection pool width named in spec.md §4.2.
const poolSize = 30

const (
	connectTimeout  = 15 * time.Second
	rwTimeout       = 45 * time.Second
	poolIdleTimeout = 60 * time.Second
)

// TransportPool owns the single http.Transport shared across the bridge's
// bot API calls. It is adapted from the teacher's ProviderBalancer: instead
// of rotating between provider slots, it rotates the whole transport when a
// terminal "pool exhaustion" cause is reported, matching spec.md §4.2's
// "underlying connection pool is also discarded before the next attempt".
type TransportPool struct {
	mu     sync.RWMutex
	client *http.Client
}

// NewTransportPool builds a pool with the connect/read-write/idle timeouts
// named in spec.md §4.2.
func NewTransportPool() *TransportPool {
	return &TransportPool{client: newPooledClient()}
}

func newPooledClient() *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     poolSize,
		MaxIdleConnsPerHost: poolSize,
		IdleConnTimeout:     poolIdleTimeout,
		ResponseHeaderTimeout: rwTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   rwTimeout,
	}
}

// Client returns the currently-active http.Client.
func (p *TransportPool) Client() *http.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// Reset discards the current transport and builds a fresh one, used when a
// call fails with the "pool exhaustion" cause.
func (p *TransportPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.client.Transport.(*http.Transport); ok {
		old.CloseIdleConnections()
	}
	p.client = newPooledClient()
}
