package telegrambot

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// floodControlCooldown is the fixed sleep spec.md §4.2 mandates after a
// Bot API "Flood control" (429) response.
const floodControlCooldown = 60 * time.Second

// Pacer throttles outbound Bot API calls through a token bucket, and holds
// off every caller for a fixed window after a flood-control response.
//
// Adapted from the teacher's ipad.RiskControl: that type gates WeChat
// actions against daily counters and a per-message interval to avoid
// anti-spam detection; this type gates Bot API calls against Telegram's own
// flood-control signal instead, so it tracks a single cooldown deadline
// rather than daily message/group/friend counters.
type Pacer struct {
	limiter *rate.Limiter

	mu             sync.Mutex
	cooldownUntil  time.Time
}

// NewPacer creates a Pacer with the given average rate and burst.
func NewPacer(rps int, burst int) *Pacer {
	if rps <= 0 {
		rps = 25
	}
	if burst <= 0 {
		burst = rps
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until the caller may proceed: first honoring any active
// flood-control cooldown, then the token bucket.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	until := p.cooldownUntil
	p.mu.Unlock()

	if d := time.Until(until); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return p.limiter.Wait(ctx)
}

// TriggerFloodControl opens a fixed-duration cooldown window during which
// every caller's Wait blocks, per spec.md §4.2's "fixed 60s sleep".
func (p *Pacer) TriggerFloodControl() {
	p.mu.Lock()
	defer p.mu.Unlock()
	until := time.Now().Add(floodControlCooldown)
	if until.After(p.cooldownUntil) {
		p.cooldownUntil = until
	}
}
