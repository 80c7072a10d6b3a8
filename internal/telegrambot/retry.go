package telegrambot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxAttempts is spec.md §4.2's retry ceiling.
const maxAttempts = 4

// apiError is a decoded Bot API failure response.
type apiError struct {
	Code        int
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("bot api error %d: %s", e.Code, e.Description)
}

// errPermanent wraps an error that must not be retried (parameter errors:
// bad request, invalid URL, unsupported protocol).
type errPermanent struct{ err error }

func (e *errPermanent) Error() string { return e.err.Error() }
func (e *errPermanent) Unwrap() error { return e.err }

// errFloodControl signals a 429 "Flood control" response.
type errFloodControl struct{ err error }

func (e *errFloodControl) Error() string { return e.err.Error() }
func (e *errFloodControl) Unwrap() error { return e.err }

// errPoolExhaustion signals the specific transient cause that also requires
// discarding the shared transport before the next attempt.
type errPoolExhaustion struct{ err error }

func (e *errPoolExhaustion) Error() string { return e.err.Error() }
func (e *errPoolExhaustion) Unwrap() error { return e.err }

// classifyHTTP turns a raw HTTP status/body pair into the typed error the
// retry loop dispatches on.
func classifyHTTP(status int, body []byte) error {
	var decoded struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.Unmarshal(body, &decoded)
	if decoded.OK {
		return nil
	}

	desc := strings.ToLower(decoded.Description)
	switch {
	case status == http.StatusTooManyRequests || strings.Contains(desc, "flood control"):
		return &errFloodControl{&apiError{Code: decoded.ErrorCode, Description: decoded.Description}}
	case strings.Contains(desc, "bad request") && strings.Contains(desc, "url"):
		return &errPermanent{&apiError{Code: decoded.ErrorCode, Description: decoded.Description}}
	case status >= 400 && status < 500:
		return &errPermanent{&apiError{Code: decoded.ErrorCode, Description: decoded.Description}}
	default:
		return &apiError{Code: decoded.ErrorCode, Description: decoded.Description}
	}
}

// classifyTransportErr inspects a network-level error (as opposed to a
// decoded API error) for the "pool exhaustion" cause.
func classifyTransportErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unsupported protocol"):
		return &errPermanent{err}
	case strings.Contains(msg, "connection pool") || strings.Contains(msg, "too many connections"):
		return &errPoolExhaustion{err}
	default:
		return err
	}
}

// retryBackOff is a backoff.BackOff whose NextBackOff depends on the kind
// of the error the most recent attempt produced: a fixed 60s cooldown on
// flood control, base·3^attempt after a pool-exhaustion cause, base·2^attempt
// otherwise. withRetry sets kind right before returning each attempt's
// error so the next NextBackOff call sees it.
type retryBackOff struct {
	base    time.Duration
	attempt int
	max     int
	kind    string
}

func (b *retryBackOff) Reset() { b.attempt = 0 }

func (b *retryBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt >= b.max {
		return backoff.Stop
	}
	switch b.kind {
	case "flood":
		return floodControlCooldown
	case "pool":
		return b.base * time.Duration(pow(3, b.attempt))
	default:
		return b.base * time.Duration(pow(2, b.attempt))
	}
}

// withRetry drives call through spec.md §4.2's retry policy via
// cenkalti/backoff/v4: exponential backoff (base·2^attempt, base·3^attempt
// after a pool-exhaustion cause, which also discards and recreates the
// pool's transport), a fixed 60s sleep on flood control, and immediate
// failure on permanent errors. Max attempts = 4; after exhaustion the
// original error propagates.
func (c *Client) withRetry(ctx context.Context, call func() error) error {
	bo := &retryBackOff{base: 500 * time.Millisecond, max: maxAttempts}

	operation := func() error {
		err := call()
		if err == nil {
			return nil
		}

		var permanent *errPermanent
		if errors.As(err, &permanent) {
			return backoff.Permanent(permanent.err)
		}

		var flood *errFloodControl
		var exhausted *errPoolExhaustion
		switch {
		case errors.As(err, &flood):
			bo.kind = "flood"
			c.pacer.TriggerFloodControl()
		case errors.As(err, &exhausted):
			bo.kind = "pool"
			c.pool.Reset()
		default:
			bo.kind = "default"
		}
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

func pow(base, exp int) int {
	r := 1
	for i := 0; i < exp; i++ {
		r *= base
	}
	return r
}
