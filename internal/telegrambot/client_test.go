package telegrambot

import (
	"context"
	"errors"
	"testing"
)

func TestWithRetry_PermanentFailsImmediately(t *testing.T) {
	c := &Client{pool: NewTransportPool(), pacer: NewPacer(1000, 1000)}
	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		return &errPermanent{errors.New("bad request: invalid url")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a permanent error, got %d", calls)
	}
}

func TestWithRetry_ExhaustsMaxAttempts(t *testing.T) {
	c := &Client{pool: NewTransportPool(), pacer: NewPacer(1000, 1000)}
	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		return errors.New("transient network error")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, calls)
	}
}

func TestWithRetry_SucceedsAfterTransientError(t *testing.T) {
	c := &Client{pool: NewTransportPool(), pacer: NewPacer(1000, 1000)}
	calls := 0
	err := c.withRetry(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient network error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestClassifyHTTP_FloodControl(t *testing.T) {
	body := []byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5"}`)
	err := classifyHTTP(429, body)
	var flood *errFloodControl
	if !errors.As(err, &flood) {
		t.Fatalf("expected errFloodControl, got %v (%T)", err, err)
	}
}

func TestClassifyHTTP_Permanent(t *testing.T) {
	body := []byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	err := classifyHTTP(400, body)
	var permanent *errPermanent
	if !errors.As(err, &permanent) {
		t.Fatalf("expected errPermanent, got %v (%T)", err, err)
	}
}
