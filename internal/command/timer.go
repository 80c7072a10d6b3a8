package command

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// timerCheckInterval is the longest any single time.AfterFunc wait runs
// before re-arming — spec.md §5's "checks the shutdown flag at least once
// per 60s" cooperative-cancel requirement for waits longer than that.
const timerCheckInterval = 60 * time.Second

// TimerScheduler runs single-shot /timer sends, re-arming its underlying
// time.AfterFunc in <=60s slices so a shutdown is never more than a minute
// away from being honored even for a wait scheduled hours out.
type TimerScheduler struct {
	mu       sync.Mutex
	shutdown atomic.Bool
	timers   []*time.Timer
}

// NewTimerScheduler builds an idle scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

// Schedule arms fn to run at when (local to the process clock), or
// immediately if when has already passed.
func (s *TimerScheduler) Schedule(when time.Time, fn func()) {
	s.arm(when, fn)
}

func (s *TimerScheduler) arm(when time.Time, fn func()) {
	remaining := time.Until(when)
	if s.shutdown.Load() {
		return
	}
	if remaining <= timerCheckInterval {
		if remaining < 0 {
			remaining = 0
		}
		t := time.AfterFunc(remaining, func() {
			if !s.shutdown.Load() {
				fn()
			}
		})
		s.track(t)
		return
	}
	t := time.AfterFunc(timerCheckInterval, func() { s.arm(when, fn) })
	s.track(t)
}

func (s *TimerScheduler) track(t *time.Timer) {
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
}

// Shutdown stops every pending timer and prevents new ones from firing.
func (s *TimerScheduler) Shutdown() {
	s.shutdown.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
}

// parseHHMM interprets a 4-digit HHMM string as a time today (local time),
// rolling over to tomorrow if that time has already passed.
func parseHHMM(hhmm string) (time.Time, error) {
	if len(hhmm) != 4 {
		return time.Time{}, fmt.Errorf("timer time %q must be HHMM", hhmm)
	}
	hour, err := strconv.Atoi(hhmm[:2])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("timer time %q: invalid hour", hhmm)
	}
	minute, err := strconv.Atoi(hhmm[2:])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("timer time %q: invalid minute", hhmm)
	}

	now := time.Now()
	when := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if when.Before(now) {
		when = when.AddDate(0, 0, 1)
	}
	return when, nil
}
