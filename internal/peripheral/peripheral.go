// Package peripheral defines the registration point for the drivers
// spec.md names as explicitly out of scope (scheduled news/weather
// pushers, a moments extractor, a login heartbeat monitor) without
// implementing their logic — only the interface shape and no-op stubs,
// so a real driver can be plugged in later against the data stores
// (registry.WarningStore, registry.MomentStore) those spec.md already
// names.
package peripheral

import (
	"context"
	"log/slog"
)

// Driver is one background task the bridge's top-level orchestrator
// launches for its lifetime: a news/weather pusher, the moments
// extractor, a login heartbeat monitor, or similar. Run blocks until ctx
// is canceled.
type Driver interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry launches every registered Driver in its own goroutine and
// waits for them to exit on shutdown.
type Registry struct {
	drivers []Driver
	log     *slog.Logger
}

// New builds an empty driver Registry.
func New(log *slog.Logger) *Registry {
	return &Registry{log: log.With("component", "peripheral")}
}

// Register adds a driver to be started by Run.
func (r *Registry) Register(d Driver) {
	r.drivers = append(r.drivers, d)
}

// Run starts every registered driver and blocks until ctx is canceled,
// logging (but not propagating) any driver's early exit.
func (r *Registry) Run(ctx context.Context) {
	done := make(chan struct{}, len(r.drivers))
	for _, d := range r.drivers {
		d := d
		go func() {
			defer func() { done <- struct{}{} }()
			if err := d.Run(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("peripheral driver exited", "driver", d.Name(), "error", err)
			}
		}()
	}
	<-ctx.Done()
	for range r.drivers {
		<-done
	}
}

// noopDriver satisfies Driver without doing anything; Run blocks until ctx
// is canceled. Registered under the out-of-scope drivers' names; this repo
// implements none of their logic.
type noopDriver struct{ name string }

func (d noopDriver) Name() string { return d.name }
func (d noopDriver) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// NewsWeatherPusher is a placeholder for the Python original's
// scheduled_pusher.py / weather_pusher.py — out of scope per spec.md §1.
func NewsWeatherPusher() Driver { return noopDriver{name: "news_weather_pusher"} }

// MomentsExtractor is a placeholder for utils/moments.py, anchored on
// registry.MomentStore's last_create_time — out of scope per spec.md §1.
func MomentsExtractor() Driver { return noopDriver{name: "moments_extractor"} }

// LoginHeartbeatMonitor is a placeholder for service/telethon_monitor.py
// — out of scope per spec.md §1.
func LoginHeartbeatMonitor() Driver { return noopDriver{name: "login_heartbeat_monitor"} }
