// Package dispatcher implements the Ingress Dispatcher (component F): the
// shared per-message pipeline fed by the HTTP callback and broker queue
// sources (spec.md §4.6), applying the skip/dedup/route rules common to
// both before handing each message to the translation layer.
package dispatcher

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/hououinkami/wegram/internal/wire"
)

// weixinSystemSender is the sentinel FromUserName value spec.md §4.6 step 3
// names for WeChat's own system account.
const weixinSystemSender = "weixin"

// successMessage is the literal control-message value meaning "this
// delivery carries real messages, process them" (spec.md §4.6 step 1).
const successMessage = "成功"

// logoutMessage is the literal control-message value meaning the WeChat
// session logged out; it triggers an online/offline transition and nothing
// else.
const logoutMessage = "用户可能退出"

// PresenceNotifier is pushed an online/offline transition for the control
// message spec.md §4.6 step 1 names.
type PresenceNotifier interface {
	NotifyPresence(ctx context.Context, online bool)
}

// Dispatcher wires the dedup store and worker pool together and exposes the
// single per-message entry point both ingress sources call into.
type Dispatcher struct {
	dedup    *Dedup
	workers  *WorkerPool
	presence PresenceNotifier
	log      *slog.Logger
}

// New creates a Dispatcher. handler is the translation entry point
// (component G); presence receives online/offline transitions.
func New(handler Handler, presence PresenceNotifier, dedupCapacity int, dedupTTLSeconds int, log *slog.Logger) *Dispatcher {
	log = log.With("component", "dispatcher")
	ttl := dedupTTL
	if dedupTTLSeconds > 0 {
		ttl = time.Duration(dedupTTLSeconds) * time.Second
	}
	return &Dispatcher{
		dedup:    NewDedup(dedupCapacity, ttl),
		workers:  NewWorkerPool(handler, log),
		presence: presence,
		log:      log,
	}
}

// HandleSync runs spec.md §4.6's per-message pipeline over one delivery
// (from either source): skip-unless-success/non-empty, control-message
// presence transition, per-message dedup+skip-system-sender+route.
func (d *Dispatcher) HandleSync(ctx context.Context, message string, addMsgs []wire.AddMsg) {
	if message == logoutMessage {
		if d.presence != nil {
			d.presence.NotifyPresence(ctx, false)
		}
		return
	}
	if message != successMessage || len(addMsgs) == 0 {
		return
	}

	for _, msg := range addMsgs {
		d.handleOne(ctx, msg)
	}
}

func (d *Dispatcher) handleOne(ctx context.Context, msg wire.AddMsg) {
	if msg.FromUserName == weixinSystemSender {
		return
	}

	key := strconv.FormatInt(msg.MsgId, 10)
	if !d.dedup.Claim(key) {
		d.log.Debug("dropped duplicate message", "msg_id", msg.MsgId)
		return
	}

	d.workers.Submit(ctx, msg.FromUserName, msg)
}

// Forget releases a claimed dedup key, for callers that want to allow retry
// after a dispatch failure surfaces outside the worker's own error log
// (e.g. a broker nack path that must not silently swallow the message).
func (d *Dispatcher) Forget(msgID int64) {
	d.dedup.Forget(strconv.FormatInt(msgID, 10))
}

// Close stops the worker pool's background reaper and all live workers.
func (d *Dispatcher) Close() { d.workers.Close() }
