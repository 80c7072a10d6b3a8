package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hououinkami/wegram/internal/wire"
)

const (
	workerIdleTimeout = 10 * time.Minute
	reapInterval      = 5 * time.Minute
	maxReapsPerSweep  = 10

	// softQueueBound is the per-contact backlog depth past which Submit
	// still enqueues (spec.md §5: the queue is unbounded) but logs a
	// warning, since a backlog this deep usually means the handler is
	// stuck rather than merely busy.
	softQueueBound = 1000
)

// Handler translates one inbound WeChat message. Supplied by the wiring
// layer (bridge.go); the dispatcher itself is translator-agnostic.
type Handler func(ctx context.Context, msg wire.AddMsg) error

// contactWorker is an unbounded FIFO queue serving exactly one WeChat
// conversation id, processed strictly in arrival order — the ordering
// guarantee named in spec.md §4.6. The queue is a growable slice behind a
// condition variable rather than a fixed-size channel, so a burst never
// blocks the submitter or drops a message.
type contactWorker struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []wire.AddMsg
	closed   bool
	lastSeen time.Time
}

func newContactWorker() *contactWorker {
	w := &contactWorker{lastSeen: time.Now()}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// push appends msg to the tail of the queue, waking one blocked worker
// goroutine, and reports the resulting queue depth. Never blocks the caller.
func (w *contactWorker) push(msg wire.AddMsg) int {
	w.mu.Lock()
	w.queue = append(w.queue, msg)
	depth := len(w.queue)
	w.lastSeen = time.Now()
	w.mu.Unlock()
	w.cond.Signal()
	return depth
}

// pop blocks until the queue is non-empty or the worker is closed, then
// returns and removes the head of the queue.
func (w *contactWorker) pop() (wire.AddMsg, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.queue) == 0 && !w.closed {
		w.cond.Wait()
	}
	if len(w.queue) == 0 && w.closed {
		return wire.AddMsg{}, false
	}
	msg := w.queue[0]
	w.queue = w.queue[1:]
	return msg, true
}

func (w *contactWorker) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

// WorkerPool routes inbound messages to lazily-created per-contact workers,
// reaping ones that have sat idle past workerIdleTimeout. Adapted from the
// teacher's Reconnector heartbeat-ticker shape (a single background
// goroutine performing periodic maintenance), repurposed here from
// connection-liveness polling to idle-worker reaping.
type WorkerPool struct {
	log     *slog.Logger
	handler Handler

	mu      sync.Mutex
	workers map[string]*contactWorker

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewWorkerPool creates a pool dispatching claimed messages to handler.
func NewWorkerPool(handler Handler, log *slog.Logger) *WorkerPool {
	p := &WorkerPool{
		log:     log.With("component", "dispatcher.worker"),
		handler: handler,
		workers: make(map[string]*contactWorker),
		stop:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.reapLoop()
	return p
}

// Submit enqueues msg onto the worker for fromWxid, creating it if absent.
// The queue is unbounded (spec.md §5): Submit never blocks or drops, but
// logs once a contact's backlog passes softQueueBound.
func (p *WorkerPool) Submit(ctx context.Context, fromWxid string, msg wire.AddMsg) {
	w := p.workerFor(fromWxid)
	depth := w.push(msg)
	if depth > softQueueBound {
		p.log.Warn("contact queue exceeds soft bound", "from_wxid", fromWxid, "depth", depth)
	}
}

func (p *WorkerPool) workerFor(fromWxid string) *contactWorker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.workers[fromWxid]; ok {
		w.mu.Lock()
		w.lastSeen = time.Now()
		w.mu.Unlock()
		return w
	}

	w := newContactWorker()
	p.workers[fromWxid] = w
	p.wg.Add(1)
	go p.runWorker(fromWxid, w)
	return w
}

func (p *WorkerPool) runWorker(fromWxid string, w *contactWorker) {
	defer p.wg.Done()
	for {
		msg, ok := w.pop()
		if !ok {
			return
		}
		if err := p.handler(context.Background(), msg); err != nil {
			p.log.Error("message handler failed", "from_wxid", fromWxid, "msg_id", msg.MsgId, "error", err)
		}
	}
}

func (p *WorkerPool) reapLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

// reapIdle removes workers with an empty queue idle past workerIdleTimeout,
// capped at maxReapsPerSweep per spec.md §4.6 to bound a single sweep's work.
func (p *WorkerPool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	reaped := 0
	now := time.Now()
	for fromWxid, w := range p.workers {
		if reaped >= maxReapsPerSweep {
			break
		}
		w.mu.Lock()
		idle := now.Sub(w.lastSeen) > workerIdleTimeout
		empty := len(w.queue) == 0
		w.mu.Unlock()

		if idle && empty {
			w.close()
			delete(p.workers, fromWxid)
			reaped++
		}
	}
	if reaped > 0 {
		p.log.Debug("reaped idle workers", "count", reaped)
	}
}

// Close stops the reaper and every live worker.
func (p *WorkerPool) Close() {
	close(p.stop)
	p.mu.Lock()
	for _, w := range p.workers {
		w.close()
	}
	p.workers = make(map[string]*contactWorker)
	p.mu.Unlock()
	p.wg.Wait()
}
