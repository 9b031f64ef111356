package worker

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/exengine-go/exengine/errs"
	"github.com/exengine-go/exengine/event"
	"github.com/exengine-go/exengine/future"
	"github.com/exengine-go/exengine/metrics"
	"github.com/exengine-go/exengine/notify"
)

// Submission describes one item to run, already resolved to a worker
// name and a capability set. Constructing the Future is the Pool's job:
// Submit/SubmitBatch return it.
type Submission struct {
	Item         event.Item
	WorkerName   string
	Capabilities future.Capabilities
	DataAwaiter  future.DataAwaiter
	OnPublish    func(notify.Notification)
}

// Pool accepts submissions and guarantees serialized execution per
// worker.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	defaultWorker string
	maxQueueDepth int
	metricsProv   metrics.Provider

	mu        sync.Mutex
	workers   map[string]*Worker
	shutdown  bool
	submitted map[uintptr]struct{} // pointer-identity guard against double-submission
}

// identityOf returns a stable pointer-identity for item when it is a
// pointer (or wraps one), for double-submission detection. Value-typed items
// (plain funcs, value structs) have no stable identity to key on and are
// not tracked — the invariant is best-effort, not exhaustive, since Go
// offers no universal object identity.
func identityOf(item event.Item) (uintptr, bool) {
	v := reflect.ValueOf(item)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		return v.Pointer(), true
	}
	return 0, false
}

// Config configures a new Pool.
type Config struct {
	DefaultWorkerName string
	MaxQueueDepth     int // 0 == unbounded
	Metrics           metrics.Provider
}

// New constructs a Pool. The pool's background context is derived from
// ctx; Shutdown cancels it so long-blocked Execute bodies observe
// cancellation cooperatively.
func New(ctx context.Context, cfg Config) *Pool {
	pctx, cancel := context.WithCancel(ctx)
	if cfg.DefaultWorkerName == "" {
		cfg.DefaultWorkerName = "main"
	}
	return &Pool{
		ctx:           pctx,
		cancel:        cancel,
		defaultWorker: cfg.DefaultWorkerName,
		maxQueueDepth: cfg.MaxQueueDepth,
		metricsProv:   cfg.Metrics,
		workers:       make(map[string]*Worker),
		submitted:     make(map[uintptr]struct{}),
	}
}

// workerFor returns (creating lazily if needed) the named worker.
func (p *Pool) workerFor(name string) (*Worker, error) {
	if name == "" {
		name = p.defaultWorker
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return nil, errs.ErrSubmissionRejected
	}
	w, ok := p.workers[name]
	if !ok {
		w = newWorker(p.ctx, name, p.maxQueueDepth, nil, newInstrumentation(p.metricsProv, name))
		p.workers[name] = w
	}
	return w, nil
}

// Submit enqueues one item on the named worker, returning a bound
// Future immediately.
func (p *Pool) Submit(s Submission) (*future.Future, error) {
	ptr, tracked := identityOf(s.Item)
	if tracked {
		p.mu.Lock()
		_, seen := p.submitted[ptr]
		if !seen {
			p.submitted[ptr] = struct{}{}
		}
		p.mu.Unlock()
		if seen {
			return nil, errs.ErrAlreadySubmitted
		}
	}

	// Anything short of a successful enqueue leaves the item not actually
	// submitted, so the identity guard must not outlive the failure —
	// otherwise a caller retrying the same pointer after transient
	// backpressure would see ErrAlreadySubmitted forever.
	releaseOnFailure := func() {
		if tracked {
			p.mu.Lock()
			delete(p.submitted, ptr)
			p.mu.Unlock()
		}
	}

	w, err := p.workerFor(s.WorkerName)
	if err != nil {
		releaseOnFailure()
		return nil, err
	}

	id := uuid.New()
	fut := future.New(id, w.Name(), s.Capabilities, s.DataAwaiter, s.OnPublish)

	if err := w.enqueue(queuedItem{item: s.Item, fut: fut}); err != nil {
		releaseOnFailure()
		return nil, err
	}
	return fut, nil
}

// SubmitBatch enqueues every submission contiguously and in order on its
// worker. All submissions must share the same worker name; callers
// targeting multiple workers call SubmitBatch once per worker.
func (p *Pool) SubmitBatch(workerName string, items []event.Item, capsFor func(i int) future.Capabilities, awaiterFor func(i int) future.DataAwaiter, onPublishFor func(i int) func(notify.Notification)) ([]*future.Future, error) {
	if len(items) == 0 {
		return nil, nil
	}
	w, err := p.workerFor(workerName)
	if err != nil {
		return nil, err
	}

	futs := make([]*future.Future, len(items))
	qis := make([]queuedItem, len(items))
	for i, item := range items {
		caps := future.Capabilities{}
		if capsFor != nil {
			caps = capsFor(i)
		}
		var awaiter future.DataAwaiter
		if awaiterFor != nil {
			awaiter = awaiterFor(i)
		}
		var onPublish func(notify.Notification)
		if onPublishFor != nil {
			onPublish = onPublishFor(i)
		}
		fut := future.New(uuid.New(), w.Name(), caps, awaiter, onPublish)
		futs[i] = fut
		qis[i] = queuedItem{item: item, fut: fut}
	}

	if err := w.enqueueBatch(qis); err != nil {
		return nil, err
	}
	return futs, nil
}

// Shutdown blocks new submissions; when wait is true it drains every
// worker's queue, when false it cancels queued-but-not-running items.
func (p *Pool) Shutdown(wait bool) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	workers := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	for _, w := range workers {
		w.close(wait)
	}
	if wait {
		for _, w := range workers {
			w.wait()
		}
	}
	p.cancel()
}

// WorkerNames returns the names of every worker created so far, for
// diagnostics/snapshots.
func (p *Pool) WorkerNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.workers))
	for name := range p.workers {
		out = append(out, name)
	}
	return out
}

// QueueDepth returns the approximate queue length for a worker (0 if the
// worker does not exist yet).
func (p *Pool) QueueDepth(name string) int {
	p.mu.Lock()
	w, ok := p.workers[name]
	p.mu.Unlock()
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}
