// Package worker implements the executor's named, single-goroutine FIFO
// queues and the pool that owns them. Each worker runs an execute-under-
// recover loop with an ordered shutdown sequence, over named, long-lived
// goroutines so device thread-affinity guarantees hold.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/exengine-go/exengine/errs"
	"github.com/exengine-go/exengine/event"
	"github.com/exengine-go/exengine/future"
	"github.com/exengine-go/exengine/metrics"
	"github.com/exengine-go/exengine/notify"
)

// queuedItem pairs a work item with the future it was submitted under.
type queuedItem struct {
	item event.Item
	fut  *future.Future
}

// Worker is a named FIFO queue plus exactly one long-running goroutine
// draining it.
type Worker struct {
	name string
	ctx  context.Context

	maxDepth int // 0 == unbounded

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []queuedItem
	closed bool
	done   chan struct{}

	onPublish func(notify.Notification)
	metrics   *instrumentation
}

func newWorker(ctx context.Context, name string, maxDepth int, onPublish func(notify.Notification), m *instrumentation) *Worker {
	w := &Worker{
		name:      name,
		ctx:       ctx,
		maxDepth:  maxDepth,
		done:      make(chan struct{}),
		onPublish: onPublish,
		metrics:   m,
	}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

// Name returns the worker's name.
func (w *Worker) Name() string { return w.name }

// enqueue appends one item. Returns ErrSubmissionRejected if the worker
// is closed or (when bounded) full.
func (w *Worker) enqueue(qi queuedItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errs.ErrSubmissionRejected
	}
	if w.maxDepth > 0 && len(w.queue) >= w.maxDepth {
		return errs.ErrSubmissionRejected
	}
	w.queue = append(w.queue, qi)
	if w.metrics != nil {
		w.metrics.queueDepth.Add(1)
	}
	w.cond.Signal()
	return nil
}

// enqueueBatch appends every item atomically: either all are appended,
// contiguously and in order, or (if capacity is insufficient) none are.
func (w *Worker) enqueueBatch(qis []queuedItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errs.ErrSubmissionRejected
	}
	if w.maxDepth > 0 && len(w.queue)+len(qis) > w.maxDepth {
		return errs.ErrSubmissionRejected
	}
	w.queue = append(w.queue, qis...)
	if w.metrics != nil {
		w.metrics.queueDepth.Add(int64(len(qis)))
	}
	w.cond.Broadcast()
	return nil
}

// close stops accepting new work. If wait is false, queued-but-not-
// running items are rejected in place with ErrSubmissionRejected; the
// goroutine exits once the (now empty, for wait=false) queue drains.
func (w *Worker) close(wait bool) {
	w.mu.Lock()
	w.closed = true
	var dropped []queuedItem
	if !wait {
		dropped = w.queue
		w.queue = nil
	}
	w.cond.Broadcast()
	w.mu.Unlock()

	for _, qi := range dropped {
		qi.fut.CompleteWithNotification(future.Failed, nil, errs.ErrSubmissionRejected, notify.EventExecuted(errs.ErrSubmissionRejected))
	}
}

// wait blocks until the worker's goroutine has exited (all queued items
// drained after close).
func (w *Worker) wait() { <-w.done }

func (w *Worker) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && w.closed {
			w.mu.Unlock()
			return
		}
		qi := w.queue[0]
		w.queue = w.queue[1:]
		if w.metrics != nil {
			w.metrics.queueDepth.Add(-1)
		}
		w.mu.Unlock()

		w.execute(qi)
	}
}

// execute runs one dequeued item under recover: on return it
// marks the future succeeded, on panic or error it marks the future
// failed, and in either case it publishes the terminal executed
// notification.
func (w *Worker) execute(qi queuedItem) {
	fut := qi.fut
	fut.MarkRunning()

	start := time.Now()
	if w.metrics != nil {
		w.metrics.inFlight.Add(1)
		defer w.metrics.inFlight.Add(-1)
		defer func() { w.metrics.latency.Record(time.Since(start).Seconds()) }()
		defer w.metrics.dispatched.Add(1)
	}

	ctx := withWorkerName(w.ctx, w.name)

	handler, _ := dataHandlerOf(qi.item)

	rc := event.NewRunContext(
		ctx,
		fut.IsStopRequested,
		fut.IsAbortRequested,
		fut.PublishNotification,
		handler,
	)

	result, err := runRecovered(qi.item, rc)

	terminalState := future.Succeeded
	var terminalErr error
	if err != nil {
		terminalState = future.Failed
		terminalErr = errs.NewEventExecutionFailed(fut.ID(), w.name, err)
	}
	fut.CompleteWithNotification(terminalState, result, terminalErr, notify.EventExecuted(terminalErr))
}

func runRecovered(item event.Item, rc *event.RunContext) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return item.Execute(rc)
}

type panicError struct{ value any }

func (e *panicError) Error() string { return "exengine: event execution panicked: " + toString(e.value) }

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic value"
}

// dataHandlerBinder is implemented by events that carry their own data
// handler, so the worker can thread it into the RunContext without
// importing package datahandler.
type dataHandlerBinder interface {
	DataHandler() event.DataPutter
}

func dataHandlerOf(item event.Item) (event.DataPutter, bool) {
	if b, ok := item.(dataHandlerBinder); ok {
		h := b.DataHandler()
		return h, h != nil
	}
	return nil, false
}

type workerCtxKeyType struct{}

var workerCtxKey = workerCtxKeyType{}

func withWorkerName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workerCtxKey, name)
}

// CurrentWorker returns the name of the worker executing the calling
// goroutine's current item, and whether one was found. Used by the
// device proxy to detect re-entrant calls.
func CurrentWorker(ctx context.Context) (string, bool) {
	v := ctx.Value(workerCtxKey)
	if v == nil {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}

type instrumentation struct {
	queueDepth metrics.UpDownCounter
	inFlight   metrics.UpDownCounter
	dispatched metrics.Counter
	latency    metrics.Histogram
}

// newInstrumentation registers one set of instruments per worker name.
// BasicProvider dedups purely by instrument name (WithAttributes is
// advisory metadata, not part of instrument identity), so two workers
// sharing a bare "exengine.worker.queue_depth" would silently collapse
// onto the same counter; the worker name is folded into the instrument
// name itself to keep per-worker instruments distinct.
func newInstrumentation(p metrics.Provider, workerName string) *instrumentation {
	if p == nil {
		p = metrics.NewNoopProvider()
	}
	attrs := metrics.WithAttributes(map[string]string{"worker": workerName})
	named := func(suffix string) string { return "exengine.worker." + workerName + "." + suffix }
	return &instrumentation{
		queueDepth: p.UpDownCounter(named("queue_depth"), attrs),
		inFlight:   p.UpDownCounter(named("in_flight"), attrs),
		dispatched: p.Counter(named("dispatched"), attrs),
		latency:    p.Histogram(named("latency_seconds"), attrs),
	}
}
