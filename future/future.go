// Package future implements the Future: the executor's return channel
// for execution completion, error propagation, data arrival, and
// stop/abort cooperation.
package future

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/exengine-go/exengine/coords"
	"github.com/exengine-go/exengine/errs"
	"github.com/exengine-go/exengine/notify"
)

// DataAwaiter is the slice of the data handler a DataProducing Future
// needs to satisfy AwaitData. Defined here (not imported from package
// datahandler) so future has no dependency on the handler's
// implementation; datahandler.Handler satisfies this interface.
type DataAwaiter interface {
	AwaitData(ctx context.Context, c coords.Coordinates, returnData, returnMetadata bool) (payload []byte, metadata map[string]any, err error)
}

// Capabilities declares which optional Future operations are valid for
// the event bound to a Future.
type Capabilities struct {
	Stoppable     bool
	Abortable     bool
	DataProducing bool
}

// Future is an opaque handle bound to one submitted work item.
type Future struct {
	id   uuid.UUID
	name string // worker the work item runs on

	caps        Capabilities
	dataAwaiter DataAwaiter
	onPublish   func(notify.Notification) // fans out to the subscription bus

	mu      sync.Mutex
	changed chan struct{}

	state   State
	result  any
	err     error
	notes   []notify.Notification
	stopReq bool
	abortReq bool
}

// New constructs a pending Future. id should be unique per submission
// (internal/worker's Pool.Submit and Pool.SubmitBatch generate one with
// uuid.New()).
func New(id uuid.UUID, workerName string, caps Capabilities, dataAwaiter DataAwaiter, onPublish func(notify.Notification)) *Future {
	return &Future{
		id:          id,
		name:        workerName,
		caps:        caps,
		dataAwaiter: dataAwaiter,
		onPublish:   onPublish,
		changed:     make(chan struct{}),
		state:       Pending,
	}
}

// ID returns the future's unique identifier.
func (f *Future) ID() uuid.UUID { return f.id }

// WorkerName returns the name of the worker this future's item runs on.
func (f *Future) WorkerName() string { return f.name }

// Capabilities returns the capability set declared at construction.
func (f *Future) Capabilities() Capabilities { return f.caps }

// mutate runs fn under the future's lock, then wakes every blocked
// waiter by swapping in a fresh "changed" channel and closing the old
// one. fn must not block and must not call back into Future's exported
// methods (re-entrant lock).
func (f *Future) mutate(fn func()) {
	f.mu.Lock()
	fn()
	old := f.changed
	f.changed = make(chan struct{})
	f.mu.Unlock()
	close(old)
}

// MarkRunning transitions pending -> running. Called by the worker
// immediately before invoking the item's Execute. A no-op if the future
// somehow is not pending (defensive; should not happen).
func (f *Future) MarkRunning() {
	f.mutate(func() {
		if f.state == Pending {
			f.state = Running
		}
	})
}

// Complete transitions the future to a terminal state exactly once. The
// first call wins; subsequent calls are no-ops, preserving monotonicity.
func (f *Future) Complete(state State, result any, err error) {
	if !state.Terminal() {
		panic("future: Complete requires a terminal state")
	}
	f.mutate(func() {
		if f.state.Terminal() {
			return
		}
		f.state = state
		f.result = result
		f.err = err
	})
}

// PublishNotification appends n to the future's notification log and
// fans it out to the subscription bus, if one is wired.
func (f *Future) PublishNotification(n notify.Notification) {
	f.mutate(func() {
		f.notes = append(f.notes, n)
	})
	if f.onPublish != nil {
		f.onPublish(n)
	}
}

// CompleteWithNotification atomically transitions the future to a
// terminal state and appends/fans out its terminal notification under a
// single mutate, so an AwaitNotification caller can never observe the
// state already terminal while the matching notification has not yet
// been recorded. The first call wins, mirroring Complete.
func (f *Future) CompleteWithNotification(state State, result any, err error, n notify.Notification) {
	if !state.Terminal() {
		panic("future: CompleteWithNotification requires a terminal state")
	}
	applied := false
	f.mutate(func() {
		if f.state.Terminal() {
			return
		}
		f.state = state
		f.result = result
		f.err = err
		f.notes = append(f.notes, n)
		applied = true
	})
	if applied && f.onPublish != nil {
		f.onPublish(n)
	}
}

// IsExecutionComplete is the non-blocking completion check.
func (f *Future) IsExecutionComplete() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Terminal()
}

// State returns the current state.
func (f *Future) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// AwaitExecution blocks until the future is terminal, then returns the
// result on success or re-raises the recorded error.
// Stopped/aborted futures are reported as terminal success with a
// sentinel result, or terminal failure, at the event's own discretion —
// AwaitExecution simply surfaces whatever Complete recorded.
func (f *Future) AwaitExecution(ctx context.Context) (any, error) {
	for {
		f.mu.Lock()
		if f.state.Terminal() {
			result, err := f.result, f.err
			f.mu.Unlock()
			return result, err
		}
		ch := f.changed
		f.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, errs.NewTimeout("await_execution")
		}
	}
}

// AwaitNotification blocks until a notification of the exact kind has
// been recorded, returning immediately if one was already recorded.
func (f *Future) AwaitNotification(ctx context.Context, kind string) (notify.Notification, error) {
	for {
		f.mu.Lock()
		for _, n := range f.notes {
			if n.Kind() == kind {
				f.mu.Unlock()
				return n, nil
			}
		}
		terminal := f.state.Terminal()
		ch := f.changed
		f.mu.Unlock()

		if terminal {
			// One more pass: the terminal notification may have been
			// appended in the same mutate() as the state transition, in
			// which case the loop above already found it. If not found
			// after observing terminal, it will never arrive.
			f.mu.Lock()
			for _, n := range f.notes {
				if n.Kind() == kind {
					f.mu.Unlock()
					return n, nil
				}
			}
			f.mu.Unlock()
			return notify.Notification{}, errs.NewTimeout("await_notification:" + kind)
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return notify.Notification{}, errs.NewTimeout("await_notification:" + kind)
		}
	}
}

// Notifications returns a snapshot of the notification log observed so
// far.
func (f *Future) Notifications() []notify.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.Notification, len(f.notes))
	copy(out, f.notes)
	return out
}

// AwaitData blocks until the data handler reports c available, only
// valid for DataProducing events.
func (f *Future) AwaitData(ctx context.Context, c coords.Coordinates, returnData, returnMetadata bool) ([]byte, map[string]any, error) {
	if !f.caps.DataProducing || f.dataAwaiter == nil {
		return nil, nil, errs.NewCapabilityUnsupported("DataProducing", "await_data")
	}
	return f.dataAwaiter.AwaitData(ctx, c, returnData, returnMetadata)
}

// AwaitDataResult is one element of AwaitDataMany's parallel output.
type AwaitDataResult struct {
	Payload  []byte
	Metadata map[string]any
	Err      error
}

// AwaitDataMany blocks until every coordinate in cs is available,
// returning a parallel slice preserving cs's order.
func (f *Future) AwaitDataMany(ctx context.Context, cs []coords.Coordinates, returnData, returnMetadata bool) []AwaitDataResult {
	out := make([]AwaitDataResult, len(cs))
	if !f.caps.DataProducing || f.dataAwaiter == nil {
		for i := range out {
			out[i].Err = errs.NewCapabilityUnsupported("DataProducing", "await_data")
		}
		return out
	}

	var wg sync.WaitGroup
	wg.Add(len(cs))
	for i, c := range cs {
		i, c := i, c
		go func() {
			defer wg.Done()
			p, m, err := f.dataAwaiter.AwaitData(ctx, c, returnData, returnMetadata)
			out[i] = AwaitDataResult{Payload: p, Metadata: m, Err: err}
		}()
	}
	wg.Wait()
	return out
}

// IsStopRequested reports whether Stop has been called. Read by the
// executor to build the event's RunContext.
func (f *Future) IsStopRequested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopReq
}

// IsAbortRequested reports whether Abort has been called.
func (f *Future) IsAbortRequested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.abortReq
}

// Stop sets the cooperative stop flag, only valid for Stoppable events.
// If awaitCompletion, blocks until terminal.
func (f *Future) Stop(ctx context.Context, awaitCompletion bool) error {
	if !f.caps.Stoppable {
		return errs.NewCapabilityUnsupported("Stoppable", "stop")
	}
	f.mutate(func() { f.stopReq = true })
	if awaitCompletion {
		_, err := f.AwaitExecution(ctx)
		var to *errs.Timeout
		if err != nil && errorsAsTimeout(err, &to) {
			return err
		}
	}
	return nil
}

// Abort sets the abort flag, only valid for Abortable events. If awaitCompletion, blocks until terminal.
func (f *Future) Abort(ctx context.Context, awaitCompletion bool) error {
	if !f.caps.Abortable {
		return errs.NewCapabilityUnsupported("Abortable", "abort")
	}
	f.mutate(func() { f.abortReq = true })
	if awaitCompletion {
		_, err := f.AwaitExecution(ctx)
		var to *errs.Timeout
		if err != nil && errorsAsTimeout(err, &to) {
			return err
		}
	}
	return nil
}
