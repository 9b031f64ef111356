// Package datahandler implements the Data Handler: a thread-safe
// in-memory stage between DataProducing events and a storage backend,
// optionally routing items through a user-supplied processor before
// persistence.
//
// A dedicated goroutine drains storage writes (and, when a processor
// is attached, a second dedicated goroutine drains processing) so
// backends need not be thread-safe themselves; both attach their
// errors to the handler rather than returning them synchronously.
// Waiters block on a swapped-and-closed channel the same way package
// future's mutate does, rather than a sync.Cond, so AwaitData callers
// can select on ctx.Done() for timeouts.
package datahandler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/exengine-go/exengine/coords"
	"github.com/exengine-go/exengine/errs"
	"github.com/exengine-go/exengine/metrics"
	"github.com/exengine-go/exengine/notify"
	"github.com/exengine-go/exengine/storage"
)

// ProcessedItem is one output of a ProcessorFunc.
type ProcessedItem struct {
	Coords   coords.Coordinates
	Payload  []byte
	Metadata map[string]any
}

// ProcessorFunc routes a put item through user code before storage. A nil
// or empty return drops or defers the item; the processor is free to
// accumulate state across calls and emit later, since it runs on its
// own dedicated goroutine.
type ProcessorFunc func(c coords.Coordinates, payload []byte, metadata map[string]any) []ProcessedItem

type workItem struct {
	coords   coords.Coordinates
	payload  []byte
	metadata map[string]any
}

type entry struct {
	payload      []byte
	metadata     map[string]any
	haveData     bool
	haveMetadata bool
	stored       bool
	storedAt     time.Time
	pinned       bool
}

// Handler is the Data Handler. The zero value is not
// usable; construct with New.
type Handler struct {
	backend   storage.Backend
	processor ProcessorFunc
	eviction  EvictionPolicy
	onNotify  func(notify.Notification)
	metrics   metrics.Provider
	iterator  coords.Iterator
	bgCtx     context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	changed chan struct{}

	cache         map[string]*entry
	processQueue  []workItem
	storageQueue  []workItem
	finished      bool
	processorDone bool
	err           error

	wg sync.WaitGroup
}

// Option configures a Handler at construction.
type Option func(*Handler)

// WithProcessor attaches a processor pipeline.
func WithProcessor(p ProcessorFunc) Option { return func(h *Handler) { h.processor = p } }

// WithEvictionPolicy overrides the default DropAfterPersistence policy.
func WithEvictionPolicy(p EvictionPolicy) Option { return func(h *Handler) { h.eviction = p } }

// WithNotifier wires a callback invoked for DataStored/StorageFailed
// notifications, typically bus.Bus.Publish.
func WithNotifier(fn func(notify.Notification)) Option { return func(h *Handler) { h.onNotify = fn } }

// WithMetrics wires a metrics.Provider for storage-write latency
// instrumentation.
func WithMetrics(p metrics.Provider) Option { return func(h *Handler) { h.metrics = p } }

// WithIterator attaches the coords.Iterator that enumerates every
// coordinate this handler's producing event(s) can ever emit. AwaitData
// consults its MayProduce to fail fast with ErrUnknownCoordinates on a
// coordinate the iterator proves will never be produced, rather than
// blocking until the caller's context times out.
func WithIterator(it coords.Iterator) Option { return func(h *Handler) { h.iterator = it } }

// New constructs a Handler backed by backend and starts its storage
// writer goroutine (and processor goroutine, if WithProcessor is
// given). ctx bounds the handler's background goroutines; cancelling
// it is equivalent to an unclean shutdown and should normally be left
// to Close.
func New(ctx context.Context, backend storage.Backend, opts ...Option) *Handler {
	bgCtx, cancel := context.WithCancel(ctx)
	h := &Handler{
		backend:  backend,
		eviction: DropAfterPersistence{},
		bgCtx:    bgCtx,
		cancel:   cancel,
		changed:  make(chan struct{}),
		cache:    make(map[string]*entry),
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.NewNoopProvider()
	}

	h.wg.Add(1)
	go h.storageLoop()
	if h.processor != nil {
		h.wg.Add(1)
		go h.processorLoop()
	} else {
		h.processorDone = true
	}
	return h
}

// mutate runs fn under the handler's lock then wakes every blocked
// waiter (AwaitData callers and the background loops), mirroring
// future.Future.mutate.
func (h *Handler) mutate(fn func()) {
	h.mu.Lock()
	fn()
	old := h.changed
	h.changed = make(chan struct{})
	h.mu.Unlock()
	close(old)
}

func (h *Handler) entryFor(key string) *entry {
	e, ok := h.cache[key]
	if !ok {
		e = &entry{}
		h.cache[key] = e
	}
	return e
}

func (h *Handler) recordError(err error) {
	if err == nil {
		return
	}
	h.mutate(func() {
		if h.err == nil {
			h.err = err
		} else {
			h.err = errors.Join(h.err, err)
		}
	})
}

// Err returns the sticky error attached by the storage or processor
// goroutines, if any.
func (h *Handler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Put appends payload/metadata to the in-memory table and enqueues it
// for processing or storage. Non-blocking; satisfies event.DataPutter.
func (h *Handler) Put(c coords.Coordinates, payload []byte, metadata map[string]any) {
	h.mutate(func() {
		if h.finished {
			return
		}
		key := c.Key()
		e := h.entryFor(key)
		e.payload = payload
		e.metadata = metadata
		e.haveData = true
		e.haveMetadata = true
		wi := workItem{coords: c, payload: payload, metadata: metadata}
		if h.processor != nil {
			h.processQueue = append(h.processQueue, wi)
		} else {
			h.storageQueue = append(h.storageQueue, wi)
		}
	})
}

// PinUntil marks c so the eviction policy never drops it from memory,
// until the handler is closed.
func (h *Handler) PinUntil(c coords.Coordinates) {
	h.mutate(func() {
		h.entryFor(c.Key()).pinned = true
	})
}

// AwaitData blocks until c's payload and/or metadata are available,
// either still resident in memory or confirmed stored. AwaitData satisfies future.DataAwaiter.
//
// It raises ErrUnknownCoordinates, rather than blocking to a timeout, for
// a coordinate requested after Finish has been called or that the
// attached iterator (see WithIterator) proves will never be produced.
func (h *Handler) AwaitData(ctx context.Context, c coords.Coordinates, returnData, returnMetadata bool) ([]byte, map[string]any, error) {
	key := c.Key()
	for {
		h.mu.Lock()
		if h.err != nil {
			err := h.err
			h.mu.Unlock()
			return nil, nil, err
		}
		e, ok := h.cache[key]
		if !ok {
			if h.finished || (h.iterator != nil && !h.iterator.MayProduce(c)) {
				h.mu.Unlock()
				return nil, nil, errs.NewUnknownCoordinates(key)
			}
		} else {
			haveAll := (!returnData || e.haveData) && (!returnMetadata || e.haveMetadata)
			if haveAll {
				payload, metadata := cloneEntry(e)
				h.mu.Unlock()
				return payload, metadata, nil
			}
			if e.stored {
				h.mu.Unlock()
				return h.fetchFromStorage(ctx, key, returnData, returnMetadata)
			}
		}
		ch := h.changed
		h.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, nil, errs.NewTimeout("await_data")
		}
	}
}

func (h *Handler) fetchFromStorage(ctx context.Context, key string, returnData, returnMetadata bool) ([]byte, map[string]any, error) {
	var payload []byte
	var metadata map[string]any
	var err error
	if returnData {
		payload, err = h.backend.GetData(ctx, key)
		if err != nil {
			return nil, nil, errs.NewStorageFailed(key, err)
		}
	}
	if returnMetadata {
		metadata, err = h.backend.GetMetadata(ctx, key)
		if err != nil {
			return nil, nil, errs.NewStorageFailed(key, err)
		}
	}
	return payload, metadata, nil
}

func cloneEntry(e *entry) ([]byte, map[string]any) {
	var payload []byte
	if e.payload != nil {
		payload = make([]byte, len(e.payload))
		copy(payload, e.payload)
	}
	var metadata map[string]any
	if e.metadata != nil {
		metadata = make(map[string]any, len(e.metadata))
		for k, v := range e.metadata {
			metadata[k] = v
		}
	}
	return payload, metadata
}

// Finish signals no further Put calls will arrive, flushes pending
// processing and storage, then closes the underlying backend.
func (h *Handler) Finish(ctx context.Context) error {
	h.mutate(func() { h.finished = true })

	drained := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		return errs.NewTimeout("finish")
	}

	if err := h.backend.Finish(ctx); err != nil {
		h.recordError(err)
		return err
	}
	if err := h.backend.Close(); err != nil {
		h.recordError(err)
		return err
	}
	h.cancel()
	return h.Err()
}

// Close releases the handler's background goroutines without waiting
// for queued work to drain, for use on an unclean shutdown path. Finish
// is the normal exit; Close is idempotent alongside it.
func (h *Handler) Close() {
	h.cancel()
}

func (h *Handler) processorLoop() {
	defer h.wg.Done()
	defer h.mutate(func() { h.processorDone = true })
	for {
		h.mu.Lock()
		for len(h.processQueue) == 0 && !h.finished {
			ch := h.changed
			h.mu.Unlock()
			select {
			case <-ch:
			case <-h.bgCtx.Done():
				return
			}
			h.mu.Lock()
		}
		if len(h.processQueue) == 0 {
			h.mu.Unlock()
			return
		}
		wi := h.processQueue[0]
		h.processQueue = h.processQueue[1:]
		h.mu.Unlock()

		h.runProcessor(wi)
	}
}

func (h *Handler) runProcessor(wi workItem) {
	defer func() {
		if r := recover(); r != nil {
			h.recordError(fmt.Errorf("datahandler: processor panicked: %v", r))
		}
	}()
	emitted := h.processor(wi.coords, wi.payload, wi.metadata)
	if len(emitted) == 0 {
		return
	}
	h.mutate(func() {
		for _, pi := range emitted {
			key := pi.Coords.Key()
			e := h.entryFor(key)
			e.payload = pi.Payload
			e.metadata = pi.Metadata
			e.haveData = true
			e.haveMetadata = true
			h.storageQueue = append(h.storageQueue, workItem{coords: pi.Coords, payload: pi.Payload, metadata: pi.Metadata})
		}
	})
}

func (h *Handler) storageWritesDone() bool {
	return h.finished && h.processorDone && len(h.storageQueue) == 0
}

func (h *Handler) storageLoop() {
	defer h.wg.Done()
	latency := h.metrics.Histogram("exengine.datahandler.storage_write_latency_seconds")
	for {
		h.mu.Lock()
		for len(h.storageQueue) == 0 && !h.storageWritesDone() {
			ch := h.changed
			h.mu.Unlock()
			select {
			case <-ch:
			case <-h.bgCtx.Done():
				return
			}
			h.mu.Lock()
		}
		if len(h.storageQueue) == 0 {
			h.mu.Unlock()
			return
		}
		wi := h.storageQueue[0]
		h.storageQueue = h.storageQueue[1:]
		h.mu.Unlock()

		start := time.Now()
		h.runStorage(wi)
		latency.Record(time.Since(start).Seconds())
	}
}

func (h *Handler) runStorage(wi workItem) {
	key := wi.coords.Key()
	err := h.backend.Put(h.bgCtx, key, wi.payload, wi.metadata)

	h.mutate(func() {
		e := h.entryFor(key)
		if err != nil {
			return
		}
		e.stored = true
		e.storedAt = time.Now()
		if h.eviction != nil {
			evict := false
			if lru, ok := h.eviction.(*BoundedLRU); ok {
				isPinned := func(k string) bool {
					v, ok := h.cache[k]
					return ok && v.pinned
				}
				evictKey, should := lru.touch(key, isPinned)
				if should {
					if victim, ok := h.cache[evictKey]; ok {
						victim.payload = nil
						victim.metadata = nil
						victim.haveData = false
						victim.haveMetadata = false
					}
				}
			} else if !e.pinned {
				evict = h.eviction.ShouldEvict(wi.coords, e.storedAt)
			}
			if evict {
				e.payload = nil
				e.metadata = nil
				e.haveData = false
				e.haveMetadata = false
			}
		}
	})

	if err != nil {
		wrapped := errs.NewStorageFailed(key, err)
		h.recordError(wrapped)
		if h.onNotify != nil {
			h.onNotify(notify.StorageFailed(key, err))
		}
		return
	}
	if h.onNotify != nil {
		h.onNotify(notify.DataStored(key))
	}
}
