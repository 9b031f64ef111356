// Package bus implements the Subscription Bus: a broadcast registry of
// notification listeners with kind/category filtering, delivering
// out-of-band and non-blocking with respect to publishers.
//
// Each subscriber gets its own FIFO queue and dispatch goroutine rather
// than sharing a worker pool, so a slow handler only ever delays its
// own subscriber's notifications, never another subscriber's, while
// still preserving that every subscriber sees its matching
// notifications in publication order. A shared pool draining one
// queue cannot offer both guarantees at once.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/exengine-go/exengine/metrics"
	"github.com/exengine-go/exengine/notify"
)

// Handler receives notifications matching a subscription's filter.
type Handler func(notify.Notification)

// Handle identifies a subscription for Unsubscribe.
type Handle uuid.UUID

// Bus is the subscription registry and dispatcher.
type Bus struct {
	mu   sync.RWMutex // favors readers: Publish is the hot path
	subs map[Handle]*subscriberQueue

	logger  *slog.Logger
	metrics metrics.Provider

	queueDepth int // 0 == unbounded
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for handler-panic diagnostics.
func WithLogger(l *slog.Logger) Option { return func(b *Bus) { b.logger = l } }

// WithMetrics wires a metrics.Provider for dispatch instrumentation.
func WithMetrics(p metrics.Provider) Option { return func(b *Bus) { b.metrics = p } }

// WithQueueDepth bounds each subscriber's internal queue. 0 means unbounded.
func WithQueueDepth(n int) Option { return func(b *Bus) { b.queueDepth = n } }

// New constructs a Bus with no subscribers.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[Handle]*subscriberQueue),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = metrics.NewNoopProvider()
	}
	return b
}

// Subscribe registers handler, invoked for notifications matching
// filter, and returns a handle for Unsubscribe.
func (b *Bus) Subscribe(handler Handler, filter Filter) Handle {
	h := Handle(uuid.New())
	sq := newSubscriberQueue(handler, filter, b.queueDepth, b.logger, b.metrics)

	b.mu.Lock()
	b.subs[h] = sq
	b.mu.Unlock()

	return h
}

// Unsubscribe removes the subscription. Already-queued notifications for
// it are still delivered; no new ones are enqueued after this call
// returns.
func (b *Bus) Unsubscribe(h Handle) {
	b.mu.Lock()
	sq, ok := b.subs[h]
	delete(b.subs, h)
	b.mu.Unlock()
	if ok {
		sq.close()
	}
}

// Publish fans n out to every subscriber whose filter matches.
// Non-blocking with respect to the caller: it only appends to each
// matching subscriber's in-memory queue.
func (b *Bus) Publish(n notify.Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sq := range b.subs {
		if sq.filter.match(n) {
			sq.push(n)
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes and drains every subscriber, waiting for their
// dispatch goroutines to exit. Intended for engine shutdown.
func (b *Bus) Close(ctx context.Context) {
	b.mu.Lock()
	all := make([]*subscriberQueue, 0, len(b.subs))
	for h, sq := range b.subs {
		all = append(all, sq)
		delete(b.subs, h)
	}
	b.mu.Unlock()

	for _, sq := range all {
		sq.close()
	}
	for _, sq := range all {
		select {
		case <-sq.done:
		case <-ctx.Done():
			return
		}
	}
}
