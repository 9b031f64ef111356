package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/exengine-go/exengine/metrics"
	"github.com/exengine-go/exengine/notify"
)

// subscriberQueue is one subscriber's private FIFO queue plus the single
// goroutine draining it, isolating it from every other subscriber.
type subscriberQueue struct {
	handler Handler
	filter  Filter

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []notify.Notification
	closed bool
	done   chan struct{}

	maxDepth int
	logger   *slog.Logger
	latency  metrics.Histogram
	dropped  metrics.Counter
}

func newSubscriberQueue(handler Handler, filter Filter, maxDepth int, logger *slog.Logger, provider metrics.Provider) *subscriberQueue {
	if logger == nil {
		logger = slog.Default()
	}
	sq := &subscriberQueue{
		handler:  handler,
		filter:   filter,
		maxDepth: maxDepth,
		done:     make(chan struct{}),
		logger:   logger,
		latency:  provider.Histogram("exengine.bus.handler_latency_seconds"),
		dropped:  provider.Counter("exengine.bus.dropped_notifications"),
	}
	sq.cond = sync.NewCond(&sq.mu)
	go sq.loop()
	return sq
}

// push enqueues n. If the queue is bounded and full, the oldest entry is
// dropped to keep the publisher non-blocking rather than applying
// backpressure to the event producing the notification.
func (sq *subscriberQueue) push(n notify.Notification) {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	if sq.closed {
		return
	}
	if sq.maxDepth > 0 && len(sq.queue) >= sq.maxDepth {
		sq.queue = sq.queue[1:]
		sq.dropped.Add(1)
	}
	sq.queue = append(sq.queue, n)
	sq.cond.Signal()
}

func (sq *subscriberQueue) close() {
	sq.mu.Lock()
	sq.closed = true
	sq.cond.Broadcast()
	sq.mu.Unlock()
}

func (sq *subscriberQueue) loop() {
	defer close(sq.done)
	for {
		sq.mu.Lock()
		for len(sq.queue) == 0 && !sq.closed {
			sq.cond.Wait()
		}
		if len(sq.queue) == 0 && sq.closed {
			sq.mu.Unlock()
			return
		}
		n := sq.queue[0]
		sq.queue = sq.queue[1:]
		sq.mu.Unlock()

		sq.invoke(n)
	}
}

// invoke calls the handler under recover: an exception raised by a
// handler is caught, logged, and does not unsubscribe the handler.
func (sq *subscriberQueue) invoke(n notify.Notification) {
	start := time.Now()
	defer func() {
		sq.latency.Record(time.Since(start).Seconds())
		if r := recover(); r != nil {
			sq.logger.Error("exengine: notification handler panicked",
				slog.Any("panic", r),
				slog.String("kind", n.Kind()),
				slog.String("category", string(n.Category())),
			)
		}
	}()
	sq.handler(n)
}
