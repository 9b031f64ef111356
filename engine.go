package exengine

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/exengine-go/exengine/bus"
	"github.com/exengine-go/exengine/datahandler"
	"github.com/exengine-go/exengine/event"
	"github.com/exengine-go/exengine/future"
	workerpkg "github.com/exengine-go/exengine/internal/worker"
	"github.com/exengine-go/exengine/notify"
	"github.com/exengine-go/exengine/proxy"
	"github.com/exengine-go/exengine/storage"
)

// Engine is the runtime: a named-worker executor, a device proxy
// registry, and a subscription bus, wired together. The zero value is
// not usable; construct with New.
type Engine struct {
	cfg      Config
	pool     *workerpkg.Pool
	bus      *bus.Bus
	registry *proxy.Registry
}

// New constructs an Engine. ctx is the parent of the context every
// executed item sees through event.RunContext.Context; cancelling it
// cancels that context but does not stop the workers or the
// subscription bus, which only Shutdown does.
func New(ctx context.Context, opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg: cfg,
		pool: workerpkg.New(ctx, workerpkg.Config{
			DefaultWorkerName: cfg.DefaultWorkerName,
			MaxQueueDepth:     cfg.MaxQueueDepth,
			Metrics:           cfg.Metrics,
		}),
		bus: bus.New(
			bus.WithLogger(cfg.Logger),
			bus.WithMetrics(cfg.Metrics),
			bus.WithQueueDepth(cfg.NotificationQueueDepth),
		),
	}
	e.registry = proxy.NewRegistry(e)
	return e
}

// dataAwaiterBinder is implemented by events that carry a pre-bound
// data handler for AwaitData resolution, so Submit can wire a
// DataProducing future without importing package datahandler directly
// into the event taxonomy.
type dataAwaiterBinder interface {
	DataAwaiter() future.DataAwaiter
}

func (e *Engine) resolveWorker(item event.Item, workerName string) string {
	if workerName == "" {
		if wo, ok := item.(event.WorkerOverride); ok {
			if name, ok2 := wo.OverrideWorker(); ok2 {
				workerName = name
			}
		}
	}
	if workerName == "" {
		workerName = e.cfg.DefaultWorkerName
	}
	return workerName
}

// Submit enqueues item on workerName (or the event's worker override, or
// the engine's default worker, in that precedence), returning a bound
// Future immediately. Submit satisfies proxy.Submitter, so an Engine can
// be passed directly to proxy.NewRegistry.
func (e *Engine) Submit(item event.Item, workerName string, caps future.Capabilities) (*future.Future, error) {
	workerName = e.resolveWorker(item, workerName)

	var awaiter future.DataAwaiter
	if caps.DataProducing {
		if b, ok := item.(dataAwaiterBinder); ok {
			awaiter = b.DataAwaiter()
		}
	}

	return e.pool.Submit(workerpkg.Submission{
		Item:         item,
		WorkerName:   workerName,
		Capabilities: caps,
		DataAwaiter:  awaiter,
		OnPublish:    e.bus.Publish,
	})
}

// SubmitBatch enqueues every item contiguously and in order on
// workerName (or the engine's default worker). capsFor reports the
// capability set for item i; DataProducing items resolve their
// DataAwaiter the same way Submit does.
func (e *Engine) SubmitBatch(workerName string, items []event.Item, capsFor func(i int) future.Capabilities) ([]*future.Future, error) {
	if workerName == "" {
		workerName = e.cfg.DefaultWorkerName
	}
	awaiterFor := func(i int) future.DataAwaiter {
		if capsFor == nil || !capsFor(i).DataProducing {
			return nil
		}
		if b, ok := items[i].(dataAwaiterBinder); ok {
			return b.DataAwaiter()
		}
		return nil
	}
	onPublishFor := func(int) func(notify.Notification) { return e.bus.Publish }
	return e.pool.SubmitBatch(workerName, items, capsFor, awaiterFor, onPublishFor)
}

// RegisterDevice wraps device behind a proxy bound to this engine's
// executor, returning the Device handle callers use for every
// subsequent attribute/method access.
func (e *Engine) RegisterDevice(name string, device any, opts ...proxy.RegisterOption) (*proxy.Device, error) {
	return e.registry.Register(name, device, opts...)
}

// NewDataHandler constructs a Data Handler wired to the engine's
// subscription bus (DataStored/StorageFailed notifications) and metrics
// provider by default; opts may override either.
func (e *Engine) NewDataHandler(ctx context.Context, backend storage.Backend, opts ...datahandler.Option) *datahandler.Handler {
	defaults := []datahandler.Option{
		datahandler.WithNotifier(e.bus.Publish),
		datahandler.WithMetrics(e.cfg.Metrics),
	}
	return datahandler.New(ctx, backend, append(defaults, opts...)...)
}

// Subscribe registers handler on the engine's subscription bus,
// invoked for notifications matching filter.
func (e *Engine) Subscribe(handler bus.Handler, filter bus.Filter) bus.Handle {
	return e.bus.Subscribe(handler, filter)
}

// Unsubscribe removes a subscription previously returned by Subscribe.
func (e *Engine) Unsubscribe(h bus.Handle) {
	e.bus.Unsubscribe(h)
}

// ExportNotificationsJSON subscribes to every notification and encodes
// each as a single JSON object onto w in the wire format, for ad hoc
// observability export. It is never enabled by default; callers opt in
// by calling it explicitly.
func (e *Engine) ExportNotificationsJSON(w io.Writer) bus.Handle {
	enc := json.NewEncoder(w)
	var mu sync.Mutex
	return e.bus.Subscribe(func(n notify.Notification) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(n)
	}, bus.NoFilter())
}

// WorkerSnapshot is one worker's point-in-time load.
type WorkerSnapshot struct {
	Name       string
	QueueDepth int
}

// Snapshot is a point-in-time view of engine load, for diagnostics.
type Snapshot struct {
	Workers          []WorkerSnapshot
	BusSubscriptions int
}

// Snapshot reports per-worker queue depth and the number of active
// subscriptions. The number of named workers is expected to stay small
// (tens at most), so this walks every worker directly rather than
// maintaining a separate rollup.
func (e *Engine) Snapshot() Snapshot {
	names := e.pool.WorkerNames()
	workers := make([]WorkerSnapshot, len(names))
	for i, name := range names {
		workers[i] = WorkerSnapshot{Name: name, QueueDepth: e.pool.QueueDepth(name)}
	}
	return Snapshot{Workers: workers, BusSubscriptions: e.bus.Len()}
}

// Shutdown stops accepting new submissions. When wait is true, it
// drains every worker's queue and waits for the bus to finish
// dispatching already-queued notifications, bounded by ctx; when false,
// it cancels queued-but-not-running work immediately.
func (e *Engine) Shutdown(ctx context.Context, wait bool) {
	e.pool.Shutdown(wait)
	e.bus.Close(ctx)
}
