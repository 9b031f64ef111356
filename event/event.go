// Package event defines the work-item taxonomy the executor runs:
// plain callables and structured Events with optional capabilities.
package event

import (
	"context"

	"github.com/exengine-go/exengine/coords"
	"github.com/exengine-go/exengine/notify"
)

// DataPutter is the slice of the data handler an Event needs during
// Execute to publish produced items. Defined here,
// not imported from package datahandler, so event has no dependency on
// the data handler's implementation.
type DataPutter interface {
	Put(c coords.Coordinates, payload []byte, metadata map[string]any)
}

// RunContext is handed to Item.Execute by the worker running it. It
// exposes cancellation, the cooperative stop/abort flags an event polls,
// the channel for publishing notifications mid-execution, and, for
// DataProducing events, the bound data handler.
type RunContext struct {
	ctx            context.Context
	stopRequested  func() bool
	abortRequested func() bool
	publish        func(notify.Notification)
	handler        DataPutter
}

// NewRunContext builds a RunContext. Called by the executor; event
// authors never construct one directly.
func NewRunContext(
	ctx context.Context,
	stopRequested, abortRequested func() bool,
	publish func(notify.Notification),
	handler DataPutter,
) *RunContext {
	return &RunContext{
		ctx:            ctx,
		stopRequested:  stopRequested,
		abortRequested: abortRequested,
		publish:        publish,
		handler:        handler,
	}
}

// Context returns the execution context, cancelled on engine shutdown.
func (rc *RunContext) Context() context.Context { return rc.ctx }

// IsStopRequested reports whether Future.Stop has been called. Stoppable
// events must poll this to cooperate.
func (rc *RunContext) IsStopRequested() bool {
	if rc.stopRequested == nil {
		return false
	}
	return rc.stopRequested()
}

// IsAbortRequested reports whether Future.Abort has been called.
func (rc *RunContext) IsAbortRequested() bool {
	if rc.abortRequested == nil {
		return false
	}
	return rc.abortRequested()
}

// PublishNotification records a non-terminal notification on the owning
// future and fans it out to the subscription bus.
func (rc *RunContext) PublishNotification(n notify.Notification) {
	if rc.publish != nil {
		rc.publish(n)
	}
}

// Handler returns the data handler the running event supplies through
// its own DataHandler method, and whether it supplied one.
func (rc *RunContext) Handler() (DataPutter, bool) {
	return rc.handler, rc.handler != nil
}

// Item is the common shape of everything the executor can run: plain
// callables and structured Events.
type Item interface {
	Execute(rc *RunContext) (any, error)
}

// Event is a structured work item with a declared set of notification
// kinds it may publish. Capabilities (Stoppable, Abortable,
// DataProducing) are independent optional interfaces an Event may also
// implement — see the marker types below — rather than an inheritance
// diamond.
type Event interface {
	Item
	NotificationKinds() []string
}

// Stoppable is implemented by Events that cooperate with Future.Stop.
// Embed StoppableCapability to opt in.
type Stoppable interface {
	exengineStoppable()
}

// Abortable is implemented by Events that cooperate with Future.Abort.
// Embed AbortableCapability to opt in.
type Abortable interface {
	exengineAbortable()
}

// DataProducing is implemented by Events whose Future exposes AwaitData.
// Embed DataProducingCapability to opt in.
type DataProducing interface {
	exengineDataProducing()
}

// StoppableCapability is embedded by an Event to declare it Stoppable.
type StoppableCapability struct{}

func (StoppableCapability) exengineStoppable() {}

// AbortableCapability is embedded by an Event to declare it Abortable.
type AbortableCapability struct{}

func (AbortableCapability) exengineAbortable() {}

// DataProducingCapability is embedded by an Event to declare it
// DataProducing.
type DataProducingCapability struct{}

func (DataProducingCapability) exengineDataProducing() {}

// Callable adapts a plain function into an Item with no notifications and
// no capabilities.
type Callable func(ctx context.Context) (any, error)

// Execute runs the wrapped function.
func (f Callable) Execute(rc *RunContext) (any, error) { return f(rc.Context()) }

// WorkerOverride is implemented by an Event that names the worker it
// runs on when it is submitted without an explicit worker name. An
// explicit worker name passed to Submit takes precedence over it, and
// SubmitBatch does not consult it.
type WorkerOverride interface {
	OverrideWorker() (name string, ok bool)
}
