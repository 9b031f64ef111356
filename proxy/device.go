package proxy

import (
	"context"
	"fmt"
	"reflect"

	"github.com/exengine-go/exengine/errs"
	"github.com/exengine-go/exengine/event"
	"github.com/exengine-go/exengine/future"
	workerpkg "github.com/exengine-go/exengine/internal/worker"
	"github.com/exengine-go/exengine/notify"
)

// Submitter is the slice of the executor the proxy needs to run
// synthesized events. exengine.Engine satisfies it.
type Submitter interface {
	Submit(item event.Item, workerName string, caps future.Capabilities) (*future.Future, error)
}

// Device is the proxy wrapper returned by Registry.Register. All
// attribute and method access on the wrapped value goes through it;
// the raw device is never exposed again.
type Device struct {
	name      string
	target    reflect.Value // the registered pointer, already reflect.ValueOf'd
	reg       *registration
	submitter Submitter
}

func newDevice(target any, reg *registration, submitter Submitter) *Device {
	return &Device{name: reg.name, target: reflect.ValueOf(target), reg: reg, submitter: submitter}
}

// workerFor resolves the worker a call to name runs on: the
// device-method override if one is registered, else the device-class
// worker (spec's override precedence, device-method over device-class).
func (d *Device) workerFor(name string) string {
	if d.reg.methodWorkers != nil {
		if w, ok := d.reg.methodWorkers[name]; ok {
			return w
		}
	}
	return d.reg.workerName
}

func (d *Device) bypassed(name string) bool {
	return d.reg.bypassAll || d.reg.bypass[name]
}

// isReentrant reports whether ctx is already executing on the worker
// this call would target, meaning the call should run inline rather
// than be re-enqueued.
func (d *Device) isReentrant(ctx context.Context, worker string) bool {
	current, ok := workerpkg.CurrentWorker(ctx)
	return ok && current == worker
}

// Get reads attribute name, synthesizing a GetAttr event unless name is
// bypassed or the call is re-entrant on the device's own worker. A
// failure reading the underlying field surfaces as a DeviceAttributeError
// (errors.Is(err, errs.ErrDeviceAttribute)).
func (d *Device) Get(ctx context.Context, name string) (any, error) {
	if d.bypassed(name) {
		v, err := readField(d.target, name)
		return v, d.wrapAttrErr(name, err)
	}
	worker := d.workerFor(name)
	if d.isReentrant(ctx, worker) {
		v, err := readField(d.target, name)
		return v, d.wrapAttrErr(name, err)
	}
	ev := &getAttrEvent{device: d.name, target: d.target, attr: name}
	fut, err := d.submitter.Submit(ev, worker, future.Capabilities{})
	if err != nil {
		return nil, err
	}
	return fut.AwaitExecution(ctx)
}

// Set writes attribute name to value, synthesizing a SetAttr event
// unless name is bypassed or the call is re-entrant. A failure writing
// the underlying field surfaces as a DeviceAttributeError.
func (d *Device) Set(ctx context.Context, name string, value any) error {
	if d.bypassed(name) {
		return d.wrapAttrErr(name, writeField(d.target, name, value))
	}
	worker := d.workerFor(name)
	if d.isReentrant(ctx, worker) {
		return d.wrapAttrErr(name, writeField(d.target, name, value))
	}
	ev := &setAttrEvent{device: d.name, target: d.target, attr: name, value: value}
	fut, err := d.submitter.Submit(ev, worker, future.Capabilities{})
	if err != nil {
		return err
	}
	_, err = fut.AwaitExecution(ctx)
	return err
}

// Call invokes method name with args, synthesizing a MethodCall event
// unless name is bypassed or the call is re-entrant. The method
// receives a context as its first parameter: ctx itself on the bypassed
// and re-entrant paths, and otherwise the worker's execution context,
// which the worker stamps with its own name for re-entrancy detection
// on any nested call the method makes. A failure reflecting into or
// invoking the method surfaces as a DeviceAttributeError; an error the
// method itself returns is passed through unwrapped.
func (d *Device) Call(ctx context.Context, name string, args ...any) (any, error) {
	if d.bypassed(name) {
		return d.callMethodWrapped(ctx, name, args)
	}
	worker := d.workerFor(name)
	if d.isReentrant(ctx, worker) {
		return d.callMethodWrapped(ctx, name, args)
	}
	ev := &methodCallEvent{device: d.name, target: d.target, method: name, args: args}
	fut, err := d.submitter.Submit(ev, worker, future.Capabilities{})
	if err != nil {
		return nil, err
	}
	return fut.AwaitExecution(ctx)
}

// wrapAttrErr wraps a readField/writeField failure (missing or
// unsettable attribute) as a DeviceAttributeError for errors.Is/As
// against errs.ErrDeviceAttribute. nil passes through unchanged.
func (d *Device) wrapAttrErr(attr string, err error) error {
	if err == nil {
		return nil
	}
	return errs.NewDeviceAttributeError(d.name, attr, err)
}

// callMethodWrapped invokes method by reflection, wrapping a missing
// method as a DeviceAttributeError; an error the method itself returns
// passes through unwrapped.
func (d *Device) callMethodWrapped(ctx context.Context, method string, args []any) (any, error) {
	m := d.target.MethodByName(method)
	if !m.IsValid() {
		return nil, errs.NewDeviceAttributeError(d.name, method, fmt.Errorf("proxy: device has no method %q", method))
	}
	return callMethod(ctx, d.target, method, args)
}

// Capabilities returns the resolved constraint snapshot for attr. The
// query itself runs through the executor like any other access.
func (d *Device) Capabilities(ctx context.Context, attr string) (Capabilities, error) {
	worker := d.workerFor(attr)
	run := func() (any, error) { return d.resolveCapabilities(attr), nil }
	if d.isReentrant(ctx, worker) {
		res, _ := run()
		return res.(Capabilities), nil
	}
	ev := event.Callable(func(context.Context) (any, error) { return run() })
	fut, err := d.submitter.Submit(ev, worker, future.Capabilities{})
	if err != nil {
		return Capabilities{}, err
	}
	res, err := fut.AwaitExecution(ctx)
	if err != nil {
		return Capabilities{}, err
	}
	return res.(Capabilities), nil
}

func (d *Device) resolveCapabilities(attr string) Capabilities {
	var caps Capabilities
	if d.reg.capabilities == nil {
		return caps
	}
	caps.ReadOnly = d.reg.capabilities.IsReadOnly(attr)
	caps.HardwareTriggerable = d.reg.capabilities.IsHardwareTriggerable(attr)
	if values, ok := d.reg.capabilities.AllowedValues(attr); ok {
		caps.AllowedValues = values
		caps.HasAllowedValues = true
	}
	if low, high, ok := d.reg.capabilities.Limits(attr); ok {
		caps.Low, caps.High = low, high
		caps.HasLimits = true
	}
	return caps
}

// --- reflection helpers -----------------------------------------------

func readField(target reflect.Value, name string) (any, error) {
	v := target
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	fv := v.FieldByName(name)
	if !fv.IsValid() {
		return nil, fmt.Errorf("proxy: device has no attribute %q", name)
	}
	return fv.Interface(), nil
}

func writeField(target reflect.Value, name string, value any) error {
	v := target
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	fv := v.FieldByName(name)
	if !fv.IsValid() {
		return fmt.Errorf("proxy: device has no attribute %q", name)
	}
	if !fv.CanSet() {
		return fmt.Errorf("proxy: attribute %q is not settable", name)
	}
	fv.Set(reflect.ValueOf(value))
	return nil
}

// callMethod invokes method name on target, passing ctx as the first
// argument, via reflection. Methods on a registered device must accept
// context.Context as their first parameter.
func callMethod(ctx context.Context, target reflect.Value, name string, args []any) (any, error) {
	m := target.MethodByName(name)
	if !m.IsValid() {
		return nil, fmt.Errorf("proxy: device has no method %q", name)
	}
	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(ctx))
	for _, a := range args {
		in = append(in, reflect.ValueOf(a))
	}
	out := m.Call(in)
	return splitCallResult(out)
}

// splitCallResult interprets a reflected method's return values as
// either (result, error), (error), or (result) — the shapes Go methods
// proxied this way are expected to use.
func splitCallResult(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := out[0].Interface().(error); ok {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		result := out[0].Interface()
		var err error
		if e, ok := out[len(out)-1].Interface().(error); ok {
			err = e
		}
		return result, err
	}
}

// --- synthesized events -------------------------------------------------

type getAttrEvent struct {
	device string
	target reflect.Value
	attr   string
}

func (e *getAttrEvent) Execute(rc *event.RunContext) (any, error) {
	v, err := readField(e.target, e.attr)
	if err != nil {
		return nil, errs.NewDeviceAttributeError(e.device, e.attr, err)
	}
	return v, nil
}

func (e *getAttrEvent) NotificationKinds() []string { return []string{notify.KindEventExecuted} }

type setAttrEvent struct {
	device string
	target reflect.Value
	attr   string
	value  any
}

func (e *setAttrEvent) Execute(rc *event.RunContext) (any, error) {
	if err := writeField(e.target, e.attr, e.value); err != nil {
		return nil, errs.NewDeviceAttributeError(e.device, e.attr, err)
	}
	return nil, nil
}

func (e *setAttrEvent) NotificationKinds() []string { return []string{notify.KindEventExecuted} }

type methodCallEvent struct {
	device string
	target reflect.Value
	method string
	args   []any
}

// Execute invokes the method by reflection. A reflection failure (no
// such method) surfaces as a DeviceAttributeError; an error the method
// itself returns is passed through unwrapped, since that is the
// device's own reported failure, not an attribute-access failure.
func (e *methodCallEvent) Execute(rc *event.RunContext) (any, error) {
	m := e.target.MethodByName(e.method)
	if !m.IsValid() {
		return nil, errs.NewDeviceAttributeError(e.device, e.method, fmt.Errorf("proxy: device has no method %q", e.method))
	}
	return callMethod(rc.Context(), e.target, e.method, e.args)
}

func (e *methodCallEvent) NotificationKinds() []string { return []string{notify.KindEventExecuted} }
