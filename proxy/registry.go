// Package proxy implements the Device Proxy Layer: it makes a
// registered device behave as if synchronous and single-threaded while
// every observable side effect runs on the device's assigned worker.
//
// Attribute get/set and method calls are intercepted via reflection and
// turned into synthesized GetAttr/SetAttr/MethodCall events submitted
// to the executor, blocking the caller until the resulting future
// completes. Proxied methods take context.Context as their first
// parameter; the worker running an event stamps that context with its
// own name (internal/worker.CurrentWorker), which is how a nested call
// from one device method into another method on the same device is
// detected and executed inline instead of deadlocking against its own
// worker's FIFO queue.
package proxy

import (
	"fmt"
	"sync"
)

// CapabilityProvider is an optional interface a registered device may
// implement to expose read-only constraints on its properties. Proxy
// checks for it once at registration time and caches the result, since
// Go has no duck-typing to probe for it per call.
type CapabilityProvider interface {
	// AllowedValues returns the finite set of legal values for attr, and
	// whether such a set is defined.
	AllowedValues(attr string) (values []any, ok bool)

	// IsReadOnly reports whether attr may not be set.
	IsReadOnly(attr string) bool

	// Limits returns the numeric bounds for attr, and whether bounds
	// are defined.
	Limits(attr string) (low, high float64, ok bool)

	// IsHardwareTriggerable reports whether attr can be driven by a
	// hardware trigger rather than only software writes.
	IsHardwareTriggerable(attr string) bool
}

// Capabilities is the resolved, point-in-time snapshot of a property's
// constraints, returned by Device.Capabilities.
type Capabilities struct {
	AllowedValues       []any
	HasAllowedValues    bool
	ReadOnly            bool
	Low, High           float64
	HasLimits           bool
	HardwareTriggerable bool
}

// registration holds everything the registry knows about one device.
type registration struct {
	name          string
	workerName    string // device-class override: the worker this device's calls run on by default
	bypassAll     bool
	bypass        map[string]bool
	methodWorkers map[string]string // device-method override table
	capabilities  CapabilityProvider
}

// RegisterOption configures a device at Register time.
type RegisterOption func(*registration)

// WithWorker assigns the device's worker (the device-class override in
// the executor's worker-selection precedence).
func WithWorker(name string) RegisterOption {
	return func(r *registration) { r.workerName = name }
}

// WithBypass services the named attributes/methods directly on the
// calling goroutine, with no event synthesized. Bypass is a
// performance/semantics choice the caller opts into; the core never
// relies on it for correctness.
func WithBypass(names ...string) RegisterOption {
	return func(r *registration) {
		if r.bypass == nil {
			r.bypass = make(map[string]bool, len(names))
		}
		for _, n := range names {
			r.bypass[n] = true
		}
	}
}

// WithFullBypass services every name on the device directly on the
// calling goroutine.
func WithFullBypass() RegisterOption {
	return func(r *registration) { r.bypassAll = true }
}

// WithMethodWorker overrides the worker a specific method or attribute
// runs on, taking precedence over the device's own WithWorker
// assignment (the device-method override).
func WithMethodWorker(name, workerName string) RegisterOption {
	return func(r *registration) {
		if r.methodWorkers == nil {
			r.methodWorkers = make(map[string]string)
		}
		r.methodWorkers[name] = workerName
	}
}

// WithCapabilityProvider wires hooks for Device.Capabilities. If the
// device itself implements CapabilityProvider, Register detects that
// automatically; this option is for wrapping a device that doesn't.
func WithCapabilityProvider(p CapabilityProvider) RegisterOption {
	return func(r *registration) { r.capabilities = p }
}

// Registry tracks registered devices and hands out Proxy wrappers. The
// engine owns one Registry; user code never sees a raw device
// reference after registration.
type Registry struct {
	submitter Submitter

	mu      sync.RWMutex
	devices map[string]*registration
}

// NewRegistry constructs a Registry bound to submitter, the executor
// front end used to run synthesized events.
func NewRegistry(submitter Submitter) *Registry {
	return &Registry{submitter: submitter, devices: make(map[string]*registration)}
}

// Register binds device under name and returns a Device proxy. device
// must be a pointer to a struct; attribute access operates on its
// exported fields, method calls on its exported methods.
func (r *Registry) Register(name string, device any, opts ...RegisterOption) (*Device, error) {
	reg := &registration{name: name, workerName: name}
	for _, o := range opts {
		o(reg)
	}
	if reg.capabilities == nil {
		if cp, ok := device.(CapabilityProvider); ok {
			reg.capabilities = cp
		}
	}

	r.mu.Lock()
	if _, exists := r.devices[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("proxy: device %q already registered", name)
	}
	r.devices[name] = reg
	r.mu.Unlock()

	return newDevice(device, reg, r.submitter), nil
}

// Lookup returns the registration Register recorded for name, and
// whether one exists.
func (r *Registry) Lookup(name string) (*registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.devices[name]
	return reg, ok
}
