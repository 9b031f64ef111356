// Package errs defines ExEngine's closed set of error kinds as sentinel
// values and wrapping types, composed with errors.Is/As/Join. It has no
// dependencies on any other ExEngine package so every package can
// report these kinds without import cycles.
package errs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel error kinds. Use errors.Is against these, or
// errors.As against the wrapping types below for correlation metadata.
var (
	// ErrSubmissionRejected: engine is shut down, or queue full.
	ErrSubmissionRejected = errors.New("exengine: submission rejected")

	// ErrCapabilityUnsupported: stop/abort/await_data on a future whose
	// event lacks the capability.
	ErrCapabilityUnsupported = errors.New("exengine: capability unsupported")

	// ErrUnknownCoordinates: get/await_data for coordinates the handler's
	// iterator can prove will never be produced, or that follow finish().
	ErrUnknownCoordinates = errors.New("exengine: unknown coordinates")

	// ErrTimeout: an await expired.
	ErrTimeout = errors.New("exengine: timeout")

	// ErrStorage: a storage put could not be persisted.
	ErrStorage = errors.New("exengine: storage error")

	// ErrDeviceAttribute: the underlying device raised on attribute
	// access, propagated through the proxy as if called directly.
	ErrDeviceAttribute = errors.New("exengine: device attribute error")

	// ErrAlreadySubmitted: the same work item was submitted twice.
	ErrAlreadySubmitted = errors.New("exengine: work item already submitted")
)

// EventExecutionFailed wraps whatever an event's execute() raised. It is
// recorded on the future and re-raised by await_execution.
type EventExecutionFailed struct {
	FutureUUID uuid.UUID
	WorkerName string
	Cause      error
}

func (e *EventExecutionFailed) Error() string {
	return fmt.Sprintf("exengine: event execution failed on worker %q: %v", e.WorkerName, e.Cause)
}

func (e *EventExecutionFailed) Unwrap() error { return e.Cause }

// FutureID satisfies CorrelatedError.
func (e *EventExecutionFailed) FutureID() (uuid.UUID, bool) { return e.FutureUUID, true }

// Worker satisfies CorrelatedError.
func (e *EventExecutionFailed) Worker() (string, bool) { return e.WorkerName, true }

// NewEventExecutionFailed wraps cause with future/worker correlation.
func NewEventExecutionFailed(futureID uuid.UUID, worker string, cause error) error {
	if cause == nil {
		return nil
	}
	return &EventExecutionFailed{FutureUUID: futureID, WorkerName: worker, Cause: cause}
}

// CorrelatedError is implemented by wrapped errors that can identify the
// future and/or worker that produced them.
type CorrelatedError interface {
	error
	FutureID() (uuid.UUID, bool)
	Worker() (string, bool)
}

// ExtractFutureID returns the future ID from err if present.
func ExtractFutureID(err error) (uuid.UUID, bool) {
	var ce CorrelatedError
	if errors.As(err, &ce) {
		return ce.FutureID()
	}
	return uuid.Nil, false
}

// ExtractWorker returns the worker name from err if present.
func ExtractWorker(err error) (string, bool) {
	var ce CorrelatedError
	if errors.As(err, &ce) {
		return ce.Worker()
	}
	return "", false
}

// Timeout wraps ErrTimeout with the operation that expired, for
// diagnostics (await_execution, await_notification, await_data).
type Timeout struct {
	Op string
}

func (e *Timeout) Error() string { return fmt.Sprintf("exengine: timeout waiting for %s", e.Op) }

func (e *Timeout) Unwrap() error { return ErrTimeout }

// NewTimeout builds a Timeout for operation op.
func NewTimeout(op string) error { return &Timeout{Op: op} }

// CapabilityUnsupported wraps ErrCapabilityUnsupported naming the missing
// capability and the operation attempted.
type CapabilityUnsupported struct {
	Capability string
	Op         string
}

func (e *CapabilityUnsupported) Error() string {
	return fmt.Sprintf("exengine: event does not support %s, cannot %s", e.Capability, e.Op)
}

func (e *CapabilityUnsupported) Unwrap() error { return ErrCapabilityUnsupported }

// NewCapabilityUnsupported builds a CapabilityUnsupported error.
func NewCapabilityUnsupported(capability, op string) error {
	return &CapabilityUnsupported{Capability: capability, Op: op}
}

// UnknownCoordinates wraps ErrUnknownCoordinates naming the offending key.
type UnknownCoordinates struct {
	CoordsKey string
}

func (e *UnknownCoordinates) Error() string {
	return fmt.Sprintf("exengine: coordinates %s will never be produced", e.CoordsKey)
}

func (e *UnknownCoordinates) Unwrap() error { return ErrUnknownCoordinates }

// NewUnknownCoordinates builds an UnknownCoordinates error.
func NewUnknownCoordinates(coordsKey string) error {
	return &UnknownCoordinates{CoordsKey: coordsKey}
}

// StorageFailed wraps ErrStorage with the underlying backend error.
type StorageFailed struct {
	CoordsKey string
	Cause     error
}

func (e *StorageFailed) Error() string {
	return fmt.Sprintf("exengine: storage put failed for %s: %v", e.CoordsKey, e.Cause)
}

func (e *StorageFailed) Unwrap() error { return e.Cause }

// Is reports ErrStorage for errors.Is(err, ErrStorage).
func (e *StorageFailed) Is(target error) bool { return target == ErrStorage }

// NewStorageFailed wraps cause as a StorageFailed for coordsKey.
func NewStorageFailed(coordsKey string, cause error) error {
	if cause == nil {
		return nil
	}
	return &StorageFailed{CoordsKey: coordsKey, Cause: cause}
}

// DeviceAttributeError wraps ErrDeviceAttribute with the device/attribute
// names and the underlying error the device raised.
type DeviceAttributeError struct {
	Device string
	Attr   string
	Cause  error
}

func (e *DeviceAttributeError) Error() string {
	return fmt.Sprintf("exengine: device %q attribute %q: %v", e.Device, e.Attr, e.Cause)
}

func (e *DeviceAttributeError) Unwrap() error { return e.Cause }

func (e *DeviceAttributeError) Is(target error) bool { return target == ErrDeviceAttribute }

// NewDeviceAttributeError wraps cause with device/attribute correlation.
func NewDeviceAttributeError(device, attr string, cause error) error {
	if cause == nil {
		return nil
	}
	return &DeviceAttributeError{Device: device, Attr: attr, Cause: cause}
}
