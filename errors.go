package exengine

import "github.com/exengine-go/exengine/errs"

// Re-exported error sentinels, so embedders can errors.Is against the
// root package without importing errs directly.
var (
	ErrSubmissionRejected    = errs.ErrSubmissionRejected
	ErrCapabilityUnsupported = errs.ErrCapabilityUnsupported
	ErrUnknownCoordinates    = errs.ErrUnknownCoordinates
	ErrTimeout               = errs.ErrTimeout
	ErrStorage               = errs.ErrStorage
	ErrDeviceAttribute       = errs.ErrDeviceAttribute
	ErrAlreadySubmitted      = errs.ErrAlreadySubmitted
)
