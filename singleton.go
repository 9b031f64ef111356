package exengine

import (
	"context"
	"errors"
	"sync"
)

var (
	singletonMu sync.Mutex
	singleton   *Engine
)

// ErrAlreadyInitialized is returned by Init when a singleton Engine is
// already active; double-init is a programming error, not a runtime
// condition to recover from silently.
var ErrAlreadyInitialized = errors.New("exengine: Init called while a singleton Engine is already active")

// Init constructs an Engine and installs it as the process-wide
// singleton. It is an error to call Init again before Shutdown.
func Init(ctx context.Context, opts ...Option) (*Engine, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton != nil {
		return nil, ErrAlreadyInitialized
	}
	singleton = New(ctx, opts...)
	return singleton, nil
}

// Instance returns the active singleton Engine, and whether Init has
// been called without a matching Shutdown.
func Instance() (*Engine, bool) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	return singleton, singleton != nil
}

// Shutdown shuts down and clears the singleton Engine installed by
// Init. A no-op if no singleton is active.
func Shutdown(ctx context.Context, wait bool) {
	singletonMu.Lock()
	e := singleton
	singleton = nil
	singletonMu.Unlock()
	if e != nil {
		e.Shutdown(ctx, wait)
	}
}
