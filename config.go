package exengine

import (
	"log/slog"

	"github.com/exengine-go/exengine/metrics"
)

// Config configures a new Engine. All fields are optional; the zero
// value is a usable configuration.
type Config struct {
	// DefaultWorkerName is the worker an item runs on when no override
	// applies. Default: "main".
	DefaultWorkerName string

	// MaxQueueDepth bounds each worker's queue. Zero means unbounded.
	MaxQueueDepth int

	// NotificationQueueDepth bounds each subscriber's internal queue on
	// the subscription bus. Zero means unbounded.
	NotificationQueueDepth int

	// HandlerMemoryBound is carried on the Config only: NewDataHandler
	// does not pass it to the handlers it builds, and no eviction policy
	// reads it.
	HandlerMemoryBound int64

	// Logger receives lifecycle and error diagnostics. Default:
	// slog.Default().
	Logger *slog.Logger

	// Metrics receives instrumentation for workers, the subscription
	// bus, and data handlers. Default: a no-op provider.
	Metrics metrics.Provider
}

// defaultConfig centralizes default values for Config, applied by New
// when the corresponding field is left zero.
func defaultConfig() Config {
	return Config{
		DefaultWorkerName:      "main",
		MaxQueueDepth:          0,
		NotificationQueueDepth: 0,
		HandlerMemoryBound:     0,
		Logger:                 slog.Default(),
		Metrics:                metrics.NewNoopProvider(),
	}
}

// withDefaults fills unset fields of c from defaultConfig.
func (c Config) withDefaults() Config {
	d := defaultConfig()
	if c.DefaultWorkerName == "" {
		c.DefaultWorkerName = d.DefaultWorkerName
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.Metrics == nil {
		c.Metrics = d.Metrics
	}
	return c
}

// Option mutates a Config before New constructs an Engine.
type Option func(*Config)

// WithDefaultWorker sets the fallback worker name.
func WithDefaultWorker(name string) Option { return func(c *Config) { c.DefaultWorkerName = name } }

// WithMaxQueueDepth bounds every worker's queue depth.
func WithMaxQueueDepth(n int) Option { return func(c *Config) { c.MaxQueueDepth = n } }

// WithNotificationQueueDepth bounds every subscriber's queue depth.
func WithNotificationQueueDepth(n int) Option {
	return func(c *Config) { c.NotificationQueueDepth = n }
}

// WithHandlerMemoryBound sets Config.HandlerMemoryBound, which data
// handlers built through the engine do not consult.
func WithHandlerMemoryBound(n int64) Option { return func(c *Config) { c.HandlerMemoryBound = n } }

// WithLogger sets the engine's diagnostic logger.
func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

// WithMetrics sets the engine's metrics provider.
func WithMetrics(p metrics.Provider) Option { return func(c *Config) { c.Metrics = p } }
