// Package config provides environment-driven bootstrap for exengine.Config,
// for host processes that prefer struct tags over constructing Config by
// hand. exengine.New takes functional options rather than a Config
// value; FromEnv returns a Config whose fields correspond one to one to
// those options. This package is an additive convenience.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/exengine-go/exengine"
	"github.com/exengine-go/exengine/metrics"
)

// EnvConfig mirrors exengine.Config as environment variables.
type EnvConfig struct {
	DefaultWorkerName      string `env:"EXENGINE_DEFAULT_WORKER" envDefault:"main"`
	MaxQueueDepth          int    `env:"EXENGINE_MAX_QUEUE_DEPTH" envDefault:"0"`
	NotificationQueueDepth int    `env:"EXENGINE_NOTIFICATION_QUEUE_DEPTH" envDefault:"0"`
	HandlerMemoryBound     int64  `env:"EXENGINE_HANDLER_MEMORY_BOUND" envDefault:"0"`
	LogLevel               string `env:"EXENGINE_LOG_LEVEL" envDefault:"info"`
}

// FromEnv parses EnvConfig from the process environment and translates it
// into an exengine.Config. Logger is a text logger writing to stderr at
// the level named by EXENGINE_LOG_LEVEL; Metrics is a no-op provider.
func FromEnv() (exengine.Config, error) {
	var ec EnvConfig
	if err := env.Parse(&ec); err != nil {
		return exengine.Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}

	level, err := parseLevel(ec.LogLevel)
	if err != nil {
		return exengine.Config{}, err
	}

	return exengine.Config{
		DefaultWorkerName:      ec.DefaultWorkerName,
		MaxQueueDepth:          ec.MaxQueueDepth,
		NotificationQueueDepth: ec.NotificationQueueDepth,
		HandlerMemoryBound:     ec.HandlerMemoryBound,
		Logger:                 slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		Metrics:                metrics.NewNoopProvider(),
	}, nil
}

// MustFromEnv is FromEnv, panicking on error. Intended for process
// startup, mirroring the corpus's MustLoad convention.
func MustFromEnv() exengine.Config {
	cfg, err := FromEnv()
	if err != nil {
		panic(err)
	}
	return cfg
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid EXENGINE_LOG_LEVEL %q: %w", s, err)
	}
	return l, nil
}
