package query

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	telemetry "safewatch-cloud/internal/telemetry/domain"
)

// Engine answers read-only chart and explorer queries against the persistence
// collaborator. It requires no locking of its own and never blocks ingestion.
type Engine struct {
	store        telemetry.Store
	timeout      time.Duration
	defaultRange time.Duration
	logger       *zap.Logger
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithTimeout bounds each store call.
func WithTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithDefaultRange overrides the default explorer window.
func WithDefaultRange(window time.Duration) EngineOption {
	return func(e *Engine) {
		if window > 0 {
			e.defaultRange = window
		}
	}
}

// NewEngine constructs a query engine.
func NewEngine(store telemetry.Store, logger *zap.Logger, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("query: nil store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := &Engine{
		store:        store,
		timeout:      10 * time.Second,
		defaultRange: 30 * 24 * time.Hour,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

func (e *Engine) queryRange(ctx context.Context, kind telemetry.Kind, filter telemetry.RangeFilter, start, end time.Time) ([]telemetry.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.store.QueryRange(ctx, kind, filter, start, end)
}

// Latest returns the most recent record of a kind for a device.
func (e *Engine) Latest(ctx context.Context, kind telemetry.Kind, deviceID string) (*telemetry.Record, error) {
	if e == nil || e.store == nil {
		return nil, errors.New("query: nil engine")
	}
	if !kind.Valid() {
		return nil, telemetry.ErrUnknownKind
	}
	if deviceID == "" {
		return nil, errors.New("query: device id required")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.store.Latest(ctx, kind, deviceID)
}
