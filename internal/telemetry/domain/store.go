package telemetry

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownKind is returned for queries over an unsupported record kind.
var ErrUnknownKind = errors.New("telemetry: unknown record kind")

// RangeFilter narrows a range query with equality predicates. Zero values
// mean "no constraint".
type RangeFilter struct {
	DeviceID   string
	SensorType SensorType
	Status     Status
	EventType  string
	Severity   Severity
}

// Store is the persistence collaborator. Implementations need not return
// QueryRange results in any particular order; final ordering is owned by the
// query engine.
type Store interface {
	AppendSample(ctx context.Context, sample SensorSample) error
	AppendStatus(ctx context.Context, status StatusRecord) error
	AppendRotation(ctx context.Context, rotation RotationSample) error
	AppendEvent(ctx context.Context, event EventLogEntry) error

	QueryRange(ctx context.Context, kind Kind, filter RangeFilter, start, end time.Time) ([]Record, error)
	Latest(ctx context.Context, kind Kind, deviceID string) (*Record, error)
}
