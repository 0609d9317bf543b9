package events

import (
	"time"

	telemetry "safewatch-cloud/internal/telemetry/domain"
)

// RecordIngested is published after a normalized record has been accepted.
type RecordIngested struct {
	Record     telemetry.Record
	ReceivedAt time.Time
}
