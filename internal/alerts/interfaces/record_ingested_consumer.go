package interfaces

import (
	"context"
	"errors"

	alertapp "safewatch-cloud/internal/alerts/application"
	"safewatch-cloud/internal/telemetry/application/events"
)

// RecordIngestedConsumer adapts ingested records into the event deriver.
type RecordIngestedConsumer struct {
	deriver *alertapp.Deriver
}

// NewRecordIngestedConsumer constructs a consumer.
func NewRecordIngestedConsumer(deriver *alertapp.Deriver) (*RecordIngestedConsumer, error) {
	if deriver == nil {
		return nil, errors.New("alerts consumer: nil deriver")
	}
	return &RecordIngestedConsumer{deriver: deriver}, nil
}

// Consume handles a record ingested event.
func (c *RecordIngestedConsumer) Consume(ctx context.Context, event events.RecordIngested) error {
	_, err := c.deriver.Observe(ctx, event.Record)
	return err
}
