package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"safewatch-cloud/internal/eventing"
	"safewatch-cloud/internal/health"
	"safewatch-cloud/internal/observability/metrics"
	"safewatch-cloud/internal/telemetry/application/events"
	telemetry "safewatch-cloud/internal/telemetry/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Normalizer validates raw transport payloads, persists the normalized record
// and fans it out on the in-process bus. All transport adapters (REST, MQTT)
// go through Ingest.
type Normalizer struct {
	store      telemetry.Store
	heartbeats *health.Tracker
	bus        eventing.Bus
	clock      Clock
	logger     *zap.Logger
}

// NormalizerOption customizes the normalizer.
type NormalizerOption func(*Normalizer)

// WithClock assigns a clock.
func WithClock(clock Clock) NormalizerOption {
	return func(n *Normalizer) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// NewNormalizer constructs a normalizer.
func NewNormalizer(store telemetry.Store, heartbeats *health.Tracker, bus eventing.Bus, logger *zap.Logger, opts ...NormalizerOption) (*Normalizer, error) {
	if store == nil {
		return nil, errors.New("normalizer: nil store")
	}
	if heartbeats == nil {
		return nil, errors.New("normalizer: nil heartbeat tracker")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	normalizer := &Normalizer{
		store:      store,
		heartbeats: heartbeats,
		bus:        bus,
		clock:      systemClock{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(normalizer)
	}
	return normalizer, nil
}

type sensorPayload struct {
	DeviceID   *string  `json:"deviceId"`
	SensorType *string  `json:"sensorType"`
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit"`
	Timestamp  *int64   `json:"timestamp"`
}

type statusPayload struct {
	DeviceID  *string `json:"deviceId"`
	Status    *string `json:"status"`
	Timestamp *int64  `json:"timestamp"`
}

type rotationPayload struct {
	DeviceID  *string  `json:"deviceId"`
	Alpha     *float64 `json:"alpha"`
	Beta      *float64 `json:"beta"`
	Gamma     *float64 `json:"gamma"`
	Timestamp *int64   `json:"timestamp"`
}

// Ingest validates payload against the schema for kind, updates the device
// heartbeat, appends the record to the store and publishes RecordIngested.
//
// The heartbeat update and the bus fan-out commit regardless of the store
// append outcome; a failed append is reported to the caller but does not
// corrupt in-memory state.
func (n *Normalizer) Ingest(ctx context.Context, kind telemetry.Kind, payload []byte) (telemetry.Record, error) {
	start := n.clock.Now()
	record, verr := n.normalize(kind, payload)
	if verr != nil {
		metrics.ObserveIngest(metrics.IngestResultError, n.clock.Now().Sub(start))
		metrics.IncIngestError(string(verr.Kind))
		return telemetry.Record{}, verr
	}

	receivedAt := n.clock.Now()
	n.heartbeats.Touch(record.DeviceID(), receivedAt)

	appendErr := n.append(ctx, record)
	if appendErr != nil {
		n.logger.Error("ingest append failed",
			zap.String("kind", string(kind)),
			zap.String("device_id", record.DeviceID()),
			zap.Error(appendErr))
		metrics.IncIngestError("append")
	}

	if n.bus != nil {
		if err := n.bus.Publish(ctx, events.RecordIngested{Record: record, ReceivedAt: receivedAt}); err != nil {
			n.logger.Error("ingest fan-out failed",
				zap.String("device_id", record.DeviceID()),
				zap.Error(err))
		}
	}

	result := metrics.IngestResultSuccess
	if appendErr != nil {
		result = metrics.IngestResultError
	}
	metrics.ObserveIngest(result, n.clock.Now().Sub(start))
	return record, appendErr
}

func (n *Normalizer) append(ctx context.Context, record telemetry.Record) error {
	switch record.Kind {
	case telemetry.KindSensor:
		return n.store.AppendSample(ctx, *record.Sample)
	case telemetry.KindStatus:
		return n.store.AppendStatus(ctx, *record.Status)
	case telemetry.KindRotation:
		return n.store.AppendRotation(ctx, *record.Rotation)
	default:
		return telemetry.ErrUnknownKind
	}
}

func (n *Normalizer) normalize(kind telemetry.Kind, payload []byte) (telemetry.Record, *ValidationError) {
	switch kind {
	case telemetry.KindSensor:
		return n.normalizeSensor(payload)
	case telemetry.KindStatus:
		return n.normalizeStatus(payload)
	case telemetry.KindRotation:
		return n.normalizeRotation(payload)
	default:
		return telemetry.Record{}, invalidEnum("kind")
	}
}

func (n *Normalizer) normalizeSensor(payload []byte) (telemetry.Record, *ValidationError) {
	var body sensorPayload
	if verr := unmarshalPayload(payload, &body); verr != nil {
		return telemetry.Record{}, verr
	}
	if body.DeviceID == nil || *body.DeviceID == "" {
		return telemetry.Record{}, missingField("deviceId")
	}
	if body.SensorType == nil {
		return telemetry.Record{}, missingField("sensorType")
	}
	sensor := telemetry.SensorType(*body.SensorType)
	if !sensor.Valid() {
		return telemetry.Record{}, invalidEnum("sensorType")
	}
	if body.Value == nil {
		return telemetry.Record{}, missingField("value")
	}
	if !isFinite(*body.Value) {
		return telemetry.Record{}, wrongType("value")
	}
	sample := telemetry.SensorSample{
		DeviceID: *body.DeviceID,
		Sensor:   sensor,
		Value:    *body.Value,
		Unit:     body.Unit,
		TS:       n.resolveTimestamp(body.Timestamp),
	}
	return telemetry.Record{Kind: telemetry.KindSensor, Sample: &sample}, nil
}

func (n *Normalizer) normalizeStatus(payload []byte) (telemetry.Record, *ValidationError) {
	var body statusPayload
	if verr := unmarshalPayload(payload, &body); verr != nil {
		return telemetry.Record{}, verr
	}
	if body.DeviceID == nil || *body.DeviceID == "" {
		return telemetry.Record{}, missingField("deviceId")
	}
	if body.Status == nil {
		return telemetry.Record{}, missingField("status")
	}
	status := telemetry.Status(*body.Status)
	if !status.Valid() {
		return telemetry.Record{}, invalidEnum("status")
	}
	record := telemetry.StatusRecord{
		DeviceID: *body.DeviceID,
		Status:   status,
		TS:       n.resolveTimestamp(body.Timestamp),
	}
	return telemetry.Record{Kind: telemetry.KindStatus, Status: &record}, nil
}

func (n *Normalizer) normalizeRotation(payload []byte) (telemetry.Record, *ValidationError) {
	var body rotationPayload
	if verr := unmarshalPayload(payload, &body); verr != nil {
		return telemetry.Record{}, verr
	}
	if body.DeviceID == nil || *body.DeviceID == "" {
		return telemetry.Record{}, missingField("deviceId")
	}
	angles := map[string]*float64{"alpha": body.Alpha, "beta": body.Beta, "gamma": body.Gamma}
	for _, field := range []string{"alpha", "beta", "gamma"} {
		value := angles[field]
		if value == nil {
			return telemetry.Record{}, missingField(field)
		}
		if !isFinite(*value) {
			return telemetry.Record{}, wrongType(field)
		}
	}
	rotation := telemetry.RotationSample{
		DeviceID: *body.DeviceID,
		Alpha:    *body.Alpha,
		Beta:     *body.Beta,
		Gamma:    *body.Gamma,
		TS:       n.resolveTimestamp(body.Timestamp),
	}
	return telemetry.Record{Kind: telemetry.KindRotation, Rotation: &rotation}, nil
}

// resolveTimestamp accepts unix milliseconds or seconds; a missing timestamp
// falls back to received-at.
func (n *Normalizer) resolveTimestamp(value *int64) time.Time {
	if value == nil || *value <= 0 {
		return n.clock.Now()
	}
	if *value > 1_000_000_000_000 {
		return time.UnixMilli(*value).UTC()
	}
	return time.Unix(*value, 0).UTC()
}

func unmarshalPayload(payload []byte, dest any) *ValidationError {
	if err := json.Unmarshal(payload, dest); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return wrongType(typeErr.Field)
		}
		return &ValidationError{Kind: ValidationWrongType, Field: fmt.Sprintf("payload: %v", err)}
	}
	return nil
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
