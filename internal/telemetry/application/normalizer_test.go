package application

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"safewatch-cloud/internal/eventing"
	"safewatch-cloud/internal/health"
	"safewatch-cloud/internal/telemetry/application/events"
	telemetry "safewatch-cloud/internal/telemetry/domain"
	"safewatch-cloud/internal/telemetry/infrastructure/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestNormalizer(t *testing.T, clock Clock) (*Normalizer, *memory.Store, *health.Tracker, *eventing.InMemoryBus) {
	t.Helper()
	store := memory.NewStore()
	tracker := health.NewTracker(health.DefaultThresholds)
	bus := eventing.NewInMemoryBus()
	normalizer, err := NewNormalizer(store, tracker, bus, zap.NewNop(), WithClock(clock))
	require.NoError(t, err)
	return normalizer, store, tracker, bus
}

func requireValidation(t *testing.T, err error, kind ValidationErrorKind, field string) {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, kind, verr.Kind)
	require.Equal(t, field, verr.Field)
}

func TestIngestSensorHappyPath(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	normalizer, store, tracker, bus := newTestNormalizer(t, clock)
	ctx := context.Background()

	var published []events.RecordIngested
	eventing.Subscribe(bus, func(_ context.Context, event events.RecordIngested) error {
		published = append(published, event)
		return nil
	})

	payload := []byte(`{"deviceId":"safe-001","sensorType":"vibration","value":3500,"unit":"mg"}`)
	record, err := normalizer.Ingest(ctx, telemetry.KindSensor, payload)
	require.NoError(t, err)
	require.Equal(t, telemetry.KindSensor, record.Kind)
	require.Equal(t, "safe-001", record.Sample.DeviceID)
	require.Equal(t, telemetry.SensorVibration, record.Sample.Sensor)
	require.Equal(t, 3500.0, record.Sample.Value)
	require.Equal(t, clock.now, record.Sample.TS) // no timestamp: received-at

	// Heartbeat touched.
	seen, ok := tracker.LastSeen("safe-001")
	require.True(t, ok)
	require.Equal(t, clock.now, seen)

	// Persisted exactly once.
	stored, err := store.QueryRange(ctx, telemetry.KindSensor, telemetry.RangeFilter{DeviceID: "safe-001"},
		clock.now.Add(-time.Minute), clock.now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stored, 1)

	// Fanned out exactly once.
	require.Len(t, published, 1)
	require.Equal(t, record, published[0].Record)
}

func TestIngestMissingField(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	normalizer, store, tracker, _ := newTestNormalizer(t, clock)
	ctx := context.Background()

	_, err := normalizer.Ingest(ctx, telemetry.KindSensor,
		[]byte(`{"deviceId":"safe-001","sensorType":"vibration"}`))
	requireValidation(t, err, ValidationMissingField, "value")

	_, err = normalizer.Ingest(ctx, telemetry.KindSensor,
		[]byte(`{"sensorType":"vibration","value":1}`))
	requireValidation(t, err, ValidationMissingField, "deviceId")

	_, err = normalizer.Ingest(ctx, telemetry.KindStatus, []byte(`{"deviceId":"safe-001"}`))
	requireValidation(t, err, ValidationMissingField, "status")

	_, err = normalizer.Ingest(ctx, telemetry.KindRotation,
		[]byte(`{"deviceId":"safe-001","alpha":1,"beta":2}`))
	requireValidation(t, err, ValidationMissingField, "gamma")

	// A rejected message leaves no trace: no heartbeat, no stored record.
	_, ok := tracker.LastSeen("safe-001")
	require.False(t, ok)
	stored, err := store.QueryRange(ctx, telemetry.KindSensor, telemetry.RangeFilter{},
		clock.now.Add(-time.Minute), clock.now.Add(time.Minute))
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestIngestWrongType(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	normalizer, _, _, _ := newTestNormalizer(t, clock)
	ctx := context.Background()

	_, err := normalizer.Ingest(ctx, telemetry.KindSensor,
		[]byte(`{"deviceId":"safe-001","sensorType":"vibration","value":"high"}`))
	requireValidation(t, err, ValidationWrongType, "value")

	_, err = normalizer.Ingest(ctx, telemetry.KindRotation,
		[]byte(`{"deviceId":"safe-001","alpha":"x","beta":2,"gamma":3}`))
	requireValidation(t, err, ValidationWrongType, "alpha")
}

func TestIngestInvalidEnum(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	normalizer, _, _, _ := newTestNormalizer(t, clock)
	ctx := context.Background()

	_, err := normalizer.Ingest(ctx, telemetry.KindSensor,
		[]byte(`{"deviceId":"safe-001","sensorType":"sonar","value":1}`))
	requireValidation(t, err, ValidationInvalidEnum, "sensorType")

	_, err = normalizer.Ingest(ctx, telemetry.KindStatus,
		[]byte(`{"deviceId":"safe-001","status":"ajar"}`))
	requireValidation(t, err, ValidationInvalidEnum, "status")

	_, err = normalizer.Ingest(ctx, "bogus", []byte(`{}`))
	requireValidation(t, err, ValidationInvalidEnum, "kind")
}

func TestIngestTimestampUnits(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	normalizer, _, _, _ := newTestNormalizer(t, clock)
	ctx := context.Background()

	at := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)

	// Unix milliseconds.
	record, err := normalizer.Ingest(ctx, telemetry.KindStatus,
		[]byte(`{"deviceId":"safe-001","status":"locked","timestamp":`+unixMilliJSON(at)+`}`))
	require.NoError(t, err)
	require.Equal(t, at, record.Status.TS)

	// Unix seconds.
	record, err = normalizer.Ingest(ctx, telemetry.KindStatus,
		[]byte(`{"deviceId":"safe-001","status":"locked","timestamp":`+unixSecondsJSON(at)+`}`))
	require.NoError(t, err)
	require.Equal(t, at, record.Status.TS)
}

func TestIngestRejectsNonFiniteValues(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	normalizer, _, _, _ := newTestNormalizer(t, clock)

	// 1e999 overflows float64; the decode failure must classify as wrong-type.
	_, err := normalizer.Ingest(context.Background(), telemetry.KindSensor,
		[]byte(`{"deviceId":"safe-001","sensorType":"vibration","value":1e999}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ValidationWrongType, verr.Kind)
}

func TestIngestAppendFailureStillFansOut(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := health.NewTracker(health.DefaultThresholds)
	bus := eventing.NewInMemoryBus()
	store := &brokenStore{err: errors.New("disk full")}
	normalizer, err := NewNormalizer(store, tracker, bus, zap.NewNop(), WithClock(clock))
	require.NoError(t, err)

	var published int
	eventing.Subscribe(bus, func(context.Context, events.RecordIngested) error {
		published++
		return nil
	})

	_, err = normalizer.Ingest(context.Background(), telemetry.KindSensor,
		[]byte(`{"deviceId":"safe-001","sensorType":"vibration","value":1}`))
	require.Error(t, err)

	// In-memory side effects commit even when the durable append fails.
	_, ok := tracker.LastSeen("safe-001")
	require.True(t, ok)
	require.Equal(t, 1, published)
}

type brokenStore struct {
	err error
}

func (s *brokenStore) AppendSample(context.Context, telemetry.SensorSample) error   { return s.err }
func (s *brokenStore) AppendStatus(context.Context, telemetry.StatusRecord) error   { return s.err }
func (s *brokenStore) AppendRotation(context.Context, telemetry.RotationSample) error {
	return s.err
}
func (s *brokenStore) AppendEvent(context.Context, telemetry.EventLogEntry) error { return s.err }

func (s *brokenStore) QueryRange(context.Context, telemetry.Kind, telemetry.RangeFilter, time.Time, time.Time) ([]telemetry.Record, error) {
	return nil, s.err
}

func (s *brokenStore) Latest(context.Context, telemetry.Kind, string) (*telemetry.Record, error) {
	return nil, s.err
}

func unixMilliJSON(at time.Time) string {
	return strconv.FormatInt(at.UnixMilli(), 10)
}

func unixSecondsJSON(at time.Time) string {
	return strconv.FormatInt(at.Unix(), 10)
}
