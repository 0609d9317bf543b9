package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	telemetry "safewatch-cloud/internal/telemetry/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestAppendSample(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO sensor_samples").
		WithArgs("safe-001", "vibration", 3500.0, "mg", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.AppendSample(context.Background(), telemetry.SensorSample{
		DeviceID: "safe-001",
		Sensor:   telemetry.SensorVibration,
		Value:    3500,
		Unit:     "mg",
		TS:       at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendSampleRejectsInvalid(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.AppendSample(context.Background(), telemetry.SensorSample{
		Sensor: telemetry.SensorVibration,
		TS:     time.Now(),
	})
	require.Error(t, err)

	err = store.AppendSample(context.Background(), telemetry.SensorSample{
		DeviceID: "safe-001",
		Sensor:   "sonar",
		TS:       time.Now(),
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendEventIsIdempotentOnID(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	event := telemetry.EventLogEntry{
		ID:       "evt-1",
		DeviceID: "safe-001",
		Type:     "Hit",
		Content:  "vibration reading 3500.00 exceeded threshold 3000.00",
		Severity: telemetry.SeverityWarning,
		TS:       at,
	}

	mock.ExpectExec("INSERT INTO event_log").
		WithArgs(event.ID, event.DeviceID, event.Type, event.Content, "warning", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Retry of the same id conflicts away to zero rows.
	mock.ExpectExec("INSERT INTO event_log").
		WithArgs(event.ID, event.DeviceID, event.Type, event.Content, "warning", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.AppendEvent(context.Background(), event))
	require.NoError(t, store.AppendEvent(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRangeSamples(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	rows := sqlmock.NewRows([]string{"device_id", "sensor_type", "value", "unit", "ts"}).
		AddRow("safe-001", "tilt", 12.5, "deg", start.Add(time.Minute)).
		AddRow("safe-001", "tilt", 14.0, nil, start.Add(2*time.Minute))
	mock.ExpectQuery("SELECT device_id, sensor_type, value, unit, ts FROM sensor_samples").
		WithArgs(start, end, "safe-001", "tilt").
		WillReturnRows(rows)

	records, err := store.QueryRange(context.Background(), telemetry.KindSensor,
		telemetry.RangeFilter{DeviceID: "safe-001", SensorType: telemetry.SensorTilt}, start, end)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, telemetry.SensorTilt, records[0].Sample.Sensor)
	require.Equal(t, "deg", records[0].Sample.Unit)
	require.Empty(t, records[1].Sample.Unit)
}

func TestQueryRangeEvents(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	rows := sqlmock.NewRows([]string{"id", "device_id", "event_type", "content", "severity", "ts"}).
		AddRow("evt-1", "safe-001", "Hit", "vibration reading 3500.00 exceeded threshold 3000.00", "warning", start)
	mock.ExpectQuery("SELECT id, device_id, event_type, content, severity, ts FROM event_log").
		WithArgs(start, end, "safe-001", "Hit").
		WillReturnRows(rows)

	records, err := store.QueryRange(context.Background(), telemetry.KindEvent,
		telemetry.RangeFilter{DeviceID: "safe-001", EventType: "Hit"}, start, end)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Hit", records[0].Event.Type)
	require.Equal(t, telemetry.SeverityWarning, records[0].Event.Severity)
}

func TestQueryRangeRejectsUnknownKind(t *testing.T) {
	store, _ := newMockStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.QueryRange(context.Background(), "bogus", telemetry.RangeFilter{}, start, start.Add(time.Hour))
	require.ErrorIs(t, err, telemetry.ErrUnknownKind)
}

func TestQueryRangePropagatesDBError(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery("SELECT device_id, status, ts FROM status_records").
		WithArgs(start, end).
		WillReturnError(errors.New("connection reset"))

	_, err := store.QueryRange(context.Background(), telemetry.KindStatus, telemetry.RangeFilter{}, start, end)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestStatus(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"device_id", "status", "ts"}).
		AddRow("safe-001", "open", at)
	mock.ExpectQuery("SELECT device_id, status, ts FROM status_records").
		WithArgs("safe-001").
		WillReturnRows(rows)

	record, err := store.Latest(context.Background(), telemetry.KindStatus, "safe-001")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, telemetry.StatusOpen, record.Status.Status)
}

func TestLatestNoRowsIsNil(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT device_id, sensor_type, value, unit, ts FROM sensor_samples").
		WithArgs("safe-404").
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "sensor_type", "value", "unit", "ts"}))

	record, err := store.Latest(context.Background(), telemetry.KindSensor, "safe-404")
	require.NoError(t, err)
	require.Nil(t, record)
}
