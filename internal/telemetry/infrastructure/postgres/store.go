package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	telemetry "safewatch-cloud/internal/telemetry/domain"
)

const (
	tableSamples   = "sensor_samples"
	tableStatuses  = "status_records"
	tableRotations = "rotation_samples"
	tableEvents    = "event_log"
)

const defaultTimeout = 5 * time.Second

// Store is the Postgres Store implementation. Every call is bounded by the
// configured timeout so a stalled database surfaces an error instead of
// hanging ingestion or queries.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(timeout time.Duration) StoreOption {
	return func(s *Store) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewStore constructs a Postgres store.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	store := &Store{db: db, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// AppendSample inserts one sensor sample.
func (s *Store) AppendSample(ctx context.Context, sample telemetry.SensorSample) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store: nil db")
	}
	if sample.DeviceID == "" || !sample.Sensor.Valid() || sample.TS.IsZero() {
		return errors.New("postgres store: invalid sample")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO `+tableSamples+` (device_id, sensor_type, value, unit, ts)
VALUES ($1, $2, $3, $4, $5)`,
		sample.DeviceID, string(sample.Sensor), sample.Value, sample.Unit, sample.TS.UTC())
	return err
}

// AppendStatus inserts one status record.
func (s *Store) AppendStatus(ctx context.Context, status telemetry.StatusRecord) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store: nil db")
	}
	if status.DeviceID == "" || !status.Status.Valid() || status.TS.IsZero() {
		return errors.New("postgres store: invalid status")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO `+tableStatuses+` (device_id, status, ts)
VALUES ($1, $2, $3)`,
		status.DeviceID, string(status.Status), status.TS.UTC())
	return err
}

// AppendRotation inserts one rotation sample.
func (s *Store) AppendRotation(ctx context.Context, rotation telemetry.RotationSample) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store: nil db")
	}
	if rotation.DeviceID == "" || rotation.TS.IsZero() {
		return errors.New("postgres store: invalid rotation")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO `+tableRotations+` (device_id, alpha, beta, gamma, ts)
VALUES ($1, $2, $3, $4, $5)`,
		rotation.DeviceID, rotation.Alpha, rotation.Beta, rotation.Gamma, rotation.TS.UTC())
	return err
}

// AppendEvent inserts one event log entry. Inserts are idempotent on the
// event id so an at-least-once caller cannot duplicate rows.
func (s *Store) AppendEvent(ctx context.Context, event telemetry.EventLogEntry) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store: nil db")
	}
	if event.ID == "" || event.DeviceID == "" || event.Type == "" || event.TS.IsZero() {
		return errors.New("postgres store: invalid event")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO `+tableEvents+` (id, device_id, event_type, content, severity, ts)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`,
		event.ID, event.DeviceID, event.Type, event.Content, string(event.Severity), event.TS.UTC())
	return err
}

// QueryRange returns records of a kind within [start, end). Results follow
// index order, not a guaranteed global ordering.
func (s *Store) QueryRange(ctx context.Context, kind telemetry.Kind, filter telemetry.RangeFilter, start, end time.Time) ([]telemetry.Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("postgres store: nil db")
	}
	if start.IsZero() || end.IsZero() {
		return nil, errors.New("postgres store: invalid range")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	switch kind {
	case telemetry.KindSensor:
		return s.querySamples(ctx, filter, start, end)
	case telemetry.KindStatus:
		return s.queryStatuses(ctx, filter, start, end)
	case telemetry.KindRotation:
		return s.queryRotations(ctx, filter, start, end)
	case telemetry.KindEvent:
		return s.queryEvents(ctx, filter, start, end)
	default:
		return nil, telemetry.ErrUnknownKind
	}
}

func (s *Store) querySamples(ctx context.Context, filter telemetry.RangeFilter, start, end time.Time) ([]telemetry.Record, error) {
	where, args := rangeClause(start, end)
	if filter.DeviceID != "" {
		where, args = andClause(where, args, "device_id", filter.DeviceID)
	}
	if filter.SensorType != "" {
		where, args = andClause(where, args, "sensor_type", string(filter.SensorType))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, sensor_type, value, unit, ts FROM `+tableSamples+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.Record
	for rows.Next() {
		var sample telemetry.SensorSample
		var sensor string
		var unit sql.NullString
		if err := rows.Scan(&sample.DeviceID, &sensor, &sample.Value, &unit, &sample.TS); err != nil {
			return nil, err
		}
		sample.Sensor = telemetry.SensorType(sensor)
		sample.Unit = unit.String
		record := sample
		out = append(out, telemetry.Record{Kind: telemetry.KindSensor, Sample: &record})
	}
	return out, rows.Err()
}

func (s *Store) queryStatuses(ctx context.Context, filter telemetry.RangeFilter, start, end time.Time) ([]telemetry.Record, error) {
	where, args := rangeClause(start, end)
	if filter.DeviceID != "" {
		where, args = andClause(where, args, "device_id", filter.DeviceID)
	}
	if filter.Status != "" {
		where, args = andClause(where, args, "status", string(filter.Status))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, status, ts FROM `+tableStatuses+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.Record
	for rows.Next() {
		var status telemetry.StatusRecord
		var raw string
		if err := rows.Scan(&status.DeviceID, &raw, &status.TS); err != nil {
			return nil, err
		}
		status.Status = telemetry.Status(raw)
		record := status
		out = append(out, telemetry.Record{Kind: telemetry.KindStatus, Status: &record})
	}
	return out, rows.Err()
}

func (s *Store) queryRotations(ctx context.Context, filter telemetry.RangeFilter, start, end time.Time) ([]telemetry.Record, error) {
	where, args := rangeClause(start, end)
	if filter.DeviceID != "" {
		where, args = andClause(where, args, "device_id", filter.DeviceID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, alpha, beta, gamma, ts FROM `+tableRotations+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.Record
	for rows.Next() {
		var rotation telemetry.RotationSample
		if err := rows.Scan(&rotation.DeviceID, &rotation.Alpha, &rotation.Beta, &rotation.Gamma, &rotation.TS); err != nil {
			return nil, err
		}
		record := rotation
		out = append(out, telemetry.Record{Kind: telemetry.KindRotation, Rotation: &record})
	}
	return out, rows.Err()
}

func (s *Store) queryEvents(ctx context.Context, filter telemetry.RangeFilter, start, end time.Time) ([]telemetry.Record, error) {
	where, args := rangeClause(start, end)
	if filter.DeviceID != "" {
		where, args = andClause(where, args, "device_id", filter.DeviceID)
	}
	if filter.EventType != "" {
		where, args = andClause(where, args, "event_type", filter.EventType)
	}
	if filter.Severity != "" {
		where, args = andClause(where, args, "severity", string(filter.Severity))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, event_type, content, severity, ts FROM `+tableEvents+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.Record
	for rows.Next() {
		var event telemetry.EventLogEntry
		var severity string
		var content sql.NullString
		if err := rows.Scan(&event.ID, &event.DeviceID, &event.Type, &content, &severity, &event.TS); err != nil {
			return nil, err
		}
		event.Content = content.String
		event.Severity = telemetry.Severity(severity)
		record := event
		out = append(out, telemetry.Record{Kind: telemetry.KindEvent, Event: &record})
	}
	return out, rows.Err()
}

// Latest returns the most recent record of a kind for a device, or nil.
func (s *Store) Latest(ctx context.Context, kind telemetry.Kind, deviceID string) (*telemetry.Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("postgres store: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("postgres store: device id required")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	switch kind {
	case telemetry.KindSensor:
		var sample telemetry.SensorSample
		var sensor string
		var unit sql.NullString
		err := s.db.QueryRowContext(ctx, `
SELECT device_id, sensor_type, value, unit, ts FROM `+tableSamples+`
WHERE device_id = $1 ORDER BY ts DESC LIMIT 1`, deviceID).
			Scan(&sample.DeviceID, &sensor, &sample.Value, &unit, &sample.TS)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		sample.Sensor = telemetry.SensorType(sensor)
		sample.Unit = unit.String
		return &telemetry.Record{Kind: kind, Sample: &sample}, nil
	case telemetry.KindStatus:
		var status telemetry.StatusRecord
		var raw string
		err := s.db.QueryRowContext(ctx, `
SELECT device_id, status, ts FROM `+tableStatuses+`
WHERE device_id = $1 ORDER BY ts DESC LIMIT 1`, deviceID).
			Scan(&status.DeviceID, &raw, &status.TS)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		status.Status = telemetry.Status(raw)
		return &telemetry.Record{Kind: kind, Status: &status}, nil
	case telemetry.KindRotation:
		var rotation telemetry.RotationSample
		err := s.db.QueryRowContext(ctx, `
SELECT device_id, alpha, beta, gamma, ts FROM `+tableRotations+`
WHERE device_id = $1 ORDER BY ts DESC LIMIT 1`, deviceID).
			Scan(&rotation.DeviceID, &rotation.Alpha, &rotation.Beta, &rotation.Gamma, &rotation.TS)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &telemetry.Record{Kind: kind, Rotation: &rotation}, nil
	case telemetry.KindEvent:
		var event telemetry.EventLogEntry
		var severity string
		var content sql.NullString
		err := s.db.QueryRowContext(ctx, `
SELECT id, device_id, event_type, content, severity, ts FROM `+tableEvents+`
WHERE device_id = $1 ORDER BY ts DESC LIMIT 1`, deviceID).
			Scan(&event.ID, &event.DeviceID, &event.Type, &content, &severity, &event.TS)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		event.Content = content.String
		event.Severity = telemetry.Severity(severity)
		return &telemetry.Record{Kind: kind, Event: &event}, nil
	default:
		return nil, telemetry.ErrUnknownKind
	}
}

func rangeClause(start, end time.Time) (string, []any) {
	return " WHERE ts >= $1 AND ts < $2", []any{start.UTC(), end.UTC()}
}

func andClause(where string, args []any, column, value string) (string, []any) {
	args = append(args, value)
	return fmt.Sprintf("%s AND %s = $%d", where, column, len(args)), args
}

// Schema returns the DDL the store expects, for migrations and local setups.
func Schema() string {
	return strings.TrimSpace(`
CREATE TABLE IF NOT EXISTS sensor_samples (
	device_id   TEXT             NOT NULL,
	sensor_type TEXT             NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	unit        TEXT,
	ts          TIMESTAMPTZ      NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sensor_samples_device_ts ON sensor_samples (device_id, ts);

CREATE TABLE IF NOT EXISTS status_records (
	device_id TEXT        NOT NULL,
	status    TEXT        NOT NULL,
	ts        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_status_records_device_ts ON status_records (device_id, ts);

CREATE TABLE IF NOT EXISTS rotation_samples (
	device_id TEXT             NOT NULL,
	alpha     DOUBLE PRECISION NOT NULL,
	beta      DOUBLE PRECISION NOT NULL,
	gamma     DOUBLE PRECISION NOT NULL,
	ts        TIMESTAMPTZ      NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rotation_samples_device_ts ON rotation_samples (device_id, ts);

CREATE TABLE IF NOT EXISTS event_log (
	id         TEXT        PRIMARY KEY,
	device_id  TEXT        NOT NULL,
	event_type TEXT        NOT NULL,
	content    TEXT,
	severity   TEXT        NOT NULL,
	ts         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_log_device_ts ON event_log (device_id, ts);
`)
}
