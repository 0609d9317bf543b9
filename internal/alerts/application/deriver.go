package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alerts "safewatch-cloud/internal/alerts/domain"
	"safewatch-cloud/internal/observability/metrics"
	telemetry "safewatch-cloud/internal/telemetry/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Deriver converts raw sample/status records into deduplicated, debounced
// domain events. It keeps per-device transition state in memory: a restart
// loses that state and may re-emit one spurious event on the next transition.
type Deriver struct {
	store      telemetry.Store
	thresholds alerts.Thresholds
	cooldown   time.Duration
	states     *stateRegistry
	clock      Clock
	logger     *zap.Logger
}

// DeriverOption customizes the deriver.
type DeriverOption func(*Deriver)

// WithClock assigns a clock.
func WithClock(clock Clock) DeriverOption {
	return func(d *Deriver) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithCooldown overrides the default cooldown window.
func WithCooldown(cooldown time.Duration) DeriverOption {
	return func(d *Deriver) {
		if cooldown > 0 {
			d.cooldown = cooldown
		}
	}
}

// NewDeriver constructs a deriver.
func NewDeriver(store telemetry.Store, thresholds alerts.Thresholds, logger *zap.Logger, opts ...DeriverOption) (*Deriver, error) {
	if store == nil {
		return nil, errors.New("deriver: nil store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	deriver := &Deriver{
		store:      store,
		thresholds: thresholds,
		cooldown:   alerts.DefaultCooldown,
		states:     newStateRegistry(),
		clock:      systemClock{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(deriver)
	}
	return deriver, nil
}

// Observe applies one normalized record to the per-device state machine and
// returns the derived event, if any. The state transition and the optional
// event append happen under the device's lock, so interleaved samples for the
// same device are applied atomically. The in-memory transition commits even
// when the durable append fails; the append error is returned to the caller.
func (d *Deriver) Observe(ctx context.Context, record telemetry.Record) (*telemetry.EventLogEntry, error) {
	if d == nil {
		return nil, errors.New("deriver: nil deriver")
	}
	deviceID := record.DeviceID()
	if deviceID == "" {
		return nil, errors.New("deriver: record without device id")
	}

	switch record.Kind {
	case telemetry.KindSensor:
		return d.observeSample(ctx, deviceID, *record.Sample)
	case telemetry.KindStatus:
		return d.observeStatus(ctx, deviceID, *record.Status)
	case telemetry.KindRotation, telemetry.KindEvent:
		// Rotation has no alert rule; events are already derived.
		return nil, nil
	default:
		return nil, telemetry.ErrUnknownKind
	}
}

// LastStatus exposes the cached status for a device, used by the health API
// to fill the safeStatus field without a store round trip.
func (d *Deriver) LastStatus(deviceID string) (telemetry.Status, bool) {
	if d == nil {
		return "", false
	}
	return d.states.lastStatusOf(deviceID)
}

func (d *Deriver) observeSample(ctx context.Context, deviceID string, sample telemetry.SensorSample) (*telemetry.EventLogEntry, error) {
	kind, ok := alerts.KindForSensor(sample.Sensor)
	if !ok {
		return nil, nil
	}
	condition := sample.Value > d.thresholds.Threshold(kind)
	now := d.clock.Now()

	device := d.states.device(deviceID)
	device.mu.Lock()
	defer device.mu.Unlock()

	state := device.alertState(kind)
	if condition {
		if state.Triggered {
			// Still inside the same excursion: keep the dwell timer fresh so
			// the cooldown measures continuous clearance, and stay quiet.
			state.LastTriggeredAt = now
			return nil, nil
		}
		state.Triggered = true
		state.LastTriggeredAt = now

		eventType, severity := alerts.EventForKind(kind)
		entry := telemetry.EventLogEntry{
			ID:       uuid.NewString(),
			DeviceID: deviceID,
			Type:     eventType,
			Content:  fmt.Sprintf("%s reading %.2f exceeded threshold %.2f", sample.Sensor, sample.Value, d.thresholds.Threshold(kind)),
			Severity: severity,
			TS:       eventTime(sample.TS, now),
		}
		return d.emit(ctx, entry)
	}

	if state.Triggered && now.Sub(state.LastTriggeredAt) > d.cooldown {
		// Recovery is a quiet state reset, not an event.
		state.Triggered = false
		state.LastTriggeredAt = time.Time{}
	}
	return nil, nil
}

func (d *Deriver) observeStatus(ctx context.Context, deviceID string, status telemetry.StatusRecord) (*telemetry.EventLogEntry, error) {
	now := d.clock.Now()

	device := d.states.device(deviceID)
	device.mu.Lock()
	defer device.mu.Unlock()

	if device.hasStatus && device.lastStatus == status.Status {
		return nil, nil
	}
	device.lastStatus = status.Status
	device.hasStatus = true

	eventType, content, severity := alerts.EventForStatus(status.Status)
	if eventType == "" {
		return nil, nil
	}
	entry := telemetry.EventLogEntry{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Type:     eventType,
		Content:  content,
		Severity: severity,
		TS:       eventTime(status.TS, now),
	}
	return d.emit(ctx, entry)
}

func (d *Deriver) emit(ctx context.Context, entry telemetry.EventLogEntry) (*telemetry.EventLogEntry, error) {
	metrics.IncDerivedEvent(entry.Type)
	if err := d.store.AppendEvent(ctx, entry); err != nil {
		d.logger.Error("event append failed",
			zap.String("device_id", entry.DeviceID),
			zap.String("type", entry.Type),
			zap.Error(err))
		return &entry, err
	}
	d.logger.Info("event derived",
		zap.String("device_id", entry.DeviceID),
		zap.String("type", entry.Type),
		zap.String("severity", string(entry.Severity)))
	return &entry, nil
}

// eventTime keeps event timestamps monotonic relative to their cause: the
// event occurs at or after the sample that triggered it.
func eventTime(cause, now time.Time) time.Time {
	if now.Before(cause) {
		return cause
	}
	return now
}
