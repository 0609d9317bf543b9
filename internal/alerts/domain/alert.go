package alerts

import (
	"time"

	telemetry "safewatch-cloud/internal/telemetry/domain"
)

// Kind identifies a per-device alert state machine.
type Kind string

const (
	KindVibration Kind = "vibration"
	KindTilt      Kind = "tilt"
)

// Derived event type tags, as shown in the dashboard event log.
const (
	EventTypeHit           = "Hit"
	EventTypeTilt          = "Tilt"
	EventTypeOpenWithAlarm = "Open with alarm"
	EventTypeLock          = "Lock"
	EventTypeUnlock        = "Unlock"
)

// Thresholds is the tunable trigger policy per alert kind.
type Thresholds struct {
	Vibration float64
	Tilt      float64
}

// DefaultThresholds matches the stock device calibration.
var DefaultThresholds = Thresholds{Vibration: 3000, Tilt: 45}

// DefaultCooldown is the minimum dwell time after a condition clears before
// the alert state resets.
const DefaultCooldown = 5 * time.Second

// State is the per (device, kind) transition state. It lives in memory for
// the process lifetime and is not persisted.
type State struct {
	Triggered       bool
	LastTriggeredAt time.Time
}

// KindForSensor maps a sensor type to its alert kind, if it has one.
func KindForSensor(sensor telemetry.SensorType) (Kind, bool) {
	switch sensor {
	case telemetry.SensorVibration:
		return KindVibration, true
	case telemetry.SensorTilt:
		return KindTilt, true
	default:
		return "", false
	}
}

// Threshold returns the configured threshold for a kind.
func (t Thresholds) Threshold(kind Kind) float64 {
	switch kind {
	case KindVibration:
		return t.Vibration
	case KindTilt:
		return t.Tilt
	default:
		return 0
	}
}

// EventForKind returns the event tag, severity and content template for a
// triggered alert kind.
func EventForKind(kind Kind) (eventType string, severity telemetry.Severity) {
	switch kind {
	case KindVibration:
		return EventTypeHit, telemetry.SeverityWarning
	case KindTilt:
		return EventTypeTilt, telemetry.SeverityWarning
	default:
		return "", telemetry.SeverityInfo
	}
}

// EventForStatus maps a new status to its event tag, severity and content.
func EventForStatus(status telemetry.Status) (eventType, content string, severity telemetry.Severity) {
	switch status {
	case telemetry.StatusOpen:
		return EventTypeOpenWithAlarm, "opened while armed", telemetry.SeverityCritical
	case telemetry.StatusLocked:
		return EventTypeLock, "device locked", telemetry.SeverityInfo
	case telemetry.StatusUnlocked:
		return EventTypeUnlock, "device unlocked", telemetry.SeverityInfo
	default:
		return "", "", telemetry.SeverityInfo
	}
}
