package telemetry

import (
	"encoding/json"
	"errors"
	"time"
)

// Kind selects one of the persisted record types.
type Kind string

const (
	KindSensor   Kind = "sensor"
	KindStatus   Kind = "status"
	KindRotation Kind = "rotation"
	KindEvent    Kind = "event"
)

// Valid returns true when the kind is supported.
func (k Kind) Valid() bool {
	switch k {
	case KindSensor, KindStatus, KindRotation, KindEvent:
		return true
	default:
		return false
	}
}

// SensorType identifies the physical measurement a sample carries.
type SensorType string

const (
	SensorTilt          SensorType = "tilt"
	SensorVibration     SensorType = "vibration"
	SensorTemperature   SensorType = "temperature"
	SensorBattery       SensorType = "battery"
	SensorMagnetic      SensorType = "magnetic"
	SensorBuzzer        SensorType = "buzzer"
	SensorAccelerometer SensorType = "accelerometer"
)

// Valid returns true when the sensor type is supported.
func (s SensorType) Valid() bool {
	switch s {
	case SensorTilt, SensorVibration, SensorTemperature, SensorBattery,
		SensorMagnetic, SensorBuzzer, SensorAccelerometer:
		return true
	default:
		return false
	}
}

// Status is a point-in-time assertion of the device lock state.
type Status string

const (
	StatusLocked   Status = "locked"
	StatusUnlocked Status = "unlocked"
	StatusOpen     Status = "open"
)

// Valid returns true when the status is supported.
func (s Status) Valid() bool {
	switch s {
	case StatusLocked, StatusUnlocked, StatusOpen:
		return true
	default:
		return false
	}
}

// Severity classifies derived events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// SensorSample is one measurement from a device sensor. Immutable once appended.
type SensorSample struct {
	DeviceID string     `json:"deviceId"`
	Sensor   SensorType `json:"sensorType"`
	Value    float64    `json:"value"`
	Unit     string     `json:"unit,omitempty"`
	TS       time.Time  `json:"timestamp"`
}

// StatusRecord asserts the device status at a point in time. It is not
// necessarily a change; transition detection happens in the deriver.
type StatusRecord struct {
	DeviceID string    `json:"deviceId"`
	Status   Status    `json:"status"`
	TS       time.Time `json:"timestamp"`
}

// RotationSample carries an orientation vector in degrees.
type RotationSample struct {
	DeviceID string    `json:"deviceId"`
	Alpha    float64   `json:"alpha"`
	Beta     float64   `json:"beta"`
	Gamma    float64   `json:"gamma"`
	TS       time.Time `json:"timestamp"`
}

// EventLogEntry is a derived domain event. It is never created directly from
// a transport message.
type EventLogEntry struct {
	ID       string    `json:"id"`
	DeviceID string    `json:"deviceId"`
	Type     string    `json:"type"`
	Content  string    `json:"content"`
	Severity Severity  `json:"severity"`
	TS       time.Time `json:"timestamp"`
}

// Record is a tagged union over the four persisted kinds. Exactly one of the
// pointer fields matching Kind is set.
type Record struct {
	Kind     Kind
	Sample   *SensorSample
	Status   *StatusRecord
	Rotation *RotationSample
	Event    *EventLogEntry
}

// ErrEmptyRecord is returned when a record carries no payload for its kind.
var ErrEmptyRecord = errors.New("telemetry: empty record")

// DeviceID returns the device the record belongs to.
func (r Record) DeviceID() string {
	switch r.Kind {
	case KindSensor:
		if r.Sample != nil {
			return r.Sample.DeviceID
		}
	case KindStatus:
		if r.Status != nil {
			return r.Status.DeviceID
		}
	case KindRotation:
		if r.Rotation != nil {
			return r.Rotation.DeviceID
		}
	case KindEvent:
		if r.Event != nil {
			return r.Event.DeviceID
		}
	}
	return ""
}

// Timestamp returns the record's own time, not the received-at time.
func (r Record) Timestamp() time.Time {
	switch r.Kind {
	case KindSensor:
		if r.Sample != nil {
			return r.Sample.TS
		}
	case KindStatus:
		if r.Status != nil {
			return r.Status.TS
		}
	case KindRotation:
		if r.Rotation != nil {
			return r.Rotation.TS
		}
	case KindEvent:
		if r.Event != nil {
			return r.Event.TS
		}
	}
	return time.Time{}
}

// Field resolves a named field for filtering and sorting. Returned values are
// time.Time, float64 or string.
func (r Record) Field(name string) (any, bool) {
	if name == "timestamp" {
		return r.Timestamp(), true
	}
	if name == "deviceId" {
		return r.DeviceID(), true
	}
	switch r.Kind {
	case KindSensor:
		if r.Sample == nil {
			return nil, false
		}
		switch name {
		case "sensorType":
			return string(r.Sample.Sensor), true
		case "value":
			return r.Sample.Value, true
		case "unit":
			return r.Sample.Unit, true
		}
	case KindStatus:
		if r.Status == nil {
			return nil, false
		}
		if name == "status" {
			return string(r.Status.Status), true
		}
	case KindRotation:
		if r.Rotation == nil {
			return nil, false
		}
		switch name {
		case "alpha":
			return r.Rotation.Alpha, true
		case "beta":
			return r.Rotation.Beta, true
		case "gamma":
			return r.Rotation.Gamma, true
		}
	case KindEvent:
		if r.Event == nil {
			return nil, false
		}
		switch name {
		case "id":
			return r.Event.ID, true
		case "type":
			return r.Event.Type, true
		case "content":
			return r.Event.Content, true
		case "severity":
			return string(r.Event.Severity), true
		}
	}
	return nil, false
}

// MarshalJSON flattens the union into the payload struct plus a kind tag.
func (r Record) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindSensor:
		if r.Sample == nil {
			return nil, ErrEmptyRecord
		}
		return json.Marshal(struct {
			Kind Kind `json:"kind"`
			*SensorSample
		}{r.Kind, r.Sample})
	case KindStatus:
		if r.Status == nil {
			return nil, ErrEmptyRecord
		}
		return json.Marshal(struct {
			Kind Kind `json:"kind"`
			*StatusRecord
		}{r.Kind, r.Status})
	case KindRotation:
		if r.Rotation == nil {
			return nil, ErrEmptyRecord
		}
		return json.Marshal(struct {
			Kind Kind `json:"kind"`
			*RotationSample
		}{r.Kind, r.Rotation})
	case KindEvent:
		if r.Event == nil {
			return nil, ErrEmptyRecord
		}
		return json.Marshal(struct {
			Kind Kind `json:"kind"`
			*EventLogEntry
		}{r.Kind, r.Event})
	default:
		return nil, ErrEmptyRecord
	}
}
