package memory

import (
	"context"
	"sync"
	"time"

	telemetry "safewatch-cloud/internal/telemetry/domain"
)

// Store is an in-memory Store implementation for tests and local runs. Range
// queries return records in insertion order, which is not necessarily
// timestamp order; the query engine sorts.
type Store struct {
	mu        sync.RWMutex
	samples   []telemetry.SensorSample
	statuses  []telemetry.StatusRecord
	rotations []telemetry.RotationSample
	events    []telemetry.EventLogEntry
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{}
}

// AppendSample stores a sensor sample.
func (s *Store) AppendSample(_ context.Context, sample telemetry.SensorSample) error {
	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
	return nil
}

// AppendStatus stores a status record.
func (s *Store) AppendStatus(_ context.Context, status telemetry.StatusRecord) error {
	s.mu.Lock()
	s.statuses = append(s.statuses, status)
	s.mu.Unlock()
	return nil
}

// AppendRotation stores a rotation sample.
func (s *Store) AppendRotation(_ context.Context, rotation telemetry.RotationSample) error {
	s.mu.Lock()
	s.rotations = append(s.rotations, rotation)
	s.mu.Unlock()
	return nil
}

// AppendEvent stores an event log entry.
func (s *Store) AppendEvent(_ context.Context, event telemetry.EventLogEntry) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

// QueryRange returns records of a kind within [start, end).
func (s *Store) QueryRange(_ context.Context, kind telemetry.Kind, filter telemetry.RangeFilter, start, end time.Time) ([]telemetry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []telemetry.Record
	switch kind {
	case telemetry.KindSensor:
		for i := range s.samples {
			sample := s.samples[i]
			if !inRange(sample.TS, start, end) {
				continue
			}
			if filter.DeviceID != "" && sample.DeviceID != filter.DeviceID {
				continue
			}
			if filter.SensorType != "" && sample.Sensor != filter.SensorType {
				continue
			}
			out = append(out, telemetry.Record{Kind: kind, Sample: &sample})
		}
	case telemetry.KindStatus:
		for i := range s.statuses {
			status := s.statuses[i]
			if !inRange(status.TS, start, end) {
				continue
			}
			if filter.DeviceID != "" && status.DeviceID != filter.DeviceID {
				continue
			}
			if filter.Status != "" && status.Status != filter.Status {
				continue
			}
			out = append(out, telemetry.Record{Kind: kind, Status: &status})
		}
	case telemetry.KindRotation:
		for i := range s.rotations {
			rotation := s.rotations[i]
			if !inRange(rotation.TS, start, end) {
				continue
			}
			if filter.DeviceID != "" && rotation.DeviceID != filter.DeviceID {
				continue
			}
			out = append(out, telemetry.Record{Kind: kind, Rotation: &rotation})
		}
	case telemetry.KindEvent:
		for i := range s.events {
			event := s.events[i]
			if !inRange(event.TS, start, end) {
				continue
			}
			if filter.DeviceID != "" && event.DeviceID != filter.DeviceID {
				continue
			}
			if filter.EventType != "" && event.Type != filter.EventType {
				continue
			}
			if filter.Severity != "" && event.Severity != filter.Severity {
				continue
			}
			out = append(out, telemetry.Record{Kind: kind, Event: &event})
		}
	default:
		return nil, telemetry.ErrUnknownKind
	}
	return out, nil
}

// Latest returns the most recent record of a kind for a device, or nil.
func (s *Store) Latest(_ context.Context, kind telemetry.Kind, deviceID string) (*telemetry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *telemetry.Record
	var bestTS time.Time
	consider := func(record telemetry.Record) {
		ts := record.Timestamp()
		if best == nil || ts.After(bestTS) {
			r := record
			best = &r
			bestTS = ts
		}
	}

	switch kind {
	case telemetry.KindSensor:
		for i := range s.samples {
			if s.samples[i].DeviceID == deviceID {
				sample := s.samples[i]
				consider(telemetry.Record{Kind: kind, Sample: &sample})
			}
		}
	case telemetry.KindStatus:
		for i := range s.statuses {
			if s.statuses[i].DeviceID == deviceID {
				status := s.statuses[i]
				consider(telemetry.Record{Kind: kind, Status: &status})
			}
		}
	case telemetry.KindRotation:
		for i := range s.rotations {
			if s.rotations[i].DeviceID == deviceID {
				rotation := s.rotations[i]
				consider(telemetry.Record{Kind: kind, Rotation: &rotation})
			}
		}
	case telemetry.KindEvent:
		for i := range s.events {
			if s.events[i].DeviceID == deviceID {
				event := s.events[i]
				consider(telemetry.Record{Kind: kind, Event: &event})
			}
		}
	default:
		return nil, telemetry.ErrUnknownKind
	}
	return best, nil
}

func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && ts.Before(end)
}
