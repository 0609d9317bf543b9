package health

import (
	"sync"
	"time"
)

// Status classifies device liveness.
type Status string

const (
	StatusOK    Status = "OK"
	StatusWarn  Status = "WARN"
	StatusError Status = "ERROR"
)

// Report is the health view for a single device.
type Report struct {
	Status        Status    `json:"status"`
	LastHeartbeat time.Time `json:"lastHeartbeat,omitempty"`
	SafeStatus    string    `json:"safeStatus,omitempty"`
}

// Thresholds is the recency threshold pair: heartbeat age at most OKWithin is
// OK, at most WarnWithin is WARN, anything older is ERROR.
type Thresholds struct {
	OKWithin   time.Duration
	WarnWithin time.Duration
}

// DefaultThresholds matches in-memory heartbeat tracking.
var DefaultThresholds = Thresholds{OKWithin: 5 * time.Second, WarnWithin: 30 * time.Second}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Tracker keeps per-device last-message timestamps in memory. It is updated
// on every ingested record and lost on restart.
type Tracker struct {
	mu         sync.RWMutex
	last       map[string]time.Time
	thresholds Thresholds
	clock      Clock
}

// TrackerOption customizes the tracker.
type TrackerOption func(*Tracker)

// WithClock assigns a clock.
func WithClock(clock Clock) TrackerOption {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// NewTracker constructs a heartbeat tracker.
func NewTracker(thresholds Thresholds, opts ...TrackerOption) *Tracker {
	if thresholds.OKWithin <= 0 {
		thresholds.OKWithin = DefaultThresholds.OKWithin
	}
	if thresholds.WarnWithin <= thresholds.OKWithin {
		thresholds.WarnWithin = DefaultThresholds.WarnWithin
		if thresholds.WarnWithin <= thresholds.OKWithin {
			thresholds.WarnWithin = 6 * thresholds.OKWithin
		}
	}
	tracker := &Tracker{
		last:       make(map[string]time.Time),
		thresholds: thresholds,
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(tracker)
	}
	return tracker
}

// Touch records a heartbeat for a device. Timestamps are monotonic per
// device: an older touch never rolls the heartbeat back.
func (t *Tracker) Touch(deviceID string, at time.Time) {
	if t == nil || deviceID == "" {
		return
	}
	if at.IsZero() {
		at = t.clock.Now()
	}
	t.mu.Lock()
	if existing, ok := t.last[deviceID]; !ok || at.After(existing) {
		t.last[deviceID] = at.UTC()
	}
	t.mu.Unlock()
}

// LastSeen returns the last heartbeat time for a device, if any.
func (t *Tracker) LastSeen(deviceID string) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	t.mu.RLock()
	at, ok := t.last[deviceID]
	t.mu.RUnlock()
	return at, ok
}

// Report classifies a device by heartbeat recency. A device that was never
// seen classifies as WARN, not as an error.
func (t *Tracker) Report(deviceID string) Report {
	if t == nil {
		return Report{Status: StatusWarn}
	}
	at, ok := t.LastSeen(deviceID)
	if !ok {
		return Report{Status: StatusWarn}
	}
	age := t.clock.Now().Sub(at)
	status := StatusError
	switch {
	case age <= t.thresholds.OKWithin:
		status = StatusOK
	case age <= t.thresholds.WarnWithin:
		status = StatusWarn
	}
	return Report{Status: status, LastHeartbeat: at}
}
