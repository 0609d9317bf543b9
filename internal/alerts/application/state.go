package application

import (
	"sync"

	alerts "safewatch-cloud/internal/alerts/domain"
	telemetry "safewatch-cloud/internal/telemetry/domain"
)

// deviceState owns all mutable per-device state. Its mutex serializes the
// read-decide-write-append step for one device; different devices never
// contend.
type deviceState struct {
	mu         sync.Mutex
	alerts     map[alerts.Kind]*alerts.State
	lastStatus telemetry.Status
	hasStatus  bool
}

func (s *deviceState) alertState(kind alerts.Kind) *alerts.State {
	state, ok := s.alerts[kind]
	if !ok {
		state = &alerts.State{}
		s.alerts[kind] = state
	}
	return state
}

// stateRegistry is a synchronized per-device state store, replacing the
// ambient module-level maps of earlier designs.
type stateRegistry struct {
	mu      sync.RWMutex
	devices map[string]*deviceState
}

func newStateRegistry() *stateRegistry {
	return &stateRegistry{devices: make(map[string]*deviceState)}
}

// device returns the state entry for a device, creating it on first use.
func (r *stateRegistry) device(deviceID string) *deviceState {
	r.mu.RLock()
	state, ok := r.devices[deviceID]
	r.mu.RUnlock()
	if ok {
		return state
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok = r.devices[deviceID]; ok {
		return state
	}
	state = &deviceState{alerts: make(map[alerts.Kind]*alerts.State)}
	r.devices[deviceID] = state
	return state
}

// lastStatus returns the cached status for a device, if one was observed.
func (r *stateRegistry) lastStatusOf(deviceID string) (telemetry.Status, bool) {
	r.mu.RLock()
	state, ok := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.lastStatus, state.hasStatus
}
