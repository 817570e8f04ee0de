package scheduler

import (
	"sync"
	"time"
)

// AlertSnapshot is a point-in-time view of the weather alert flag.
type AlertSnapshot struct {
	Active    bool      `json:"active"`
	Cities    []string  `json:"cities,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AlertState is the process-wide rain alert. Each weather scan overwrites it
// with that run's outcome; readers only ever see a complete snapshot.
type AlertState struct {
	mu        sync.RWMutex
	active    bool
	cities    []string
	updatedAt time.Time
}

// NewAlertState returns an inactive alert.
func NewAlertState() *AlertState {
	return &AlertState{}
}

// Set activates the alert for the given cities.
func (a *AlertState) Set(cities []string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = true
	a.cities = append([]string(nil), cities...)
	a.updatedAt = at
}

// Clear deactivates the alert.
func (a *AlertState) Clear(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = false
	a.cities = nil
	a.updatedAt = at
}

// Snapshot returns the current alert state.
func (a *AlertState) Snapshot() AlertSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AlertSnapshot{
		Active:    a.active,
		Cities:    append([]string(nil), a.cities...),
		UpdatedAt: a.updatedAt,
	}
}
