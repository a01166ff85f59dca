package health

import (
	"sync"
	"time"
)

// Tracker records the last known health of each component.
type Tracker struct {
	statuses map[string]ComponentStatus
	mu       sync.RWMutex
}

// NewTracker creates a new instance of a Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		statuses: make(map[string]ComponentStatus),
	}
}

// UpdateStatus updates the health status of a specific component.
func (t *Tracker) UpdateStatus(name string, isHealthy bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, exists := t.statuses[name]
	if !exists {
		status = ComponentStatus{Name: name}
	}

	status.IsHealthy = isHealthy
	status.LastChecked = time.Now()

	if err != nil {
		status.LastError = err.Error()
		if !isHealthy {
			status.ErrorCount++
		}
	} else {
		// Reset error state on success
		status.LastError = ""
		status.ErrorCount = 0
	}
	t.statuses[name] = status
}

// GetStatus retrieves the current health status of a specific component.
func (t *Tracker) GetStatus(name string) (ComponentStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, exists := t.statuses[name]
	return status, exists
}

// GetAllStatuses returns a copy of all tracked statuses.
func (t *Tracker) GetAllStatuses() map[string]ComponentStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	statusesCopy := make(map[string]ComponentStatus, len(t.statuses))
	for k, v := range t.statuses {
		statusesCopy[k] = v
	}
	return statusesCopy
}

// Healthy reports whether every listed component was seen and is healthy.
// With no names, every tracked component is considered.
func (t *Tracker) Healthy(names ...string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(names) == 0 {
		for _, s := range t.statuses {
			if !s.IsHealthy {
				return false
			}
		}
		return true
	}
	for _, name := range names {
		s, ok := t.statuses[name]
		if !ok || !s.IsHealthy {
			return false
		}
	}
	return true
}
