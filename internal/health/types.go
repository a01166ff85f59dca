package health

import (
	"time"
)

// Component names reported to the tracker.
const (
	ComponentSession   = "session"
	ComponentStore     = "store"
	ComponentScheduler = "scheduler"
	ComponentQueue     = "queue"
)

// ComponentStatus holds the health information for a single component.
type ComponentStatus struct {
	Name        string    `json:"name"`
	IsHealthy   bool      `json:"healthy"`
	LastChecked time.Time `json:"last_checked"`
	LastError   string    `json:"last_error,omitempty"`
	ErrorCount  int       `json:"error_count"`
}
