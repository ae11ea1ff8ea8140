package app

import (
	"sync/atomic"
	"time"
)

// importReadiness gates /readyz on the startup catalog import. The service
// becomes ready once the import finishes or the grace period elapses.
// startTime and grace are immutable after construction.
type importReadiness struct {
	done      atomic.Bool
	startTime time.Time
	grace     time.Duration
}

// readinessStatus is the JSON body fragment describing the gate.
type readinessStatus struct {
	Ready          bool   `json:"ready"`
	Reason         string `json:"reason,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
	GraceSeconds   int    `json:"grace_seconds,omitempty"`
}

func newImportReadiness(grace time.Duration) *importReadiness {
	return &importReadiness{
		startTime: time.Now(),
		grace:     grace,
	}
}

// IsReady reports whether traffic should be accepted.
func (s *importReadiness) IsReady() bool {
	return s.done.Load() || time.Since(s.startTime) >= s.grace
}

// MarkDone records that the startup import has finished, successfully or not.
func (s *importReadiness) MarkDone() {
	s.done.Store(true)
}

func (s *importReadiness) Status() readinessStatus {
	status := readinessStatus{
		Ready:          s.IsReady(),
		ElapsedSeconds: int(time.Since(s.startTime).Seconds()),
		GraceSeconds:   int(s.grace.Seconds()),
	}

	switch {
	case !status.Ready:
		status.Reason = "catalog import in progress"
	case !s.done.Load():
		status.Reason = "grace period elapsed (import may still be running)"
	}
	return status
}
