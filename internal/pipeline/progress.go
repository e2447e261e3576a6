package pipeline

import (
	"sync"

	"github.com/seenimoa/optionyield/pkg/models"
)

// Reporter tracks the progress of one refresh cycle.
type Reporter struct {
	mu    sync.RWMutex
	state models.ProgressState
}

// NewReporter creates a reporter for total jobs.
func NewReporter(total int) *Reporter {
	return &Reporter{state: models.ProgressState{TotalCount: total}}
}

// Completed records one finished job, whether it produced records or was
// skipped, and returns the new state.
func (r *Reporter) Completed(label string) models.ProgressState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.CompletedCount++
	r.state.LastInstrumentLabel = label
	return r.state
}

// Finish marks the queue drained. The counts stay; the status text clears.
func (r *Reporter) Finish() models.ProgressState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Done = true
	r.state.LastInstrumentLabel = ""
	return r.state
}

// Snapshot returns the current state.
func (r *Reporter) Snapshot() models.ProgressState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}
