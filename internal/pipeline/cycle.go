package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/optionyield/pkg/models"
)

// RefreshCycle is one run of the pipeline over a fixed instrument list. It
// owns its result table and progress; a later cycle never touches them.
type RefreshCycle struct {
	ID        string
	StartedAt time.Time

	instruments []models.Instrument
	table       *ResultTable
	progress    *Reporter
	cancel      context.CancelFunc
	done        chan struct{}
	final       models.ProgressState
}

func newRefreshCycle(instruments []models.Instrument, cancel context.CancelFunc) *RefreshCycle {
	return &RefreshCycle{
		ID:          uuid.NewString(),
		StartedAt:   time.Now(),
		instruments: instruments,
		table:       NewResultTable(),
		progress:    NewReporter(len(instruments)),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Total returns the number of jobs in the cycle.
func (c *RefreshCycle) Total() int { return len(c.instruments) }

// Instruments returns the cycle's instrument list.
func (c *RefreshCycle) Instruments() []models.Instrument { return c.instruments }

// Progress returns the current progress.
func (c *RefreshCycle) Progress() models.ProgressState { return c.progress.Snapshot() }

// Results returns a sorted snapshot of the records gathered so far.
func (c *RefreshCycle) Results(key models.SortKey) []models.ValuationRecord {
	return c.table.Snapshot(key)
}

// Done is closed once every worker has returned.
func (c *RefreshCycle) Done() <-chan struct{} { return c.done }

// Wait blocks until the cycle finishes and returns its final progress.
func (c *RefreshCycle) Wait() models.ProgressState {
	<-c.done
	return c.final
}

// Cancel stops workers from taking new jobs. It does not wait.
func (c *RefreshCycle) Cancel() { c.cancel() }
