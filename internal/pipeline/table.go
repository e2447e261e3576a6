package pipeline

import (
	"sync"

	"github.com/seenimoa/optionyield/pkg/models"
)

// ResultTable accumulates the valuation records of one refresh cycle.
// It is append-only and safe for concurrent use.
type ResultTable struct {
	mu      sync.RWMutex
	records []models.ValuationRecord
}

// NewResultTable creates an empty table.
func NewResultTable() *ResultTable {
	return &ResultTable{}
}

// Append adds one instrument's batch. Readers see all of it or none of it.
func (t *ResultTable) Append(batch []models.ValuationRecord) {
	if len(batch) == 0 {
		return
	}
	t.mu.Lock()
	t.records = append(t.records, batch...)
	t.mu.Unlock()
}

// Len returns the number of records appended so far.
func (t *ResultTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Snapshot returns a sorted copy of the table. Sorting happens outside the
// lock, so workers are only blocked for the copy.
func (t *ResultTable) Snapshot(key models.SortKey) []models.ValuationRecord {
	t.mu.RLock()
	out := make([]models.ValuationRecord, len(t.records))
	copy(out, t.records)
	t.mu.RUnlock()

	models.SortRecords(out, key)
	return out
}
