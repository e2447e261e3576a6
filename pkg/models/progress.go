package models

import "fmt"

// ProgressState is a point-in-time view of a refresh cycle.
type ProgressState struct {
	CompletedCount      int    `json:"completed"`
	TotalCount          int    `json:"total"`
	LastInstrumentLabel string `json:"last_instrument"`
	Done                bool   `json:"done"`
}

// FractionComplete returns completed/total, or 1 for an empty cycle.
func (p ProgressState) FractionComplete() float64 {
	if p.TotalCount == 0 {
		return 1
	}
	return float64(p.CompletedCount) / float64(p.TotalCount)
}

// Status renders the human-readable progress line. It is empty when idle.
func (p ProgressState) Status() string {
	if p.Done || p.LastInstrumentLabel == "" {
		return ""
	}
	return fmt.Sprintf("Refreshing %s option prices (%d/%d | %.0f%%)",
		p.LastInstrumentLabel, p.CompletedCount, p.TotalCount, p.FractionComplete()*100)
}
