// Package models defines the core data structures shared by the valuation
// pipeline, the Euronext data sources, and the API.
package models

import "strings"

// PeriodKind distinguishes weekly from monthly option series.
type PeriodKind string

const (
	PeriodWeek  PeriodKind = "week"
	PeriodMonth PeriodKind = "month"
)

// PeriodKindFromName derives the series kind from an instrument name.
// Euronext names weekly series "... Week ..."; everything else is monthly.
func PeriodKindFromName(name string) PeriodKind {
	for _, word := range strings.Fields(name) {
		if strings.EqualFold(word, "week") || strings.EqualFold(word, "weekly") {
			return PeriodWeek
		}
	}
	return PeriodMonth
}

// Instrument is one eligible underlying from the exchange catalog.
// It is immutable once loaded.
type Instrument struct {
	Code         string     `json:"code"`          // exchange ticker, e.g. "ASML"
	DisplayName  string     `json:"display_name"`  // e.g. "ASML Holding Stock Options"
	UnderlyingID string     `json:"underlying_id"` // used to fetch the spot price
	PeriodKind   PeriodKind `json:"period_kind"`
}

// ShortLabel returns the first word of the display name followed by the code.
func (i Instrument) ShortLabel() string {
	fields := strings.Fields(i.DisplayName)
	if len(fields) == 0 {
		return i.Code
	}
	if i.Code == "" {
		return fields[0]
	}
	return fields[0] + " " + i.Code
}

// PriceID returns the identifier used by the spot-price source.
func (i Instrument) PriceID() string {
	if i.UnderlyingID != "" {
		return i.UnderlyingID
	}
	return i.Code
}
