package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValuationRecord is one ranked output row.
type ValuationRecord struct {
	InstrumentDisplay string          `json:"instrument"`
	Code              string          `json:"code"`
	MaturityDate      time.Time       `json:"maturity_date"`
	DaysToMature      int             `json:"days_to_mature"`
	PeriodKind        PeriodKind      `json:"period_kind"`
	SpotPrice         decimal.Decimal `json:"spot_price"`
	Strike            decimal.Decimal `json:"strike"`
	Bid               decimal.Decimal `json:"bid"`
	Ask               decimal.Decimal `json:"ask"`
	Side              Side            `json:"side"`
	TimeValue         decimal.Decimal `json:"time_value"`
	YieldPerSpot      decimal.Decimal `json:"yield_per_spot"`
	YieldPerDay       decimal.Decimal `json:"yield_per_day"`
}

// SortKey selects the ranking column of a result snapshot.
type SortKey string

const (
	SortByYieldPerSpot SortKey = "yield_per_spot"
	SortByYieldPerDay  SortKey = "yield_per_day"
)

// ParseSortKey accepts the canonical names plus a few short aliases.
// An empty string selects SortByYieldPerSpot.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "yield_per_spot", "spot", "yield":
		return SortByYieldPerSpot, nil
	case "yield_per_day", "day", "daily":
		return SortByYieldPerDay, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// ParseSide accepts "call"/"put" (and "c"/"p"). An empty string means both sides.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "call", "calls", "c":
		return SideCall, nil
	case "put", "puts", "p":
		return SidePut, nil
	}
	return "", fmt.Errorf("unknown option side %q", s)
}

// SortRecords orders records in place: the chosen yield descending, then
// instrument label ascending. Remaining ties fall back to side, maturity
// and strike so that equal inputs always produce the same order.
func SortRecords(records []ValuationRecord, key SortKey) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		ya, yb := a.YieldPerSpot, b.YieldPerSpot
		if key == SortByYieldPerDay {
			ya, yb = a.YieldPerDay, b.YieldPerDay
		}
		if c := ya.Cmp(yb); c != 0 {
			return c > 0
		}
		if a.InstrumentDisplay != b.InstrumentDisplay {
			return a.InstrumentDisplay < b.InstrumentDisplay
		}
		if a.Side != b.Side {
			return a.Side < b.Side
		}
		if !a.MaturityDate.Equal(b.MaturityDate) {
			return a.MaturityDate.Before(b.MaturityDate)
		}
		return a.Strike.LessThan(b.Strike)
	})
}

// FilterSide returns the records of one side. An empty side returns records unchanged.
func FilterSide(records []ValuationRecord, side Side) []ValuationRecord {
	if side == "" {
		return records
	}
	out := make([]ValuationRecord, 0, len(records))
	for _, r := range records {
		if r.Side == side {
			out = append(out, r)
		}
	}
	return out
}
