// Package calendar answers trading-session questions for Euronext Amsterdam.
package calendar

import (
	"fmt"
	"time"

	"github.com/seenimoa/optionyield/pkg/utils"
)

// Past is returned by TradingSessionsBetween when the target date lies
// before the reference date.
const Past = -1

// Oracle counts trading sessions. Implementations must be safe for concurrent use.
type Oracle interface {
	// TradingSessionsBetween counts sessions from from through to, both
	// calendar days included. It returns Past when to is before from.
	TradingSessionsBetween(from, to time.Time) int

	// WeekdayOfFirstOfMonth returns the weekday of day 1, with 0 = Monday.
	WeekdayOfFirstOfMonth(year int, month time.Month) int
}

// Euronext is the Amsterdam trading calendar: weekends, the standard
// Euronext closures, and any extra closure dates from configuration.
type Euronext struct {
	extra map[string]bool
}

// NewEuronext builds the calendar. Extra closures use the "2006-01-02" layout;
// a malformed date is an error because no maturity could be trusted afterwards.
func NewEuronext(extraClosures []string) (*Euronext, error) {
	extra := make(map[string]bool, len(extraClosures))
	for _, s := range extraClosures {
		d, err := utils.ParseDateAMS(s)
		if err != nil {
			return nil, fmt.Errorf("calendar: invalid closure date %q: %w", s, err)
		}
		extra[d.Format(utils.DateLayout)] = true
	}
	return &Euronext{extra: extra}, nil
}

// IsSession reports whether the exchange trades on the calendar day of t.
func (e *Euronext) IsSession(t time.Time) bool {
	if !utils.IsTradingDay(t) {
		return false
	}
	return !e.extra[utils.FormatDateAMS(t)]
}

// TradingSessionsBetween implements Oracle.
func (e *Euronext) TradingSessionsBetween(from, to time.Time) int {
	current := utils.DateOnly(from)
	last := utils.DateOnly(to)
	if last.Before(current) {
		return Past
	}
	n := 0
	for !current.After(last) {
		if e.IsSession(current) {
			n++
		}
		current = current.AddDate(0, 0, 1)
	}
	return n
}

// WeekdayOfFirstOfMonth implements Oracle.
func (e *Euronext) WeekdayOfFirstOfMonth(year int, month time.Month) int {
	return MondayBased(time.Date(year, month, 1, 0, 0, 0, 0, utils.AMS).Weekday())
}

// MondayBased converts Go's Sunday-based weekday to 0 = Monday … 6 = Sunday.
func MondayBased(w time.Weekday) int {
	return (int(w) + 6) % 7
}
