package valuation

import (
	"fmt"
	"strings"
	"time"

	"github.com/seenimoa/optionyield/internal/calendar"
	"github.com/seenimoa/optionyield/pkg/models"
	"github.com/seenimoa/optionyield/pkg/utils"
)

// Resolver turns maturity labels into expiration dates and remaining sessions.
type Resolver struct {
	oracle calendar.Oracle
	now    func() time.Time
}

// NewResolver creates a resolver. A nil now uses the Amsterdam wall clock.
func NewResolver(oracle calendar.Oracle, now func() time.Time) *Resolver {
	if now == nil {
		now = utils.NowAMS
	}
	return &Resolver{oracle: oracle, now: now}
}

// Resolve parses label according to kind and counts the trading sessions
// left until expiration. A maturity dated yesterday still counts as one
// session; anything older is ErrExpired.
func (r *Resolver) Resolve(label string, kind models.PeriodKind) (models.Maturity, error) {
	date, err := r.maturityDate(label, kind)
	if err != nil {
		return models.Maturity{}, err
	}

	today := utils.DateOnly(r.now())
	m := models.Maturity{Date: date}

	switch diff := utils.DaysBetween(today, date); {
	case diff < -1:
		return m, fmt.Errorf("%w: %s", ErrExpired, utils.FormatDateAMS(date))
	case diff == -1:
		m.DaysToMature = 1
		return m, nil
	}

	n := r.oracle.TradingSessionsBetween(today, date)
	if n == calendar.Past {
		return m, fmt.Errorf("%w: %s", ErrExpired, utils.FormatDateAMS(date))
	}
	if n < 1 {
		return m, fmt.Errorf("%w: %s", ErrNoSessions, utils.FormatDateAMS(date))
	}
	m.DaysToMature = n
	return m, nil
}

func (r *Resolver) maturityDate(label string, kind models.PeriodKind) (time.Time, error) {
	text := normalizeLabel(label)
	if text == "" {
		return time.Time{}, fmt.Errorf("%w: empty label", ErrUnresolvableMaturity)
	}

	if kind == models.PeriodWeek {
		if d, ok := parseDay(text); ok {
			return d, nil
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnresolvableMaturity, label)
	}

	// Monthly series expire on the third Friday; a full date only tells us the month.
	year, month, ok := parseMonth(text)
	if !ok {
		d, dayOK := parseDay(text)
		if !dayOK {
			return time.Time{}, fmt.Errorf("%w: %q", ErrUnresolvableMaturity, label)
		}
		year, month = d.Year(), d.Month()
	}
	return ThirdFriday(r.oracle, year, month), nil
}

// ThirdFriday returns the standard monthly equity-option expiration date.
// With w the Monday-based weekday of the 1st, the day is 21 - ((w+2) mod 7).
func ThirdFriday(oracle calendar.Oracle, year int, month time.Month) time.Time {
	w := oracle.WeekdayOfFirstOfMonth(year, month)
	return time.Date(year, month, 21-((w+2)%7), 0, 0, 0, 0, utils.AMS)
}

var dayLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
	"January 2 2006",
}

var monthLayouts = []string{
	"Jan 2006",
	"January 2006",
	"Jan-2006",
	"January-2006",
	"01/2006",
	"1/2006",
	"2006-01",
	"01-2006",
	"Jan 06",
	"Jan-06",
}

func parseDay(text string) (time.Time, bool) {
	for _, layout := range dayLayouts {
		if d, err := time.ParseInLocation(layout, text, utils.AMS); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func parseMonth(text string) (int, time.Month, bool) {
	for _, layout := range monthLayouts {
		if d, err := time.ParseInLocation(layout, text, utils.AMS); err == nil {
			return d.Year(), d.Month(), true
		}
	}
	return 0, 0, false
}

// Dutch month names appear when the chain is requested from the nl site.
var dutchMonths = map[string]string{
	"januari": "January", "februari": "February", "maart": "March", "mrt": "Mar",
	"mei": "May", "juni": "June", "juli": "July", "augustus": "August",
	"oktober": "October", "okt": "Oct",
}

// normalizeLabel drops the leading "Week"/"Month" marker, commas and ordinal
// suffixes, and translates Dutch month names.
func normalizeLabel(label string) string {
	fields := strings.Fields(strings.ReplaceAll(label, ",", " "))
	out := fields[:0]
	for i, f := range fields {
		lower := strings.ToLower(f)
		if i == 0 && isPeriodMarker(lower) {
			continue
		}
		if en, ok := dutchMonths[lower]; ok {
			f = en
		} else if len(f) > 2 && f[0] >= '0' && f[0] <= '9' {
			f = strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(f, "st"), "nd"), "rd"), "th")
		} else if len(f) > 1 {
			f = strings.ToUpper(f[:1]) + strings.ToLower(f[1:])
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

func isPeriodMarker(word string) bool {
	switch word {
	case "week", "weekly", "month", "monthly", "maand", "w", "m":
		return true
	}
	// "W2", "W07" style weekly markers
	if len(word) >= 2 && word[0] == 'w' && word[1] >= '0' && word[1] <= '9' {
		return true
	}
	return false
}
