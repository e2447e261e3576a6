package utils

import (
	"time"
)

// AMS is the Europe/Amsterdam location used by Euronext Amsterdam.
var AMS *time.Location

func init() {
	var err error
	AMS, err = time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		// Fallback: fixed CET when the tz database is not available
		AMS = time.FixedZone("CET", 1*60*60)
	}
}

// DateLayout is the canonical date format used in config and API output.
const DateLayout = "2006-01-02"

// NowAMS returns the current time in Amsterdam.
func NowAMS() time.Time {
	return time.Now().In(AMS)
}

// DateOnly truncates t to midnight of its Amsterdam calendar day.
func DateOnly(t time.Time) time.Time {
	d := t.In(AMS)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, AMS)
}

// DaysBetween returns the number of calendar days from a to b (negative if b is earlier).
func DaysBetween(a, b time.Time) int {
	da, db := DateOnly(a), DateOnly(b)
	// Compare in UTC to avoid DST-shortened days
	ua := time.Date(da.Year(), da.Month(), da.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(db.Year(), db.Month(), db.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// MarketOpenTime returns the Euronext continuous-trading open (09:00) for a given date.
func MarketOpenTime(date time.Time) time.Time {
	d := date.In(AMS)
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 0, 0, 0, AMS)
}

// MarketCloseTime returns the Euronext close (17:30) for a given date.
func MarketCloseTime(date time.Time) time.Time {
	d := date.In(AMS)
	return time.Date(d.Year(), d.Month(), d.Day(), 17, 30, 0, 0, AMS)
}

// PreOpenStart returns the opening auction call phase start (07:15).
func PreOpenStart(date time.Time) time.Time {
	d := date.In(AMS)
	return time.Date(d.Year(), d.Month(), d.Day(), 7, 15, 0, 0, AMS)
}

// IsMarketOpenAt checks if Euronext Amsterdam would be open at the given time.
func IsMarketOpenAt(t time.Time) bool {
	t = t.In(AMS)
	if !IsTradingDay(t) {
		return false
	}
	return !t.Before(MarketOpenTime(t)) && !t.After(MarketCloseTime(t))
}

// IsTradingDay checks if the given date is a trading day (not weekend, not a Euronext holiday).
func IsTradingDay(t time.Time) bool {
	t = t.In(AMS)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !IsTradingHoliday(t)
}

// IsTradingHoliday checks if the given date is a Euronext market-wide closure.
func IsTradingHoliday(t time.Time) bool {
	t = t.In(AMS)
	_, ok := EuronextHolidays(t.Year())[t.Format(DateLayout)]
	return ok
}

// EuronextHolidays returns the cash/derivatives market closures for a year.
// Euronext closes on New Year's Day, Good Friday, Easter Monday, Labour Day,
// Christmas Day and Boxing Day.
func EuronextHolidays(year int) map[string]string {
	easter := EasterSunday(year)
	day := func(m time.Month, d int) string {
		return time.Date(year, m, d, 0, 0, 0, 0, AMS).Format(DateLayout)
	}
	return map[string]string{
		day(time.January, 1):                        "New Year's Day",
		easter.AddDate(0, 0, -2).Format(DateLayout): "Good Friday",
		easter.AddDate(0, 0, 1).Format(DateLayout):  "Easter Monday",
		day(time.May, 1):                            "Labour Day",
		day(time.December, 25):                      "Christmas Day",
		day(time.December, 26):                      "Boxing Day",
	}
}

// EasterSunday computes Gregorian Easter with the anonymous (Meeus/Jones/Butcher) algorithm.
func EasterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, AMS)
}

// ParseDateAMS parses a date string in "2006-01-02" format in Amsterdam time.
func ParseDateAMS(dateStr string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, dateStr, AMS)
}

// FormatDateAMS formats a time.Time to "2006-01-02" in Amsterdam time.
func FormatDateAMS(t time.Time) string {
	return t.In(AMS).Format(DateLayout)
}

// FormatDateTimeAMS formats a time.Time to "2006-01-02 15:04:05 CET".
func FormatDateTimeAMS(t time.Time) string {
	return t.In(AMS).Format("2006-01-02 15:04:05 MST")
}

// MarketStatus returns the current market status string.
func MarketStatus() string {
	return MarketStatusAt(NowAMS())
}

// MarketStatusAt returns the market status at t.
func MarketStatusAt(now time.Time) string {
	now = now.In(AMS)

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return "CLOSED (Weekend)"
	}

	if holiday, ok := EuronextHolidays(now.Year())[now.Format(DateLayout)]; ok {
		return "CLOSED (" + holiday + ")"
	}

	switch {
	case IsMarketOpenAt(now):
		return "OPEN"
	case now.Before(PreOpenStart(now)):
		return "PRE-MARKET"
	case now.Before(MarketOpenTime(now)):
		return "OPENING AUCTION"
	default:
		return "CLOSED"
	}
}
