// Package valuation turns raw option-chain payloads into ranked covered-call
// and cash-secured-put valuation records: chain parsing, maturity resolution
// against the trading calendar, and time-value/yield computation.
//
// Every error returned by this package means "skip this instrument"; none is
// fatal to a refresh cycle.
package valuation

import "errors"

// Skip reasons.
var (
	ErrFetch                = errors.New("option chain fetch failed")
	ErrNoPayload            = errors.New("empty option chain payload")
	ErrInsufficientDepth    = errors.New("fewer than two quote rows per side")
	ErrNoUsableRows         = errors.New("no quote rows survived parsing")
	ErrNoSpotPrice          = errors.New("spot price unavailable")
	ErrUnresolvableMaturity = errors.New("maturity label could not be resolved")
	ErrExpired              = errors.New("maturity already expired")
	ErrNoSessions           = errors.New("no trading sessions left before maturity")
)

var skipReasons = []struct {
	err    error
	reason string
}{
	{ErrFetch, "fetch_failed"},
	{ErrNoPayload, "no_payload"},
	{ErrInsufficientDepth, "insufficient_depth"},
	{ErrNoUsableRows, "no_usable_rows"},
	{ErrNoSpotPrice, "no_spot_price"},
	{ErrUnresolvableMaturity, "unresolvable_maturity"},
	{ErrExpired, "expired"},
	{ErrNoSessions, "no_sessions"},
}

// SkipReason maps an error to a short, low-cardinality label suitable for
// metrics and logs. A nil error maps to "ok".
func SkipReason(err error) string {
	if err == nil {
		return "ok"
	}
	for _, r := range skipReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
