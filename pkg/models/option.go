package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the option right.
type Side string

const (
	SideCall Side = "call"
	SidePut  Side = "put"
)

// NoMarket is the bid/ask text the exchange uses when a line has no quote.
const NoMarket = "-"

// RawOptionRow is one quote line as returned by the data source, before
// any cleaning. Strike may carry HTML markup. Side may be empty when the
// source does not tag rows; the enclosing group decides it then.
type RawOptionRow struct {
	Side   Side   `json:"side,omitempty"`
	Strike string `json:"strike"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
}

// RawChain is one instrument's decoded option-chain document.
type RawChain struct {
	MaturityLabel string         `json:"maturity_label"`
	Calls         []RawOptionRow `json:"calls"`
	Puts          []RawOptionRow `json:"puts"`
}

// Empty reports whether the chain carries no rows at all.
func (c *RawChain) Empty() bool {
	return c == nil || (len(c.Calls) == 0 && len(c.Puts) == 0)
}

// OptionQuote is a parsed, numeric quote line. Strike, Bid and Ask are never negative.
type OptionQuote struct {
	Instrument Instrument      `json:"instrument"`
	Side       Side            `json:"side"`
	Strike     decimal.Decimal `json:"strike"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
}

// Maturity is a resolved expiration date with its remaining trading sessions.
type Maturity struct {
	Date         time.Time `json:"date"`
	DaysToMature int       `json:"days_to_mature"`
}
