package valuation

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/seenimoa/optionyield/pkg/models"
)

// MinRowsPerSide is the liquidity gate: a chain needs at least this many
// call rows and put rows to be worth valuing.
const MinRowsPerSide = 2

// PriceFetcher returns the latest spot price of an instrument's underlying.
type PriceFetcher interface {
	FetchLatestPrice(ctx context.Context, inst models.Instrument) (decimal.Decimal, error)
}

// Chain is one instrument's normalized quotes plus everything the valuation
// step needs to turn them into records.
type Chain struct {
	Instrument    models.Instrument
	Label         string
	SpotPrice     decimal.Decimal
	MaturityLabel string
	Quotes        []models.OptionQuote
}

// Parser normalizes raw chain payloads.
type Parser struct {
	prices PriceFetcher
}

// NewParser creates a parser that looks spot prices up through prices.
func NewParser(prices PriceFetcher) *Parser {
	return &Parser{prices: prices}
}

// Parse cleans raw rows into quotes and attaches the spot price. It returns
// a skip error when the payload is absent, too thin, has no usable rows, or
// the spot price is unavailable. The spot lookup happens last so that thin
// chains never cost a second request.
func (p *Parser) Parse(ctx context.Context, raw *models.RawChain, inst models.Instrument) (*Chain, error) {
	if raw.Empty() {
		return nil, ErrNoPayload
	}
	if len(raw.Calls) < MinRowsPerSide || len(raw.Puts) < MinRowsPerSide {
		return nil, fmt.Errorf("%w: %d calls, %d puts", ErrInsufficientDepth, len(raw.Calls), len(raw.Puts))
	}

	quotes := make([]models.OptionQuote, 0, len(raw.Calls)+len(raw.Puts))
	quotes = appendQuotes(quotes, raw.Calls, models.SideCall, inst)
	quotes = appendQuotes(quotes, raw.Puts, models.SidePut, inst)
	if len(quotes) == 0 {
		return nil, ErrNoUsableRows
	}

	spot, err := p.prices.FetchLatestPrice(ctx, inst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSpotPrice, err)
	}
	if !spot.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive price %s", ErrNoSpotPrice, spot)
	}

	return &Chain{
		Instrument:    inst,
		Label:         inst.ShortLabel(),
		SpotPrice:     spot,
		MaturityLabel: raw.MaturityLabel,
		Quotes:        quotes,
	}, nil
}

func appendQuotes(dst []models.OptionQuote, rows []models.RawOptionRow, groupSide models.Side, inst models.Instrument) []models.OptionQuote {
	for _, row := range rows {
		q, ok := ParseRow(row, inst)
		if !ok {
			continue
		}
		if q.Side == "" {
			q.Side = groupSide
		}
		dst = append(dst, q)
	}
	return dst
}

// ParseRow converts one raw row. Rows with a "no market" bid, a missing or
// non-numeric field, or a negative value are rejected.
func ParseRow(row models.RawOptionRow, inst models.Instrument) (models.OptionQuote, bool) {
	if strings.TrimSpace(row.Bid) == models.NoMarket {
		return models.OptionQuote{}, false
	}
	strike, err := ParseNumber(StripMarkup(row.Strike))
	if err != nil {
		return models.OptionQuote{}, false
	}
	bid, err := ParseNumber(row.Bid)
	if err != nil {
		return models.OptionQuote{}, false
	}
	ask, err := ParseNumber(row.Ask)
	if err != nil {
		return models.OptionQuote{}, false
	}
	if strike.IsNegative() || bid.IsNegative() || ask.IsNegative() {
		return models.OptionQuote{}, false
	}
	return models.OptionQuote{
		Instrument: inst,
		Side:       row.Side,
		Strike:     strike,
		Bid:        bid,
		Ask:        ask,
	}, true
}

// StripMarkup returns the text content of an HTML fragment, e.g.
// `<span class="strike">12.50</span>` → "12.50".
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

var priceNoise = strings.NewReplacer(" ", "", "\u00a0", "", "€", "")

// ParseNumber parses a price as quoted by the exchange. Both "1234.50" and
// the Dutch "1.234,50" are accepted: when both separators occur, the last
// one is the decimal separator. A lone separator is always decimal, so
// "1.250" is 1.25; the exchange always prints prices with decimals
// ("1.250,00"), so a bare thousands group never reaches here.
func ParseNumber(s string) (decimal.Decimal, error) {
	s = priceNoise.Replace(strings.TrimSpace(s))
	if s == "" || s == models.NoMarket {
		return decimal.Zero, fmt.Errorf("no numeric value in %q", s)
	}

	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}
	return decimal.NewFromString(s)
}
