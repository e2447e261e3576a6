package valuation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/optionyield/pkg/models"
)

type stubPrices struct {
	price decimal.Decimal
	err   error
	calls int
}

func (s *stubPrices) FetchLatestPrice(ctx context.Context, inst models.Instrument) (decimal.Decimal, error) {
	s.calls++
	return s.price, s.err
}

func rows(side models.Side, vals ...[3]string) []models.RawOptionRow {
	out := make([]models.RawOptionRow, 0, len(vals))
	for _, v := range vals {
		out = append(out, models.RawOptionRow{Side: side, Strike: v[0], Bid: v[1], Ask: v[2]})
	}
	return out
}

func TestParseDropsUnusableRows(t *testing.T) {
	prices := &stubPrices{price: d("10")}
	raw := &models.RawChain{
		MaturityLabel: "Mar 2026",
		Calls: rows(models.SideCall,
			[3]string{`<span class="strike">11.00</span>`, "0.50", "0.60"},
			[3]string{"12.00", "-", "0.20"},
		),
		Puts: rows(models.SidePut,
			[3]string{"9,00", "0,30", "0,40"},
			[3]string{"8.00", "n/a", "0.10"},
		),
	}

	chain, err := NewParser(prices).Parse(context.Background(), raw, testInstrument)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(chain.Quotes) != 2 {
		t.Fatalf("quotes = %d, want 2", len(chain.Quotes))
	}
	if q := chain.Quotes[0]; q.Side != models.SideCall || !q.Strike.Equal(d("11")) || !q.Bid.Equal(d("0.5")) {
		t.Errorf("first quote = %+v", q)
	}
	if q := chain.Quotes[1]; q.Side != models.SidePut || !q.Strike.Equal(d("9")) || !q.Bid.Equal(d("0.3")) {
		t.Errorf("second quote = %+v", q)
	}
	if !chain.SpotPrice.Equal(d("10")) || chain.MaturityLabel != "Mar 2026" {
		t.Errorf("chain = %+v", chain)
	}
}

func TestParseSkips(t *testing.T) {
	good := rows(models.SideCall, [3]string{"10", "1", "1.1"}, [3]string{"11", "0.5", "0.6"})
	goodPuts := rows(models.SidePut, [3]string{"9", "0.4", "0.5"}, [3]string{"8", "0.2", "0.3"})

	tests := []struct {
		name      string
		raw       *models.RawChain
		prices    *stubPrices
		want      error
		wantSpots int
	}{
		{"nil payload", nil, &stubPrices{price: d("10")}, ErrNoPayload, 0},
		{"empty payload", &models.RawChain{}, &stubPrices{price: d("10")}, ErrNoPayload, 0},
		{
			"one call row",
			&models.RawChain{Calls: good[:1], Puts: goodPuts},
			&stubPrices{price: d("10")}, ErrInsufficientDepth, 0,
		},
		{
			"every row rejected",
			&models.RawChain{
				Calls: rows(models.SideCall, [3]string{"10", "-", "1"}, [3]string{"11", "-", "1"}),
				Puts:  rows(models.SidePut, [3]string{"x", "1", "1"}, [3]string{"9", "-1", "1"}),
			},
			&stubPrices{price: d("10")}, ErrNoUsableRows, 0,
		},
		{
			"spot lookup fails",
			&models.RawChain{Calls: good, Puts: goodPuts},
			&stubPrices{err: errors.New("timeout")}, ErrNoSpotPrice, 1,
		},
		{
			"spot is zero",
			&models.RawChain{Calls: good, Puts: goodPuts},
			&stubPrices{price: decimal.Zero}, ErrNoSpotPrice, 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(tt.prices).Parse(context.Background(), tt.raw, testInstrument)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if tt.prices.calls != tt.wantSpots {
				t.Errorf("spot lookups = %d, want %d", tt.prices.calls, tt.wantSpots)
			}
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"12.50", "12.5", false},
		{"12,50", "12.5", false},
		{"1.234,50", "1234.5", false},
		{"1,234.50", "1234.5", false},
		{"1.250,00", "1250", false},
		{"1.250", "1.25", false}, // lone separator is decimal
		{"1,250", "1.25", false},
		{"1.234.567,8", "1234567.8", false},
		{" € 3,10 ", "3.1", false},
		{"0", "0", false},
		{"-", "", true},
		{"", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		got, err := ParseNumber(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseNumber(%q) = %s, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseNumber(%q) error: %v", tt.in, err)
			continue
		}
		if !got.Equal(d(tt.want)) {
			t.Errorf("ParseNumber(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestStripMarkup(t *testing.T) {
	tests := map[string]string{
		"12.50":                              "12.50",
		`<span class="strike">12.50</span>`: "12.50",
		"<div><b>7</b>,25</div>":             "7,25",
		"  4.00 ":                            "4.00",
		"3&#46;5":                            "3.5",
	}
	for in, want := range tests {
		if got := StripMarkup(in); got != want {
			t.Errorf("StripMarkup(%q) = %q, want %q", in, got, want)
		}
	}
}

type fixedOracle struct{ sessions int }

func (f fixedOracle) TradingSessionsBetween(from, to time.Time) int { return f.sessions }

func (f fixedOracle) WeekdayOfFirstOfMonth(year int, month time.Month) int {
	return (int(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()) + 6) % 7
}

func TestValueInstrument(t *testing.T) {
	prices := &stubPrices{price: d("10")}
	resolver := NewResolver(fixedOracle{sessions: 10}, fixedClock(2026, 2, 18, 10))
	v := NewValuator(NewParser(prices), resolver)

	raw := &models.RawChain{
		MaturityLabel: "Mar 2026",
		Calls:         rows(models.SideCall, [3]string{"11.00", "0.50", "0.60"}, [3]string{"12.00", "0.20", "0.30"}),
		Puts:          rows(models.SidePut, [3]string{"12.00", "2.30", "2.40"}, [3]string{"9.00", "0.10", "0.15"}),
	}
	records, err := v.ValueInstrument(context.Background(), raw, testInstrument)
	if err != nil {
		t.Fatalf("ValueInstrument() error: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}
	for _, r := range records {
		if r.DaysToMature != 10 {
			t.Errorf("DaysToMature = %d, want 10", r.DaysToMature)
		}
		if r.MaturityDate.Day() != 20 {
			t.Errorf("MaturityDate = %s, want the 20th", r.MaturityDate)
		}
	}
	if !records[0].YieldPerDay.Equal(d("0.005")) {
		t.Errorf("call yield per day = %s, want 0.005", records[0].YieldPerDay)
	}
	if !records[2].TimeValue.Equal(d("0.3")) {
		t.Errorf("put time value = %s, want 0.3", records[2].TimeValue)
	}

	raw.MaturityLabel = "someday"
	if _, err := v.ValueInstrument(context.Background(), raw, testInstrument); !errors.Is(err, ErrUnresolvableMaturity) {
		t.Errorf("bad label: error = %v, want ErrUnresolvableMaturity", err)
	}
}
