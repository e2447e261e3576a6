package valuation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/optionyield/pkg/models"
)

// CallTimeValue is the extrinsic part of a call's bid: the full bid when
// out of the money (spot < strike), otherwise bid minus intrinsic value.
func CallTimeValue(spot, strike, bid decimal.Decimal) decimal.Decimal {
	if spot.LessThan(strike) {
		return bid
	}
	return bid.Sub(spot.Sub(strike))
}

// PutTimeValue is the extrinsic part of a put's bid: the full bid when
// out of the money (spot > strike), otherwise bid minus intrinsic value.
func PutTimeValue(spot, strike, bid decimal.Decimal) decimal.Decimal {
	if spot.GreaterThan(strike) {
		return bid
	}
	return bid.Sub(strike.Sub(spot))
}

// TimeValue applies the formula matching side.
func TimeValue(side models.Side, spot, strike, bid decimal.Decimal) decimal.Decimal {
	if side == models.SidePut {
		return PutTimeValue(spot, strike, bid)
	}
	return CallTimeValue(spot, strike, bid)
}

// Value computes the valuation record of one quote. Results keep full
// precision; rounding belongs to presentation.
func Value(q models.OptionQuote, spot decimal.Decimal, m models.Maturity) (models.ValuationRecord, error) {
	if m.DaysToMature < 1 {
		return models.ValuationRecord{}, fmt.Errorf("%w: %d days", ErrNoSessions, m.DaysToMature)
	}
	if !spot.IsPositive() {
		return models.ValuationRecord{}, fmt.Errorf("%w: non-positive price %s", ErrNoSpotPrice, spot)
	}

	tv := TimeValue(q.Side, spot, q.Strike, q.Bid)
	perSpot := tv.Div(spot)
	perDay := perSpot.Div(decimal.NewFromInt(int64(m.DaysToMature)))

	return models.ValuationRecord{
		InstrumentDisplay: q.Instrument.ShortLabel(),
		Code:              q.Instrument.Code,
		MaturityDate:      m.Date,
		DaysToMature:      m.DaysToMature,
		PeriodKind:        q.Instrument.PeriodKind,
		SpotPrice:         spot,
		Strike:            q.Strike,
		Bid:               q.Bid,
		Ask:               q.Ask,
		Side:              q.Side,
		TimeValue:         tv,
		YieldPerSpot:      perSpot,
		YieldPerDay:       perDay,
	}, nil
}

// ValueChain values every quote of a parsed chain against one maturity.
func ValueChain(c *Chain, m models.Maturity) ([]models.ValuationRecord, error) {
	records := make([]models.ValuationRecord, 0, len(c.Quotes))
	for _, q := range c.Quotes {
		rec, err := Value(q, c.SpotPrice, m)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
