package valuation

import (
	"context"

	"github.com/seenimoa/optionyield/pkg/models"
)

// Valuator runs the per-instrument stages in order: parse, resolve, value.
type Valuator struct {
	parser   *Parser
	resolver *Resolver
}

// NewValuator composes a parser and a resolver.
func NewValuator(parser *Parser, resolver *Resolver) *Valuator {
	return &Valuator{parser: parser, resolver: resolver}
}

// ValueInstrument produces all records for one instrument's raw chain, or a
// skip error. It never returns a partial batch.
func (v *Valuator) ValueInstrument(ctx context.Context, raw *models.RawChain, inst models.Instrument) ([]models.ValuationRecord, error) {
	chain, err := v.parser.Parse(ctx, raw, inst)
	if err != nil {
		return nil, err
	}
	maturity, err := v.resolver.Resolve(chain.MaturityLabel, inst.PeriodKind)
	if err != nil {
		return nil, err
	}
	return ValueChain(chain, maturity)
}
