// Package pipeline runs refresh cycles: a bounded pool of workers fetches
// and values one instrument per job and accumulates the records into a
// per-cycle result table while reporting progress.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/optionyield/internal/valuation"
	"github.com/seenimoa/optionyield/pkg/models"
)

// ChainFetcher downloads one instrument's raw option chain. A nil chain with
// a nil error means the source had nothing for the instrument.
type ChainFetcher interface {
	FetchRawChain(ctx context.Context, code string) (*models.RawChain, error)
}

// InstrumentValuator turns a raw chain into valuation records or a skip error.
type InstrumentValuator interface {
	ValueInstrument(ctx context.Context, raw *models.RawChain, inst models.Instrument) ([]models.ValuationRecord, error)
}

// Dispatcher owns the worker pool.
type Dispatcher struct {
	fetcher  ChainFetcher
	valuator InstrumentValuator
	metrics  *Metrics
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. Nil metrics or logger get defaults.
func NewDispatcher(fetcher ChainFetcher, valuator InstrumentValuator, metrics *Metrics, logger *slog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		fetcher:  fetcher,
		valuator: valuator,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run processes every instrument with exactly concurrency workers (at least
// one) and returns once the queue is drained or ctx is cancelled. Job
// failures never escape: a skipped instrument adds no records and still
// counts as completed. Cancelling ctx stops workers from taking new jobs;
// jobs already running finish.
func (d *Dispatcher) Run(ctx context.Context, instruments []models.Instrument, concurrency int, table *ResultTable, progress *Reporter) models.ProgressState {
	if concurrency < 1 {
		concurrency = 1
	}

	jobs := make(chan models.Instrument, len(instruments))
	for _, inst := range instruments {
		jobs <- inst
	}
	close(jobs)

	var g errgroup.Group
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				inst, ok := <-jobs
				if !ok {
					return nil
				}
				d.runJob(context.WithoutCancel(ctx), inst, table, progress)
			}
		})
	}
	_ = g.Wait()

	return progress.Finish()
}

func (d *Dispatcher) runJob(ctx context.Context, inst models.Instrument, table *ResultTable, progress *Reporter) {
	start := time.Now()

	records, err := d.valueInstrument(ctx, inst)
	if err == nil {
		table.Append(records)
	}
	progress.Completed(inst.ShortLabel())

	reason := valuation.SkipReason(err)
	d.metrics.observeJob(reason, len(records), time.Since(start))
	if err != nil {
		d.logger.Debug("instrument skipped", "code", inst.Code, "reason", reason, "error", err)
	}
}

func (d *Dispatcher) valueInstrument(ctx context.Context, inst models.Instrument) (records []models.ValuationRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("panic valuing %s: %v", inst.Code, r)
		}
	}()

	raw, err := d.fetcher.FetchRawChain(ctx, inst.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", valuation.ErrFetch, err)
	}
	return d.valuator.ValueInstrument(ctx, raw, inst)
}
