package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/seenimoa/optionyield/pkg/models"
	"github.com/seenimoa/optionyield/pkg/utils"
)

// Catalog lists the instruments eligible for valuation.
type Catalog interface {
	ListEligibleInstruments(ctx context.Context) ([]models.Instrument, error)
}

var (
	// ErrCatalog wraps catalog failures; no cycle is started.
	ErrCatalog = errors.New("instrument catalog unavailable")
	// ErrUnknownCodes is returned when a code filter names no eligible instrument.
	ErrUnknownCodes = errors.New("unknown instrument codes")
)

// Service holds the current refresh cycle and exposes its progress and results.
type Service struct {
	dispatcher  *Dispatcher
	catalog     Catalog
	concurrency int
	metrics     *Metrics
	logger      *slog.Logger

	mu      sync.RWMutex
	current *RefreshCycle
}

// NewService creates a service. concurrency is the default pool size used
// when a caller passes zero.
func NewService(dispatcher *Dispatcher, catalog Catalog, concurrency int) *Service {
	return &Service{
		dispatcher:  dispatcher,
		catalog:     catalog,
		concurrency: concurrency,
		metrics:     dispatcher.metrics,
		logger:      dispatcher.logger,
	}
}

// Instruments lists the eligible catalog.
func (s *Service) Instruments(ctx context.Context) ([]models.Instrument, error) {
	instruments, err := s.catalog.ListEligibleInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalog, err)
	}
	return instruments, nil
}

// Refresh loads the catalog, optionally restricts it to codes, and starts a
// cycle. Catalog failures and unknown codes are returned before any job runs.
func (s *Service) Refresh(ctx context.Context, concurrency int, codes []string) (*RefreshCycle, error) {
	instruments, err := s.Instruments(ctx)
	if err != nil {
		return nil, err
	}
	if len(codes) > 0 {
		instruments, err = selectCodes(instruments, codes)
		if err != nil {
			return nil, err
		}
	}
	return s.StartRefresh(ctx, instruments, concurrency), nil
}

// StartRefresh starts a cycle over instruments in the background and makes
// it current. The previous cycle, if any, is cancelled; its stragglers keep
// writing to their own table only. The cycle stops taking new jobs when ctx
// is cancelled.
func (s *Service) StartRefresh(ctx context.Context, instruments []models.Instrument, concurrency int) *RefreshCycle {
	if concurrency <= 0 {
		concurrency = s.concurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}

	cctx, cancel := context.WithCancel(ctx)
	cycle := newRefreshCycle(instruments, cancel)

	s.mu.Lock()
	prev := s.current
	s.current = cycle
	s.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	s.metrics.CyclesTotal.Inc()
	s.metrics.CycleInProgress.Inc()
	s.logger.Info("refresh cycle started", "cycle_id", cycle.ID, "total", cycle.Total(), "concurrency", concurrency)

	go func() {
		defer cancel()
		cycle.final = s.dispatcher.Run(cctx, instruments, concurrency, cycle.table, cycle.progress)
		s.metrics.CycleInProgress.Dec()
		s.logger.Info("refresh cycle finished",
			"cycle_id", cycle.ID,
			"total", cycle.Total(),
			"completed", cycle.final.CompletedCount,
			"records", cycle.table.Len(),
			"elapsed", time.Since(cycle.StartedAt).Round(time.Millisecond),
		)
		close(cycle.done)
	}()
	return cycle
}

// Current returns the current cycle, or nil before the first refresh.
func (s *Service) Current() *RefreshCycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// CurrentProgress returns the current cycle's progress. Before the first
// refresh it is the idle state.
func (s *Service) CurrentProgress() models.ProgressState {
	if c := s.Current(); c != nil {
		return c.Progress()
	}
	return models.ProgressState{Done: true}
}

// CurrentResults returns the current cycle's records sorted by key.
func (s *Service) CurrentResults(key models.SortKey) []models.ValuationRecord {
	if c := s.Current(); c != nil {
		return c.Results(key)
	}
	return []models.ValuationRecord{}
}

// Close cancels the current cycle and waits for it.
func (s *Service) Close() {
	if c := s.Current(); c != nil {
		c.Cancel()
		c.Wait()
	}
}

// selectCodes keeps the instruments named by codes, in the order given.
// Codes match case-insensitively; repeats select the instrument once.
func selectCodes(instruments []models.Instrument, codes []string) ([]models.Instrument, error) {
	byCode := make(map[string]models.Instrument, len(instruments))
	for _, inst := range instruments {
		byCode[utils.NormalizeCode(inst.Code)] = inst
	}

	var selected []models.Instrument
	var unknown []string
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		key := utils.NormalizeCode(code)
		if seen[key] {
			continue
		}
		seen[key] = true
		inst, ok := byCode[key]
		if !ok {
			unknown = append(unknown, code)
			continue
		}
		selected = append(selected, inst)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodes, strings.Join(unknown, ", "))
	}
	return selected, nil
}
