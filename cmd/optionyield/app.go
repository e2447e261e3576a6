package main

import (
	"fmt"
	"log/slog"

	"github.com/seenimoa/optionyield/internal/calendar"
	"github.com/seenimoa/optionyield/internal/config"
	"github.com/seenimoa/optionyield/internal/datasource"
	"github.com/seenimoa/optionyield/internal/pipeline"
	"github.com/seenimoa/optionyield/internal/valuation"
	"github.com/seenimoa/optionyield/pkg/utils"
)

// app holds the wired pipeline.
type app struct {
	metrics *pipeline.Metrics
	service *pipeline.Service
}

// newApp wires calendar, Euronext sources, valuation and the refresh service.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	cal, err := calendar.NewEuronext(cfg.Calendar.ExtraClosures)
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}

	client := datasource.NewClient(cfg.Euronext, logger)
	euronext := datasource.NewEuronext(client, cfg.Euronext, logger)
	catalog := datasource.NewCatalog(client, cfg.Euronext, logger)

	valuator := valuation.NewValuator(
		valuation.NewParser(euronext),
		valuation.NewResolver(cal, utils.NowAMS),
	)

	metrics := pipeline.NewMetrics()
	dispatcher := pipeline.NewDispatcher(euronext, valuator, metrics, logger)
	return &app{
		metrics: metrics,
		service: pipeline.NewService(dispatcher, catalog, cfg.Refresh.Concurrency),
	}, nil
}
