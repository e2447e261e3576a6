package datasource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/seenimoa/optionyield/internal/config"
	"github.com/seenimoa/optionyield/pkg/models"
	"github.com/seenimoa/optionyield/pkg/utils"
)

// ErrCatalogFormat is returned when the downloaded catalog lacks a required column.
var ErrCatalogFormat = errors.New("unexpected catalog format")

// Catalog column names.
const (
	colName           = "Instrument name"
	colCode           = "Code"
	colLocation       = "Location"
	colProductFamily  = "Product family"
	colUnderlyingCode = "Underlying code"
)

// catalogTTL bounds how long a downloaded catalog is reused in memory.
const catalogTTL = 6 * time.Hour

// Catalog lists the eligible option series from the Euronext derivatives
// contract download.
type Catalog struct {
	client        *Client
	url           string
	cacheFile     string
	location      string
	productFamily string
	includeWeekly bool
	cache         *Cache[[]models.Instrument]
	logger        *slog.Logger
}

// NewCatalog creates a catalog provider.
func NewCatalog(client *Client, cfg config.EuronextConfig, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		client:        client,
		url:           cfg.CatalogURL,
		cacheFile:     cfg.CatalogCacheFile,
		location:      cfg.Location,
		productFamily: cfg.ProductFamily,
		includeWeekly: cfg.IncludeWeekly,
		cache:         NewCache[[]models.Instrument](catalogTTL),
		logger:        logger,
	}
}

// ListEligibleInstruments returns the filtered catalog in download order.
func (c *Catalog) ListEligibleInstruments(ctx context.Context) ([]models.Instrument, error) {
	if instruments, ok := c.cache.Get(c.url); ok {
		return instruments, nil
	}

	raw, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	instruments, err := c.parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	c.logger.Info("catalog loaded", "instruments", len(instruments), "weekly", c.includeWeekly)
	c.cache.Set(c.url, instruments)
	return instruments, nil
}

// load returns the cached download when a cache file is configured and
// present, otherwise downloads and (optionally) stores it.
func (c *Catalog) load(ctx context.Context) ([]byte, error) {
	if c.cacheFile != "" {
		if data, err := os.ReadFile(c.cacheFile); err == nil {
			return data, nil
		}
	}

	data, err := c.client.Get(ctx, c.url, map[string]string{"Accept": "text/csv, */*"})
	if err != nil {
		return nil, fmt.Errorf("download catalog: %w", err)
	}

	if c.cacheFile != "" {
		if err := os.MkdirAll(filepath.Dir(c.cacheFile), 0o755); err != nil {
			c.logger.Warn("catalog cache not written", "file", c.cacheFile, "error", err)
		} else if err := os.WriteFile(c.cacheFile, data, 0o644); err != nil {
			c.logger.Warn("catalog cache not written", "file", c.cacheFile, "error", err)
		}
	}
	return data, nil
}

// parse reads the ';'-separated download. The first line is a title, the
// second the header.
func (c *Catalog) parse(r io.Reader) ([]models.Instrument, error) {
	br := bufio.NewReader(r)
	if _, err := br.ReadString('\n'); err != nil {
		return nil, fmt.Errorf("%w: missing title line", ErrCatalogFormat)
	}

	reader := csv.NewReader(br)
	reader.Comma = ';'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header: %v", ErrCatalogFormat, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{colName, colCode, colLocation, colProductFamily} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: no %q column", ErrCatalogFormat, required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	seen := make(map[string]bool)
	var instruments []models.Instrument
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogFormat, err)
		}

		name := field(rec, colName)
		code := field(rec, colCode)
		key := utils.NormalizeCode(code)
		if key == "" || seen[key] {
			continue
		}
		if field(rec, colLocation) != c.location || field(rec, colProductFamily) != c.productFamily {
			continue
		}
		if strings.Contains(name, "OLD") {
			continue
		}
		kind := models.PeriodKindFromName(name)
		if kind == models.PeriodWeek && !c.includeWeekly {
			continue
		}

		seen[key] = true
		instruments = append(instruments, models.Instrument{
			Code:         code,
			DisplayName:  name,
			UnderlyingID: field(rec, colUnderlyingCode),
			PeriodKind:   kind,
		})
	}
	return instruments, nil
}
