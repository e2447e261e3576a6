package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/seenimoa/optionyield/internal/config"
	"github.com/seenimoa/optionyield/internal/valuation"
	"github.com/seenimoa/optionyield/pkg/models"
)

// Euronext fetches option chains and spot prices from live.euronext.com.
type Euronext struct {
	client  *Client
	baseURL string
	mic     string
	spots   *Cache[decimal.Decimal]
	logger  *slog.Logger
}

// NewEuronext creates the chain and spot-price source.
func NewEuronext(client *Client, cfg config.EuronextConfig, logger *slog.Logger) *Euronext {
	if logger == nil {
		logger = slog.Default()
	}
	return &Euronext{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		mic:     cfg.MIC,
		spots:   NewCache[decimal.Decimal](cfg.SpotCacheTTL),
		logger:  logger,
	}
}

// chainDocument is the getPricesOptionsAjax response. Only the first
// extended block is used: it holds the nearest maturity.
type chainDocument struct {
	Extended []*chainBlock `json:"extended"`
}

type chainBlock struct {
	MaturityDate flexString `json:"maturityDate"`
	Calls        []chainRow `json:"rowc"`
	Puts         []chainRow `json:"rowp"`
}

type chainRow struct {
	Strike  flexString `json:"strike"`
	BestBid flexString `json:"best_bid"`
	BestAsk flexString `json:"best_ask"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(data)
	}
	return nil
}

// FetchRawChain downloads the option chain of one instrument. It returns
// nil, nil when the exchange has no chain for the code.
func (e *Euronext) FetchRawChain(ctx context.Context, code string) (*models.RawChain, error) {
	u := fmt.Sprintf("%s/nl/ajax/getPricesOptionsAjax/stock-options/%s/%s",
		e.baseURL, url.PathEscape(code), url.PathEscape(e.mic))

	body, err := e.client.Post(ctx, u, map[string]string{
		"Accept":           "application/json",
		"X-Requested-With": "XMLHttpRequest",
	})
	if err != nil {
		return nil, fmt.Errorf("fetch chain %s: %w", code, err)
	}
	return decodeChain(body)
}

func decodeChain(body []byte) (*models.RawChain, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var doc chainDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode chain: %w", err)
	}
	if len(doc.Extended) == 0 || doc.Extended[0] == nil {
		return nil, nil
	}

	block := doc.Extended[0]
	return &models.RawChain{
		MaturityLabel: string(block.MaturityDate),
		Calls:         toRawRows(block.Calls, models.SideCall),
		Puts:          toRawRows(block.Puts, models.SidePut),
	}, nil
}

func toRawRows(rows []chainRow, side models.Side) []models.RawOptionRow {
	out := make([]models.RawOptionRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.RawOptionRow{
			Side:   side,
			Strike: string(r.Strike),
			Bid:    string(r.BestBid),
			Ask:    string(r.BestAsk),
		})
	}
	return out
}

// lastPriceCell is the position of the last price among the page's
// ".data-13" cells.
const lastPriceCell = 7

// FetchLatestPrice returns the last traded price of the instrument's
// underlying, cached for the configured TTL.
func (e *Euronext) FetchLatestPrice(ctx context.Context, inst models.Instrument) (decimal.Decimal, error) {
	id := inst.PriceID()
	if price, ok := e.spots.Get(id); ok {
		return price, nil
	}

	u := fmt.Sprintf("%s/en/ajax/getUnderlying/%s/%s/options",
		e.baseURL, url.PathEscape(id), url.PathEscape(e.mic))
	body, err := e.client.Get(ctx, u, map[string]string{"Accept": "text/html"})
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch spot %s: %w", id, err)
	}

	price, err := parseLastPrice(body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("spot %s: %w", id, err)
	}
	e.spots.Set(id, price)
	e.logger.Debug("spot price fetched", "code", inst.Code, "price", price.String())
	return price, nil
}

func parseLastPrice(body []byte) (decimal.Decimal, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse HTML: %w", err)
	}
	cells := doc.Find(".data-13")
	if cells.Length() <= lastPriceCell {
		return decimal.Zero, fmt.Errorf("%w: %d price cells", ErrNoPrice, cells.Length())
	}
	text := strings.TrimSpace(cells.Eq(lastPriceCell).Text())
	price, err := valuation.ParseNumber(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNoPrice, text)
	}
	return price, nil
}
