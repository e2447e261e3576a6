package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/seenimoa/optionyield/internal/config"
	"github.com/seenimoa/optionyield/internal/pipeline"
	"github.com/seenimoa/optionyield/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

type stubFetcher struct{}

func (stubFetcher) FetchRawChain(ctx context.Context, code string) (*models.RawChain, error) {
	return &models.RawChain{MaturityLabel: "Mar 2026"}, nil
}

// stubValuator emits a call and a put per instrument. The call yield grows
// with the instrument's position in the catalog; the put yield shrinks.
type stubValuator struct{}

func (stubValuator) ValueInstrument(ctx context.Context, raw *models.RawChain, inst models.Instrument) ([]models.ValuationRecord, error) {
	n := int64(inst.Code[len(inst.Code)-1] - '0')
	call := decimal.NewFromInt(n).Div(decimal.NewFromInt(100))
	put := decimal.NewFromInt(10 - n).Div(decimal.NewFromInt(1000))
	return []models.ValuationRecord{
		{InstrumentDisplay: inst.ShortLabel(), Code: inst.Code, Side: models.SideCall, DaysToMature: 5, YieldPerSpot: call, YieldPerDay: call.Div(decimal.NewFromInt(5))},
		{InstrumentDisplay: inst.ShortLabel(), Code: inst.Code, Side: models.SidePut, DaysToMature: 1, YieldPerSpot: put, YieldPerDay: put},
	}, nil
}

type stubCatalog struct {
	instruments []models.Instrument
	err         error
}

func (c stubCatalog) ListEligibleInstruments(ctx context.Context) ([]models.Instrument, error) {
	return c.instruments, c.err
}

func testInstruments() []models.Instrument {
	return []models.Instrument{
		{Code: "AS1", DisplayName: "ASML Holding", PeriodKind: models.PeriodMonth},
		{Code: "AH2", DisplayName: "Ahold Delhaize", PeriodKind: models.PeriodMonth},
		{Code: "IN3", DisplayName: "ING Groep", PeriodKind: models.PeriodMonth},
	}
}

func testServerWith(t *testing.T, catalog pipeline.Catalog) (*Server, *pipeline.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := pipeline.NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	svc := pipeline.NewService(pipeline.NewDispatcher(stubFetcher{}, stubValuator{}, metrics, logger), catalog, 2)
	t.Cleanup(svc.Close)

	cfg := &config.Config{
		Refresh: config.RefreshConfig{Concurrency: 2, SortKey: "yield_per_spot"},
		API:     config.APIConfig{CORSOrigins: []string{"*"}, ProgressIntervalMS: 20},
		Logging: config.LoggingConfig{Level: "info"},
	}
	srv := NewServer(Options{Config: cfg, Service: svc, Gatherer: reg, Logger: logger, Version: "test"})
	return srv, svc
}

func testServer(t *testing.T) (*Server, *pipeline.Service) {
	return testServerWith(t, stubCatalog{instruments: testInstruments()})
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

// envelope decodes the standard response, leaving Data raw.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return env
}

func refreshAndWait(t *testing.T, srv *Server, svc *pipeline.Service, body string) RefreshResponse {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/v1/refresh", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("refresh status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	var resp RefreshResponse
	decodeResponse(t, rec, &resp)

	select {
	case <-svc.Current().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("refresh cycle did not finish")
	}
	return resp
}

// ── Health Tests ──

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t)
	rec := do(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var data map[string]interface{}
	env := decodeResponse(t, rec, &data)
	if !env.Success {
		t.Error("expected success")
	}
	if data["status"] != "ok" || data["version"] != "test" {
		t.Errorf("unexpected health data: %v", data)
	}
	for _, key := range []string{"market_status", "time_ams"} {
		if _, ok := data[key]; !ok {
			t.Errorf("missing %q in health data", key)
		}
	}
}

// ── Refresh Tests ──

func TestRefreshFlow(t *testing.T) {
	srv, svc := testServer(t)

	started := refreshAndWait(t, srv, svc, "")
	if started.Total != 3 || started.CycleID == "" {
		t.Fatalf("refresh response = %+v", started)
	}

	rec := do(t, srv, http.MethodGet, "/api/v1/progress", "")
	var progress ProgressResponse
	decodeResponse(t, rec, &progress)
	if !progress.Done || progress.CompletedCount != 3 || progress.TotalCount != 3 {
		t.Errorf("progress = %+v, want 3/3 done", progress)
	}
	if progress.CycleID != started.CycleID {
		t.Errorf("progress cycle = %q, want %q", progress.CycleID, started.CycleID)
	}
	if progress.Fraction != 1 || progress.Status != "" {
		t.Errorf("fraction/status = %v/%q", progress.Fraction, progress.Status)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/results", "")
	var results ResultsResponse
	decodeResponse(t, rec, &results)
	if results.Count != 6 || results.Total != 6 || results.Sort != models.SortByYieldPerSpot {
		t.Fatalf("results = %d/%d sorted by %s", results.Count, results.Total, results.Sort)
	}
	if first := results.Records[0]; first.Code != "IN3" || first.Side != models.SideCall {
		t.Errorf("top record = %s/%s, want IN3/call", first.Code, first.Side)
	}
	for i := 1; i < len(results.Records); i++ {
		if results.Records[i].YieldPerSpot.GreaterThan(results.Records[i-1].YieldPerSpot) {
			t.Errorf("records not descending at %d", i)
		}
	}
}

func TestResultsQueryParameters(t *testing.T) {
	srv, svc := testServer(t)
	refreshAndWait(t, srv, svc, `{"concurrency": 1}`)

	tests := []struct {
		name      string
		query     string
		wantCount int
		wantTotal int
		wantFirst string
	}{
		{"by day", "?sort=yield_per_day", 6, 6, "AS1/put"},
		{"puts only", "?side=put", 3, 3, "AS1/put"},
		{"limited", "?limit=2", 2, 6, "IN3/call"},
		{"calls by day limited", "?sort=day&side=call&limit=1", 1, 3, "IN3/call"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/api/v1/results"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var results ResultsResponse
			decodeResponse(t, rec, &results)
			if results.Count != tt.wantCount || results.Total != tt.wantTotal {
				t.Errorf("count/total = %d/%d, want %d/%d", results.Count, results.Total, tt.wantCount, tt.wantTotal)
			}
			first := results.Records[0]
			if got := first.Code + "/" + string(first.Side); got != tt.wantFirst {
				t.Errorf("first record = %s, want %s", got, tt.wantFirst)
			}
		})
	}
}

func TestResultsInvalidParameters(t *testing.T) {
	srv, _ := testServer(t)
	for _, query := range []string{"?sort=volume", "?side=straddle", "?limit=-1", "?limit=ten"} {
		rec := do(t, srv, http.MethodGet, "/api/v1/results"+query, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", query, rec.Code)
		}
		if env := decodeResponse(t, rec, nil); env.Success || env.Error == "" {
			t.Errorf("%s: expected error envelope", query)
		}
	}
}

func TestResultsBeforeFirstRefresh(t *testing.T) {
	srv, _ := testServer(t)
	rec := do(t, srv, http.MethodGet, "/api/v1/results", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var results ResultsResponse
	decodeResponse(t, rec, &results)
	if results.Count != 0 || results.CycleID != "" {
		t.Errorf("idle results = %+v", results)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/progress", "")
	var progress ProgressResponse
	decodeResponse(t, rec, &progress)
	if !progress.Done || progress.TotalCount != 0 {
		t.Errorf("idle progress = %+v", progress)
	}
}

func TestRefreshSelectedCodes(t *testing.T) {
	srv, svc := testServer(t)
	started := refreshAndWait(t, srv, svc, `{"codes": ["ah2", "IN3"]}`)
	if started.Total != 2 {
		t.Errorf("total = %d, want 2", started.Total)
	}
}

func TestRefreshErrors(t *testing.T) {
	tests := []struct {
		name    string
		catalog stubCatalog
		body    string
		want    int
	}{
		{"unknown code", stubCatalog{instruments: testInstruments()}, `{"codes": ["NOPE"]}`, http.StatusBadRequest},
		{"malformed body", stubCatalog{instruments: testInstruments()}, `{"codes":`, http.StatusBadRequest},
		{"negative concurrency", stubCatalog{instruments: testInstruments()}, `{"concurrency": -2}`, http.StatusBadRequest},
		{"catalog down", stubCatalog{err: errors.New("503 Service Unavailable")}, "", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, svc := testServerWith(t, tt.catalog)
			rec := do(t, srv, http.MethodPost, "/api/v1/refresh", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if svc.Current() != nil {
				t.Error("no cycle should have started")
			}
		})
	}
}

// ── Instruments and Config Tests ──

func TestHandleInstruments(t *testing.T) {
	srv, _ := testServer(t)
	rec := do(t, srv, http.MethodGet, "/api/v1/instruments", "")
	var instruments []models.Instrument
	decodeResponse(t, rec, &instruments)
	if rec.Code != http.StatusOK || len(instruments) != 3 {
		t.Errorf("status %d with %d instruments", rec.Code, len(instruments))
	}

	srv, _ = testServerWith(t, stubCatalog{err: errors.New("timeout")})
	rec = do(t, srv, http.MethodGet, "/api/v1/instruments", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHandleGetConfig(t *testing.T) {
	srv, _ := testServer(t)
	rec := do(t, srv, http.MethodGet, "/api/v1/config", "")
	var resp ConfigResponse
	decodeResponse(t, rec, &resp)
	if rec.Code != http.StatusOK || len(resp.Settings) == 0 {
		t.Fatalf("status %d with %d settings", rec.Code, len(resp.Settings))
	}
	found := false
	for _, s := range resp.Settings {
		if s.Key == "refresh.concurrency" {
			found = true
			if s.Value != "2" {
				t.Errorf("refresh.concurrency = %q, want 2", s.Value)
			}
		}
	}
	if !found {
		t.Error("refresh.concurrency missing from settings")
	}
}

// ── Middleware Tests ──

func TestZstdCompression(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip, zstd")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "zstd" {
		t.Fatalf("Content-Encoding = %q, want zstd", got)
	}
	dec, err := zstd.NewReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("zstd.NewReader() error: %v", err)
	}
	defer dec.Close()
	body, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("decompressed body = %s", body)
	}

	plain := do(t, srv, http.MethodGet, "/health", "")
	if plain.Header().Get("Content-Encoding") != "" {
		t.Error("response compressed without Accept-Encoding")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, svc := testServer(t)
	refreshAndWait(t, srv, svc, "")

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	body := rec.Body.String()
	for _, want := range []string{"optionyield_cycles_total 1", `optionyield_jobs_total{outcome="ok"} 3`, "optionyield_records_total 6"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCORSCredentials(t *testing.T) {
	tests := []struct {
		name            string
		origins         []string
		wantCredentials string
	}{
		{"wildcard origin", []string{"*"}, ""},
		{"wildcard among explicit", []string{"http://localhost:3000", "*"}, ""},
		{"explicit origin", []string{"http://localhost:3000"}, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := corsOptions(tt.origins).AllowCredentials; got != (tt.wantCredentials == "true") {
				t.Errorf("AllowCredentials = %v", got)
			}

			srv, _ := testServer(t)
			srv.cfg.API.CORSOrigins = tt.origins
			router := srv.buildRouter()

			req := httptest.NewRequest(http.MethodOptions, "/api/v1/refresh", nil)
			req.Header.Set("Origin", "http://localhost:3000")
			req.Header.Set("Access-Control-Request-Method", "POST")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredentials {
				t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, tt.wantCredentials)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/refresh", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("missing Access-Control-Allow-Origin on preflight")
	}
}

// ── WebSocket Tests ──

func TestWebSocketProgress(t *testing.T) {
	srv, svc := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.wsHub.Run(ctx)
	go srv.pushProgress(ctx, 20*time.Millisecond)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if msg.Type != "progress" {
		t.Fatalf("first message type = %q, want progress", msg.Type)
	}

	refreshAndWait(t, srv, svc, "")
	for {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for refresh_finished: %v", err)
		}
		if msg.Type == "refresh_finished" {
			break
		}
	}
	data, _ := json.Marshal(msg.Data)
	var p ProgressResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if p.CompletedCount != 3 || !p.Done {
		t.Errorf("final progress = %+v", p)
	}
}

func TestWSHubBroadcast(t *testing.T) {
	hub := NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := &WSClient{hub: hub, send: make(chan WSMessage, 4)}
	if !hub.Register(client) {
		t.Fatal("Register() = false on a running hub")
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	hub.Broadcast(WSMessage{Type: "progress"})
	select {
	case msg := <-client.send:
		if msg.Type != "progress" {
			t.Errorf("message type = %q", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}

	cancel()
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected send channel closed after hub stop")
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not close client channels on stop")
	}
	if hub.Register(&WSClient{hub: hub, send: make(chan WSMessage, 1)}) {
		t.Error("Register() = true on a stopped hub")
	}
}

func TestWSHubReply(t *testing.T) {
	hub := NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{hub: hub, send: make(chan WSMessage, 1)}
	hub.Register(client)
	if !hub.Reply(client, WSMessage{Type: "pong"}) {
		t.Fatal("Reply() = false on a running hub")
	}
	select {
	case msg := <-client.send:
		if msg.Type != "pong" {
			t.Errorf("reply type = %q, want pong", msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("reply not delivered")
	}
}

// A client whose buffer is full is dropped by a broadcast while replies for
// it are still being queued; replies must then be discarded, not sent.
func TestWSHubReplyAfterSlowClientDropped(t *testing.T) {
	hub := NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{hub: hub, send: make(chan WSMessage)} // never drained
	hub.Register(client)

	replies := make(chan struct{})
	go func() {
		defer close(replies)
		for i := 0; i < 200; i++ {
			hub.Reply(client, WSMessage{Type: "pong"})
		}
	}()
	hub.Broadcast(WSMessage{Type: "progress"})
	<-replies

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was not dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := <-client.send; ok {
		t.Error("expected send channel closed for dropped client")
	}
}
