package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/selivandex/price-tracker/internal/health"
	"github.com/selivandex/price-tracker/pkg/models"
)

type stubUpdater struct {
	result models.UpdateResult
	calls  int
}

func (u *stubUpdater) RunUpdate(ctx context.Context) models.UpdateResult {
	u.calls++
	return u.result
}

type stubProjector struct {
	latest     []models.LatestPrice
	history    []models.HistoryPoint
	err        error
	gotSymbol  string
	gotDays    int
	panicOnGet bool
}

func (p *stubProjector) GetLatestPrices(ctx context.Context) ([]models.LatestPrice, error) {
	if p.panicOnGet {
		panic("boom")
	}
	return p.latest, p.err
}

func (p *stubProjector) GetHistory(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	p.gotSymbol = symbol
	p.gotDays = days
	return p.history, p.err
}

func newTestServer(u *stubUpdater, p *stubProjector) http.Handler {
	return NewServer("0", u, p, health.NewChecker()).Handler()
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestUpdatePrices(t *testing.T) {
	u := &stubUpdater{result: models.UpdateResult{Success: true, Inserted: 2}}
	h := newTestServer(u, &stubProjector{})

	rec := do(t, h, http.MethodPost, "/api/crypto/update-prices")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body updateResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if body.Updated != 2 || body.Message != "Prices updated." {
		t.Errorf("Unexpected body %+v", body)
	}
}

func TestUpdatePrices_Failure(t *testing.T) {
	u := &stubUpdater{result: models.FailedUpdate(errors.New("failed to fetch prices: status 503"))}
	h := newTestServer(u, &stubProjector{})

	rec := do(t, h, http.MethodPost, "/api/crypto/update-prices")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "status 503") {
		t.Errorf("Expected error message in body, got %s", rec.Body.String())
	}
}

func TestUpdatePrices_RequiresPost(t *testing.T) {
	u := &stubUpdater{}
	h := newTestServer(u, &stubProjector{})

	rec := do(t, h, http.MethodGet, "/api/crypto/update-prices")

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
	if u.calls != 0 {
		t.Error("Update must not run on GET")
	}
}

func TestLatestPrices(t *testing.T) {
	decimal.MarshalJSONWithoutQuotes = true
	defer func() { decimal.MarshalJSONWithoutQuotes = false }()

	pct := decimal.RequireFromString("10.00")
	p := &stubProjector{latest: []models.LatestPrice{
		{
			Name:          "Bitcoin",
			Symbol:        "BTC",
			Price:         decimal.RequireFromString("110"),
			Currency:      models.CurrencyUSD,
			IconURL:       "https://img",
			TimestampUTC:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			Trend:         models.TrendUp,
			PercentChange: &pct,
		},
		{
			Name:         "Ethereum",
			Symbol:       "ETH",
			Price:        decimal.Zero,
			Currency:     models.CurrencyUSD,
			TimestampUTC: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			Trend:        models.TrendNeutral,
		},
	}}
	h := newTestServer(&stubUpdater{}, p)

	rec := do(t, h, http.MethodGet, "/api/crypto/latest-prices")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body []map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(body))
	}
	if body[0]["symbol"] != "BTC" || body[0]["trend"] != "up" || body[0]["percentageChange"] != 10.0 {
		t.Errorf("Unexpected BTC entry %v", body[0])
	}
	if body[0]["timestampUtc"] != "2025-03-01T12:00:00Z" {
		t.Errorf("Expected UTC ISO timestamp, got %v", body[0]["timestampUtc"])
	}
	if v, ok := body[1]["percentageChange"]; !ok || v != nil {
		t.Errorf("Expected explicit null percent change, got %v", v)
	}
}

func TestLatestPrices_Failure(t *testing.T) {
	h := newTestServer(&stubUpdater{}, &stubProjector{err: errors.New("connection reset")})

	rec := do(t, h, http.MethodGet, "/api/crypto/latest-prices")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("Storage details must not leak to clients")
	}
}

func TestHistory(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		err        error
		wantStatus int
		wantDays   int
	}{
		{"explicit days", "/api/crypto/history/btc?days=7", nil, http.StatusOK, 7},
		{"default days", "/api/crypto/history/btc", nil, http.StatusOK, 0},
		{"bad days", "/api/crypto/history/btc?days=week", nil, http.StatusBadRequest, 0},
		{"unknown symbol", "/api/crypto/history/doge", models.ErrAssetNotFound, http.StatusNotFound, 0},
		{"storage failure", "/api/crypto/history/btc", errors.New("timeout"), http.StatusInternalServerError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubProjector{
				err: tt.err,
				history: []models.HistoryPoint{
					{TimestampUTC: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Price: decimal.NewFromInt(100)},
				},
			}
			h := newTestServer(&stubUpdater{}, p)

			rec := do(t, h, http.MethodGet, tt.target)

			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				if p.gotDays != tt.wantDays || p.gotSymbol != "btc" {
					t.Errorf("Expected symbol btc days %d, got %s %d", tt.wantDays, p.gotSymbol, p.gotDays)
				}
				if !strings.Contains(rec.Body.String(), `"dateUtc":"2025-03-01T00:00:00Z"`) {
					t.Errorf("Unexpected body %s", rec.Body.String())
				}
			}
		})
	}
}

func TestRecoversFromPanic(t *testing.T) {
	h := newTestServer(&stubUpdater{}, &stubProjector{panicOnGet: true})

	rec := do(t, h, http.MethodGet, "/api/crypto/latest-prices")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 after panic, got %d", rec.Code)
	}
}

func TestHealthRoutes(t *testing.T) {
	h := newTestServer(&stubUpdater{}, &stubProjector{})

	if rec := do(t, h, http.MethodGet, "/health"); rec.Code != http.StatusOK {
		t.Errorf("Expected /health 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected /ready 503 before startup completes, got %d", rec.Code)
	}
}
