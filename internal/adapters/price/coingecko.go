package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/internal/adapters/config"
	"github.com/selivandex/price-tracker/pkg/logger"
	"github.com/selivandex/price-tracker/pkg/models"
)

const (
	providerName = "CoinGecko"

	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second

	// CoinGecko demo keys are sent in this header
	apiKeyHeader = "x-cg-demo-api-key"
)

// CoinGeckoFetcher implements Fetcher using the /coins/markets endpoint
type CoinGeckoFetcher struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	userAgent   string
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// marketRow is one element of the /coins/markets response
type marketRow struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Image        string          `json:"image"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// NewCoinGeckoFetcher creates new CoinGecko price fetcher
func NewCoinGeckoFetcher(cfg *config.CoinGeckoConfig) *CoinGeckoFetcher {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := cfg.BaseDelay
	if baseDelay < 0 {
		baseDelay = defaultBaseDelay
	}

	return &CoinGeckoFetcher{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		userAgent:   cfg.UserAgent,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepContext,
	}
}

func (cg *CoinGeckoFetcher) GetName() string {
	return providerName
}

// FetchPrices returns current USD quotes for all assets in one batch request
func (cg *CoinGeckoFetcher) FetchPrices(ctx context.Context, assets []models.Asset) (map[string]models.Quote, error) {
	requested := make(map[string]struct{}, len(assets))
	ids := make([]string, 0, len(assets))
	for _, asset := range assets {
		id := strings.ToLower(strings.TrimSpace(asset.ExternalID))
		if id == "" {
			continue
		}
		if _, ok := requested[id]; ok {
			continue
		}
		requested[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return map[string]models.Quote{}, nil
	}

	rows, err := cg.fetchWithRetry(ctx, ids)
	if err != nil {
		return nil, err
	}

	quotes := make(map[string]models.Quote, len(rows))
	for _, row := range rows {
		id := strings.ToLower(row.ID)
		if _, ok := requested[id]; !ok {
			logger.Warn("coingecko returned unrequested coin",
				zap.String("external_id", row.ID),
			)
			continue
		}
		if row.CurrentPrice.IsNegative() {
			logger.Warn("coingecko returned negative price, skipping",
				zap.String("external_id", row.ID),
				zap.String("price", row.CurrentPrice.String()),
			)
			continue
		}
		if row.LastUpdated.IsZero() {
			logger.Warn("coingecko row without last_updated, skipping",
				zap.String("external_id", row.ID),
			)
			continue
		}

		quotes[id] = models.Quote{
			Price:      row.CurrentPrice,
			ObservedAt: models.NormalizeTimestamp(row.LastUpdated),
			IconURL:    row.Image,
		}
	}

	logger.Debug("coingecko prices fetched",
		zap.Int("requested", len(ids)),
		zap.Int("returned", len(quotes)),
	)

	return quotes, nil
}

// fetchWithRetry calls the markets endpoint with exponential backoff retry
func (cg *CoinGeckoFetcher) fetchWithRetry(ctx context.Context, ids []string) ([]marketRow, error) {
	var lastErr *models.FetchError

	for attempt := 1; attempt <= cg.maxAttempts; attempt++ {
		if attempt > 1 {
			// Exponential backoff: base, 2*base, 4*base...
			backoff := cg.baseDelay * time.Duration(1<<(attempt-2))
			logger.Debug("retrying coingecko request",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", cg.maxAttempts),
				zap.Duration("backoff", backoff),
			)

			if err := cg.sleep(ctx, backoff); err != nil {
				lastErr.Attempts = attempt - 1
				lastErr.Err = fmt.Errorf("context canceled during retry backoff: %w (last error: %v)", err, lastErr.Err)
				lastErr.Retryable = false
				return nil, lastErr
			}
		}

		rows, err := cg.fetchOnce(ctx, ids)
		if err == nil {
			return rows, nil
		}

		var fe *models.FetchError
		if !errors.As(err, &fe) {
			fe = &models.FetchError{Source: providerName, Err: err}
		}
		fe.Attempts = attempt
		lastErr = fe

		if !fe.Retryable || ctx.Err() != nil {
			logger.Warn("non-retryable coingecko error, aborting",
				zap.Int("attempt", attempt),
				zap.Error(fe),
			)
			return nil, fe
		}

		logger.Warn("retryable coingecko error encountered",
			zap.Int("attempt", attempt),
			zap.Error(fe),
		)
	}

	return nil, lastErr
}

// fetchOnce performs a single request and classifies failures
func (cg *CoinGeckoFetcher) fetchOnce(ctx context.Context, ids []string) ([]marketRow, error) {
	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("ids", strings.Join(ids, ","))
	query.Set("price_change_percentage", "24h")
	endpoint := fmt.Sprintf("%s/coins/markets?%s", cg.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, &models.FetchError{Source: providerName, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	// CoinGecko refuses requests without User-Agent
	req.Header.Set("User-Agent", cg.userAgent)
	req.Header.Set("Accept", "application/json")
	if cg.apiKey != "" {
		req.Header.Set(apiKeyHeader, cg.apiKey)
	}

	resp, err := cg.client.Do(req)
	if err != nil {
		return nil, &models.FetchError{
			Source:    providerName,
			Retryable: isRetryableTransportError(ctx, err),
			Err:       fmt.Errorf("request failed: %w", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &models.FetchError{
			Source:     providerName,
			StatusCode: resp.StatusCode,
			Retryable:  isRetryableStatus(resp.StatusCode),
			Err:        fmt.Errorf("API error: %s", strings.TrimSpace(string(body))),
		}
	}

	var rows []marketRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, &models.FetchError{
			Source:     providerName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}

	return rows, nil
}

// isRetryableStatus treats 5xx, 408 and 429 as transient
func isRetryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// isRetryableTransportError treats network failures as transient unless the caller gave up
func isRetryableTransportError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
