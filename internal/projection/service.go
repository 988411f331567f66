package projection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/pkg/logger"
	"github.com/selivandex/price-tracker/pkg/models"
)

const (
	// DefaultHistoryDays is used when caller asks for a non-positive window
	DefaultHistoryDays = 30

	// MaxHistoryDays caps the window so the cutoff stays within timestamptz range
	MaxHistoryDays = 36500
)

// AssetReader is the registry view needed for projections
type AssetReader interface {
	ListAssets(ctx context.Context) ([]models.Asset, error)
	GetBySymbol(ctx context.Context, symbol string) (*models.Asset, error)
}

// HistoryReader is the observation view needed for projections
type HistoryReader interface {
	LatestTwo(ctx context.Context, assetIDs []int64) (map[int64][]models.PriceObservation, error)
	History(ctx context.Context, assetID int64, since time.Time) ([]models.PriceObservation, error)
}

// ViewCache stores the rendered latest-price list between updates.
// A view set under a generation older than the current one is never served.
type ViewCache interface {
	Generation(ctx context.Context) (int64, error)
	GetLatest(ctx context.Context) ([]models.LatestPrice, bool, error)
	SetLatest(ctx context.Context, generation int64, prices []models.LatestPrice) error
}

// Service derives read views from the registry and stored history
type Service struct {
	assets  AssetReader
	history HistoryReader
	cache   ViewCache
	now     func() time.Time
}

// Option configures optional service collaborators
type Option func(*Service)

// WithCache enables latest-price view caching
func WithCache(c ViewCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates new projection service
func NewService(assets AssetReader, history HistoryReader, opts ...Option) *Service {
	s := &Service{
		assets:  assets,
		history: history,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetLatestPrices returns one entry per registered asset, in registry order
func (s *Service) GetLatestPrices(ctx context.Context) ([]models.LatestPrice, error) {
	// Generation is taken before reading storage so an update landing
	// in between invalidates this fill
	fill := false
	var generation int64
	if s.cache != nil {
		cached, ok, err := s.cache.GetLatest(ctx)
		if err != nil {
			logger.Warn("latest prices cache read failed", zap.Error(err))
		} else if ok {
			return cached, nil
		}

		generation, err = s.cache.Generation(ctx)
		if err != nil {
			logger.Warn("latest prices cache generation read failed", zap.Error(err))
		} else {
			fill = true
		}
	}

	assets, err := s.assets.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}

	ids := make([]int64, 0, len(assets))
	for _, a := range assets {
		ids = append(ids, a.ID)
	}

	recent, err := s.history.LatestTwo(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest observations: %w", err)
	}

	now := s.now().UTC()
	result := make([]models.LatestPrice, 0, len(assets))
	for _, asset := range assets {
		result = append(result, latestView(asset, recent[asset.ID], now))
	}

	if fill {
		if err := s.cache.SetLatest(ctx, generation, result); err != nil {
			logger.Warn("latest prices cache write failed", zap.Error(err))
		}
	}

	return result, nil
}

// latestView builds the view from observations ordered newest first
func latestView(asset models.Asset, recent []models.PriceObservation, now time.Time) models.LatestPrice {
	view := models.LatestPrice{
		Name:     asset.Name,
		Symbol:   asset.Symbol,
		Currency: models.CurrencyUSD,
		IconURL:  asset.Icon(),
		Trend:    models.TrendNeutral,
	}

	switch len(recent) {
	case 0:
		view.Price = models.NewDecimal(0)
		view.TimestampUTC = now
	case 1:
		view.Price = recent[0].Price
		view.TimestampUTC = recent[0].ObservedAt.UTC()
	default:
		latest, previous := recent[0], recent[1]
		view.Price = latest.Price
		view.TimestampUTC = latest.ObservedAt.UTC()
		view.Trend = trendOf(latest.Price.Cmp(previous.Price))
		view.PercentChange = models.PercentChange(latest.Price, previous.Price)
	}
	view.TrendSymbol = view.Trend.Symbol()

	return view
}

func trendOf(cmp int) models.Trend {
	switch {
	case cmp > 0:
		return models.TrendUp
	case cmp < 0:
		return models.TrendDown
	default:
		return models.TrendNeutral
	}
}

// GetHistory returns observations of symbol within the last days, oldest first
func (s *Service) GetHistory(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	switch {
	case days <= 0:
		days = DefaultHistoryDays
	case days > MaxHistoryDays:
		days = MaxHistoryDays
	}

	asset, err := s.assets.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().UTC().AddDate(0, 0, -days)

	rows, err := s.history.History(ctx, asset.ID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", asset.Symbol, err)
	}

	points := make([]models.HistoryPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, models.HistoryPoint{
			TimestampUTC: row.ObservedAt.UTC(),
			Price:        row.Price,
		})
	}

	logger.Debug("history projected",
		zap.String("symbol", asset.Symbol),
		zap.Int("days", days),
		zap.Int("points", len(points)),
	)

	return points, nil
}
