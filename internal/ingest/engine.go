package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/internal/adapters/price"
	"github.com/selivandex/price-tracker/pkg/logger"
	"github.com/selivandex/price-tracker/pkg/models"
)

// AssetStore is the registry collaborator used by ingestion
type AssetStore interface {
	ListAssets(ctx context.Context) ([]models.Asset, error)
	UpdateIcon(ctx context.Context, assetID int64, iconURL string) error
}

// HistoryStore is the observation store used by ingestion
type HistoryStore interface {
	ExistingTimestamps(ctx context.Context, assetIDs []int64, since time.Time) (map[int64]map[int64]struct{}, error)
	InsertBatch(ctx context.Context, observations []models.PriceObservation) ([]models.PriceObservation, error)
}

// Locker serializes update runs across instances
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Invalidator drops cached projections after new data lands
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Sink receives observations right after they were stored
type Sink interface {
	AddObservations(observations []models.PriceObservation)
}

// Engine runs the fetch → dedup → persist pipeline
type Engine struct {
	assets      AssetStore
	history     HistoryStore
	fetcher     price.Fetcher
	locker      Locker
	invalidator Invalidator
	sink        Sink
}

// Option configures optional engine collaborators
type Option func(*Engine)

// WithLocker enables cross-instance update lock
func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithInvalidator enables cache invalidation after updates
func WithInvalidator(inv Invalidator) Option {
	return func(e *Engine) { e.invalidator = inv }
}

// WithSink mirrors stored observations to sink
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// NewEngine creates new ingestion engine
func NewEngine(assets AssetStore, history HistoryStore, fetcher price.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		assets:  assets,
		history: history,
		fetcher: fetcher,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runStats collects counters of one run for logging
type runStats struct {
	assets     int
	fetched    int
	duplicates int
	icons      int
	staged     int
	inserted   []models.PriceObservation
}

// RunUpdate fetches current prices and stores the new observations.
// It never returns an error: failures are reported in the result.
func (e *Engine) RunUpdate(ctx context.Context) (result models.UpdateResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("price update panicked", zap.Any("panic", r))
			result = models.FailedUpdate(fmt.Errorf("price update panicked: %v", r))
		}
	}()

	if e.locker != nil {
		acquired, err := e.locker.TryAcquire(ctx)
		switch {
		case err != nil:
			// Storage uniqueness still protects the data, so run unlocked
			logger.Warn("update lock unavailable, running without it", zap.Error(err))
		case !acquired:
			logger.Info("price update already in progress elsewhere, skipping")
			return models.UpdateResult{Success: true}
		default:
			defer func() {
				if err := e.locker.Release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("failed to release update lock", zap.Error(err))
				}
			}()
		}
	}

	stats, err := e.run(ctx)
	if err != nil {
		logger.Error("price update failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return models.FailedUpdate(err)
	}

	logger.Info("price update completed",
		zap.Int("assets", stats.assets),
		zap.Int("fetched", stats.fetched),
		zap.Int("duplicates", stats.duplicates),
		zap.Int("icons_updated", stats.icons),
		zap.Int("staged", stats.staged),
		zap.Int("inserted", len(stats.inserted)),
		zap.Duration("duration", time.Since(start)),
	)

	return models.UpdateResult{Success: true, Inserted: len(stats.inserted)}
}

func (e *Engine) run(ctx context.Context) (*runStats, error) {
	stats := &runStats{}

	assets, err := e.assets.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}
	stats.assets = len(assets)

	quotes, err := e.fetcher.FetchPrices(ctx, assets)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	stats.fetched = len(quotes)

	matched := make([]matchedQuote, 0, len(quotes))
	for _, asset := range assets {
		quote, ok := lookupQuote(quotes, asset.ExternalID)
		if !ok {
			continue
		}
		quote.ObservedAt = models.NormalizeTimestamp(quote.ObservedAt)
		matched = append(matched, matchedQuote{asset: asset, quote: quote})
	}

	if len(matched) == 0 {
		return stats, nil
	}

	existing, err := e.history.ExistingTimestamps(ctx, matchedAssetIDs(matched), earliestObservation(matched))
	if err != nil {
		return nil, fmt.Errorf("failed to load existing observations: %w", err)
	}
	if existing == nil {
		existing = make(map[int64]map[int64]struct{})
	}

	var staged []models.PriceObservation
	var icons []matchedQuote
	for _, m := range matched {
		if !m.asset.HasIcon() && m.quote.IconURL != "" {
			icons = append(icons, m)
		}

		key := m.quote.ObservedAt.UnixMicro()
		if _, dup := existing[m.asset.ID][key]; dup {
			stats.duplicates++
			logger.Debug("observation already stored, skipping",
				zap.String("symbol", m.asset.Symbol),
				zap.Time("observed_at", m.quote.ObservedAt),
			)
			continue
		}
		if existing[m.asset.ID] == nil {
			existing[m.asset.ID] = make(map[int64]struct{})
		}
		existing[m.asset.ID][key] = struct{}{}

		staged = append(staged, models.PriceObservation{
			AssetID:    m.asset.ID,
			ObservedAt: m.quote.ObservedAt,
			Price:      m.quote.Price,
		})
	}
	stats.staged = len(staged)

	if len(staged) > 0 {
		inserted, err := e.history.InsertBatch(ctx, staged)
		if err != nil {
			return nil, fmt.Errorf("failed to store observations: %w", err)
		}
		stats.inserted = inserted

		if raced := len(staged) - len(inserted); raced > 0 {
			stats.duplicates += raced
		}
	}

	// Icons are written only once the batch is committed, so a failed
	// insert leaves the registry untouched
	iconErr := e.applyIcons(ctx, icons, stats)

	if len(stats.inserted) > 0 && e.sink != nil {
		e.sink.AddObservations(stats.inserted)
	}

	if (len(stats.inserted) > 0 || stats.icons > 0) && e.invalidator != nil {
		if err := e.invalidator.Invalidate(ctx); err != nil {
			logger.Warn("failed to invalidate latest prices cache", zap.Error(err))
		}
	}

	if iconErr != nil {
		return nil, iconErr
	}

	return stats, nil
}

// applyIcons back-fills missing icons, stopping at the first failure
func (e *Engine) applyIcons(ctx context.Context, icons []matchedQuote, stats *runStats) error {
	for _, m := range icons {
		if err := e.assets.UpdateIcon(ctx, m.asset.ID, m.quote.IconURL); err != nil {
			return fmt.Errorf("failed to update icon for %s: %w", m.asset.Symbol, err)
		}
		stats.icons++
	}
	return nil
}

type matchedQuote struct {
	asset models.Asset
	quote models.Quote
}

// lookupQuote matches external IDs case-insensitively
func lookupQuote(quotes map[string]models.Quote, externalID string) (models.Quote, bool) {
	if q, ok := quotes[externalID]; ok {
		return q, true
	}
	q, ok := quotes[strings.ToLower(externalID)]
	return q, ok
}

func matchedAssetIDs(matched []matchedQuote) []int64 {
	ids := make([]int64, 0, len(matched))
	for _, m := range matched {
		ids = append(ids, m.asset.ID)
	}
	return ids
}

// earliestObservation bounds the history lookup: older rows can't collide with fetched ticks
func earliestObservation(matched []matchedQuote) time.Time {
	earliest := matched[0].quote.ObservedAt
	for _, m := range matched[1:] {
		if m.quote.ObservedAt.Before(earliest) {
			earliest = m.quote.ObservedAt
		}
	}
	return earliest
}
