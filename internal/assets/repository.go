package assets

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/pkg/logger"
	"github.com/selivandex/price-tracker/pkg/models"
)

// Repository is the asset registry backed by crypto_assets table
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new asset registry repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ListAssets returns all known assets in registry order
func (r *Repository) ListAssets(ctx context.Context) ([]models.Asset, error) {
	query := `
		SELECT id, symbol, name, external_id, icon_url
		FROM crypto_assets
		ORDER BY id
	`

	var assets []models.Asset
	if err := r.db.SelectContext(ctx, &assets, query); err != nil {
		return nil, &models.PersistenceError{Op: "list assets", Err: err}
	}

	return assets, nil
}

// GetBySymbol resolves symbol case-insensitively
func (r *Repository) GetBySymbol(ctx context.Context, symbol string) (*models.Asset, error) {
	query := `
		SELECT id, symbol, name, external_id, icon_url
		FROM crypto_assets
		WHERE symbol = $1
	`

	var asset models.Asset
	err := r.db.GetContext(ctx, &asset, query, strings.ToUpper(strings.TrimSpace(symbol)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAssetNotFound
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "get asset by symbol", Err: err}
	}

	return &asset, nil
}

// UpdateIcon sets icon URL only when it is still unset, so concurrent runs can't flip it
func (r *Repository) UpdateIcon(ctx context.Context, assetID int64, iconURL string) error {
	query := `
		UPDATE crypto_assets
		SET icon_url = $2, updated_at = NOW()
		WHERE id = $1
		  AND (icon_url IS NULL OR icon_url = '')
	`

	res, err := r.db.ExecContext(ctx, query, assetID, iconURL)
	if err != nil {
		return &models.PersistenceError{Op: "update asset icon", Err: err}
	}

	if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("asset icon back-filled",
			zap.Int64("asset_id", assetID),
			zap.String("icon_url", iconURL),
		)
	}

	return nil
}

// SeedAssets inserts assets missing from registry, existing symbols are left untouched
func (r *Repository) SeedAssets(ctx context.Context, assets []models.Asset) (int, error) {
	query := `
		INSERT INTO crypto_assets (symbol, name, external_id, icon_url)
		VALUES (:symbol, :name, :external_id, :icon_url)
		ON CONFLICT DO NOTHING
	`

	seeded := 0
	for _, asset := range assets {
		asset.Symbol = strings.ToUpper(strings.TrimSpace(asset.Symbol))
		asset.ExternalID = strings.ToLower(strings.TrimSpace(asset.ExternalID))

		res, err := r.db.NamedExecContext(ctx, query, asset)
		if err != nil {
			return seeded, &models.PersistenceError{Op: "seed asset", Err: err}
		}
		if n, _ := res.RowsAffected(); n > 0 {
			seeded++
		}
	}

	if seeded > 0 {
		logger.Info("asset registry seeded", zap.Int("count", seeded))
	}

	return seeded, nil
}
