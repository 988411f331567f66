package clickhouse

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/pkg/logger"
	"github.com/selivandex/price-tracker/pkg/models"
)

// MirrorRow is one observation as stored in the ClickHouse mirror
type MirrorRow struct {
	models.PriceObservation
	Symbol string
}

// Repository handles ClickHouse mirror operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new ClickHouse repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema applies the mirror DDL from file
func (r *Repository) EnsureSchema(ctx context.Context, schemaPath string) error {
	ddl, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read clickhouse schema: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("failed to apply clickhouse schema: %w", err)
	}

	logger.Info("clickhouse schema ensured", zap.String("path", schemaPath))
	return nil
}

// SaveObservations writes observations to the mirror table.
// ReplacingMergeTree collapses rows re-sent for the same (asset_id, observed_at).
func (r *Repository) SaveObservations(ctx context.Context, rows []MirrorRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO price_observations
		(asset_id, symbol, observed_at, price)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err = stmt.ExecContext(ctx,
			row.AssetID,
			row.Symbol,
			row.ObservedAt.UTC(),
			row.Price,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved observations to ClickHouse",
		zap.Int("count", len(rows)),
	)

	return nil
}
