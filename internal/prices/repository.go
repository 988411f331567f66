package prices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/internal/adapters/database"
	"github.com/selivandex/price-tracker/pkg/logger"
	"github.com/selivandex/price-tracker/pkg/models"
)

// Repository is the append-only history store over price_observations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new price history repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ExistingTimestamps returns stored observation timestamps (UnixMicro) per asset at or after since
func (r *Repository) ExistingTimestamps(ctx context.Context, assetIDs []int64, since time.Time) (map[int64]map[int64]struct{}, error) {
	existing := make(map[int64]map[int64]struct{}, len(assetIDs))
	if len(assetIDs) == 0 {
		return existing, nil
	}

	query := `
		SELECT asset_id, observed_at
		FROM price_observations
		WHERE asset_id = ANY($1)
		  AND observed_at >= $2
	`

	rows, err := r.db.QueryxContext(ctx, query, pq.Array(assetIDs), since.UTC())
	if err != nil {
		return nil, &models.PersistenceError{Op: "load existing timestamps", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var assetID int64
		var observedAt time.Time
		if err := rows.Scan(&assetID, &observedAt); err != nil {
			return nil, &models.PersistenceError{Op: "scan existing timestamp", Err: err}
		}
		if existing[assetID] == nil {
			existing[assetID] = make(map[int64]struct{})
		}
		existing[assetID][observedAt.UTC().UnixMicro()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, &models.PersistenceError{Op: "iterate existing timestamps", Err: err}
	}

	return existing, nil
}

// InsertBatch stores observations in one transaction and returns the rows actually written.
// Rows colliding with an existing (asset_id, observed_at) are skipped, not failed.
func (r *Repository) InsertBatch(ctx context.Context, observations []models.PriceObservation) ([]models.PriceObservation, error) {
	if len(observations) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, &models.PersistenceError{Op: "begin insert batch", Err: err}
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO price_observations (asset_id, observed_at, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset_id, observed_at) DO NOTHING
		RETURNING id
	`)
	if err != nil {
		tx.Rollback()
		return nil, &models.PersistenceError{Op: "prepare insert batch", Err: err}
	}
	defer stmt.Close()

	inserted := make([]models.PriceObservation, 0, len(observations))
	for _, obs := range observations {
		obs.ObservedAt = obs.ObservedAt.UTC()

		err := stmt.QueryRowxContext(ctx, obs.AssetID, obs.ObservedAt, obs.Price).Scan(&obs.ID)
		if errors.Is(err, sql.ErrNoRows) {
			// Conflict: another run stored this tick first
			logger.Info("observation already present, skipped",
				zap.Int64("asset_id", obs.AssetID),
				zap.Time("observed_at", obs.ObservedAt),
			)
			continue
		}
		if err != nil {
			tx.Rollback()
			if database.IsUniqueViolation(err) {
				err = fmt.Errorf("%w: %v", models.ErrDuplicateObservation, err)
			}
			return nil, &models.PersistenceError{Op: "insert observation", Err: err}
		}

		inserted = append(inserted, obs)
	}

	if err := tx.Commit(); err != nil {
		return nil, &models.PersistenceError{Op: "commit insert batch", Err: err}
	}

	logger.Debug("price observations stored",
		zap.Int("staged", len(observations)),
		zap.Int("inserted", len(inserted)),
	)

	return inserted, nil
}

// LatestTwo returns up to two most recent observations per asset, newest first
func (r *Repository) LatestTwo(ctx context.Context, assetIDs []int64) (map[int64][]models.PriceObservation, error) {
	latest := make(map[int64][]models.PriceObservation, len(assetIDs))
	if len(assetIDs) == 0 {
		return latest, nil
	}

	query := `
		SELECT id, asset_id, observed_at, price
		FROM (
			SELECT id, asset_id, observed_at, price,
			       ROW_NUMBER() OVER (PARTITION BY asset_id ORDER BY observed_at DESC) AS rn
			FROM price_observations
			WHERE asset_id = ANY($1)
		) ranked
		WHERE rn <= 2
		ORDER BY asset_id, observed_at DESC
	`

	var rows []models.PriceObservation
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(assetIDs)); err != nil {
		return nil, &models.PersistenceError{Op: "load latest observations", Err: err}
	}

	for _, row := range rows {
		row.ObservedAt = row.ObservedAt.UTC()
		latest[row.AssetID] = append(latest[row.AssetID], row)
	}

	return latest, nil
}

// History returns observations of one asset at or after since, oldest first
func (r *Repository) History(ctx context.Context, assetID int64, since time.Time) ([]models.PriceObservation, error) {
	query := `
		SELECT id, asset_id, observed_at, price
		FROM price_observations
		WHERE asset_id = $1
		  AND observed_at >= $2
		ORDER BY observed_at ASC
	`

	var rows []models.PriceObservation
	if err := r.db.SelectContext(ctx, &rows, query, assetID, since.UTC()); err != nil {
		return nil, &models.PersistenceError{Op: "load price history", Err: err}
	}

	for i := range rows {
		rows[i].ObservedAt = rows[i].ObservedAt.UTC()
	}

	return rows, nil
}
