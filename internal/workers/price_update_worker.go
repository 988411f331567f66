package workers

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/pkg/logger"
	"github.com/selivandex/price-tracker/pkg/models"
)

// Updater runs one price ingestion pass
type Updater interface {
	RunUpdate(ctx context.Context) models.UpdateResult
}

// PriceUpdateWorker periodically triggers price ingestion
type PriceUpdateWorker struct {
	updater Updater
}

// NewPriceUpdateWorker creates new price update worker
func NewPriceUpdateWorker(updater Updater) *PriceUpdateWorker {
	return &PriceUpdateWorker{updater: updater}
}

// Name returns worker name
func (w *PriceUpdateWorker) Name() string {
	return "price_updater"
}

// Run executes one iteration
// Called periodically by pkg/worker.PeriodicWorker
func (w *PriceUpdateWorker) Run(ctx context.Context) error {
	result := w.updater.RunUpdate(ctx)
	if !result.Success {
		msg := "price update failed"
		if result.Error != nil {
			msg = *result.Error
		}
		return errors.New(msg)
	}

	if result.Inserted > 0 {
		logger.Info("scheduled price update stored observations",
			zap.Int("inserted", result.Inserted),
		)
	}

	return nil
}
