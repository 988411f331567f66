package clickhouse

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/pkg/logger"
	"github.com/selivandex/price-tracker/pkg/models"
)

// BatchWriter buffers records and writes them via flush func in batches
type BatchWriter[T any] struct {
	buffer      []T
	bufferMu    sync.Mutex
	maxBatch    int
	flushTicker *time.Ticker
	flushFunc   func(context.Context, []T) error
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewBatchWriter creates new batch writer
func NewBatchWriter[T any](
	maxBatch int,
	maxWait time.Duration,
	flushFunc func(context.Context, []T) error,
) *BatchWriter[T] {
	ctx, cancel := context.WithCancel(context.Background())

	bw := &BatchWriter[T]{
		buffer:    make([]T, 0, maxBatch),
		maxBatch:  maxBatch,
		flushFunc: flushFunc,
		ctx:       ctx,
		cancel:    cancel,
	}

	bw.flushTicker = time.NewTicker(maxWait)

	bw.wg.Add(1)
	go bw.autoFlush()

	return bw
}

// Add adds records to buffer
func (bw *BatchWriter[T]) Add(records ...T) {
	bw.bufferMu.Lock()
	bw.buffer = append(bw.buffer, records...)
	shouldFlush := len(bw.buffer) >= bw.maxBatch
	bw.bufferMu.Unlock()

	if shouldFlush {
		bw.flush()
	}
}

// autoFlush flushes buffer periodically
func (bw *BatchWriter[T]) autoFlush() {
	defer bw.wg.Done()

	for {
		select {
		case <-bw.flushTicker.C:
			bw.flush()
		case <-bw.ctx.Done():
			// Final flush before exit
			bw.flush()
			return
		}
	}
}

// flush writes buffered records to ClickHouse
func (bw *BatchWriter[T]) flush() {
	bw.bufferMu.Lock()
	if len(bw.buffer) == 0 {
		bw.bufferMu.Unlock()
		return
	}

	toWrite := make([]T, len(bw.buffer))
	copy(toWrite, bw.buffer)
	bw.buffer = bw.buffer[:0]
	bw.bufferMu.Unlock()

	// Detached from bw.ctx so the final flush on Close still gets a live context
	ctx, cancel := context.WithTimeout(context.WithoutCancel(bw.ctx), 30*time.Second)
	defer cancel()

	if err := bw.flushFunc(ctx, toWrite); err != nil {
		logger.Error("failed to flush batch to ClickHouse",
			zap.Int("records", len(toWrite)),
			zap.Error(err),
		)
		return
	}

	logger.Debug("flushed batch to ClickHouse",
		zap.Int("records", len(toWrite)),
	)
}

// Close stops the writer and flushes remaining data
func (bw *BatchWriter[T]) Close() error {
	bw.flushTicker.Stop()
	bw.cancel()
	bw.wg.Wait()
	return nil
}

// ObservationBatchWriter mirrors stored price observations to ClickHouse
type ObservationBatchWriter struct {
	*BatchWriter[MirrorRow]
	symbols map[int64]string
}

// NewObservationBatchWriter creates batch writer for price observations.
// assets resolves asset ids to symbols for the mirror table.
func NewObservationBatchWriter(repo *Repository, assets []models.Asset, maxBatch int, maxWait time.Duration) *ObservationBatchWriter {
	return newObservationBatchWriter(repo.SaveObservations, assets, maxBatch, maxWait)
}

func newObservationBatchWriter(
	save func(context.Context, []MirrorRow) error,
	assets []models.Asset,
	maxBatch int,
	maxWait time.Duration,
) *ObservationBatchWriter {
	symbols := make(map[int64]string, len(assets))
	for _, a := range assets {
		symbols[a.ID] = a.Symbol
	}

	return &ObservationBatchWriter{
		BatchWriter: NewBatchWriter(maxBatch, maxWait, save),
		symbols:     symbols,
	}
}

// AddObservations adds stored observations to buffer
func (w *ObservationBatchWriter) AddObservations(observations []models.PriceObservation) {
	rows := make([]MirrorRow, 0, len(observations))

	for _, obs := range observations {
		rows = append(rows, MirrorRow{PriceObservation: obs, Symbol: w.symbols[obs.AssetID]})
	}

	w.Add(rows...)
}
