package prices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/selivandex/price-tracker/pkg/models"
	"github.com/selivandex/price-tracker/test/testdb"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRepository_InsertBatchSkipsDuplicates(t *testing.T) {
	tdb := testdb.Setup(t)
	repo := NewRepository(tdb.DB.DB())
	ctx := context.Background()
	btcID := tdb.AssetID(t, "BTC")

	tdb.InsertObservation(t, btcID, base, "59000")

	inserted, err := repo.InsertBatch(ctx, []models.PriceObservation{
		{AssetID: btcID, ObservedAt: base, Price: models.NewDecimal(60000)},
		{AssetID: btcID, ObservedAt: base.Add(time.Minute), Price: models.NewDecimal(60100)},
	})
	if err != nil {
		t.Fatalf("Failed to insert batch: %v", err)
	}

	if len(inserted) != 1 || inserted[0].ID == 0 {
		t.Fatalf("Expected one new row with id, got %+v", inserted)
	}
	tdb.AssertObservationCount(t, btcID, 2)

	history, err := repo.History(ctx, btcID, base)
	if err != nil {
		t.Fatalf("Failed to load history: %v", err)
	}
	if !history[0].Price.Equal(models.NewDecimal(59000)) {
		t.Errorf("Stored observation must not be overwritten, got %s", history[0].Price)
	}
}

func TestRepository_ConcurrentInsertsStoreOnce(t *testing.T) {
	tdb := testdb.Setup(t)
	repo := NewRepository(tdb.DB.DB())
	ethID := tdb.AssetID(t, "ETH")

	obs := []models.PriceObservation{{AssetID: ethID, ObservedAt: base, Price: models.NewDecimal(3000)}}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := repo.InsertBatch(context.Background(), obs)
			if err != nil {
				t.Errorf("Concurrent insert failed: %v", err)
				return
			}
			mu.Lock()
			total += len(inserted)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 1 {
		t.Errorf("Expected exactly one insert across racers, got %d", total)
	}
	tdb.AssertObservationCount(t, ethID, 1)
}

func TestRepository_ExistingTimestamps(t *testing.T) {
	tdb := testdb.Setup(t)
	repo := NewRepository(tdb.DB.DB())
	btcID := tdb.AssetID(t, "BTC")
	ethID := tdb.AssetID(t, "ETH")

	precise := base.Add(123456 * time.Microsecond)
	tdb.InsertObservation(t, btcID, base.Add(-time.Hour), "1")
	tdb.InsertObservation(t, btcID, precise, "2")
	tdb.InsertObservation(t, ethID, base, "3")

	existing, err := repo.ExistingTimestamps(context.Background(), []int64{btcID}, base)
	if err != nil {
		t.Fatalf("Failed to load timestamps: %v", err)
	}

	if len(existing[btcID]) != 1 {
		t.Fatalf("Expected one BTC timestamp since cutoff, got %v", existing[btcID])
	}
	if _, ok := existing[btcID][precise.UnixMicro()]; !ok {
		t.Error("Expected microsecond-precise key to round-trip")
	}
	if _, ok := existing[ethID]; ok {
		t.Error("ETH was not requested")
	}
}

func TestRepository_LatestTwoAndHistory(t *testing.T) {
	tdb := testdb.Setup(t)
	repo := NewRepository(tdb.DB.DB())
	ctx := context.Background()
	btcID := tdb.AssetID(t, "BTC")
	ethID := tdb.AssetID(t, "ETH")

	tdb.InsertObservation(t, btcID, base.AddDate(0, 0, -40), "50")
	tdb.InsertObservation(t, btcID, base.Add(-time.Hour), "100")
	tdb.InsertObservation(t, btcID, base, "110")
	tdb.InsertObservation(t, ethID, base, "3000")

	latest, err := repo.LatestTwo(ctx, []int64{btcID, ethID})
	if err != nil {
		t.Fatalf("Failed to load latest: %v", err)
	}
	if len(latest[btcID]) != 2 || !latest[btcID][0].Price.Equal(models.NewDecimal(110)) || !latest[btcID][1].Price.Equal(models.NewDecimal(100)) {
		t.Errorf("Expected BTC 110 then 100, got %+v", latest[btcID])
	}
	if len(latest[ethID]) != 1 {
		t.Errorf("Expected single ETH row, got %+v", latest[ethID])
	}
	if latest[btcID][0].ObservedAt.Location() != time.UTC {
		t.Error("Timestamps must come back in UTC")
	}

	history, err := repo.History(ctx, btcID, base.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Failed to load history: %v", err)
	}
	if len(history) != 2 || !history[0].ObservedAt.Before(history[1].ObservedAt) {
		t.Errorf("Expected 2 ascending points in window, got %+v", history)
	}
}

func TestRepository_RejectsUnknownAsset(t *testing.T) {
	tdb := testdb.Setup(t)
	repo := NewRepository(tdb.DB.DB())

	_, err := repo.InsertBatch(context.Background(), []models.PriceObservation{
		{AssetID: 999999, ObservedAt: base, Price: models.NewDecimal(1)},
	})

	var pe *models.PersistenceError
	if !errors.As(err, &pe) {
		t.Errorf("Expected PersistenceError for FK violation, got %v", err)
	}
}
