package price

import (
	"context"

	"github.com/selivandex/price-tracker/pkg/models"
)

// Fetcher provides current prices for registry assets
type Fetcher interface {
	// FetchPrices returns quotes keyed by asset external ID.
	// Assets unknown to the source are omitted from the result.
	FetchPrices(ctx context.Context, assets []models.Asset) (map[string]models.Quote, error)

	// GetName returns provider name
	GetName() string
}
