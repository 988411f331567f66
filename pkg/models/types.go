package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyUSD is the only quote currency the tracker stores
const CurrencyUSD = "USD"

// Trend represents direction of the latest price against the previous one
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// Symbol returns the marker rendered by the web page
func (t Trend) Symbol() string {
	switch t {
	case TrendUp:
		return "🔼"
	case TrendDown:
		return "🔽"
	default:
		return "➖"
	}
}

// Asset represents a tracked crypto asset from the registry
type Asset struct {
	ID         int64   `db:"id" json:"id"`
	Symbol     string  `db:"symbol" json:"symbol"`
	Name       string  `db:"name" json:"name"`
	ExternalID string  `db:"external_id" json:"externalId"`
	IconURL    *string `db:"icon_url" json:"iconUrl,omitempty"`
}

// HasIcon reports whether icon URL is already known
func (a *Asset) HasIcon() bool {
	return a.IconURL != nil && *a.IconURL != ""
}

// Icon returns icon URL or empty string when unset
func (a *Asset) Icon() string {
	if a.IconURL == nil {
		return ""
	}
	return *a.IconURL
}

// PriceObservation is one stored (asset, timestamp, price) record.
// (AssetID, ObservedAt) is unique; rows are never updated.
type PriceObservation struct {
	ID         int64           `db:"id" json:"id"`
	AssetID    int64           `db:"asset_id" json:"assetId"`
	ObservedAt time.Time       `db:"observed_at" json:"timestampUtc"`
	Price      decimal.Decimal `db:"price" json:"price"`
}

// NormalizeTimestamp converts t to UTC at storage (microsecond) precision
// so equal source timestamps stay equal after a database round trip
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Quote is a single price returned by the external price source
type Quote struct {
	Price      decimal.Decimal
	ObservedAt time.Time
	IconURL    string
}

// LatestPrice is the derived latest-price view of one asset
type LatestPrice struct {
	Name          string           `json:"name"`
	Symbol        string           `json:"symbol"`
	Price         decimal.Decimal  `json:"price"`
	Currency      string           `json:"currency"`
	IconURL       string           `json:"iconUrl"`
	TimestampUTC  time.Time        `json:"timestampUtc"`
	Trend         Trend            `json:"trend"`
	TrendSymbol   string           `json:"trendSymbol"`
	PercentChange *decimal.Decimal `json:"percentageChange"`
}

// HistoryPoint is one element of a history series
type HistoryPoint struct {
	TimestampUTC time.Time       `json:"dateUtc"`
	Price        decimal.Decimal `json:"price"`
}

// UpdateResult is the outcome of one ingestion run
type UpdateResult struct {
	Success  bool    `json:"success"`
	Inserted int     `json:"inserted"`
	Error    *string `json:"error"`
}

// FailedUpdate builds unsuccessful result carrying error description
func FailedUpdate(err error) UpdateResult {
	msg := err.Error()
	return UpdateResult{Success: false, Error: &msg}
}
