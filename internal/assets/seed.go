package assets

import (
	"fmt"
	"strings"

	"github.com/selivandex/price-tracker/pkg/models"
)

// ParseSeed parses "SYMBOL:Name:external-id" entries into assets
func ParseSeed(entries []string) ([]models.Asset, error) {
	assets := make([]models.Asset, 0, len(entries))
	symbols := make(map[string]struct{}, len(entries))
	externalIDs := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid asset seed %q: want SYMBOL:Name:external-id", entry)
		}

		symbol := strings.ToUpper(strings.TrimSpace(parts[0]))
		name := strings.TrimSpace(parts[1])
		externalID := strings.ToLower(strings.TrimSpace(parts[2]))
		if symbol == "" || name == "" || externalID == "" {
			return nil, fmt.Errorf("invalid asset seed %q: empty field", entry)
		}

		if _, ok := symbols[symbol]; ok {
			return nil, fmt.Errorf("duplicate symbol %s in asset seed", symbol)
		}
		if _, ok := externalIDs[externalID]; ok {
			return nil, fmt.Errorf("duplicate external id %s in asset seed", externalID)
		}
		symbols[symbol] = struct{}{}
		externalIDs[externalID] = struct{}{}

		assets = append(assets, models.Asset{Symbol: symbol, Name: name, ExternalID: externalID})
	}

	return assets, nil
}
