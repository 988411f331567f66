package assets

import "testing"

func TestParseSeed(t *testing.T) {
	assets, err := ParseSeed([]string{"sol:Solana:Solana", " ADA : Cardano : cardano ", ""})
	if err != nil {
		t.Fatalf("Failed to parse seed: %v", err)
	}

	if len(assets) != 2 {
		t.Fatalf("Expected 2 assets, got %d", len(assets))
	}

	if assets[0].Symbol != "SOL" || assets[0].Name != "Solana" || assets[0].ExternalID != "solana" {
		t.Errorf("Unexpected first asset %+v", assets[0])
	}
	if assets[1].Symbol != "ADA" || assets[1].ExternalID != "cardano" {
		t.Errorf("Unexpected second asset %+v", assets[1])
	}
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
	}{
		{"missing field", []string{"BTC:Bitcoin"}},
		{"empty symbol", []string{":Bitcoin:bitcoin"}},
		{"duplicate symbol", []string{"BTC:Bitcoin:bitcoin", "btc:Other:other"}},
		{"duplicate external id", []string{"BTC:Bitcoin:bitcoin", "XBT:Bitcoin:Bitcoin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSeed(tt.entries); err == nil {
				t.Error("Expected error")
			}
		})
	}
}
