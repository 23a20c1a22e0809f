package pricing

import "testing"

func TestRoundToIncrement(t *testing.T) {
	tests := []struct {
		price     float64
		increment float64
		want      float64
	}{
		{1155, 10, 1150},
		{1150, 10, 1150},
		{1159.99, 10, 1150},
		{1155, 1, 1155},
		{1154.9999999998, 5, 1155}, // float dust from percentage chains is absorbed
		{999.99, 1, 999},
		{42.5, 0, 42.5},  // increment unset
		{42.5, -1, 42.5}, // invalid increment ignored
	}

	for _, tt := range tests {
		if got := RoundToIncrement(tt.price, tt.increment); got != tt.want {
			t.Fatalf("RoundToIncrement(%v, %v) = %v, want %v", tt.price, tt.increment, got, tt.want)
		}
	}
}

func TestCeilToIncrement(t *testing.T) {
	tests := []struct {
		price     float64
		increment float64
		want      float64
	}{
		{107, 10, 110},
		{110, 10, 110},
		{101.01, 10, 110},
		{107, 1, 107},
		{110.0000000001, 10, 110}, // float dust does not bump a grid value up
		{42.5, 0, 42.5},
		{42.5, -1, 42.5},
	}

	for _, tt := range tests {
		if got := CeilToIncrement(tt.price, tt.increment); got != tt.want {
			t.Fatalf("CeilToIncrement(%v, %v) = %v, want %v", tt.price, tt.increment, got, tt.want)
		}
	}
}

func TestClampToBounds(t *testing.T) {
	tests := []struct {
		price float64
		min   float64
		max   float64
		want  float64
	}{
		{500, 600, 2000, 600},
		{2500, 600, 2000, 2000},
		{1000, 600, 2000, 1000},
		{500, 0, 0, 500},  // no bounds configured
		{500, 0, 400, 400},
		{500, 600, 0, 600},
	}

	for _, tt := range tests {
		if got := ClampToBounds(tt.price, tt.min, tt.max); got != tt.want {
			t.Fatalf("ClampToBounds(%v, %v, %v) = %v, want %v", tt.price, tt.min, tt.max, got, tt.want)
		}
	}
}

func TestPricesEqual(t *testing.T) {
	if !PricesEqual(100.0, 100.005) {
		t.Fatal("expected prices within epsilon to compare equal")
	}
	if PricesEqual(100.0, 100.02) {
		t.Fatal("expected prices beyond epsilon to compare unequal")
	}
	if !PricesEqual(1150, 1150) {
		t.Fatal("expected identical prices to compare equal")
	}
}
