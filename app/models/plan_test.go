package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveIncrement(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
		want float64
	}{
		{name: "explicit increment wins", plan: Plan{Currency: CurrencyINR, RoundingIncrement: 5}, want: 5},
		{name: "INR default", plan: Plan{Currency: CurrencyINR}, want: 10},
		{name: "USD default", plan: Plan{Currency: CurrencyUSD}, want: 1},
		{name: "unknown currency default", plan: Plan{Currency: "GBP"}, want: 1},
		{name: "lowercase currency", plan: Plan{Currency: "inr"}, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.plan.EffectiveIncrement())
		})
	}
}

func TestHasBounds(t *testing.T) {
	assert.False(t, (&Plan{}).HasBounds())
	assert.True(t, (&Plan{MinPrice: 100}).HasBounds())
	assert.True(t, (&Plan{MaxPrice: 2000}).HasBounds())
}

func TestGrossPrice(t *testing.T) {
	plan := &Plan{CurrentPrice: 1000, TaxPercentage: 18}
	assert.InDelta(t, 1180, plan.GrossPrice(), 0.0001)

	untaxed := &Plan{CurrentPrice: 1000}
	assert.Equal(t, 1000.0, untaxed.GrossPrice())
}
