package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

func intPtr(v int) *int { return &v }

func labelTiers() TierSet {
	return TierSet{
		{From: 1, To: intPtr(100), Price: decimal.RequireFromString("1.49")},
		{From: 101, To: intPtr(300), Price: decimal.RequireFromString("1.29")},
		{From: 301, To: nil, Price: decimal.RequireFromString("1.09")},
	}
}

func TestTierUnitPrice(t *testing.T) {
	tiers := labelTiers()
	require.NoError(t, tiers.Validate())

	cases := map[int]string{1: "1.49", 50: "1.49", 100: "1.49", 101: "1.29", 150: "1.29", 300: "1.29", 301: "1.09", 1000: "1.09"}
	for qty, want := range cases {
		price, err := tiers.UnitPrice(qty)
		require.NoError(t, err, qty)
		require.Equal(t, want, price.StringFixed(2), qty)
	}
}

func TestTierNoMatch(t *testing.T) {
	_, err := labelTiers().UnitPrice(0)
	require.ErrorIs(t, err, shared.ErrNoMatchingTier)

	closed := TierSet{{From: 1, To: intPtr(10), Price: decimal.NewFromInt(2)}}
	_, err = closed.UnitPrice(11)
	require.ErrorIs(t, err, shared.ErrNoMatchingTier)

	_, err = TierSet{}.UnitPrice(5)
	require.ErrorIs(t, err, shared.ErrNoMatchingTier)
}

func TestTierFallsBackToOpenBandOnlyAboveBounded(t *testing.T) {
	gapped := TierSet{
		{From: 1, To: intPtr(10), Price: decimal.NewFromInt(3)},
		{From: 50, To: nil, Price: decimal.NewFromInt(1)},
	}
	price, err := gapped.UnitPrice(20)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.NewFromInt(1)))
	require.Error(t, gapped.Validate())
}

func TestTierValidate(t *testing.T) {
	overlap := TierSet{
		{From: 1, To: intPtr(100), Price: decimal.NewFromInt(1)},
		{From: 90, To: nil, Price: decimal.NewFromInt(1)},
	}
	require.Error(t, overlap.Validate())

	openFirst := TierSet{
		{From: 1, To: nil, Price: decimal.NewFromInt(1)},
		{From: 2, To: intPtr(5), Price: decimal.NewFromInt(1)},
	}
	require.Error(t, openFirst.Validate())

	negative := TierSet{{From: 1, To: nil, Price: decimal.NewFromInt(-1)}}
	require.Error(t, negative.Validate())
}
