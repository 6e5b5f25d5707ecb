package pricing_test

import (
	"testing"
	"time"

	"github.com/smallbiznis/memoria/internal/catalog"
	"github.com/smallbiznis/memoria/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nfcLifetime = pricing.Key{ProductType: catalog.ProductNFCPlate, HostingDuration: catalog.HostingLifetime}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	price, err := pricing.Resolve(day(10), nfcLifetime, nil, pricing.DefaultTable("eur"))
	require.NoError(t, err)
	assert.Equal(t, pricing.Price{UnitAmount: 14900, Currency: "EUR"}, price)
}

func TestResolvePicksLatestCoveringOverride(t *testing.T) {
	until := day(20)
	overrides := []pricing.Override{
		{Key: nfcLifetime, UnitAmount: 12000, EffectiveFrom: day(1)},
		{Key: nfcLifetime, UnitAmount: 9900, Currency: "usd", EffectiveFrom: day(5), EffectiveUntil: &until},
		{Key: nfcLifetime, UnitAmount: 100, EffectiveFrom: day(25)},
		{Key: pricing.Key{ProductType: catalog.ProductQRPlate, HostingDuration: catalog.HostingLifetime}, UnitAmount: 1, EffectiveFrom: day(1)},
	}
	defaults := pricing.DefaultTable("EUR")

	cases := []struct {
		name  string
		asOf  time.Time
		price pricing.Price
	}{
		{"before any override", day(1).Add(-time.Second), pricing.Price{UnitAmount: 14900, Currency: "EUR"}},
		{"open window", day(3), pricing.Price{UnitAmount: 12000, Currency: "EUR"}},
		{"newer window wins", day(10), pricing.Price{UnitAmount: 9900, Currency: "USD"}},
		{"until is exclusive", day(20), pricing.Price{UnitAmount: 12000, Currency: "EUR"}},
		{"future override", day(26), pricing.Price{UnitAmount: 100, Currency: "EUR"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			price, err := pricing.Resolve(tc.asOf, nfcLifetime, overrides, defaults)
			require.NoError(t, err)
			assert.Equal(t, tc.price, price)
		})
	}
}

func TestResolveUnknownKey(t *testing.T) {
	_, err := pricing.Resolve(day(1), pricing.Key{ProductType: "stone"}, nil, pricing.DefaultTable("EUR"))
	assert.ErrorIs(t, err, pricing.ErrPriceNotFound)
}

func TestQuote(t *testing.T) {
	total, err := pricing.Quote(pricing.Price{UnitAmount: 3900, Currency: "EUR"}, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(97500), total)

	_, err = pricing.Quote(pricing.Price{UnitAmount: 3900}, 0)
	assert.ErrorIs(t, err, pricing.ErrInvalidQuantity)
}
