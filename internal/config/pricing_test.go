package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallbiznis/memoria/internal/catalog"
	"github.com/smallbiznis/memoria/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePricing(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestPricingHolderReadsOverrides(t *testing.T) {
	path := writePricing(t, `
pricing:
  overrides:
    - product_type: qr_plate
      hosting_duration: 1y
      unit_amount: 2900
      effective_from: "2026-03-01T00:00:00Z"
      effective_until: "2026-04-01T00:00:00Z"
`)
	holder, err := NewPricingHolder(Config{SettlementCurrency: "EUR", PricingFile: path})
	require.NoError(t, err)

	overrides := holder.Overrides()
	require.Len(t, overrides, 1)
	assert.Equal(t, pricing.Key{ProductType: catalog.ProductQRPlate, HostingDuration: catalog.HostingOneYear}, overrides[0].Key)
	require.NotNil(t, overrides[0].EffectiveUntil)

	price, err := pricing.Resolve(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), overrides[0].Key, overrides, holder.Defaults())
	require.NoError(t, err)
	assert.Equal(t, pricing.Price{UnitAmount: 2900, Currency: "EUR"}, price)
}

func TestPricingHolderRejectsBadRows(t *testing.T) {
	path := writePricing(t, `
pricing:
  overrides:
    - product_type: granite
      hosting_duration: 1y
      unit_amount: 2900
      effective_from: "2026-03-01T00:00:00Z"
`)
	_, err := NewPricingHolder(Config{SettlementCurrency: "EUR", PricingFile: path})
	assert.ErrorIs(t, err, catalog.ErrInvalidProductType)
}

func TestStaticPricingHolderCopiesOverrides(t *testing.T) {
	in := []pricing.Override{{UnitAmount: 1}}
	holder := NewStaticPricingHolder("eur", in)
	in[0].UnitAmount = 2
	assert.Equal(t, int64(1), holder.Overrides()[0].UnitAmount)
	assert.Equal(t, "EUR", holder.Defaults()[pricing.Key{ProductType: catalog.ProductQRPlate, HostingDuration: catalog.HostingOneYear}].Currency)
}
