// Package pricing resolves per-code prices for partner code batches.
//
// Resolution is a pure function of an as-of timestamp, the configured
// overrides and the static default table. Nothing here reads ambient state.
package pricing

import (
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/memoria/internal/catalog"
)

var (
	ErrPriceNotFound   = errors.New("price_not_found")
	ErrInvalidQuantity = errors.New("invalid_quantity")
)

type Key struct {
	ProductType     catalog.ProductType
	HostingDuration catalog.HostingDuration
}

type Price struct {
	UnitAmount int64
	Currency   string
}

// Override replaces the default price inside [EffectiveFrom, EffectiveUntil).
// A nil EffectiveUntil leaves the window open.
type Override struct {
	Key            Key
	UnitAmount     int64
	Currency       string
	EffectiveFrom  time.Time
	EffectiveUntil *time.Time
}

type Table map[Key]Price

// DefaultTable is the list price per activation code in minor units.
func DefaultTable(currency string) Table {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	return Table{
		{catalog.ProductNFCPlate, catalog.HostingOneYear}:      {UnitAmount: 4900, Currency: currency},
		{catalog.ProductNFCPlate, catalog.HostingFiveYears}:    {UnitAmount: 9900, Currency: currency},
		{catalog.ProductNFCPlate, catalog.HostingLifetime}:     {UnitAmount: 14900, Currency: currency},
		{catalog.ProductQRPlate, catalog.HostingOneYear}:       {UnitAmount: 3900, Currency: currency},
		{catalog.ProductQRPlate, catalog.HostingFiveYears}:     {UnitAmount: 7900, Currency: currency},
		{catalog.ProductQRPlate, catalog.HostingLifetime}:      {UnitAmount: 12900, Currency: currency},
		{catalog.ProductDigitalPage, catalog.HostingOneYear}:   {UnitAmount: 1900, Currency: currency},
		{catalog.ProductDigitalPage, catalog.HostingFiveYears}: {UnitAmount: 4900, Currency: currency},
		{catalog.ProductDigitalPage, catalog.HostingLifetime}:  {UnitAmount: 7900, Currency: currency},
	}
}

func (o Override) covers(asOf time.Time) bool {
	if asOf.Before(o.EffectiveFrom) {
		return false
	}
	if o.EffectiveUntil != nil && !asOf.Before(*o.EffectiveUntil) {
		return false
	}
	return true
}

// Resolve returns the price in force at asOf. The most recently started
// override covering asOf wins; otherwise the default table applies.
func Resolve(asOf time.Time, key Key, overrides []Override, defaults Table) (Price, error) {
	var (
		best  *Override
		found bool
	)
	for i := range overrides {
		candidate := overrides[i]
		if candidate.Key != key || !candidate.covers(asOf) {
			continue
		}
		if !found || candidate.EffectiveFrom.After(best.EffectiveFrom) {
			best = &overrides[i]
			found = true
		}
	}
	if found {
		currency := best.Currency
		if currency == "" {
			currency = defaults[key].Currency
		}
		return Price{UnitAmount: best.UnitAmount, Currency: strings.ToUpper(currency)}, nil
	}

	price, ok := defaults[key]
	if !ok {
		return Price{}, ErrPriceNotFound
	}
	return price, nil
}

// Quote multiplies the unit price by quantity.
func Quote(price Price, quantity int) (int64, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	return price.UnitAmount * int64(quantity), nil
}
