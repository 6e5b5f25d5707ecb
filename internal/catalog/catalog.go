package catalog

import (
	"errors"
	"strings"
)

var (
	ErrInvalidProductType     = errors.New("invalid_product_type")
	ErrInvalidHostingDuration = errors.New("invalid_hosting_duration")
)

// ProductType identifies what a customer or partner buys.
type ProductType string

const (
	ProductNFCPlate    ProductType = "nfc_plate"
	ProductQRPlate     ProductType = "qr_plate"
	ProductDigitalPage ProductType = "digital_page"
)

// HostingDuration is how long the memorial page stays online once activated.
type HostingDuration string

const (
	HostingOneYear   HostingDuration = "1y"
	HostingFiveYears HostingDuration = "5y"
	HostingLifetime  HostingDuration = "lifetime"
)

func ParseProductType(raw string) (ProductType, error) {
	value := ProductType(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case ProductNFCPlate, ProductQRPlate, ProductDigitalPage:
		return value, nil
	default:
		return "", ErrInvalidProductType
	}
}

func ParseHostingDuration(raw string) (HostingDuration, error) {
	value := HostingDuration(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case HostingOneYear, HostingFiveYears, HostingLifetime:
		return value, nil
	default:
		return "", ErrInvalidHostingDuration
	}
}

// RequiresManufacturing reports whether a physical plate has to be produced by the supplier.
func (p ProductType) RequiresManufacturing() bool {
	return p == ProductNFCPlate || p == ProductQRPlate
}

// Months returns the hosting length in months; zero means no expiry.
func (d HostingDuration) Months() int {
	switch d {
	case HostingOneYear:
		return 12
	case HostingFiveYears:
		return 60
	default:
		return 0
	}
}
