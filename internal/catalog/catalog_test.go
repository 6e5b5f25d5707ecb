package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProductType(t *testing.T) {
	p, err := ParseProductType(" NFC_Plate ")
	require.NoError(t, err)
	assert.Equal(t, ProductNFCPlate, p)
	assert.True(t, p.RequiresManufacturing())
	assert.False(t, ProductDigitalPage.RequiresManufacturing())

	_, err = ParseProductType("urn")
	assert.ErrorIs(t, err, ErrInvalidProductType)
}

func TestParseHostingDuration(t *testing.T) {
	d, err := ParseHostingDuration("5Y")
	require.NoError(t, err)
	assert.Equal(t, 60, d.Months())
	assert.Equal(t, 0, HostingLifetime.Months())

	_, err = ParseHostingDuration("10y")
	assert.ErrorIs(t, err, ErrInvalidHostingDuration)
}
