package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "stripe"),
		attribute.String("order_number", "MEM-1001"),
		attribute.String("partner_id", "77"),
		attribute.String("currency", "EUR"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("provider"), attrs[0].Key)
	assert.Equal(t, attribute.Key("currency"), attrs[1].Key)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPayout(context.Background(), "EUR", 100)
		m.RecordCommission(context.Background())
	})
}

func TestRecordPayoutAddsCounterAndHistogram(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "memoria-test"}, provider)
	require.NoError(t, err)

	m.RecordPayout(context.Background(), "EUR", 6000)
	m.RecordPayout(context.Background(), "EUR", 4109)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			switch data := metric.Data.(type) {
			case metricdata.Sum[int64]:
				if metric.Name == "memoria_payouts_created_total" {
					require.Len(t, data.DataPoints, 1)
					assert.Equal(t, int64(2), data.DataPoints[0].Value)
					found[metric.Name] = true
				}
			case metricdata.Histogram[int64]:
				if metric.Name == "memoria_payout_amount_minor" {
					require.Len(t, data.DataPoints, 1)
					assert.Equal(t, int64(10109), data.DataPoints[0].Sum)
					found[metric.Name] = true
				}
			}
		}
	}
	assert.True(t, found["memoria_payouts_created_total"])
	assert.True(t, found["memoria_payout_amount_minor"])
}
