package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func TestSafeAttributesDropsPersonalData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("order_number", "MEM-1001"),
		attribute.String("customer_email", "a@b.c"),
		attribute.String("shipping_address", "Main St 1"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("order_number"), attrs[0].Key)
}

func TestSafeErrorKeepsOutermostMessage(t *testing.T) {
	err := fmt.Errorf("commission_record_failed: %w", errors.New("order 12 for jane@example.com"))
	assert.EqualError(t, SafeError(err), "commission_record_failed")
	assert.Nil(t, SafeError(nil))
}

func TestNewProviderDisabledDoesNotExport(t *testing.T) {
	provider, err := NewProvider(nil, Config{Enabled: false, ServiceName: "memoria-test"}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, provider)

	_, span := provider.Tracer("test").Start(t.Context(), "noop")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
}
