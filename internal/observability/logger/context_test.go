package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEnsureCorrelationIDIsStable(t *testing.T) {
	ctx, first := EnsureCorrelationID(context.Background())
	require.NotEmpty(t, first)

	ctx, second := EnsureCorrelationID(ctx)
	assert.Equal(t, first, second)
	assert.Equal(t, first, CorrelationIDFromContext(ctx))
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithActorContext(ctx, "admin", "42")
	ctx, cid := EnsureCorrelationID(ctx)

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, cid, fields["correlation_id"])
	assert.Equal(t, "admin", fields["actor_type"])
	assert.Equal(t, "42", fields["actor_id"])
}

func TestWithRequestIDIgnoresBlank(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  ")
	assert.Empty(t, RequestIDFromContext(ctx))
}

func TestGinMiddlewareKeepsUpstreamIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))

	var seenCorrelation, seenRequest string
	r.GET("/orders/:number", func(c *gin.Context) {
		seenCorrelation = CorrelationIDFromContext(c.Request.Context())
		seenRequest = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/MEM-1001", nil)
	req.Header.Set("X-Request-Id", "req-9")
	req.Header.Set("X-Correlation-Id", "corr-9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "corr-9", seenCorrelation)
	assert.Equal(t, "req-9", seenRequest)
	assert.Equal(t, "corr-9", w.Header().Get("X-Correlation-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/MEM-1002", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.NotEmpty(t, w.Header().Get("X-Correlation-Id"))
}
