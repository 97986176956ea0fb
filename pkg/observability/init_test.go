package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbkit/pkg/observability"
)

func TestInit_NoopWhenNoEndpoint(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Logger)

	// Creating a span should work even in no-op mode.
	_, span := providers.Tracer.Start(context.Background(), "test-op")
	span.End()

	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_LoggerWritesConfiguredFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true
	cfg.LogOutput = &buf
	cfg.LogLevel = slog.LevelWarn
	cfg.Environment = "test"
	cfg.Mode = observability.ModeFuzz
	cfg.ServiceVersion = "1.2.3"

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	providers.Logger.Info("dropped")
	providers.Logger.Warn("kept", "keys", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "rbkit", record["service"])
	assert.Equal(t, "fuzz", record["mode"])
	assert.Equal(t, "test", record["env"])
	assert.InDelta(t, 3, record["keys"], 0)
}

func TestInit_PrometheusReader(t *testing.T) {
	t.Parallel()

	exporter, err := observability.NewPrometheusExporter()
	require.NoError(t, err)

	providers, err := observability.Init(observability.DefaultConfig(), exporter.Reader)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	ops, err := observability.NewOpMetrics(providers.Meter)
	require.NoError(t, err)
	ops.RecordOp(context.Background(), "insert", observability.StatusOK, 0)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()

	exporter.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	body := rec.Body.String()
	assert.Contains(t, body, "target_info")
	assert.Contains(t, body, "rbkit_ops_total")
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	assert.Nil(t, observability.ParseOTLPHeaders(""))
	assert.Nil(t, observability.ParseOTLPHeaders("garbage"))
	assert.Equal(t,
		map[string]string{"api-key": "secret", "tenant": "rb"},
		observability.ParseOTLPHeaders("api-key=secret, tenant = rb"),
	)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, observability.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, observability.ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, observability.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, observability.ParseLevel("chatty"))
}
