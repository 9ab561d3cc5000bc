package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recording-worker/internal/api/handler"
	"github.com/cuongbtq/recording-worker/internal/metrics"
	"github.com/cuongbtq/recording-worker/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopPublisher struct{}

func (nopPublisher) PublishWithRetry(context.Context, []byte, string) error { return nil }
func (nopPublisher) QueueName() string                                      { return "recordings" }

type emptyStore struct{}

func (emptyStore) GetRun(context.Context, string) (*storage.Recording, error) {
	return nil, storage.ErrRunNotFound
}

func (emptyStore) ListRuns(context.Context, storage.RunFilter) ([]storage.Recording, error) {
	return nil, nil
}

func testDeps(checks map[string]handler.HealthCheck) *handler.Dependencies {
	return &handler.Dependencies{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Service:   "recordings-api",
		Store:     emptyStore{},
		Publisher: nopPublisher{},
		Checks:    checks,
	}
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		r := SetupRouter(testDeps(map[string]handler.HealthCheck{
			"rabbitmq": func(context.Context) error { return nil },
			"database": func(context.Context) error { return nil },
		}))

		w := get(r, "/health")
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "recordings-api", body["service"])
		assert.Equal(t, map[string]any{"rabbitmq": "ok", "database": "ok"}, body["checks"])
	})

	t.Run("unhealthy dependency", func(t *testing.T) {
		r := SetupHealthRouter(testDeps(map[string]handler.HealthCheck{
			"rabbitmq": func(context.Context) error { return errors.New("not connected to RabbitMQ") },
		}))

		w := get(r, "/health")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "unhealthy", body["status"])
		assert.Equal(t, map[string]any{"rabbitmq": "not connected to RabbitMQ"}, body["checks"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.ObserveDelivery("acknowledged")

	r := SetupHealthRouter(testDeps(nil))
	w := get(r, "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "recorder_deliveries_total")
}

func TestHealthRouterHasNoAPIRoutes(t *testing.T) {
	r := SetupHealthRouter(testDeps(nil))
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/recordings").Code)
}

func TestRecordingRoutes(t *testing.T) {
	r := SetupRouter(testDeps(nil))

	assert.Equal(t, http.StatusOK, get(r, "/api/v1/recordings").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/recordings/7c1f0a52-8a55-4c57-9d0f-3c5e1b7f2a10").Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recordings",
		strings.NewReader(`{"url":"https://host/play","duration":30,"vid":"7"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := SetupRouter(testDeps(nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/recordings", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
