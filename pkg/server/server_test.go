package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bashkirian/kpi-engine/internal/config"
	"github.com/bashkirian/kpi-engine/internal/engine"
	"github.com/bashkirian/kpi-engine/internal/storage"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Port: "0", ReadTimeoutSec: 5, WriteTimeoutSec: 5},
		Storage: config.StorageConfig{Driver: "memory"},
		Engine:  config.EngineConfig{SLAMinutes: 15, Granularity: "day", Limit: 10, RankLimit: 50, Timezone: "UTC"},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, err := NewServerWithStorage(testConfig(), storage.NewInMemoryStorage(), zaptest.NewLogger(t))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

// Сценарий: назначение, передача счёта, заказы, оплата, анализ официантов
func TestKPIFlow(t *testing.T) {
	ts := newTestServer(t)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	steps := []struct {
		path string
		body any
	}{
		{"/api/v1/intervals", map[string]any{"subject_id": "tab-1", "entity_id": "ana", "assigned_at": day.Add(18 * time.Hour)}},
		{"/api/v1/events", models.Event{SubjectID: "tab-1", Kind: models.KindOrderCreated, Amount: 300, GroupKey: "dish-1", Timestamp: day.Add(18*time.Hour + 10*time.Minute)}},
		{"/api/v1/intervals", map[string]any{"subject_id": "tab-1", "entity_id": "ben", "assigned_at": day.Add(19 * time.Hour)}},
		{"/api/v1/events", models.Event{SubjectID: "tab-1", Kind: models.KindTabPaid, Amount: 300, GroupKey: "card", Timestamp: day.Add(20 * time.Hour)}},
	}
	for _, s := range steps {
		resp := post(t, ts.URL+s.path, s.body)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode, s.path)
	}

	resp := post(t, ts.URL+"/api/v1/intervals/tab-1/close", map[string]any{"removed_at": day.Add(21 * time.Hour)})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(ts.URL + "/api/v1/domains/finance?from=2026-03-02T00:00:00Z&to=2026-03-03T00:00:00Z")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var res engine.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 300.0, res.KPIs["revenue"])
	require.NotEmpty(t, res.Breakdowns.RevenueByWaiter)
	// ответственный на момент оплаты, а не тот, кто открыл счёт
	assert.Equal(t, "ben", res.Breakdowns.RevenueByWaiter[0].Key)
}

func TestRequestIDPropagation(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/overview?preset=custom", nil)
	req.Header.Set("X-Request-ID", "trace-7")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "trace-7", resp.Header.Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "trace-7", body["request_id"])
	assert.Equal(t, "INVALID_REQUEST", body["code"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `kpi_http_requests_total{method="GET",route="/health",status="200"}`), "health request must be counted")
}

func TestNewServer_UnsupportedDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Driver = "cassandra"

	_, err := NewServer(cfg, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, storage.ErrUnsupportedDriver)
}
