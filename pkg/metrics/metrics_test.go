package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/metrics"
)

func TestMountExposesDomainCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := configs.Default().Metrics
	cfg.Enabled = true
	cfg.RuntimeMetrics = false

	require.NoError(t, metrics.InitMetrics(cfg))
	require.NoError(t, metrics.InitMetrics(cfg))

	metrics.ImportsTotal.WithLabelValues("img", metrics.OutcomeImported).Inc()
	metrics.SyncItemsTotal.WithLabelValues("accepted").Add(2)

	engine := gin.New()
	metrics.Mount(cfg, engine)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `aupat_imports_total{kind="img",outcome="imported"}`)
	assert.Contains(t, w.Body.String(), `aupat_sync_push_items_total{outcome="accepted"} 2`)
}

func TestMountDisabled(t *testing.T) {
	engine := gin.New()
	metrics.Mount(configs.MetricsConfig{Enabled: false, Path: "/metrics"}, engine)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
