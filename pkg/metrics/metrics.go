// Package metrics 提供监控指标功能.
// 支持Prometheus标准，收集 HTTP、导入流水线与同步指标.
//
// Example:
//
//	if err := metrics.InitMetrics(cfg.Metrics); err != nil {
//		log.Fatal(err)
//	}
//
//	metrics.ImportsTotal.WithLabelValues("img", metrics.OutcomeImported).Inc()
package metrics

import (
	"net/http"
	_ "net/http/pprof" // 自动注册pprof端点
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bizzlechizzle/aupat/pkg/configs"
)

// 导入结果标签.
const (
	OutcomeImported  = "imported"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// 全局指标变量.
var (
	// RequestCounter HTTP请求计数器.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aupat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration HTTP请求持续时间.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aupat_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// ImportsTotal 导入结果计数.
	ImportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aupat_imports_total",
			Help: "Imports by entity kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// ImportedBytes 新落盘的字节数.
	ImportedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aupat_imported_bytes_total",
			Help: "Bytes placed into the archive",
		},
	)

	// ImportDuration 单次导入耗时.
	ImportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aupat_import_duration_seconds",
			Help:    "Import pipeline duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"kind"},
	)

	// SyncItemsTotal 推送条目结果计数.
	SyncItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aupat_sync_push_items_total",
			Help: "Pushed entities by outcome",
		},
		[]string{"outcome"},
	)

	// SyncPulledTotal 拉取返回的实体数.
	SyncPulledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aupat_sync_pulled_entities_total",
			Help: "Entities served by pull",
		},
	)

	// registry Prometheus注册表.
	registry = prometheus.NewRegistry()
	initOnce sync.Once
)

// InitMetrics 初始化Metrics，重复调用只注册一次.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	var err error

	initOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(prometheus.Labels(config.Labels), registry)

		if config.RuntimeMetrics {
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}

		for _, c := range []prometheus.Collector{
			RequestCounter, RequestDuration,
			ImportsTotal, ImportedBytes, ImportDuration,
			SyncItemsTotal, SyncPulledTotal,
		} {
			if e := reg.Register(c); e != nil {
				err = e
				return
			}
		}
	})

	return err
}

// Handler 返回合并本包注册表与默认注册表（gorm、watermill 插件）的 HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(
		prometheus.Gatherers{registry, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{},
	)
}

// Mount 在 engine 上挂载 Metrics 与可选的 pprof 端点.
func Mount(config configs.MetricsConfig, engine *gin.Engine) {
	if !config.Enabled {
		return
	}

	engine.GET(config.Path, gin.WrapH(Handler()))

	if config.Pprof {
		engine.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
	}
}

// GetRegistry 获取Prometheus注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}
