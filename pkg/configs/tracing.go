package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultTracingExporter     = "otlp-http"
	DefaultTracingEndpoint     = "http://localhost:4318"
	DefaultTracingBatchTimeout = 5 * time.Second
	DefaultTracingMaxBatch     = 512
	DefaultTracingMaxQueue     = 2048
)

// TracingConfig OpenTelemetry 追踪配置. 导入流水线与 HTTP 请求各自产生 span.
type TracingConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	ServiceName    string            `mapstructure:"service_name"`
	ServiceVersion string            `mapstructure:"service_version"`
	ExporterType   string            `mapstructure:"exporter_type"   rule:"omitempty,oneof=otlp-http otlp-grpc zipkin"`
	Endpoint       string            `mapstructure:"endpoint"`
	SampleRate     float64           `mapstructure:"sample_rate"     rule:"min=0,max=1"`
	BatchTimeout   time.Duration     `mapstructure:"batch_timeout"`
	MaxBatchSize   int               `mapstructure:"max_batch_size"  rule:"min=0"`
	MaxQueueSize   int               `mapstructure:"max_queue_size"  rule:"min=0"`
	ResourceLabels map[string]string `mapstructure:"resource_labels"` // 附加到 resource 的属性，如 site=field-office
}

func (c *TracingConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", AppName)
	v.SetDefault("tracing.service_version", AppVersion)
	v.SetDefault("tracing.exporter_type", DefaultTracingExporter)
	v.SetDefault("tracing.endpoint", DefaultTracingEndpoint)
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.batch_timeout", DefaultTracingBatchTimeout)
	v.SetDefault("tracing.max_batch_size", DefaultTracingMaxBatch)
	v.SetDefault("tracing.max_queue_size", DefaultTracingMaxQueue)
}
