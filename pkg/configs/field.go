package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultFieldServerURL       = "http://localhost:8080"
	DefaultFieldDBPath          = "field.db"
	DefaultFieldSyncInterval    = 2 * time.Minute
	DefaultFieldRequestTimeout  = 30 * time.Second
	DefaultFieldProbeTimeout    = 3 * time.Second
	DefaultFieldBatchSize       = 10
	DefaultFieldMaxPullPages    = 20
	DefaultFieldPullLimit       = 100
	DefaultFieldBreakerFailures = 3
	DefaultFieldBreakerTimeout  = 30 * time.Second
)

// FieldConfig 现场设备同步客户端配置.
type FieldConfig struct {
	DeviceID        string        `mapstructure:"device_id"`
	ServerURL       string        `mapstructure:"server_url"       rule:"required,url"`
	DBPath          string        `mapstructure:"db_path"          rule:"required"`
	SyncInterval    time.Duration `mapstructure:"sync_interval"    rule:"min=1s"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  rule:"min=1ms"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"    rule:"min=1ms"`
	BatchSize       int           `mapstructure:"batch_size"       rule:"min=1,max=500"`
	MaxPullPages    int           `mapstructure:"max_pull_pages"   rule:"min=1"`
	PullLimit       int           `mapstructure:"pull_limit"       rule:"min=1"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" rule:"min=1"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
	DeviceToken     string        `mapstructure:"device_token"`
	Compress        bool          `mapstructure:"compress"` // 推送请求体 gzip 压缩，服务端需开启 server.gzip
}

// GetSyncInterval 返回同步间隔.
func (c *FieldConfig) GetSyncInterval() time.Duration {
	return c.SyncInterval
}

func (c *FieldConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("field.device_id", "")
	v.SetDefault("field.server_url", DefaultFieldServerURL)
	v.SetDefault("field.db_path", DefaultFieldDBPath)
	v.SetDefault("field.sync_interval", DefaultFieldSyncInterval)
	v.SetDefault("field.request_timeout", DefaultFieldRequestTimeout)
	v.SetDefault("field.probe_timeout", DefaultFieldProbeTimeout)
	v.SetDefault("field.batch_size", DefaultFieldBatchSize)
	v.SetDefault("field.max_pull_pages", DefaultFieldMaxPullPages)
	v.SetDefault("field.pull_limit", DefaultFieldPullLimit)
	v.SetDefault("field.breaker_failures", DefaultFieldBreakerFailures)
	v.SetDefault("field.breaker_timeout", DefaultFieldBreakerTimeout)
	v.SetDefault("field.device_token", "")
	v.SetDefault("field.compress", true)
}
