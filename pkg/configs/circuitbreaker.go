package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// 服务端 API 熔断默认值. 归档盘或数据库故障时 5xx 会集中出现，
	// 打开后现场设备的同步请求立即得到 503 并进入退避.
	DefaultCBEnabled     = false
	DefaultCBFailureRate = 0.5
	DefaultCBMinRequests = 20
	DefaultCBInterval    = time.Minute
	DefaultCBOpenTimeout = 30 * time.Second
	DefaultCBHalfOpenMax = 5
)

// CircuitBreakerConfig 服务端 API 熔断配置.
type CircuitBreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	FailureRate float64       `mapstructure:"failure_rate"  rule:"gt=0,lte=1"` // 统计窗口内失败比例阈值
	MinRequests uint32        `mapstructure:"min_requests"  rule:"min=1"`      // 窗口内请求数不足时不熔断
	Interval    time.Duration `mapstructure:"interval"`                          // 关闭状态下计数清零周期，0 表示不清零
	OpenTimeout time.Duration `mapstructure:"open_timeout"  rule:"min=1ms"`    // 打开状态持续时间，之后半开
	HalfOpenMax uint32        `mapstructure:"half_open_max" rule:"min=1"`      // 半开状态放行的请求数
}

// ShouldTrip 按窗口内请求数与失败数判断是否打开.
func (c CircuitBreakerConfig) ShouldTrip(requests, failures uint32) bool {
	if requests == 0 || requests < c.MinRequests {
		return false
	}

	return float64(failures)/float64(requests) >= c.FailureRate
}

func (c *CircuitBreakerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("circuit_breaker.enabled", DefaultCBEnabled)
	v.SetDefault("circuit_breaker.failure_rate", DefaultCBFailureRate)
	v.SetDefault("circuit_breaker.min_requests", DefaultCBMinRequests)
	v.SetDefault("circuit_breaker.interval", DefaultCBInterval)
	v.SetDefault("circuit_breaker.open_timeout", DefaultCBOpenTimeout)
	v.SetDefault("circuit_breaker.half_open_max", DefaultCBHalfOpenMax)
}
