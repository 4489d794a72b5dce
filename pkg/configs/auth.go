package configs

import "github.com/spf13/viper"

// AuthConfig 控制现场设备认证：请求需携带 X-Device-ID，可选携带 X-Device-Token.
type AuthConfig struct {
	Enabled   bool              `mapstructure:"enabled"`    // 开启设备校验
	SkipPaths []string          `mapstructure:"skip_paths"` // 跳过认证的路径前缀
	Devices   map[string]string `mapstructure:"devices"`    // device_id -> token，空 token 表示只校验白名单
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.devices", map[string]string{})
	v.SetDefault("auth.skip_paths", []string{
		"/metrics",
		"/debug/pprof",
		"/api/v1/health",
	})
}
