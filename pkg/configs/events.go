package configs

import "github.com/spf13/viper"

// EventsConfig 控制事件发布的开关（全局与分主题）。
type EventsConfig struct {
	Enabled bool               `mapstructure:"enabled"` // 总开关
	Entity  EntityEventsConfig `mapstructure:"entity"`
	Sync    SyncEventsConfig   `mapstructure:"sync"`
}

// EntityEventsConfig 导入流水线事件开关。
type EntityEventsConfig struct {
	Imported     bool `mapstructure:"imported"`
	Duplicate    bool `mapstructure:"duplicate"`
	VerifyFailed bool `mapstructure:"verify_failed"`
}

// SyncEventsConfig 同步事件开关。
type SyncEventsConfig struct {
	Pushed   bool `mapstructure:"pushed"`
	Conflict bool `mapstructure:"conflict"`
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("events.enabled", true)

	v.SetDefault("events.entity.imported", true)
	v.SetDefault("events.entity.verify_failed", true)
	// 重复导入量可能很大，默认关闭
	v.SetDefault("events.entity.duplicate", false)

	v.SetDefault("events.sync.pushed", true)
	v.SetDefault("events.sync.conflict", true)
}
