package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultSyncMaxBatchItems = 50               // 单次推送允许的最大实体数
	DefaultSyncMaxPullLimit  = 500              // 单次拉取上限
	DefaultSyncPullLimit     = 100              // 未指定 limit 时的默认值
	DefaultSyncNextAfter     = 5 * time.Minute  // 建议客户端下次同步的间隔
	DefaultSyncDeviceStripes = 64               // 设备串行锁分片数
	DefaultSyncMaxMediaBytes = 64 * 1024 * 1024 // 单个内联媒体解码后上限
)

// SyncConfig 权威库同步服务配置.
type SyncConfig struct {
	MaxBatchItems int           `mapstructure:"max_batch_items" rule:"min=1,max=1000"`
	MaxPullLimit  int           `mapstructure:"max_pull_limit"  rule:"min=1,max=10000"`
	PullLimit     int           `mapstructure:"pull_limit"      rule:"min=1,ltefield=MaxPullLimit"`
	NextSyncAfter time.Duration `mapstructure:"next_sync_after"`
	DeviceStripes int           `mapstructure:"device_stripes"  rule:"min=1,max=4096"`
	MaxMediaBytes int64         `mapstructure:"max_media_bytes" rule:"min=1"`
}

func (c *SyncConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("sync.max_batch_items", DefaultSyncMaxBatchItems)
	v.SetDefault("sync.max_pull_limit", DefaultSyncMaxPullLimit)
	v.SetDefault("sync.pull_limit", DefaultSyncPullLimit)
	v.SetDefault("sync.next_sync_after", DefaultSyncNextAfter)
	v.SetDefault("sync.device_stripes", DefaultSyncDeviceStripes)
	v.SetDefault("sync.max_media_bytes", DefaultSyncMaxMediaBytes)
}
