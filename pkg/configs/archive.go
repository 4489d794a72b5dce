package configs

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultArchiveRoot          = "archive"   // 归档根目录
	DefaultArchiveStagingDir    = ".staging"  // 推送媒体的暂存目录（相对归档根目录）
	DefaultImportWorkers        = 4           // 并行导入数
	DefaultIDCollisionWidth     = 12          // 标识符前缀唯一长度
	DefaultIDMaxRetries         = 100         // 标识符生成重试上限
	DefaultHashCacheTTL         = time.Hour   // 哈希索引缓存 TTL
	DefaultStagingMaxAge        = time.Hour   // 暂存文件最大保留时间
	DefaultStagingCleanupCron   = "*/15 * * * *"
	DefaultArchiveDirPerm       = 0o755
	DefaultArchiveFilePerm      = 0o644
	DefaultArchiveDeleteSource  = false
	DefaultArchiveMirrorEnabled = false
)

// ArchiveConfig 归档目录与导入流水线配置.
type ArchiveConfig struct {
	Root               string        `mapstructure:"root"                 rule:"required"`
	StagingDir         string        `mapstructure:"staging_dir"          rule:"required"`
	ImportWorkers      int           `mapstructure:"import_workers"       rule:"min=1,max=64"`
	IDCollisionWidth   int           `mapstructure:"id_collision_width"   rule:"min=4,max=36"`
	IDMaxRetries       int           `mapstructure:"id_max_retries"       rule:"min=1"`
	HashCacheTTL       time.Duration `mapstructure:"hash_cache_ttl"`
	StagingMaxAge      time.Duration `mapstructure:"staging_max_age"`
	StagingCleanupCron string        `mapstructure:"staging_cleanup_cron" rule:"required"`
	DeleteSource       bool          `mapstructure:"delete_source"`
	Mirror             bool          `mapstructure:"mirror"`
}

// StagingPath 返回暂存目录的绝对或相对路径.
func (c *ArchiveConfig) StagingPath() string {
	if filepath.IsAbs(c.StagingDir) {
		return c.StagingDir
	}

	return filepath.Join(c.Root, c.StagingDir)
}

func (c *ArchiveConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("archive.root", DefaultArchiveRoot)
	v.SetDefault("archive.staging_dir", DefaultArchiveStagingDir)
	v.SetDefault("archive.import_workers", DefaultImportWorkers)
	v.SetDefault("archive.id_collision_width", DefaultIDCollisionWidth)
	v.SetDefault("archive.id_max_retries", DefaultIDMaxRetries)
	v.SetDefault("archive.hash_cache_ttl", DefaultHashCacheTTL)
	v.SetDefault("archive.staging_max_age", DefaultStagingMaxAge)
	v.SetDefault("archive.staging_cleanup_cron", DefaultStagingCleanupCron)
	v.SetDefault("archive.delete_source", DefaultArchiveDeleteSource)
	v.SetDefault("archive.mirror", DefaultArchiveMirrorEnabled)
}
