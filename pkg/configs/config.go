// Package configs 管理应用程序配置，包括数据库、归档目录、同步和队列的配置信息.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv）并启用热重载.
//
// Example:
//
//	err := configs.InitConfig("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	config := configs.GetConfig()
//	fmt.Println(config.Server.Port)
//
// Example accessing archive config:
//
//	config := configs.GetConfig()
//	root := config.Archive.Root
//	fmt.Println("archive root:", root)
//
// Example accessing field client config:
//
//	config := configs.GetConfig()
//	interval := config.Field.GetSyncInterval()
//	fmt.Println("sync every", interval)
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/bizzlechizzle/aupat/pkg/rule"
)

// AppName 应用名称，同时用作环境变量前缀.
const (
	AppName    = "aupat"
	AppVersion = "0.4.0"
	EnvPrefix  = "AUPAT"
)

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		Server         ServerConfig         `mapstructure:"server"`          // ServerConfig 服务器端口、超时等
		DB             DBConfig             `mapstructure:"db"`              // DBConfig 权威库或现场设备本地库
		Archive        ArchiveConfig        `mapstructure:"archive"`         // ArchiveConfig 归档目录与导入并发
		Sync           SyncConfig           `mapstructure:"sync"`            // SyncConfig 服务端同步参数
		Field          FieldConfig          `mapstructure:"field"`           // FieldConfig 现场设备同步客户端
		KV             KVConfig             `mapstructure:"kv"`              // KVConfig 哈希索引缓存
		MQ             MQConfig             `mapstructure:"mq"`              // MQConfig 事件总线
		S3             S3Config             `mapstructure:"s3"`              // S3Config 归档镜像
		Log            LogConfig            `mapstructure:"log"`             // LogConfig 日志
		Metrics        MetricsConfig        `mapstructure:"metrics"`         // MetricsConfig 监控
		Tracing        TracingConfig        `mapstructure:"tracing"`         // TracingConfig 链路追踪
		RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`      // RateLimitConfig 限流
		CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"` // CircuitBreakerConfig 熔断
		Events         EventsConfig         `mapstructure:"events"`          // EventsConfig 事件开关
		Auth           AuthConfig           `mapstructure:"auth"`            // AuthConfig 设备认证
	}
)

var (
	// globalConfig 全局配置实例.
	globalConfig AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
	mu       sync.RWMutex
)

// InitConfig 加载应用程序配置，支持多种格式(yaml、json、toml、dotenv)并启用热重载.
// path 为空或不存在配置文件时仅使用默认值与环境变量.
func InitConfig(path string) error {
	v := viper.New()
	SetDefaults(v)

	explicit := false

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		v.SetConfigFile(path)

		explicit = true
	} else if path != "" {
		v.SetConfigName("config")
		v.AddConfigPath(path)
		v.AddConfigPath(filepath.Join(path, "configs"))

		for _, ext := range []string{"yaml", "yml", "json", "toml", "env", "dotenv"} {
			cfg := filepath.Join(path, "config."+ext)
			if _, err := os.Stat(cfg); err == nil {
				v.SetConfigFile(cfg)

				explicit = true

				break
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	mu.Lock()
	globalConfig = cfg
	appViper = v
	mu.Unlock()

	reloadConfigs(v, cfg.Server.ReloadConfig)

	return nil
}

// SetDefaults 设置所有配置的默认值.
func SetDefaults(v *viper.Viper) {
	var (
		server  ServerConfig
		db      DBConfig
		archive ArchiveConfig
		syncCfg SyncConfig
		field   FieldConfig
		kv      KVConfig
		mq      MQConfig
		s3      S3Config
		logCfg  LogConfig
		metrics MetricsConfig
		tracing TracingConfig
		rl      RateLimitConfig
		cb      CircuitBreakerConfig
		events  EventsConfig
		auth    AuthConfig
	)

	server.setDefaults(v)
	db.setDefaults(v)
	archive.setDefaults(v)
	syncCfg.setDefaults(v)
	field.setDefaults(v)
	kv.setDefaults(v)
	mq.setDefaults(v)
	s3.setDefaults(v)
	logCfg.setDefaults(v)
	metrics.setDefaults(v)
	tracing.setDefaults(v)
	rl.setDefaults(v)
	cb.setDefaults(v)
	events.setDefaults(v)
	auth.setDefaults(v)
}

// Default 返回只包含默认值的配置，测试与嵌入场景使用.
func Default() *AppConfig {
	v := viper.New()
	SetDefaults(v)

	var cfg AppConfig

	_ = v.Unmarshal(&cfg)

	return &cfg
}

// Validate 使用 rule 标签校验配置.
func (c *AppConfig) Validate() error {
	return rule.ValidateStruct(c)
}

func reloadConfigs(v *viper.Viper, isHotReload bool) {
	if !isHotReload || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Println("Config file changed:", e.Name)

		var cfg AppConfig
		if err := v.Unmarshal(&cfg); err != nil {
			fmt.Printf("Error reloading config: %v\n", err)
			return
		}

		if err := cfg.Validate(); err != nil {
			fmt.Printf("Rejected reloaded config: %v\n", err)
			return
		}

		mu.Lock()
		globalConfig = cfg
		mu.Unlock()
	})
	v.WatchConfig()
}

// GetConfig 返回全局配置实例的副本.
func GetConfig() *AppConfig {
	mu.RLock()
	defer mu.RUnlock()

	cfg := globalConfig

	return &cfg
}

// GetViper 返回全局 Viper 实例.
func GetViper() *viper.Viper {
	mu.RLock()
	defer mu.RUnlock()

	return appViper
}
