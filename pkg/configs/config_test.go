package configs_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/aupat/pkg/configs"
)

// TestDefaultIsValid 默认配置必须通过 rule 校验.
func TestDefaultIsValid(t *testing.T) {
	cfg := configs.Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, configs.SQLite, cfg.DB.Type)
	assert.Equal(t, 12, cfg.Archive.IDCollisionWidth)
	assert.Equal(t, 100, cfg.Archive.IDMaxRetries)
	assert.Equal(t, configs.MQTypeGoChannel, cfg.MQ.Type)
	assert.Equal(t, configs.KVTypeMemory, cfg.KV.Type)
	assert.Equal(t, 2*time.Minute, cfg.Field.SyncInterval)
}

// TestInitConfigFromFile 从 YAML 文件加载并覆盖默认值.
func TestInitConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := []byte(`
server:
  port: 9191
archive:
  root: /srv/aupat
  import_workers: 2
field:
  device_id: tablet-01
  sync_interval: 45s
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	require.NoError(t, configs.InitConfig(dir))

	cfg := configs.GetConfig()
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "/srv/aupat", cfg.Archive.Root)
	assert.Equal(t, 2, cfg.Archive.ImportWorkers)
	assert.Equal(t, "tablet-01", cfg.Field.DeviceID)
	assert.Equal(t, 45*time.Second, cfg.Field.GetSyncInterval())
	assert.Equal(t, path, configs.GetViper().ConfigFileUsed())
}

// TestInitConfigRejectsInvalid 非法值在加载时被拒绝.
func TestInitConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")

	require.NoError(t, os.WriteFile(path, []byte("db:\n  type: oracle\n"), 0o600))

	err := configs.InitConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

// TestInitConfigEnvOverride 环境变量覆盖嵌套键.
func TestInitConfigEnvOverride(t *testing.T) {
	t.Setenv("AUPAT_FIELD_SERVER_URL", "http://archive.local:8080")

	require.NoError(t, configs.InitConfig(t.TempDir()))
	assert.Equal(t, "http://archive.local:8080", configs.GetConfig().Field.ServerURL)
}

// TestSQLiteDSN SQLite DSN 保留显式扩展名.
func TestSQLiteDSN(t *testing.T) {
	c := configs.DBConfig{Type: configs.SQLite, Database: "data/aupat"}
	assert.Equal(t, "data/aupat.db", c.GetDSN())

	c.Database = "/tmp/field.db"
	assert.Equal(t, "/tmp/field.db", c.GetDSN())

	c.Database = ":memory:"
	assert.Equal(t, ":memory:", c.GetDSN())
}

// TestStagingPath 暂存目录相对归档根目录.
func TestStagingPath(t *testing.T) {
	a := configs.ArchiveConfig{Root: "/srv/archive", StagingDir: ".staging"}
	assert.Equal(t, filepath.Join("/srv/archive", ".staging"), a.StagingPath())

	a.StagingDir = "/var/tmp/aupat"
	assert.Equal(t, "/var/tmp/aupat", a.StagingPath())
}

// TestCircuitBreakerShouldTrip 请求数不足时不打开，达到失败比例后打开.
func TestCircuitBreakerShouldTrip(t *testing.T) {
	cb := configs.Default().CircuitBreaker
	assert.Equal(t, 30*time.Second, cb.OpenTimeout)

	assert.False(t, cb.ShouldTrip(0, 0))
	assert.False(t, cb.ShouldTrip(19, 19))
	assert.False(t, cb.ShouldTrip(20, 9))
	assert.True(t, cb.ShouldTrip(20, 10))
}

// TestCircuitBreakerRejectsBadRate 失败比例必须落在 (0,1].
func TestCircuitBreakerRejectsBadRate(t *testing.T) {
	cfg := configs.Default()
	cfg.CircuitBreaker.FailureRate = 1.5
	require.Error(t, cfg.Validate())

	cfg.CircuitBreaker.FailureRate = 0
	require.Error(t, cfg.Validate())
}

// TestRedacted 打印用副本隐藏密钥，原配置不变.
func TestRedacted(t *testing.T) {
	cfg := configs.Default()
	cfg.DB.Password = "pg-secret"
	cfg.S3.SecretAccessKey = "s3-secret"
	cfg.Field.DeviceToken = "tablet-token"
	cfg.Auth.Devices = map[string]string{"tablet-01": "t1", "tablet-02": ""}

	r := cfg.Redacted()

	assert.Equal(t, "******", r.DB.Password)
	assert.Equal(t, "******", r.S3.SecretAccessKey)
	assert.Equal(t, "******", r.Field.DeviceToken)
	assert.Equal(t, "******", r.Auth.Devices["tablet-01"])
	assert.Empty(t, r.Auth.Devices["tablet-02"])
	assert.Empty(t, r.KV.Redis.Password)

	assert.Equal(t, "pg-secret", cfg.DB.Password)
	assert.Equal(t, "t1", cfg.Auth.Devices["tablet-01"])
}
