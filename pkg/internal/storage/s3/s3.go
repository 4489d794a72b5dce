// Package s3 处理归档镜像到 S3/MinIO 的操作. 镜像对象的 key 等于归档相对路径.
package s3

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	nlog "github.com/bizzlechizzle/aupat/pkg/log"
)

// Client 包装 MinIO 客户端.
type Client struct {
	*minio.Client

	cfg configs.S3Config
}

// New 初始化 MinIO 客户端，若 bucket 不存在则尝试创建.
func New(ctx context.Context, cfg configs.S3Config) (*Client, error) {
	endpoint := cfg.Endpoint
	// 允许用户传完整 schema endpoint（http:// 或 https://）
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			cfg.UseSSL = true
		}
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	cli.SetAppInfo(configs.AppName, configs.AppVersion)

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}

	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}

		nlog.Logger().Info().Str("bucket", cfg.Bucket).Msg("bucket created")
	}

	nlog.Logger().Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.Bucket).Msg("s3 connected")

	return &Client{Client: cli, cfg: cfg}, nil
}

// ObjectKey 把归档相对路径转换为对象 key.
func (c *Client) ObjectKey(archivePath string) string {
	return ObjectKey(c.cfg.KeyPrefix, archivePath)
}

// ObjectKey 拼接前缀与归档相对路径，统一使用正斜杠.
func ObjectKey(prefix, archivePath string) string {
	return path.Join(prefix, filepath.ToSlash(archivePath))
}

// Mirror 上传本地归档文件，key 为归档相对路径. sha256 写入对象元数据.
func (c *Client) Mirror(ctx context.Context, localPath, archivePath, sha256 string) error {
	key := c.ObjectKey(archivePath)

	_, err := c.FPutObject(ctx, c.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		UserMetadata: map[string]string{"sha256": sha256},
	})
	if err != nil {
		return fmt.Errorf("mirror %s: %w", key, err)
	}

	return nil
}

// HealthCheck 通过检查归档桶是否存在来验证连接.
func (c *Client) HealthCheck(ctx context.Context) error {
	ok, err := c.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("bucket %s missing", c.cfg.Bucket)
	}

	return nil
}

// Close 关闭 S3 客户端连接（无实际操作，接口兼容）.
func (c *Client) Close() error {
	return nil
}

// GetConfig 返回创建客户端时的配置.
func (c *Client) GetConfig() configs.S3Config {
	return c.cfg
}
