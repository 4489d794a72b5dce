// Package storage 聚合归档服务使用的存储资源：权威数据库、哈希索引 KV、事件总线与可选的 S3 镜像.
//
// Example:
//
//	mgr, err := storage.New(ctx, cfg)
//	if err != nil {
//		// 处理错误
//	}
//	defer mgr.Close()
//
//	db := mgr.GetDBClient()
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	dbc "github.com/bizzlechizzle/aupat/pkg/internal/storage/db"
	kvc "github.com/bizzlechizzle/aupat/pkg/internal/storage/kv"
	mqc "github.com/bizzlechizzle/aupat/pkg/internal/storage/mq"
	s3c "github.com/bizzlechizzle/aupat/pkg/internal/storage/s3"
	nlog "github.com/bizzlechizzle/aupat/pkg/log"
)

// Manager 聚合所有存储资源. S3 仅在 archive.mirror 开启时非 nil.
type Manager struct {
	DB *dbc.Client
	KV *kvc.Client
	MQ *mqc.Client
	S3 *s3c.Client
}

// New 按配置初始化存储资源，任一失败时关闭已打开的资源.
func New(ctx context.Context, cfg *configs.AppConfig) (*Manager, error) {
	m := &Manager{}

	var err error

	if m.DB, err = dbc.New(ctx, cfg.DB, cfg.Metrics.Enabled); err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	if m.KV, err = kvc.New(ctx, cfg.KV); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("init kv: %w", err)
	}

	if m.MQ, err = mqc.New(ctx, cfg.MQ, cfg.Metrics.Enabled); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("init mq: %w", err)
	}

	if cfg.Archive.Mirror {
		if m.S3, err = s3c.New(ctx, cfg.S3); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("init s3: %w", err)
		}
	}

	nlog.Logger().Info().Bool("mirror", m.S3 != nil).Msg("storage manager initialized")

	return m, nil
}

// GetS3Client 获取 S3 客户端.
func (m *Manager) GetS3Client() *s3c.Client {
	return m.S3
}

// GetDBClient 获取 DB 客户端.
func (m *Manager) GetDBClient() *dbc.Client {
	return m.DB
}

// Close 释放全部资源.
func (m *Manager) Close() error {
	var errs []error

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	if m.S3 != nil {
		errs = append(errs, m.S3.Close())
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}

	return errors.Join(errs...)
}
