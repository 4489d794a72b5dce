package app

import (
	"context"
	"fmt"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/field"
	"github.com/bizzlechizzle/aupat/pkg/internal/jobs"
	"github.com/bizzlechizzle/aupat/pkg/log"
	"github.com/bizzlechizzle/aupat/pkg/scheduler"
)

// Field 现场设备运行时.
type Field struct {
	Store  *field.Store
	Client *field.Client

	config configs.FieldConfig
}

// NewField 打开本地库并创建同步客户端.
func NewField(ctx context.Context, cfg configs.FieldConfig) (*Field, error) {
	store, err := field.OpenStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	device, err := field.DeviceID(ctx, store, cfg.DeviceID)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("resolve device id: %w", err)
	}

	client, err := field.New(store, field.NewHTTPTransport(cfg, device, nil), cfg, device)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Field{Store: store, Client: client, config: cfg}, nil
}

// Run 按 field.sync_interval 周期同步，直到 ctx 结束. 退出时等待进行中的批次完成.
func (f *Field) Run(ctx context.Context) error {
	sched, err := scheduler.NewScheduler()
	if err != nil {
		return err
	}

	if err := jobs.RegisterFieldJobs(sched, f.Client, f.config.GetSyncInterval()); err != nil {
		_ = sched.Stop()
		return err
	}

	sched.Start()

	log.Logger().Info().
		Str("device", f.Client.Device()).
		Str("server", f.config.ServerURL).
		Dur("every", f.config.GetSyncInterval()).
		Msg("field sync running")

	<-ctx.Done()

	log.Logger().Info().Msg("stopping field sync")

	return sched.Stop()
}

// Close 关闭本地库.
func (f *Field) Close() error {
	return f.Store.Close()
}
