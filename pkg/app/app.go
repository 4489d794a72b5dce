// Package app 提供应用程序的初始化和运行: 权威库服务与现场设备客户端.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/handle"
	"github.com/bizzlechizzle/aupat/pkg/internal/ident"
	"github.com/bizzlechizzle/aupat/pkg/internal/importer"
	"github.com/bizzlechizzle/aupat/pkg/internal/jobs"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/router"
	"github.com/bizzlechizzle/aupat/pkg/internal/service"
	"github.com/bizzlechizzle/aupat/pkg/internal/storage"
	"github.com/bizzlechizzle/aupat/pkg/log"
	"github.com/bizzlechizzle/aupat/pkg/metrics"
	"github.com/bizzlechizzle/aupat/pkg/queue"
	"github.com/bizzlechizzle/aupat/pkg/scheduler"
	"github.com/bizzlechizzle/aupat/pkg/tracing"
)

// Bootstrap 初始化日志、追踪与监控. 配置需已加载.
func Bootstrap(cfg *configs.AppConfig) error {
	log.Init(cfg.Log, cfg.Server.Debug)

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	// 初始化追踪
	if err := tracing.InitTracer(cfg.Tracing); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	// 初始化监控
	if err := metrics.InitMetrics(cfg.Metrics); err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	return nil
}

// App 权威库运行时. 所有组件在 New 中构造一次并向下传递.
type App struct {
	Storage   *storage.Manager
	Pipeline  *importer.Pipeline
	Sync      *service.SyncService
	Locations *service.LocationService

	config *configs.AppConfig
}

// New 打开存储、迁移表结构、以库中最大修订号启动修订时钟并组装服务.
func New(ctx context.Context, cfg *configs.AppConfig) (*App, error) {
	mgr, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a, err := assemble(ctx, cfg, mgr)
	if err != nil {
		_ = mgr.Close()
		return nil, err
	}

	return a, nil
}

func assemble(ctx context.Context, cfg *configs.AppConfig, mgr *storage.Manager) (*App, error) {
	if err := mgr.DB.Migrate(ctx, model.All()...); err != nil {
		return nil, err
	}

	gdb := mgr.DB.GetDB()

	clock := model.NewRevisionClock()
	if err := clock.Seed(ctx, gdb); err != nil {
		return nil, fmt.Errorf("seed revision clock: %w", err)
	}

	ids := ident.New(cfg.Archive.IDCollisionWidth, cfg.Archive.IDMaxRetries)
	events := queue.NewEvents(mgr.MQ, cfg.Events)

	var mirror importer.Mirror
	if mgr.S3 != nil {
		mirror = mgr.S3
	}

	pipeline, err := importer.New(importer.Deps{
		DB:     gdb,
		KV:     mgr.KV,
		Events: events,
		Mirror: mirror,
		Clock:  clock,
		IDs:    ids,
		Config: cfg.Archive,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Storage:  mgr,
		Pipeline: pipeline,
		Sync: service.NewSyncService(service.SyncDeps{
			DB:         gdb,
			Pipeline:   pipeline,
			IDs:        ids,
			Clock:      clock,
			Events:     events,
			Config:     cfg.Sync,
			StagingDir: cfg.Archive.StagingPath(),
		}),
		Locations: service.NewLocationService(gdb, ids, clock),
		config:    cfg,
	}, nil
}

// Handler 返回装配好的 gin 引擎. sched 可为空.
func (a *App) Handler(sched *scheduler.Scheduler) *gin.Engine {
	return router.New(a.config, handle.New(handle.Deps{
		Sync:        a.Sync,
		Locations:   a.Locations,
		Storage:     a.Storage,
		Scheduler:   sched,
		ArchiveRoot: a.Pipeline.Root(),
	}))
}

// Serve 启动调度器与 HTTP 服务，ctx 结束后在 server.shutdown_timeout 内优雅退出.
func (a *App) Serve(ctx context.Context) error {
	l := log.Logger()

	sched, err := scheduler.NewScheduler()
	if err != nil {
		return err
	}

	if err := jobs.RegisterServerJobs(sched, a.config.Archive); err != nil {
		_ = sched.Stop()
		return err
	}

	sched.Start()

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.config.Server.Host, strconv.Itoa(a.config.Server.Port)),
		Handler:           a.Handler(sched),
		ReadHeaderTimeout: a.config.Server.GetTimeoutDuration(),
		ReadTimeout:       a.config.Server.GetTimeoutDuration(),
		WriteTimeout:      a.config.Server.GetTimeoutDuration(),
	}

	errCh := make(chan error, 1)

	go func() {
		l.Info().Str("addr", srv.Addr).Str("archive", a.Pipeline.Root()).Msg("http server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	var serveErr error

	select {
	case <-ctx.Done():
		l.Info().Msg("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.Server.GetShutdownTimeout())
	defer cancel()

	return errors.Join(
		serveErr,
		srv.Shutdown(shutdownCtx),
		sched.Stop(),
		tracing.ShutdownTracer(shutdownCtx),
	)
}

// Close 释放存储资源.
func (a *App) Close() error {
	return a.Storage.Close()
}
