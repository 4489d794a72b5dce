// Package jobs 负责注册与实现业务定时任务（基于 scheduler）.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
	"github.com/bizzlechizzle/aupat/pkg/internal/field"
	"github.com/bizzlechizzle/aupat/pkg/internal/service"
	"github.com/bizzlechizzle/aupat/pkg/log"
	"github.com/bizzlechizzle/aupat/pkg/scheduler"
)

// RegisterServerJobs 配置权威库的定时任务:
//   - 按 archive.staging_cleanup_cron 清理过期的推送暂存文件
func RegisterServerJobs(sched *scheduler.Scheduler, cfg configs.ArchiveConfig) error {
	if sched == nil {
		return fmt.Errorf("scheduler is nil")
	}

	dir := cfg.StagingPath()
	maxAge := cfg.StagingMaxAge

	return sched.AddCron(JobStagingCleanup, cfg.StagingCleanupCron, func(ctx context.Context) error {
		return runStagingCleanup(ctx, dir, maxAge)
	})
}

func runStagingCleanup(ctx context.Context, dir string, maxAge time.Duration) error {
	l := log.Logger().With().Str("job", JobStagingCleanup).Logger()

	n, err := service.CleanStaging(ctx, dir, maxAge, time.Now())
	if err != nil {
		l.Error().Err(err).Str("dir", dir).Msg("staging cleanup failed")
		return err
	}

	if n > 0 {
		l.Info().Int("removed", n).Dur("max_age", maxAge).Msg("removed stale staging files")
	}

	return nil
}

// RegisterFieldJobs 把同步周期注册为间隔任务，启动时立即执行一次.
// 任务以单例模式运行，上一周期未结束时顺延.
func RegisterFieldJobs(sched *scheduler.Scheduler, client *field.Client, every time.Duration) error {
	if sched == nil {
		return fmt.Errorf("scheduler is nil")
	}

	if client == nil {
		return fmt.Errorf("field client is nil")
	}

	return sched.AddInterval(JobFieldSync, every, true, func(ctx context.Context) error {
		return runFieldSync(ctx, client)
	})
}

func runFieldSync(ctx context.Context, client *field.Client) error {
	l := log.Logger().With().Str("job", JobFieldSync).Str("device", client.Device()).Logger()

	report, err := client.Sync(ctx)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		l.Info().Msg("sync cycle interrupted by shutdown")
		return nil
	case errs.Retryable(err):
		// 离线是常态，队列保留到下个周期
		l.Warn().Err(err).Int("pushed", report.Pushed).Msg("server unreachable, will retry")
		return nil
	default:
		l.Error().Err(err).Msg("sync cycle failed")
		return err
	}
}
