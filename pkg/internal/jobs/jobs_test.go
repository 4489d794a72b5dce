package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/scheduler"
)

func TestRegisterServerJobs(t *testing.T) {
	sched, err := scheduler.NewScheduler()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Stop() })

	cfg := configs.Default().Archive
	cfg.Root = t.TempDir()

	require.NoError(t, RegisterServerJobs(sched, cfg))

	info, err := sched.GetJobInfoByName(JobStagingCleanup)
	require.NoError(t, err)
	assert.Equal(t, cfg.StagingCleanupCron, info.CronExpr)

	assert.Error(t, RegisterServerJobs(nil, cfg))
}

func TestStagingCleanupRemovesStaleFiles(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, "push-stale.part")
	fresh := filepath.Join(dir, "push-fresh.part")

	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("y"), 0o600))

	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	require.NoError(t, runStagingCleanup(context.Background(), dir, time.Hour))

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}

func TestRegisterFieldJobsRequiresClient(t *testing.T) {
	sched, err := scheduler.NewScheduler()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Stop() })

	assert.Error(t, RegisterFieldJobs(sched, nil, time.Minute))
}
