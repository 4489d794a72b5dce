package field

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/handle"
	"github.com/bizzlechizzle/aupat/pkg/internal/ident"
	"github.com/bizzlechizzle/aupat/pkg/internal/importer"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/router"
	"github.com/bizzlechizzle/aupat/pkg/internal/service"
	"github.com/bizzlechizzle/aupat/pkg/internal/storage"
	"github.com/bizzlechizzle/aupat/pkg/internal/storage/db"
)

type archiveServer struct {
	url  string
	db   *gorm.DB
	root string
}

// startArchive 启动完整的权威库: gin 路由、同步服务与导入流水线.
func startArchive(t *testing.T) *archiveServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	dir := t.TempDir()

	cfg := configs.Default()
	cfg.Server.Debug = true
	cfg.DB.Database = filepath.Join(dir, "archive.db")
	cfg.Archive.Root = filepath.Join(dir, "archive")

	client, err := db.New(ctx, cfg.DB, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate(ctx, model.All()...))

	clock := model.NewRevisionClock()
	require.NoError(t, clock.Seed(ctx, client.DB))

	ids := ident.New(cfg.Archive.IDCollisionWidth, cfg.Archive.IDMaxRetries)

	pipeline, err := importer.New(importer.Deps{DB: client.DB, Clock: clock, IDs: ids, Config: cfg.Archive})
	require.NoError(t, err)

	h := handle.New(handle.Deps{
		Sync: service.NewSyncService(service.SyncDeps{
			DB:         client.DB,
			Pipeline:   pipeline,
			IDs:        ids,
			Clock:      clock,
			Config:     cfg.Sync,
			StagingDir: cfg.Archive.StagingPath(),
		}),
		Locations:   service.NewLocationService(client.DB, ids, clock),
		Storage:     &storage.Manager{DB: client},
		ArchiveRoot: cfg.Archive.Root,
	})

	srv := httptest.NewServer(router.New(cfg, h))
	t.Cleanup(srv.Close)

	return &archiveServer{url: srv.URL, db: client.DB, root: cfg.Archive.Root}
}

func fieldDevice(t *testing.T, serverURL, deviceID string) (*Client, *Store) {
	t.Helper()

	s := openStore(t, filepath.Join(t.TempDir(), deviceID+".db"))

	cfg := configs.Default().Field
	cfg.ServerURL = serverURL
	cfg.RequestTimeout = 10 * time.Second

	c, err := New(s, NewHTTPTransport(cfg, deviceID, nil), cfg, deviceID)
	require.NoError(t, err)

	return c, s
}

func TestFieldCaptureReachesArchive(t *testing.T) {
	ctx := context.Background()
	srv := startArchive(t)

	tablet, _ := fieldDevice(t, srv.url, "tablet-1")
	phone, phoneStore := fieldDevice(t, srv.url, "phone-2")

	content := "\xff\xd8\xff\xe0 cohoes mill facade"
	locID, err := tablet.Capture(ctx, Capture{Location: mill, MediaPaths: []string{photo(t, "IMG_0001.JPG", content)}})
	require.NoError(t, err)

	report, err := tablet.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Zero(t, report.Rejected)

	var loc model.Location
	require.NoError(t, srv.db.Where("id = ?", locID).Take(&loc).Error)
	require.NotNil(t, loc.Latitude)
	require.NotNil(t, loc.Longitude)
	assert.InDelta(t, 42.81, *loc.Latitude, 1e-9)
	assert.InDelta(t, -73.94, *loc.Longitude, 1e-9)
	assert.Equal(t, "tablet-1", loc.DeviceID)
	assert.Equal(t, "cohoes-mill", loc.ShortName)

	var img model.Image
	require.NoError(t, srv.db.Where("location_id = ?", locID).Take(&img).Error)
	assert.True(t, img.Verified)
	assert.Equal(t, "IMG_0001.JPG", img.OriginalName)

	got, err := os.ReadFile(filepath.Join(srv.root, filepath.FromSlash(img.ArchivePath)))
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	// 另一台设备拉取到地点与图片
	report, err = phone.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pulled)
	assert.Positive(t, report.Watermark)

	cached, err := phoneStore.Cached(ctx, locID)
	require.NoError(t, err)

	e, err := cached.Entity()
	require.NoError(t, err)
	require.NotNil(t, e.Location)
	assert.InDelta(t, 42.81, *e.Location.Latitude, 1e-9)

	imgCached, err := phoneStore.Cached(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.KindImage), imgCached.Kind)
	assert.Equal(t, locID, imgCached.LocationID)

	// 重复同步不再推送也不再拉取
	report, err = tablet.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Pushed)
}

func TestStaleFieldEditLosesToNewerEdit(t *testing.T) {
	ctx := context.Background()
	srv := startArchive(t)

	tablet, _ := fieldDevice(t, srv.url, "tablet-1")
	phone, phoneStore := fieldDevice(t, srv.url, "phone-2")

	locID, err := tablet.Capture(ctx, Capture{Location: mill})
	require.NoError(t, err)

	_, err = tablet.Sync(ctx)
	require.NoError(t, err)

	_, err = phone.Sync(ctx)
	require.NoError(t, err)

	// 平板一小时后再次编辑并先推送
	tablet.now = func() time.Time { return time.Now().Add(time.Hour) }

	renamed := mill
	renamed.Name = "Harmony Mill No. 3"

	_, err = tablet.Capture(ctx, Capture{ID: locID, Location: renamed})
	require.NoError(t, err)

	_, err = tablet.Sync(ctx)
	require.NoError(t, err)

	// 手机在旧版本上编辑
	stale := mill
	stale.Name = "Old Cohoes Mill"

	_, err = phone.Capture(ctx, Capture{ID: locID, Location: stale})
	require.NoError(t, err)

	report, err := phone.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Conflicts)

	var loc model.Location
	require.NoError(t, srv.db.Where("id = ?", locID).Take(&loc).Error)
	assert.Equal(t, "Harmony Mill No. 3", loc.Name)

	cached, err := phoneStore.Cached(ctx, locID)
	require.NoError(t, err)

	e, err := cached.Entity()
	require.NoError(t, err)
	assert.Equal(t, "Harmony Mill No. 3", e.Location.Name)
	assert.True(t, cached.Synced)
}
