package service_test

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
	"github.com/bizzlechizzle/aupat/pkg/internal/ident"
	"github.com/bizzlechizzle/aupat/pkg/internal/importer"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/service"
	"github.com/bizzlechizzle/aupat/pkg/internal/storage/db"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
)

const (
	locX   = "3d5f7a91-2c4b-4e6d-8f0a-1b2c3d4e5f60"
	locY   = "9a8b7c6d-5e4f-4a3b-9c2d-1e0f9a8b7c6d"
	urlZ   = "c0ffee00-1234-4abc-8def-0123456789ab"
	device = "pixel-7"
)

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	sync     *service.SyncService
	loc      *service.LocationService
	staging  string
	archive  string
	pipeline *importer.Pipeline
	clock    *model.RevisionClock
}

func newFixture(t *testing.T, mutate ...func(*configs.AppConfig)) *fixture {
	t.Helper()

	ctx := context.Background()
	dir := t.TempDir()

	cfg := configs.Default()
	cfg.DB.Database = filepath.Join(dir, "archive.db")
	cfg.Archive.Root = filepath.Join(dir, "archive")

	for _, m := range mutate {
		m(cfg)
	}

	client, err := db.New(ctx, cfg.DB, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate(ctx, model.All()...))

	clock := model.NewRevisionClock()
	ids := ident.New(cfg.Archive.IDCollisionWidth, cfg.Archive.IDMaxRetries)

	p, err := importer.New(importer.Deps{DB: client.DB, Clock: clock, IDs: ids, Config: cfg.Archive})
	require.NoError(t, err)

	return &fixture{
		db: client.DB,
		sync: service.NewSyncService(service.SyncDeps{
			DB:         client.DB,
			Pipeline:   p,
			IDs:        ids,
			Clock:      clock,
			Config:     cfg.Sync,
			StagingDir: cfg.Archive.StagingPath(),
		}),
		loc:      service.NewLocationService(client.DB, ids, clock),
		staging:  cfg.Archive.StagingPath(),
		archive:  cfg.Archive.Root,
		pipeline: p,
		clock:    clock,
	}
}

func ptr(f float64) *float64 { return &f }

func location(id, name string, updated time.Time, lat, lon float64) types.Entity {
	return types.Entity{
		Kind:      "loc",
		ID:        id,
		UpdatedAt: updated,
		Location: &types.LocationFields{
			Name:      name,
			State:     "ny",
			Type:      "industrial",
			Latitude:  ptr(lat),
			Longitude: ptr(lon),
		},
	}
}

func (f *fixture) push(t *testing.T, dev string, ents ...types.Entity) *types.PushResponse {
	t.Helper()

	resp, err := f.sync.Push(context.Background(), dev, &types.PushRequest{DeviceID: dev, NewEntities: ents})
	require.NoError(t, err)
	require.Len(t, resp.Results, len(ents))

	return resp
}

func (f *fixture) location(t *testing.T, id string) model.Location {
	t.Helper()

	var loc model.Location
	require.NoError(t, f.db.First(&loc, "id = ?", id).Error)

	return loc
}

func TestPushNewLocationKeepsFieldGPS(t *testing.T) {
	f := newFixture(t)

	resp := f.push(t, device, location(locX, "Harmony Mill", t0, 42.81, -73.94))

	assert.Equal(t, types.StatusOK, resp.Status)
	assert.Equal(t, 1, resp.SyncedCount)
	assert.Equal(t, types.OutcomeAccepted, resp.Results[0].Outcome)
	assert.Empty(t, resp.Conflicts)
	assert.Equal(t, 300, resp.NextSyncAfter)

	loc := f.location(t, locX)
	require.NotNil(t, loc.Latitude)
	require.NotNil(t, loc.Longitude)
	assert.Equal(t, 42.81, *loc.Latitude)
	assert.Equal(t, -73.94, *loc.Longitude)
	assert.Equal(t, device, loc.DeviceID)
	assert.Equal(t, "harmony-mill", loc.ShortName)
	assert.True(t, loc.UpdatedAt.Equal(t0))
	assert.Positive(t, loc.ModifiedAt)
}

func TestPushOlderUpdateIsConflict(t *testing.T) {
	f := newFixture(t)
	f.push(t, device, location(locX, "Harmony Mill", t0, 42.81, -73.94))
	before := f.location(t, locX)

	resp := f.push(t, device, location(locX, "Renamed", t0.Add(-time.Hour), 1, 1))

	assert.Equal(t, types.StatusPartial, resp.Status)
	assert.Equal(t, types.OutcomeConflict, resp.Results[0].Outcome)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, locX, resp.Conflicts[0].ID)
	assert.True(t, resp.Conflicts[0].ServerUpdatedAt.Equal(t0))

	after := f.location(t, locX)
	assert.Equal(t, "Harmony Mill", after.Name)
	assert.Equal(t, 42.81, *after.Latitude)
	assert.Equal(t, before.ModifiedAt, after.ModifiedAt)
}

func TestPushSameTimestampFromOtherDeviceIsConflict(t *testing.T) {
	f := newFixture(t)
	f.push(t, device, location(locX, "Harmony Mill", t0, 42.81, -73.94))

	resp := f.push(t, "ipad", location(locX, "Other", t0, 1, 1))
	assert.Equal(t, types.OutcomeConflict, resp.Results[0].Outcome)
	assert.Equal(t, "Harmony Mill", f.location(t, locX).Name)
}

func TestPushNewerUpdateIsApplied(t *testing.T) {
	f := newFixture(t)
	f.push(t, device, location(locX, "Harmony Mill", t0, 42.81, -73.94))
	before := f.location(t, locX)

	resp := f.push(t, "ipad", location(locX, "Harmony Mill No. 3", t0.Add(time.Minute), 42.8101, -73.9402))
	assert.Equal(t, types.OutcomeAccepted, resp.Results[0].Outcome)

	after := f.location(t, locX)
	assert.Equal(t, "Harmony Mill No. 3", after.Name)
	assert.Equal(t, 42.8101, *after.Latitude)
	assert.Equal(t, "ipad", after.DeviceID)
	assert.Greater(t, after.ModifiedAt, before.ModifiedAt)
}

func TestPushReplayIsAccepted(t *testing.T) {
	f := newFixture(t)
	ent := location(locX, "Harmony Mill", t0, 42.81, -73.94)

	f.push(t, device, ent)
	before := f.location(t, locX)

	resp := f.push(t, device, ent)
	assert.Equal(t, types.OutcomeAccepted, resp.Results[0].Outcome)
	assert.Equal(t, before.ModifiedAt, f.location(t, locX).ModifiedAt)

	var n int64
	require.NoError(t, f.db.Model(&model.Location{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestPushImportsMediaThroughPipeline(t *testing.T) {
	f := newFixture(t)
	photo := []byte("jpeg bytes from the field")

	ent := location(locX, "Harmony Mill", t0, 42.81, -73.94)
	ent.Media = []types.Media{
		{Filename: "IMG_2001.JPG", Base64Data: base64.StdEncoding.EncodeToString(photo)},
		{Filename: "IMG_2001 copy.JPG", Base64Data: base64.StdEncoding.EncodeToString(photo)},
	}

	resp := f.push(t, device, ent)
	res := resp.Results[0]
	require.Equal(t, types.OutcomeAccepted, res.Outcome, res.Reason)
	require.Len(t, res.Media, 2)
	assert.Equal(t, "img", res.Media[0].Kind)
	assert.False(t, res.Media[0].Duplicate)
	assert.True(t, res.Media[1].Duplicate)
	assert.Equal(t, res.Media[0].EntityID, res.Media[1].EntityID)

	var img model.Image
	require.NoError(t, f.db.First(&img, "id = ?", res.Media[0].EntityID).Error)
	assert.Equal(t, locX, img.LocationID)
	assert.True(t, img.Verified)
	assert.Equal(t, device, img.DeviceID)
	assert.FileExists(t, filepath.Join(f.archive, filepath.FromSlash(img.ArchivePath)))

	staged, _ := os.ReadDir(f.staging)
	assert.Empty(t, staged)
}

func TestPushRejectsBadItemsButContinues(t *testing.T) {
	f := newFixture(t)

	bad := location("not-a-uuid", "x", t0, 0, 0)
	badGPS := location(locY, "Off the map", t0, 123, 0)
	orphan := types.Entity{
		Kind:      "url",
		ID:        urlZ,
		UpdatedAt: t0,
		URL:       &types.URLFields{LocationID: "11111111-2222-4333-8444-555555555555", URL: "https://example.org/mill"},
	}
	badMedia := location(locX, "Harmony Mill", t0, 42.81, -73.94)
	badMedia.Media = []types.Media{{Filename: "a.jpg", Base64Data: "!!not base64!!"}}

	resp := f.push(t, device, bad, badGPS, orphan, badMedia)

	for _, r := range resp.Results {
		assert.Equal(t, types.OutcomeRejected, r.Outcome, r.ID)
		assert.NotEmpty(t, r.Reason)
	}

	assert.Equal(t, types.StatusFailed, resp.Status)

	// 地点本身已写入，媒体失败后的重试按重放处理
	retry := location(locX, "Harmony Mill", t0, 42.81, -73.94)
	retry.Media = []types.Media{{Filename: "a.jpg", Base64Data: base64.StdEncoding.EncodeToString([]byte("ok"))}}

	again := f.push(t, device, retry)
	assert.Equal(t, types.OutcomeAccepted, again.Results[0].Outcome, again.Results[0].Reason)
}

func TestPushURLUnderKnownLocation(t *testing.T) {
	f := newFixture(t)

	link := types.Entity{
		Kind:      "url",
		ID:        urlZ,
		UpdatedAt: t0,
		URL:       &types.URLFields{LocationID: locX, URL: "https://example.org/mill", Title: "History"},
	}

	resp := f.push(t, device, location(locX, "Harmony Mill", t0, 42.81, -73.94), link)
	assert.Equal(t, types.OutcomeAccepted, resp.Results[1].Outcome, resp.Results[1].Reason)

	var u model.URL
	require.NoError(t, f.db.First(&u, "id = ?", urlZ).Error)
	assert.Equal(t, "History", u.Title)
}

func TestPushRequestValidation(t *testing.T) {
	f := newFixture(t, func(c *configs.AppConfig) { c.Sync.MaxBatchItems = 1 })

	_, err := f.sync.Push(context.Background(), device, nil)
	assert.True(t, errors.Is(err, errs.ErrValidationFailed))

	_, err = f.sync.Push(context.Background(), device, &types.PushRequest{DeviceID: "someone-else"})
	assert.True(t, errors.Is(err, errs.ErrValidationFailed))

	_, err = f.sync.Push(context.Background(), "", &types.PushRequest{})
	assert.True(t, errors.Is(err, errs.ErrValidationFailed))

	_, err = f.sync.Push(context.Background(), device, &types.PushRequest{
		NewEntities: []types.Entity{
			location(locX, "a", t0, 0, 0),
			location(locY, "b", t0, 0, 0),
		},
	})
	assert.True(t, errors.Is(err, errs.ErrValidationFailed))
}

func TestPullPagesInRevisionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.push(t, device, location(locX, "Harmony Mill", t0, 42.81, -73.94))

	p, err := f.loc.Get(ctx, locX)
	require.NoError(t, err)

	for i, name := range []string{"a.jpg", "b.mov", "c.pdf", "d.gpx"} {
		src := filepath.Join(t.TempDir(), name)
		require.NoError(t, os.WriteFile(src, []byte{byte(i), 'x'}, 0o600))

		_, err := f.pipeline.Import(ctx, importer.Request{SourcePath: src, Location: importer.LocationContextOf(p)})
		require.NoError(t, err)
	}

	var (
		since int64
		seen  []types.Entity
		pages int
	)

	for {
		resp, err := f.sync.Pull(ctx, device, since, 2)
		require.NoError(t, err)

		pages++
		seen = append(seen, resp.Entities...)
		since = resp.Watermark

		if !resp.HasMore {
			break
		}

		require.Len(t, resp.Entities, 2)
	}

	assert.Equal(t, 3, pages)
	require.Len(t, seen, 5)
	assert.Equal(t, "loc", seen[0].Kind)
	assert.Equal(t, 42.81, *seen[0].Location.Latitude)

	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i].ModifiedAt, seen[i-1].ModifiedAt)
		require.NotNil(t, seen[i].File)
		assert.True(t, seen[i].File.Verified)
	}

	empty, err := f.sync.Pull(ctx, device, since, 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Entities)
	assert.False(t, empty.HasMore)
	assert.Equal(t, since, empty.Watermark)

	_, err = f.sync.Pull(ctx, device, -1, 0)
	assert.True(t, errors.Is(err, errs.ErrValidationFailed))
}

func TestPullWaitsForEarlierUncommittedRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 另一个连接上的事务已分配修订号但尚未提交
	slow := f.clock.Begin()
	held := slow.Next()

	info, err := f.loc.Create(ctx, &types.CreateLocationRequest{Name: "Harmony Mill", State: "ny", Type: "industrial"})
	require.NoError(t, err)

	later := f.location(t, info.ID)
	require.Greater(t, later.ModifiedAt, held)

	resp, err := f.sync.Pull(ctx, device, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Entities)
	assert.EqualValues(t, 0, resp.Watermark)

	slow.End()

	resp, err = f.sync.Pull(ctx, device, 0, 0)
	require.NoError(t, err)
	require.Len(t, resp.Entities, 1)
	assert.Equal(t, info.ID, resp.Entities[0].ID)
	assert.Equal(t, later.ModifiedAt, resp.Watermark)
}

func TestSyncLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sync.LastSuccessful(ctx, model.DirectionPush)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	f.push(t, device, location(locX, "Harmony Mill", t0, 42.81, -73.94))
	_, err = f.sync.Pull(ctx, device, 0, 10)
	require.NoError(t, err)

	last, err := f.sync.LastSuccessful(ctx, model.DirectionPush)
	require.NoError(t, err)
	assert.Equal(t, device, last.DeviceID)
	assert.Equal(t, 1, last.ItemCount)

	logs, err := f.sync.Logs(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, logs.Entries, 2)

	pulls, err := f.sync.Logs(ctx, "pull", 10)
	require.NoError(t, err)
	require.Len(t, pulls.Entries, 1)
	assert.Equal(t, "success", pulls.Entries[0].Outcome)
}

func TestCleanStaging(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	old := filepath.Join(dir, "push-old.jpg")
	fresh := filepath.Join(dir, "push-fresh.jpg")
	other := filepath.Join(dir, "keep.txt")

	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}

	require.NoError(t, os.Chtimes(old, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	require.NoError(t, os.Chtimes(other, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))

	n, err := service.CleanStaging(context.Background(), dir, time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)

	n, err = service.CleanStaging(context.Background(), filepath.Join(dir, "missing"), time.Hour, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLocationService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	info, err := f.loc.Create(ctx, &types.CreateLocationRequest{
		Name:  "Cohoes Falls Power House",
		State: "ny",
		Type:  "industrial",
	})
	require.NoError(t, err)
	assert.True(t, ident.Valid(info.ID))
	assert.Equal(t, "cohoes-falls-power-house", info.ShortName)

	byShort, err := f.loc.Resolve(ctx, "cohoes-falls-power-house")
	require.NoError(t, err)
	assert.Equal(t, info.ID, byShort.ID)

	byPrefix, err := f.loc.Resolve(ctx, info.ID[:12])
	require.NoError(t, err)
	assert.Equal(t, info.ID, byPrefix.ID)

	_, err = f.loc.Resolve(ctx, "nowhere")
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, err = f.loc.Create(ctx, &types.CreateLocationRequest{Name: "x", State: "a/b", Type: "t"})
	assert.True(t, errors.Is(err, errs.ErrValidationFailed))

	list, err := f.loc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list.Locations, 1)
}
