package field

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
)

const device = "tablet-1"

func ptr(f float64) *float64 { return &f }

var mill = types.LocationFields{
	Name:      "Cohoes Mill",
	State:     "ny",
	Type:      "industrial",
	Latitude:  ptr(42.81),
	Longitude: ptr(-73.94),
}

// fakeTransport 按脚本应答，记录每次推送.
type fakeTransport struct {
	mu        sync.Mutex
	healthErr error
	pushErr   error
	outcome   func(e types.Entity) (string, string)
	pulls     []*types.PullResponse
	pullSince []int64
	pushed    []*types.PushRequest
}

func (f *fakeTransport) Health(context.Context) error { return f.healthErr }

func (f *fakeTransport) Push(_ context.Context, req *types.PushRequest) (*types.PushResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pushed = append(f.pushed, req)
	if f.pushErr != nil {
		return nil, f.pushErr
	}

	resp := &types.PushResponse{Status: types.StatusOK}

	for _, e := range append(append([]types.Entity{}, req.NewEntities...), req.UpdatedEntities...) {
		outcome, reason := types.OutcomeAccepted, ""
		if f.outcome != nil {
			outcome, reason = f.outcome(e)
		}

		resp.Results = append(resp.Results, types.ItemResult{ID: e.ID, Kind: e.Kind, Outcome: outcome, Reason: reason})
	}

	return resp, nil
}

func (f *fakeTransport) Pull(_ context.Context, since int64, _ int) (*types.PullResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pullSince = append(f.pullSince, since)
	if len(f.pulls) == 0 {
		return &types.PullResponse{Watermark: since}, nil
	}

	page := f.pulls[0]
	f.pulls = f.pulls[1:]

	return page, nil
}

func openStore(t *testing.T, path string) *Store {
	t.Helper()

	s, err := OpenStore(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func newClient(t *testing.T, s *Store, tr Transport) *Client {
	t.Helper()

	cfg := configs.Default().Field
	cfg.BatchSize = 2

	c, err := New(s, tr, cfg, device)
	require.NoError(t, err)

	return c
}

func photo(t *testing.T, name, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	return p
}

func pending(t *testing.T, s *Store) []PendingSync {
	t.Helper()

	rows, err := s.Pending(context.Background())
	require.NoError(t, err)

	return rows
}

func TestCaptureSurvivesNetworkFailureAndRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "field.db")

	s := openStore(t, path)
	tr := &fakeTransport{pushErr: errs.ErrNetworkFailed}
	c := newClient(t, s, tr)

	id, err := c.Capture(ctx, Capture{Location: mill, MediaPaths: []string{photo(t, "front.jpg", "jpeg bytes")}})
	require.NoError(t, err)

	_, err = c.Sync(ctx)
	require.ErrorIs(t, err, errs.ErrNetworkFailed)

	rows := pending(t, s)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].EntityID)
	assert.Equal(t, StateQueued, rows[0].State)
	assert.Equal(t, 1, rows[0].Attempts)
	assert.NotEmpty(t, rows[0].LastError)

	// 模拟设备重启
	require.NoError(t, s.Close())

	s = openStore(t, path)
	tr = &fakeTransport{}
	c = newClient(t, s, tr)

	report, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Empty(t, pending(t, s))

	require.Len(t, tr.pushed, 1)
	require.Len(t, tr.pushed[0].NewEntities, 1)

	sent := tr.pushed[0].NewEntities[0]
	assert.Equal(t, id, sent.ID)
	assert.Equal(t, device, sent.DeviceID)
	require.NotNil(t, sent.Location)
	assert.InDelta(t, 42.81, *sent.Location.Latitude, 1e-9)
	assert.InDelta(t, -73.94, *sent.Location.Longitude, 1e-9)
	require.Len(t, sent.Media, 1)
	assert.Equal(t, "front.jpg", sent.Media[0].Filename)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg bytes")), sent.Media[0].Base64Data)

	cached, err := s.Cached(ctx, id)
	require.NoError(t, err)
	assert.True(t, cached.Synced)
}

func TestSyncRequeuesInterruptedPush(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))
	tr := &fakeTransport{}
	c := newClient(t, s, tr)

	_, err := c.Capture(ctx, Capture{Location: mill})
	require.NoError(t, err)

	// 进程在发出请求前崩溃: 条目停留在 pushing
	batch, err := s.claimBatch(ctx, 10, time.Now())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, StatePushing, pending(t, s)[0].State)

	report, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Recovered)
	assert.Equal(t, 1, report.Accepted)
	assert.Empty(t, pending(t, s))
}

func TestUnreachableServerSkipsPush(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))
	tr := &fakeTransport{healthErr: errors.New("dial tcp: connection refused")}
	c := newClient(t, s, tr)

	_, err := c.Capture(ctx, Capture{Location: mill})
	require.NoError(t, err)

	_, err = c.Sync(ctx)
	require.ErrorIs(t, err, errs.ErrNetworkFailed)
	assert.Empty(t, tr.pushed)

	rows := pending(t, s)
	require.Len(t, rows, 1)
	assert.Equal(t, StateQueued, rows[0].State)
	assert.Zero(t, rows[0].Attempts)
}

func TestRejectedItemIsRetriedNextCycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))

	reject := true
	tr := &fakeTransport{outcome: func(types.Entity) (string, string) {
		if reject {
			return types.OutcomeRejected, "media import failed"
		}

		return types.OutcomeAccepted, ""
	}}
	c := newClient(t, s, tr)

	_, err := c.Capture(ctx, Capture{Location: mill})
	require.NoError(t, err)

	report, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)
	assert.Len(t, tr.pushed, 1, "a failed item waits for the next cycle")

	rows := pending(t, s)
	require.Len(t, rows, 1)
	assert.Equal(t, StateFailed, rows[0].State)
	assert.Equal(t, 1, rows[0].Attempts)
	assert.Equal(t, "media import failed", rows[0].LastError)

	reject = false

	report, err = c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Empty(t, pending(t, s))
}

func TestConflictIsAcknowledgedAndLogged(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))
	tr := &fakeTransport{outcome: func(types.Entity) (string, string) {
		return types.OutcomeConflict, "server copy is newer"
	}}
	c := newClient(t, s, tr)

	_, err := c.Capture(ctx, Capture{Location: mill})
	require.NoError(t, err)

	report, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Conflicts)
	assert.Empty(t, pending(t, s))

	last, err := s.LastSuccessful(ctx, model.DirectionPush)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 1, last.ConflictCount)
	assert.Equal(t, model.OutcomePartial, last.Outcome)
}

func TestPushUsesBoundedBatches(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))
	tr := &fakeTransport{}
	c := newClient(t, s, tr)

	for range 5 {
		_, err := c.Capture(ctx, Capture{Location: mill})
		require.NoError(t, err)
	}

	report, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Accepted)
	require.Len(t, tr.pushed, 3)

	for _, req := range tr.pushed {
		assert.LessOrEqual(t, req.Len(), 2)
	}
}

func TestCancelledSyncStopsBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))
	tr := &fakeTransport{}
	c := newClient(t, s, tr)

	for range 4 {
		_, err := c.Capture(ctx, Capture{Location: mill})
		require.NoError(t, err)
	}

	tr.outcome = func(types.Entity) (string, string) {
		cancel()
		return types.OutcomeAccepted, ""
	}

	_, err := c.Sync(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, tr.pushed, 1)

	rows := pending(t, s)
	require.Len(t, rows, 2)

	for _, r := range rows {
		assert.Equal(t, StateQueued, r.State)
	}
}

func TestUpdatesCoalesceWhileQueued(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))
	tr := &fakeTransport{}
	c := newClient(t, s, tr)

	id, err := c.Capture(ctx, Capture{Location: mill, MediaPaths: []string{photo(t, "a.jpg", "a")}})
	require.NoError(t, err)

	renamed := mill
	renamed.Name = "Harmony Mill"

	_, err = c.Capture(ctx, Capture{ID: id, Location: renamed, MediaPaths: []string{photo(t, "b.jpg", "b")}})
	require.NoError(t, err)

	rows := pending(t, s)
	require.Len(t, rows, 1)
	assert.Equal(t, OpNew, rows[0].Op)

	media, err := rows[0].Media()
	require.NoError(t, err)
	assert.Len(t, media, 2)

	_, err = c.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, tr.pushed, 1)
	require.Len(t, tr.pushed[0].NewEntities, 1)
	assert.Equal(t, "Harmony Mill", tr.pushed[0].NewEntities[0].Location.Name)

	// 已确认后的修改作为更新推送，时间严格递增
	first := tr.pushed[0].NewEntities[0].UpdatedAt

	_, err = c.Capture(ctx, Capture{ID: id, Location: mill})
	require.NoError(t, err)

	_, err = c.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, tr.pushed, 2)
	require.Len(t, tr.pushed[1].UpdatedEntities, 1)
	assert.True(t, tr.pushed[1].UpdatedEntities[0].UpdatedAt.After(first))
}

func TestCaptureValidation(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))
	c := newClient(t, s, &fakeTransport{})

	bad := mill
	bad.Latitude = ptr(123)

	_, err := c.Capture(ctx, Capture{Location: bad})
	require.ErrorIs(t, err, errs.ErrValidationFailed)

	_, err = c.Capture(ctx, Capture{Location: mill, MediaPaths: []string{filepath.Join(t.TempDir(), "missing.jpg")}})
	require.ErrorIs(t, err, errs.ErrValidationFailed)

	_, err = c.CaptureURL(ctx, URLDraft{LocationID: "not-a-uuid", URL: "https://example.org"})
	require.ErrorIs(t, err, errs.ErrValidationFailed)

	assert.Empty(t, pending(t, s))
}

func TestPullLastWriterWins(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))
	tr := &fakeTransport{}
	c := newClient(t, s, tr)

	localID, err := c.Capture(ctx, Capture{Location: mill})
	require.NoError(t, err)

	local, err := s.Cached(ctx, localID)
	require.NoError(t, err)

	older := types.Entity{
		Kind:       "loc",
		ID:         localID,
		UpdatedAt:  local.UpdatedAt.Add(-time.Hour),
		ModifiedAt: 10,
		Location:   &types.LocationFields{Name: "Stale Name", State: "ny", Type: "industrial"},
	}
	remote := types.Entity{
		Kind:       "loc",
		ID:         "9a8b7c6d-5e4f-4a3b-9c2d-1e0f9a8b7c6d",
		DeviceID:   "phone-2",
		UpdatedAt:  time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		ModifiedAt: 20,
		Location:   &types.LocationFields{Name: "Remote Depot", State: "ny", Type: "rail"},
	}

	tr.pulls = []*types.PullResponse{
		{Entities: []types.Entity{older}, HasMore: true, Watermark: 10},
		{Entities: []types.Entity{remote}, Watermark: 20},
	}

	// 推送失败不影响本地 LWW 检查: 仅测试拉取
	tr.outcome = func(types.Entity) (string, string) { return types.OutcomeRejected, "hold" }

	report, err := c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pulled)
	assert.Equal(t, 1, report.Applied)
	assert.EqualValues(t, 20, report.Watermark)
	assert.Equal(t, []int64{0, 10}, tr.pullSince)

	kept, err := s.Cached(ctx, localID)
	require.NoError(t, err)

	e, err := kept.Entity()
	require.NoError(t, err)
	assert.Equal(t, "Cohoes Mill", e.Location.Name)

	got, err := s.Cached(ctx, remote.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.EqualValues(t, 20, got.ModifiedAt)

	w, err := s.Watermark(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 20, w)

	_, err = c.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), tr.pullSince[len(tr.pullSince)-1])
}

func TestPullWithEqualTimestampKeepsUnsyncedEdit(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))
	c := newClient(t, s, &fakeTransport{})

	id, err := c.Capture(ctx, Capture{Location: mill})
	require.NoError(t, err)

	local, err := s.Cached(ctx, id)
	require.NoError(t, err)
	require.False(t, local.Synced)

	other := types.Entity{
		Kind:       "loc",
		ID:         id,
		DeviceID:   "phone-2",
		UpdatedAt:  local.UpdatedAt,
		ModifiedAt: 7,
		Location:   &types.LocationFields{Name: "Other Device Name", State: "ny", Type: "industrial"},
	}

	applied, err := applyPulled(s.DB(), &other)
	require.NoError(t, err)
	assert.False(t, applied)

	kept, err := s.Cached(ctx, id)
	require.NoError(t, err)
	assert.False(t, kept.Synced)

	e, err := kept.Entity()
	require.NoError(t, err)
	assert.Equal(t, "Cohoes Mill", e.Location.Name)
	assert.Len(t, pending(t, s), 1)

	// 已同步的行在时间相同时以服务端副本刷新
	require.NoError(t, s.DB().Model(&CachedEntity{}).Where("id = ?", id).Update("synced", true).Error)

	applied, err = applyPulled(s.DB(), &other)
	require.NoError(t, err)
	assert.True(t, applied)

	refreshed, err := s.Cached(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 7, refreshed.ModifiedAt)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))
	tr := &fakeTransport{pushErr: errs.ErrNetworkFailed}
	c := newClient(t, s, tr)

	_, err := c.Capture(ctx, Capture{Location: mill})
	require.NoError(t, err)

	_, err = c.Sync(ctx)
	require.Error(t, err)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, device, st.DeviceID)
	assert.EqualValues(t, 1, st.Pending[StateQueued])
	assert.EqualValues(t, 1, st.Cached)
	assert.EqualValues(t, 1, st.Unsynced)
	assert.Nil(t, st.LastPush)

	tr.pushErr = nil

	_, err = c.Sync(ctx)
	require.NoError(t, err)

	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Pending)
	assert.Zero(t, st.Unsynced)
	require.NotNil(t, st.LastPush)
	assert.Equal(t, model.OutcomeSuccess, st.LastPush.Outcome)
	require.NotNil(t, st.LastPull)
}

func TestDeviceIDIsPersisted(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "field.db"))

	id, err := DeviceID(ctx, s, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	again, err := DeviceID(ctx, s, "")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	configured, err := DeviceID(ctx, s, "pixel-7")
	require.NoError(t, err)
	assert.Equal(t, "pixel-7", configured)
}
