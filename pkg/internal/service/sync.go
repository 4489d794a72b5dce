package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"gorm.io/gorm"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
	"github.com/bizzlechizzle/aupat/pkg/internal/ident"
	"github.com/bizzlechizzle/aupat/pkg/internal/importer"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
	nlog "github.com/bizzlechizzle/aupat/pkg/log"
	"github.com/bizzlechizzle/aupat/pkg/metrics"
	"github.com/bizzlechizzle/aupat/pkg/queue"
	"github.com/bizzlechizzle/aupat/pkg/tracing"
)

// SyncDeps SyncService 的依赖.
type SyncDeps struct {
	DB         *gorm.DB
	Pipeline   *importer.Pipeline
	IDs        *ident.Generator
	Clock      *model.RevisionClock
	Events     *queue.Events
	Config     configs.SyncConfig
	StagingDir string
}

// SyncService 权威库一侧的推送与拉取.
//
// 冲突规则：未知 ID 原样插入（现场坐标为准）；已知 ID 仅当推送的 updated_at 严格更新时应用，
// 否则记为冲突，不应用也不中断整批. 同一设备的推送串行处理.
type SyncService struct {
	db       *gorm.DB
	pipeline *importer.Pipeline
	ids      *ident.Generator
	clock    *model.RevisionClock
	events   *queue.Events
	cfg      configs.SyncConfig
	staging  string
	stripes  []sync.Mutex
}

// NewSyncService 创建 SyncService.
func NewSyncService(deps SyncDeps) *SyncService {
	n := deps.Config.DeviceStripes
	if n <= 0 {
		n = configs.DefaultSyncDeviceStripes
	}

	return &SyncService{
		db:       deps.DB,
		pipeline: deps.Pipeline,
		ids:      deps.IDs,
		clock:    deps.Clock,
		events:   deps.Events,
		cfg:      deps.Config,
		staging:  deps.StagingDir,
		stripes:  make([]sync.Mutex, n),
	}
}

func (s *SyncService) deviceLock(deviceID string) *sync.Mutex {
	return &s.stripes[xxhash.Sum64String(deviceID)%uint64(len(s.stripes))]
}

// Push 处理一批推送. 单个实体的失败体现在结果中，只有请求本身无效时返回错误.
func (s *SyncService) Push(ctx context.Context, deviceID string, req *types.PushRequest) (*types.PushResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("empty push: %w", errs.ErrValidationFailed)
	}

	if deviceID == "" {
		deviceID = req.DeviceID
	}

	if req.DeviceID != "" && req.DeviceID != deviceID {
		return nil, fmt.Errorf("device_id does not match X-Device-ID: %w", errs.ErrValidationFailed)
	}

	req.DeviceID = deviceID

	if deviceID == "" {
		return nil, fmt.Errorf("device id is required: %w", errs.ErrValidationFailed)
	}

	if limit := s.cfg.MaxBatchItems; limit > 0 && req.Len() > limit {
		return nil, fmt.Errorf("batch of %d exceeds %d items: %w", req.Len(), limit, errs.ErrValidationFailed)
	}

	ctx, span := tracing.StartSpan(ctx, "sync.Push")
	defer span.End()

	// 已接收的批次完整处理，不受客户端断开影响；重放由冲突规则幂等处理
	ctx = context.WithoutCancel(ctx)

	lock := s.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	entry := model.NewSyncLog(model.DirectionPush, deviceID, time.Now())
	resp := &types.PushResponse{
		Conflicts:     []types.Conflict{},
		NextSyncAfter: int(s.cfg.NextSyncAfter / time.Second),
		Results:       make([]types.ItemResult, 0, req.Len()),
		LogID:         entry.ID,
	}

	var reasons []string

	items := append(append([]types.Entity{}, req.NewEntities...), req.UpdatedEntities...)
	for i := range items {
		res, conflict := s.pushOne(ctx, deviceID, &items[i])
		resp.Results = append(resp.Results, res)
		metrics.SyncItemsTotal.WithLabelValues(res.Outcome).Inc()

		switch res.Outcome {
		case types.OutcomeAccepted:
			resp.SyncedCount++
		case types.OutcomeConflict:
			entry.ConflictCount++
			resp.Conflicts = append(resp.Conflicts, *conflict)
			s.events.SyncConflict(ctx, queue.SyncConflictPayload{
				DeviceID:        deviceID,
				Kind:            conflict.Kind,
				ID:              conflict.ID,
				PushedUpdatedAt: conflict.PushedUpdatedAt,
				ServerUpdatedAt: conflict.ServerUpdatedAt,
			})
		case types.OutcomeRejected:
			entry.RejectedCount++
			reasons = append(reasons, res.ID+": "+res.Reason)
		}
	}

	entry.ItemCount = len(items)
	entry.Detail = strings.Join(reasons, "; ")
	entry.Settle()

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		nlog.Logger().Error().Err(err).Str("device", deviceID).Msg("append push sync log failed")
	}

	resp.Status = statusOf(entry.Outcome)

	s.events.SyncPushed(ctx, queue.SyncPushedPayload{
		DeviceID:  deviceID,
		LogID:     entry.ID,
		Accepted:  resp.SyncedCount,
		Conflicts: entry.ConflictCount,
		Rejected:  entry.RejectedCount,
	})

	nlog.Logger().Info().
		Str("device", deviceID).
		Int("items", entry.ItemCount).
		Int("accepted", resp.SyncedCount).
		Int("conflicts", entry.ConflictCount).
		Int("rejected", entry.RejectedCount).
		Msg("push processed")

	return resp, nil
}

func statusOf(o model.Outcome) string {
	switch o {
	case model.OutcomeFailed:
		return types.StatusFailed
	case model.OutcomePartial:
		return types.StatusPartial
	default:
		return types.StatusOK
	}
}

// pushOne 处理单个实体. 返回冲突时第二个值非空.
func (s *SyncService) pushOne(ctx context.Context, deviceID string, e *types.Entity) (types.ItemResult, *types.Conflict) {
	res := types.ItemResult{ID: e.ID, Kind: e.Kind}

	reject := func(err error) (types.ItemResult, *types.Conflict) {
		res.Outcome = types.OutcomeRejected
		res.Reason = err.Error()

		return res, nil
	}

	if err := e.Validate(); err != nil {
		return reject(err)
	}

	if !types.Pushable(e.Kind) {
		return reject(fmt.Errorf("kind %s cannot be pushed, send files as media", e.Kind))
	}

	kind, _ := model.ParseKind(e.Kind)

	var (
		conflict *types.Conflict
		stored   model.Record
	)

	rev := s.clock.Begin()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := kind.New()

		err := tx.Where("id = ?", e.ID).Take(rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			stored = rec
			return s.insert(ctx, tx, rev, deviceID, rec, e)
		}

		if err != nil {
			return err
		}

		stored = rec
		base := rec.Base()
		pushed := model.Stamp(e.UpdatedAt)

		switch {
		case pushed.After(base.UpdatedAt):
			applyFields(rec, e)
			base.DeviceID = deviceID
			base.UpdatedAt = pushed
			base.ModifiedAt = rev.Next()

			return tx.Save(rec).Error
		case pushed.Equal(base.UpdatedAt) && base.DeviceID == deviceID:
			// 同一设备重放已应用的版本（上次确认丢失或媒体导入失败后重试）
			return nil
		default:
			conflict = &types.Conflict{
				ID:              e.ID,
				Kind:            e.Kind,
				PushedUpdatedAt: pushed,
				ServerUpdatedAt: base.UpdatedAt,
			}

			return nil
		}
	})
	rev.End()

	if err != nil {
		return reject(err)
	}

	res.Outcome = types.OutcomeAccepted
	if conflict != nil {
		res.Outcome = types.OutcomeConflict
		res.Reason = errs.ErrConflictRejected.Error()
	}

	// 媒体是按内容去重的追加，不受地点属性冲突影响
	if loc, ok := stored.(*model.Location); ok && len(e.Media) > 0 {
		var failed []string

		res.Media, failed = s.importMedia(ctx, deviceID, loc, e.Media)
		if len(failed) > 0 {
			res.Outcome = types.OutcomeRejected
			res.Reason = "media import failed: " + strings.Join(failed, "; ")
		}
	}

	return res, conflict
}

// insert 未知 ID：原样写入推送的字段.
func (s *SyncService) insert(ctx context.Context, tx *gorm.DB, rev *model.RevisionScope, deviceID string, rec model.Record, e *types.Entity) error {
	table := rec.TableName()

	id, err := s.ids.Confirm(ctx, tx, table, e.ID)
	if err != nil {
		return err
	}

	if id != e.ID {
		return fmt.Errorf("id prefix of %s already used in %s: %w", e.ID, table, errs.ErrValidationFailed)
	}

	if _, ok := rec.(*model.URL); ok {
		var n int64
		if err := tx.Model(&model.Location{}).Where("id = ?", e.URL.LocationID).Count(&n).Error; err != nil {
			return err
		}

		if n == 0 {
			return fmt.Errorf("location %s: %w", e.URL.LocationID, errs.ErrNotFound)
		}
	}

	applyFields(rec, e)

	created := e.CreatedAt
	if created.IsZero() {
		created = e.UpdatedAt
	}

	base := rec.Base()
	base.ID = e.ID
	base.DeviceID = deviceID
	base.CreatedAt = model.Stamp(created)
	base.UpdatedAt = model.Stamp(e.UpdatedAt)
	base.ModifiedAt = rev.Next()

	return tx.Create(rec).Error
}

// importMedia 暂存并导入一个地点的内联媒体. 返回每个媒体的结果与失败描述.
func (s *SyncService) importMedia(ctx context.Context, deviceID string, loc *model.Location, media []types.Media) ([]types.MediaResult, []string) {
	results := make([]types.MediaResult, 0, len(media))

	var failed []string

	for i := range media {
		m := &media[i]
		mr := types.MediaResult{Filename: m.Filename}

		res, err := s.importOne(ctx, deviceID, loc, m)
		if err != nil {
			mr.Error = err.Error()
			failed = append(failed, m.Filename+": "+err.Error())
		} else {
			mr.EntityID = res.EntityID
			mr.Kind = string(res.Kind)
			mr.Duplicate = res.Duplicate
		}

		results = append(results, mr)
	}

	return results, failed
}

func (s *SyncService) importOne(ctx context.Context, deviceID string, loc *model.Location, m *types.Media) (*importer.Result, error) {
	if s.pipeline == nil {
		return nil, errors.New("import pipeline not configured")
	}

	staged, err := stageMedia(s.staging, m, s.cfg.MaxMediaBytes)
	if err != nil {
		return nil, err
	}

	res, err := s.pipeline.Import(ctx, importer.Request{
		SourcePath:    staged,
		Location:      importer.LocationContextOf(loc),
		SubLocationID: m.SubLocationID,
		DeleteSource:  true,
		EntityID:      m.ID,
		OriginalName:  m.Filename,
		DeviceID:      deviceID,
	})
	if err != nil {
		_ = os.Remove(staged)
		return nil, err
	}

	return res, nil
}

// Pull 返回修订号大于 since 的实体，升序，最多 limit 条.
func (s *SyncService) Pull(ctx context.Context, deviceID string, since int64, limit int) (*types.PullResponse, error) {
	if since < 0 {
		return nil, fmt.Errorf("since_timestamp must not be negative: %w", errs.ErrValidationFailed)
	}

	if limit <= 0 {
		limit = s.cfg.PullLimit
	}

	if limit > s.cfg.MaxPullLimit && s.cfg.MaxPullLimit > 0 {
		limit = s.cfg.MaxPullLimit
	}

	ctx, span := tracing.StartSpan(ctx, "sync.Pull")
	defer span.End()

	// 只返回已提交的修订；每张表最多取 limit+1 行，全局前 limit+1 行一定在其中
	visible := s.clock.Visible()

	var all []types.Entity

	for _, k := range model.Kinds() {
		rows, err := pullers[k](ctx, s.db, since, visible, limit+1)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, fmt.Errorf("pull %s: %w", k.Table(), err)
		}

		all = append(all, rows...)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].ModifiedAt < all[j].ModifiedAt })

	resp := &types.PullResponse{Entities: all, Watermark: since}
	if len(all) > limit {
		resp.Entities = all[:limit]
		resp.HasMore = true
	}

	if n := len(resp.Entities); n > 0 {
		resp.Watermark = resp.Entities[n-1].ModifiedAt
	}

	entry := model.NewSyncLog(model.DirectionPull, deviceID, time.Now())
	entry.ItemCount = len(resp.Entities)
	entry.Detail = fmt.Sprintf("since=%d watermark=%d has_more=%t", since, resp.Watermark, resp.HasMore)

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		nlog.Logger().Error().Err(err).Str("device", deviceID).Msg("append pull sync log failed")
	}

	metrics.SyncPulledTotal.Add(float64(len(resp.Entities)))

	return resp, nil
}

type puller func(ctx context.Context, db *gorm.DB, since, until int64, n int) ([]types.Entity, error)

var pullers = map[model.Kind]puller{
	model.KindLocation: pullRows[model.Location],
	model.KindImage:    pullRows[model.Image],
	model.KindVideo:    pullRows[model.Video],
	model.KindDocument: pullRows[model.Document],
	model.KindMap:      pullRows[model.MapFile],
	model.KindURL:      pullRows[model.URL],
}

func pullRows[T any, P interface {
	*T
	model.Record
}](ctx context.Context, db *gorm.DB, since, until int64, n int) ([]types.Entity, error) {
	var rows []T

	err := db.WithContext(ctx).
		Where("modified_at > ? AND modified_at <= ?", since, until).
		Order("modified_at ASC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]types.Entity, 0, len(rows))
	for i := range rows {
		out = append(out, toEntity(P(&rows[i])))
	}

	return out, nil
}

// Logs 返回最近的同步日志，direction 为空时不过滤.
func (s *SyncService) Logs(ctx context.Context, direction string, limit int) (*types.SyncLogResponse, error) {
	if limit <= 0 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if direction != "" {
		q = q.Where("direction = ?", direction)
	}

	var rows []model.SyncLog
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	resp := &types.SyncLogResponse{Entries: make([]types.SyncLogEntry, 0, len(rows))}
	for i := range rows {
		resp.Entries = append(resp.Entries, logEntry(&rows[i]))
	}

	return resp, nil
}

// LastSuccessful 返回某方向最近一次未整体失败的同步.
func (s *SyncService) LastSuccessful(ctx context.Context, direction model.Direction) (*types.SyncLogEntry, error) {
	var row model.SyncLog

	err := s.db.WithContext(ctx).
		Where("direction = ? AND outcome <> ?", direction, model.OutcomeFailed).
		Order("id DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no successful %s: %w", direction, errs.ErrNotFound)
	}

	if err != nil {
		return nil, err
	}

	entry := logEntry(&row)

	return &entry, nil
}
