// Package field 实现现场设备的离线优先同步客户端.
//
// 采集先写入本地缓存和待同步队列，再由 Sync 周期推送到权威库并拉取其他设备的变更.
// 条目状态: queued → pushing → 删除（服务端确认），或 queued → pushing → failed → queued.
// 任何网络失败都不会删除待同步条目.
package field

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
	"github.com/bizzlechizzle/aupat/pkg/log"
)

// Capture 一次地点采集.
type Capture struct {
	ID         string // 为空时生成
	Location   types.LocationFields
	MediaPaths []string
}

// URLDraft 一条网页采集.
type URLDraft struct {
	ID            string
	LocationID    string
	SubLocationID string
	URL           string
	Title         string
}

// Report 一次同步周期的统计.
type Report struct {
	Recovered int64
	Pushed    int
	Accepted  int
	Conflicts int
	Rejected  int
	Pulled    int
	Applied   int
	Watermark int64
}

// Status 本地同步状态.
type Status struct {
	DeviceID  string
	Pending   map[State]int64
	Cached    int64
	Unsynced  int64
	Watermark int64
	LastPush  *model.SyncLog
	LastPull  *model.SyncLog
}

// Client 现场设备同步客户端. 同一时刻只运行一个同步周期.
type Client struct {
	store  *Store
	tr     Transport
	cfg    configs.FieldConfig
	device string
	now    func() time.Time

	mu sync.Mutex
}

// DeviceID 读取或生成设备标识. 配置优先，其次是本地库中保存的值.
func DeviceID(ctx context.Context, store *Store, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	id, err := getMeta(ctx, store.db, metaDeviceID)
	if err != nil || id != "" {
		return id, err
	}

	id = "field-" + uuid.NewString()[:8]

	return id, setMeta(ctx, store.db, metaDeviceID, id)
}

// New 创建客户端.
func New(store *Store, tr Transport, cfg configs.FieldConfig, deviceID string) (*Client, error) {
	if store == nil || tr == nil {
		return nil, errors.New("field: store and transport are required")
	}

	if deviceID == "" {
		return nil, fmt.Errorf("field: device id is required: %w", errs.ErrValidationFailed)
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = configs.DefaultFieldBatchSize
	}

	if cfg.MaxPullPages <= 0 {
		cfg.MaxPullPages = configs.DefaultFieldMaxPullPages
	}

	if cfg.PullLimit <= 0 {
		cfg.PullLimit = configs.DefaultFieldPullLimit
	}

	return &Client{
		store:  store,
		tr:     tr,
		cfg:    cfg,
		device: deviceID,
		now:    time.Now,
	}, nil
}

// Device 返回设备标识.
func (c *Client) Device() string { return c.device }

// stamp 返回新的记录时间，同一实体的多次修改严格递增.
func (c *Client) stamp(prev time.Time) time.Time {
	t := model.Stamp(c.now())
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}

	return t
}

// Capture 保存一次地点采集. 缓存行与待同步条目在同一本地事务中写入.
// 已存在的 ID 作为更新排队.
func (c *Client) Capture(ctx context.Context, in Capture) (string, error) {
	media, err := mediaRefs(in.MediaPaths)
	if err != nil {
		return "", err
	}

	fields := in.Location

	return c.enqueue(ctx, in.ID, model.KindLocation, media, func(e *types.Entity) {
		e.Location = &fields
	})
}

// CaptureURL 保存一条网页采集.
func (c *Client) CaptureURL(ctx context.Context, in URLDraft) (string, error) {
	fields := types.URLFields{
		LocationID:    in.LocationID,
		SubLocationID: in.SubLocationID,
		URL:           in.URL,
		Title:         in.Title,
	}

	return c.enqueue(ctx, in.ID, model.KindURL, nil, func(e *types.Entity) {
		e.URL = &fields
	})
}

func mediaRefs(paths []string) ([]MediaRef, error) {
	refs := make([]MediaRef, 0, len(paths))

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("media %q: %w", p, errs.ErrValidationFailed)
		}

		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			return nil, fmt.Errorf("media %q is not a readable file: %w", p, errs.ErrValidationFailed)
		}

		refs = append(refs, MediaRef{Path: abs, Name: filepath.Base(abs)})
	}

	return refs, nil
}

func (c *Client) enqueue(ctx context.Context, id string, kind model.Kind, media []MediaRef, fill func(*types.Entity)) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	var entityID string

	err := c.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing CachedEntity

		err := tx.Where("id = ?", id).Take(&existing).Error
		found := err == nil

		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if found && existing.Kind != string(kind) {
			return fmt.Errorf("entity %s is a %s: %w", id, existing.Kind, errs.ErrValidationFailed)
		}

		e := types.Entity{Kind: string(kind), ID: id, DeviceID: c.device}
		if found {
			prev, err := existing.Entity()
			if err != nil {
				return err
			}

			e.CreatedAt = prev.CreatedAt
			e.UpdatedAt = c.stamp(existing.UpdatedAt)
		} else {
			e.UpdatedAt = c.stamp(time.Time{})
			e.CreatedAt = e.UpdatedAt
		}

		fill(&e)

		if err := e.Validate(); err != nil {
			return errors.Join(errs.ErrValidationFailed, err)
		}

		payload, err := sonic.MarshalString(&e)
		if err != nil {
			return err
		}

		row := CachedEntity{
			ID:         e.ID,
			Kind:       e.Kind,
			LocationID: entityLocation(&e),
			UpdatedAt:  e.UpdatedAt,
			ModifiedAt: existing.ModifiedAt,
			Synced:     false,
			Payload:    payload,
		}
		if err := tx.Save(&row).Error; err != nil {
			return err
		}

		entityID = e.ID

		return c.queue(tx, &e, payload, media, found)
	})
	if err != nil {
		return "", err
	}

	log.Logger().Info().Str("id", entityID).Str("kind", string(kind)).Int("media", len(media)).Msg("capture queued")

	return entityID, nil
}

// queue 写入待同步条目. 同一实体尚未推送的条目合并为一条，媒体累加.
func (c *Client) queue(tx *gorm.DB, e *types.Entity, payload string, media []MediaRef, update bool) error {
	now := c.now().UTC()

	var waiting PendingSync

	err := tx.Where("entity_id = ? AND state IN ?", e.ID, []State{StateQueued, StateFailed}).Order("id DESC").Take(&waiting).Error
	if err == nil {
		prev, err := waiting.Media()
		if err != nil {
			return err
		}

		merged, err := sonic.MarshalString(append(prev, media...))
		if err != nil {
			return err
		}

		return tx.Model(&waiting).Updates(map[string]any{
			"payload":    payload,
			"media_json": merged,
			"updated_at": now,
		}).Error
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	op := OpNew
	if update {
		op = OpUpdate
	}

	mediaJSON := ""
	if len(media) > 0 {
		if mediaJSON, err = sonic.MarshalString(media); err != nil {
			return err
		}
	}

	return tx.Create(&PendingSync{
		ID:        model.NewULID(now),
		EntityID:  e.ID,
		Kind:      e.Kind,
		Op:        op,
		Payload:   payload,
		MediaJSON: mediaJSON,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error
}

// Sync 执行一个同步周期: 恢复中断条目、探测连通性、分批推送、按水位线拉取.
// ctx 取消只在批次之间生效，进行中的批次会完成.
func (c *Client) Sync(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l := log.Logger().With().Str("device", c.device).Logger()
	report := &Report{}

	n, err := c.store.recoverStale(ctx, c.now().UTC())
	if err != nil {
		return report, fmt.Errorf("recover pending: %w", err)
	}

	report.Recovered = n
	if n > 0 {
		l.Info().Int64("count", n).Msg("requeued interrupted items")
	}

	if err := c.tr.Health(ctx); err != nil {
		return report, fmt.Errorf("server unreachable: %w", asNetwork(err))
	}

	for ctx.Err() == nil {
		batch, err := c.store.claimBatch(ctx, c.cfg.BatchSize, c.now().UTC())
		if err != nil {
			return report, fmt.Errorf("claim batch: %w", err)
		}

		if len(batch) == 0 {
			break
		}

		if err := c.pushBatch(context.WithoutCancel(ctx), batch, report); err != nil {
			return report, err
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if err := c.pull(ctx, report); err != nil {
		return report, err
	}

	l.Info().
		Int("pushed", report.Pushed).
		Int("accepted", report.Accepted).
		Int("conflicts", report.Conflicts).
		Int("rejected", report.Rejected).
		Int("pulled", report.Pulled).
		Int64("watermark", report.Watermark).
		Msg("sync cycle completed")

	return report, nil
}

func asNetwork(err error) error {
	if errors.Is(err, errs.ErrNetworkFailed) {
		return err
	}

	return fmt.Errorf("%w: %w", errs.ErrNetworkFailed, err)
}

// pushBatch 推送一批已标记为 pushing 的条目并按结果落盘.
func (c *Client) pushBatch(ctx context.Context, batch []PendingSync, report *Report) error {
	l := log.Logger().With().Str("device", c.device).Logger()
	now := c.now().UTC()

	req := &types.PushRequest{DeviceID: c.device, DeviceTimestamp: now}
	sent := make(map[string]*PendingSync, len(batch))
	pushedAt := make(map[string]time.Time, len(batch))

	for i := range batch {
		p := &batch[i]

		// 崩溃恢复后同一实体可能有两条条目，较新的一条留到下一批.
		if _, dup := sent[p.EntityID]; dup {
			if err := release(c.store.db.WithContext(ctx), p.ID, now); err != nil {
				return err
			}

			continue
		}

		e, err := c.envelope(p)
		if err != nil {
			l.Warn().Err(err).Str("entity", p.EntityID).Msg("pending item cannot be encoded")

			if err := requeue(c.store.db.WithContext(ctx), []string{p.ID}, StateFailed, err.Error(), now); err != nil {
				return err
			}

			report.Rejected++

			continue
		}

		if p.Op == OpUpdate {
			req.UpdatedEntities = append(req.UpdatedEntities, *e)
		} else {
			req.NewEntities = append(req.NewEntities, *e)
		}

		sent[p.EntityID] = p
		pushedAt[p.EntityID] = e.UpdatedAt
	}

	if req.Len() == 0 {
		return nil
	}

	report.Pushed += req.Len()

	entry := model.NewSyncLog(model.DirectionPush, c.device, now)
	entry.ItemCount = req.Len()

	resp, err := c.tr.Push(ctx, req)
	if err != nil {
		ids := make([]string, 0, len(sent))
		for _, p := range sent {
			ids = append(ids, p.ID)
		}

		if qerr := requeue(c.store.db.WithContext(ctx), ids, StateQueued, err.Error(), now); qerr != nil {
			return errors.Join(err, qerr)
		}

		entry.Outcome = model.OutcomeFailed
		entry.RejectedCount = len(ids)
		entry.Detail = err.Error()
		c.appendLog(ctx, entry)

		if errors.Is(err, errs.ErrValidationFailed) {
			return fmt.Errorf("push rejected: %w", err)
		}

		return fmt.Errorf("push batch: %w", asNetwork(err))
	}

	err = c.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range resp.Results {
			p, ok := sent[r.ID]
			if !ok {
				continue
			}

			delete(sent, r.ID)

			switch r.Outcome {
			case types.OutcomeAccepted:
				report.Accepted++

				if err := acknowledge(tx, p, pushedAt[r.ID]); err != nil {
					return err
				}
			case types.OutcomeConflict:
				report.Conflicts++
				entry.ConflictCount++

				l.Warn().Str("entity", r.ID).Str("reason", r.Reason).Msg("server kept a newer version")

				if err := acknowledge(tx, p, pushedAt[r.ID]); err != nil {
					return err
				}
			default:
				report.Rejected++
				entry.RejectedCount++

				l.Warn().Str("entity", r.ID).Str("reason", r.Reason).Msg("server rejected item")

				if err := requeue(tx, []string{p.ID}, StateFailed, r.Reason, now); err != nil {
					return err
				}
			}
		}

		for id, p := range sent {
			report.Rejected++
			entry.RejectedCount++

			if err := requeue(tx, []string{p.ID}, StateFailed, "missing from push response", now); err != nil {
				return err
			}

			l.Warn().Str("entity", id).Msg("item missing from push response")
		}

		return setMeta(ctx, tx, metaLastPush, now.Format(time.RFC3339Nano))
	})
	if err != nil {
		return fmt.Errorf("apply push results: %w", err)
	}

	entry.Settle()
	entry.Detail = resp.Status
	c.appendLog(ctx, entry)

	return nil
}

// envelope 解码条目并内联媒体内容.
func (c *Client) envelope(p *PendingSync) (*types.Entity, error) {
	var e types.Entity
	if err := sonic.UnmarshalString(p.Payload, &e); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	refs, err := p.Media()
	if err != nil {
		return nil, err
	}

	for _, ref := range refs {
		data, err := os.ReadFile(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("read media %s: %w", ref.Name, err)
		}

		e.Media = append(e.Media, types.Media{
			SubLocationID: ref.SubLocationID,
			Filename:      ref.Name,
			Base64Data:    base64.StdEncoding.EncodeToString(data),
		})
	}

	return &e, nil
}

// pull 从水位线开始逐页拉取，每页在一个事务中应用并推进水位线.
func (c *Client) pull(ctx context.Context, report *Report) error {
	since, err := c.store.Watermark(ctx)
	if err != nil {
		return err
	}

	entry := model.NewSyncLog(model.DirectionPull, c.device, c.now())

	for page := 0; page < c.cfg.MaxPullPages && ctx.Err() == nil; page++ {
		resp, err := c.tr.Pull(ctx, since, c.cfg.PullLimit)
		if err != nil {
			entry.Outcome = model.OutcomeFailed
			entry.Detail = err.Error()
			c.appendLog(ctx, entry)

			return fmt.Errorf("pull since %d: %w", since, asNetwork(err))
		}

		applied := 0

		err = c.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i := range resp.Entities {
				ok, err := applyPulled(tx, &resp.Entities[i])
				if err != nil {
					return err
				}

				if ok {
					applied++
				}
			}

			if resp.Watermark <= since {
				return nil
			}

			return setMeta(ctx, tx, metaWatermark, strconv.FormatInt(resp.Watermark, 10))
		})
		if err != nil {
			return fmt.Errorf("apply pulled page: %w", err)
		}

		report.Pulled += len(resp.Entities)
		report.Applied += applied
		entry.ItemCount += len(resp.Entities)

		if resp.Watermark > since {
			since = resp.Watermark
		}

		if !resp.HasMore {
			break
		}
	}

	report.Watermark = since
	entry.Settle()
	c.appendLog(ctx, entry)

	return nil
}

func (c *Client) appendLog(ctx context.Context, entry *model.SyncLog) {
	if err := c.store.appendLog(context.WithoutCancel(ctx), entry); err != nil {
		log.Logger().Warn().Err(err).Str("direction", string(entry.Direction)).Msg("sync log append failed")
	}
}

// Status 汇总本地队列与最近同步.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	st := &Status{DeviceID: c.device, Pending: map[State]int64{}}
	dbx := c.store.db.WithContext(ctx)

	var rows []struct {
		State State
		N     int64
	}
	if err := dbx.Model(&PendingSync{}).Select("state, count(*) AS n").Group("state").Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, r := range rows {
		st.Pending[r.State] = r.N
	}

	if err := dbx.Model(&CachedEntity{}).Count(&st.Cached).Error; err != nil {
		return nil, err
	}

	if err := dbx.Model(&CachedEntity{}).Where("synced = ?", false).Count(&st.Unsynced).Error; err != nil {
		return nil, err
	}

	var err error
	if st.Watermark, err = c.store.Watermark(ctx); err != nil {
		return nil, err
	}

	if st.LastPush, err = c.store.LastSuccessful(ctx, model.DirectionPush); err != nil {
		return nil, err
	}

	if st.LastPull, err = c.store.LastSuccessful(ctx, model.DirectionPull); err != nil {
		return nil, err
	}

	return st, nil
}
