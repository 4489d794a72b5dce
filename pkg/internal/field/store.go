package field

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/storage/db"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
)

// State 待同步条目状态.
type State string

const (
	StateQueued       State = "queued"
	StatePushing      State = "pushing"
	StateFailed       State = "failed"
	StateAcknowledged State = "acknowledged"
)

// Op 待同步条目对应的推送列表.
type Op string

const (
	OpNew    Op = "new"
	OpUpdate Op = "update"
)

// sync_meta 键.
const (
	metaWatermark = "last_pull_watermark"
	metaLastPush  = "last_push_at"
	metaDeviceID  = "device_id"
)

// CachedEntity 本地实体缓存. Payload 为 sonic 编码的 types.Entity.
type CachedEntity struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Kind       string    `gorm:"size:8;index"`
	LocationID string    `gorm:"size:36;index"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
	ModifiedAt int64     `gorm:"index"`
	Synced     bool      `gorm:"index"`
	Payload    string    `gorm:"type:text"`
}

func (CachedEntity) TableName() string { return "cached_entities" }

// Entity 解码缓存的信封.
func (c *CachedEntity) Entity() (*types.Entity, error) {
	var e types.Entity
	if err := sonic.UnmarshalString(c.Payload, &e); err != nil {
		return nil, fmt.Errorf("decode cached entity %s: %w", c.ID, err)
	}

	return &e, nil
}

// MediaRef 本地媒体文件. 内容哈希推迟到服务端导入时计算.
type MediaRef struct {
	Path          string `json:"path"`
	Name          string `json:"name"`
	SubLocationID string `json:"sub_location_id,omitempty"`
}

// PendingSync 待推送条目. 在任何网络尝试之前创建，服务端确认后才删除.
type PendingSync struct {
	ID        string `gorm:"primaryKey;size:26"`
	EntityID  string `gorm:"size:36;index"`
	Kind      string `gorm:"size:8"`
	Op        Op     `gorm:"size:8"`
	Payload   string `gorm:"type:text"`
	MediaJSON string `gorm:"type:text"`
	State     State  `gorm:"size:16;index"`
	Attempts  int
	LastError string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PendingSync) TableName() string { return "pending_syncs" }

// Media 解码媒体列表.
func (p *PendingSync) Media() ([]MediaRef, error) {
	if p.MediaJSON == "" {
		return nil, nil
	}

	var refs []MediaRef
	if err := sonic.UnmarshalString(p.MediaJSON, &refs); err != nil {
		return nil, fmt.Errorf("decode media of %s: %w", p.ID, err)
	}

	return refs, nil
}

// SyncMeta 同步元数据.
type SyncMeta struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (SyncMeta) TableName() string { return "sync_meta" }

// Store 现场设备本地库. 始终是 SQLite 单连接.
type Store struct {
	client *db.Client
	db     *gorm.DB
}

// OpenStore 打开并迁移本地库.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	cfg := configs.Default().DB
	cfg.Type = configs.SQLite
	cfg.Database = path

	client, err := db.New(ctx, cfg, false)
	if err != nil {
		return nil, fmt.Errorf("open field store: %w", err)
	}

	if err := client.Migrate(ctx, &CachedEntity{}, &PendingSync{}, &SyncMeta{}, &model.SyncLog{}); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Store{client: client, db: client.GetDB()}, nil
}

// DB 返回底层 gorm 实例.
func (s *Store) DB() *gorm.DB { return s.db }

// Close 关闭本地库.
func (s *Store) Close() error { return s.client.Close() }

func getMeta(ctx context.Context, tx *gorm.DB, key string) (string, error) {
	var m SyncMeta

	err := tx.WithContext(ctx).Where("key = ?", key).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}

	return m.Value, err
}

func setMeta(ctx context.Context, tx *gorm.DB, key, value string) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&SyncMeta{Key: key, Value: value, UpdatedAt: time.Now().UTC()}).Error
}

// Watermark 返回已应用的拉取水位线.
func (s *Store) Watermark(ctx context.Context) (int64, error) {
	v, err := getMeta(ctx, s.db, metaWatermark)
	if err != nil || v == "" {
		return 0, err
	}

	var w int64
	if _, err := fmt.Sscan(v, &w); err != nil {
		return 0, fmt.Errorf("corrupt watermark %q: %w", v, err)
	}

	return w, nil
}

// Cached 读取缓存实体.
func (s *Store) Cached(ctx context.Context, id string) (*CachedEntity, error) {
	var c CachedEntity
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, err
	}

	return &c, nil
}

// Pending 按创建顺序列出待同步条目.
func (s *Store) Pending(ctx context.Context) ([]PendingSync, error) {
	var rows []PendingSync
	err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error

	return rows, err
}

// recoverStale 把上个周期中断的 pushing 与失败的条目放回队列.
// pushing 视为一次失败尝试.
func (s *Store) recoverStale(ctx context.Context, now time.Time) (int64, error) {
	var n int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&PendingSync{}).Where("state = ?", StatePushing).Updates(map[string]any{
			"state":      StateQueued,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": "interrupted during push",
			"updated_at": now,
		})
		if res.Error != nil {
			return res.Error
		}

		n = res.RowsAffected

		res = tx.Model(&PendingSync{}).Where("state = ?", StateFailed).Updates(map[string]any{
			"state":      StateQueued,
			"updated_at": now,
		})
		n += res.RowsAffected

		return res.Error
	})

	return n, err
}

// claimBatch 取出最早的 queued 条目并标记为 pushing，状态变更先落盘再发请求.
func (s *Store) claimBatch(ctx context.Context, size int, now time.Time) ([]PendingSync, error) {
	var batch []PendingSync

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("state = ?", StateQueued).Order("id ASC").Limit(size).Find(&batch).Error; err != nil {
			return err
		}

		if len(batch) == 0 {
			return nil
		}

		ids := make([]string, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
			batch[i].State = StatePushing
		}

		return tx.Model(&PendingSync{}).Where("id IN ?", ids).Updates(map[string]any{
			"state":      StatePushing,
			"updated_at": now,
		}).Error
	})

	return batch, err
}

// requeue 把条目放回队列并累加尝试次数.
func requeue(tx *gorm.DB, ids []string, state State, reason string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	return tx.Model(&PendingSync{}).Where("id IN ?", ids).Updates(map[string]any{
		"state":      state,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": reason,
		"updated_at": now,
	}).Error
}

// release 把条目放回队列，不计入尝试次数.
func release(tx *gorm.DB, id string, now time.Time) error {
	return tx.Model(&PendingSync{}).Where("id = ?", id).Updates(map[string]any{
		"state":      StateQueued,
		"updated_at": now,
	}).Error
}

// acknowledge 删除已确认的条目. 缓存只在没有更新的本地修改时标记为已同步.
func acknowledge(tx *gorm.DB, p *PendingSync, pushed time.Time) error {
	if err := tx.Delete(&PendingSync{}, "id = ?", p.ID).Error; err != nil {
		return err
	}

	return tx.Model(&CachedEntity{}).
		Where("id = ? AND updated_at <= ?", p.EntityID, pushed).
		Update("synced", true).Error
}

// applyPulled 以 UpdatedAt 做最后写入者胜出合并. 只有更新的版本覆盖本地；
// 时间相同时只刷新已同步的行，未推送的本地修改保留.
func applyPulled(tx *gorm.DB, e *types.Entity) (bool, error) {
	var existing CachedEntity

	err := tx.Where("id = ?", e.ID).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return false, err
	case existing.UpdatedAt.After(e.UpdatedAt):
		return false, nil
	case existing.UpdatedAt.Equal(e.UpdatedAt) && !existing.Synced:
		return false, nil
	}

	payload, err := sonic.MarshalString(e)
	if err != nil {
		return false, err
	}

	row := CachedEntity{
		ID:         e.ID,
		Kind:       e.Kind,
		LocationID: entityLocation(e),
		UpdatedAt:  e.UpdatedAt,
		ModifiedAt: e.ModifiedAt,
		Synced:     true,
		Payload:    payload,
	}

	return true, tx.Save(&row).Error
}

func entityLocation(e *types.Entity) string {
	switch {
	case e.Kind == string(model.KindLocation):
		return e.ID
	case e.URL != nil:
		return e.URL.LocationID
	case e.File != nil:
		return e.File.LocationID
	}

	return ""
}

// appendLog 追加一条本地同步日志.
func (s *Store) appendLog(ctx context.Context, entry *model.SyncLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// LastSuccessful 最近一次非失败的同步.
func (s *Store) LastSuccessful(ctx context.Context, dir model.Direction) (*model.SyncLog, error) {
	var entry model.SyncLog

	err := s.db.WithContext(ctx).
		Where("direction = ? AND outcome <> ?", dir, model.OutcomeFailed).
		Order("id DESC").Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &entry, nil
}
