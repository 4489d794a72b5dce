// Package importer 实现内容寻址的导入流水线.
//
// 一次导入依次完成：校验 → 源文件哈希 → 去重 → 分配标识符 → 派生路径并建目录 →
// 放置文件 → 落盘复核 → 事务内写入记录 → 可选删除源文件.
// 数据库行是最后一个变更，且只在复核通过后写入，不会出现指向缺失或损坏文件的记录.
//
// 命令行导入与同步服务端都调用同一个 Pipeline.Import.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/bizzlechizzle/aupat/pkg/cache"
	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
	"github.com/bizzlechizzle/aupat/pkg/internal/hasher"
	"github.com/bizzlechizzle/aupat/pkg/internal/ident"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/naming"
	"github.com/bizzlechizzle/aupat/pkg/internal/storage/kv"
	nlog "github.com/bizzlechizzle/aupat/pkg/log"
	"github.com/bizzlechizzle/aupat/pkg/metrics"
	"github.com/bizzlechizzle/aupat/pkg/queue"
	"github.com/bizzlechizzle/aupat/pkg/tracing"
)

// LocationContext 导入目标地点. 派生归档目录需要这些字段.
type LocationContext struct {
	ID        string `json:"id"`
	ShortName string `json:"short_name"`
	State     string `json:"state"`
	Type      string `json:"type"`
}

// LocationContextOf 由地点记录构造导入上下文.
func LocationContextOf(loc *model.Location) LocationContext {
	short := loc.ShortName
	if short == "" {
		short = naming.ShortName(loc.Name)
	}

	return LocationContext{ID: loc.ID, ShortName: short, State: loc.State, Type: loc.Type}
}

// Request 一次导入请求.
type Request struct {
	SourcePath    string
	Location      LocationContext
	SubLocationID string
	ArchiveRoot   string // 为空时使用 archive.root
	DeleteSource  bool   // 成功后删除源文件；可以时直接重命名
	EntityID      string // 预设实体 ID（同步推送），前缀冲突时重新生成
	OriginalName  string // 为空时取源文件名
	DeviceID      string // 来源设备，桌面导入为空
}

// Result 导入结果. Duplicate 为 true 时 EntityID 是已有记录的 ID.
type Result struct {
	Success       bool       `json:"success"`
	Duplicate     bool       `json:"duplicate"`
	EntityID      string     `json:"entity_id"`
	Kind          model.Kind `json:"kind"`
	CanonicalName string     `json:"canonical_name"`
	ArchivePath   string     `json:"archive_path"`
	Hash          string     `json:"hash"`
	Verified      bool       `json:"verified"`
	Size          int64      `json:"size"`
}

// Mirror 把归档文件复制到对象存储，storage/s3.Client 满足.
type Mirror interface {
	Mirror(ctx context.Context, localPath, archivePath, sha256 string) error
}

// Deps 流水线依赖. KV、Events、Mirror、Uploader 可为空.
type Deps struct {
	DB       *gorm.DB
	KV       *kv.Client
	Events   *queue.Events
	Mirror   Mirror
	Uploader AssetUploader
	Clock    *model.RevisionClock
	IDs      *ident.Generator
	Config   configs.ArchiveConfig
}

// copyFunc 把 src 的内容写到 dst.
type copyFunc func(ctx context.Context, src, dst string) error

// Option 配置 Pipeline.
type Option func(*Pipeline)

func withCopier(fn copyFunc) Option {
	return func(p *Pipeline) { p.copy = fn }
}

// Pipeline 导入流水线. 可并发使用.
type Pipeline struct {
	db       *gorm.DB
	index    *cache.Cache
	events   *queue.Events
	mirror   Mirror
	uploader AssetUploader
	clock    *model.RevisionClock
	ids      *ident.Generator
	cfg      configs.ArchiveConfig
	copy     copyFunc

	flight singleflight.Group
}

// New 创建流水线.
func New(deps Deps, opts ...Option) (*Pipeline, error) {
	if deps.DB == nil {
		return nil, errors.New("importer: db is required")
	}

	if deps.Clock == nil {
		deps.Clock = model.NewRevisionClock()
	}

	if deps.IDs == nil {
		deps.IDs = ident.New(deps.Config.IDCollisionWidth, deps.Config.IDMaxRetries)
	}

	p := &Pipeline{
		db:       deps.DB,
		events:   deps.Events,
		mirror:   deps.Mirror,
		uploader: deps.Uploader,
		clock:    deps.Clock,
		ids:      deps.IDs,
		cfg:      deps.Config,
		copy:     copyFile,
	}

	if deps.KV != nil {
		p.index = cache.New(deps.KV, indexNamespace)
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Root 返回默认归档根目录.
func (p *Pipeline) Root() string { return p.cfg.Root }

// source 通过校验的源文件.
type source struct {
	req  Request
	kind model.Kind
	ext  string
	size int64
	root string
}

// Import 导入一个文件.
func (p *Pipeline) Import(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Import")
	defer span.End()

	start := time.Now()

	src, err := p.validate(req)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	hash, err := hasher.HashFileContext(ctx, req.SourcePath)
	if err != nil {
		err = fmt.Errorf("%w: %w", errs.ErrHashingFailed, err)
		metrics.ImportsTotal.WithLabelValues(string(src.kind), metrics.OutcomeFailed).Inc()
		tracing.RecordError(span, err)

		return nil, err
	}

	// 同一张表内相同内容的导入串行：后到者等待并共享第一个结果
	leader := false

	v, err, _ := p.flight.Do(src.kind.Table()+":"+hash, func() (any, error) {
		leader = true
		return p.importHashed(ctx, src, hash)
	})
	if err != nil {
		metrics.ImportsTotal.WithLabelValues(string(src.kind), metrics.OutcomeFailed).Inc()
		tracing.RecordError(span, err)

		return nil, err
	}

	res := *v.(*Result)
	if !leader {
		res.Duplicate = true
	}

	if req.DeleteSource {
		p.removeSource(req.SourcePath)
	}

	outcome := metrics.OutcomeImported
	if res.Duplicate {
		outcome = metrics.OutcomeDuplicate
	}

	metrics.ImportsTotal.WithLabelValues(string(src.kind), outcome).Inc()
	metrics.ImportDuration.WithLabelValues(string(src.kind)).Observe(time.Since(start).Seconds())

	return &res, nil
}

// Outcome ImportMany 中单个请求的结果.
type Outcome struct {
	Request Request
	Result  *Result
	Err     error
}

// ImportMany 并行导入，并发度受 archive.import_workers 限制.
// 单个失败不影响其它请求；只有 ctx 取消时返回错误，此时未开始的请求 Err 为 ctx.Err().
func (p *Pipeline) ImportMany(ctx context.Context, reqs []Request) ([]Outcome, error) {
	out := make([]Outcome, len(reqs))

	var g errgroup.Group

	g.SetLimit(max(p.cfg.ImportWorkers, 1))

	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			out[i] = Outcome{Request: req, Err: err}
			continue
		}

		g.Go(func() error {
			res, err := p.Import(ctx, req)
			out[i] = Outcome{Request: req, Result: res, Err: err}

			return nil
		})
	}

	_ = g.Wait()

	return out, ctx.Err()
}

func (p *Pipeline) validate(req Request) (*source, error) {
	if req.SourcePath == "" {
		return nil, fmt.Errorf("source path is empty: %w", errs.ErrValidationFailed)
	}

	info, err := os.Stat(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrValidationFailed, err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file: %w", req.SourcePath, errs.ErrValidationFailed)
	}

	if !ident.Valid(req.Location.ID) {
		return nil, fmt.Errorf("location id %q: %w", req.Location.ID, errs.ErrValidationFailed)
	}

	if req.SubLocationID != "" && !ident.Valid(req.SubLocationID) {
		return nil, fmt.Errorf("sub-location id %q: %w", req.SubLocationID, errs.ErrValidationFailed)
	}

	root := req.ArchiveRoot
	if root == "" {
		root = p.cfg.Root
	}

	if root == "" {
		return nil, fmt.Errorf("archive root is empty: %w", errs.ErrValidationFailed)
	}

	name := req.OriginalName
	if name == "" {
		name = filepath.Base(req.SourcePath)
	}

	req.OriginalName = name
	ext := naming.NormalizeExt(filepath.Ext(name))

	return &source{
		req:  req,
		kind: model.KindForExt(ext),
		ext:  ext,
		size: info.Size(),
		root: root,
	}, nil
}

func (p *Pipeline) importHashed(ctx context.Context, src *source, hash string) (*Result, error) {
	log := nlog.Logger().With().
		Str("kind", string(src.kind)).
		Str("hash", naming.First12(hash)).
		Str("source", src.req.SourcePath).
		Logger()

	existing, err := p.lookup(ctx, src.kind, hash)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		log.Debug().Str("id", existing.EntityID).Msg("duplicate content, reusing entity")
		p.events.EntityDuplicate(ctx, queue.EntityDuplicatePayload{
			Entity:     entityRef(existing, src.req.Location.ID),
			SourceName: src.req.OriginalName,
		})

		return existing, nil
	}

	// 标识符不参与派生路径，在持久化事务内分配
	id := src.req.EntityID
	if id != "" && !ident.Valid(id) {
		return nil, fmt.Errorf("entity id %q: %w", id, errs.ErrValidationFailed)
	}

	place := naming.Place(naming.Location{
		ID:        src.req.Location.ID,
		ShortName: src.req.Location.ShortName,
		State:     src.req.Location.State,
		Type:      src.req.Location.Type,
	}, src.req.SubLocationID, string(src.kind), hash, src.ext)

	dest := filepath.Join(src.root, filepath.FromSlash(place.Path))

	// MkdirAll 对已存在的目录返回 nil，并发创建同一路径是安全的
	if err := os.MkdirAll(filepath.Dir(dest), configs.DefaultArchiveDirPerm); err != nil {
		return nil, fmt.Errorf("create archive folder: %w", err)
	}

	placed, err := p.place(ctx, src.req, dest)
	if err != nil {
		return nil, err
	}

	if err := p.verify(ctx, src, hash, dest, placed); err != nil {
		log.Error().Err(err).Str("dest", dest).Msg("verification failed, archive copy rolled back")
		return nil, err
	}

	res := &Result{
		Success:       true,
		Kind:          src.kind,
		CanonicalName: place.Name,
		ArchivePath:   place.Path,
		Hash:          hash,
		Verified:      true,
		Size:          src.size,
	}

	dup, err := p.persist(ctx, src, id, res)
	if err != nil {
		p.undoPlace(src.req, dest, placed)
		return nil, err
	}

	if dup != nil {
		// 并发的另一个进程抢先写入了相同内容
		if dup.ArchivePath != res.ArchivePath {
			p.undoPlace(src.req, dest, placed)
		}

		return dup, nil
	}

	log.Info().Str("id", res.EntityID).Str("path", res.ArchivePath).Msg("imported")

	metrics.ImportedBytes.Add(float64(src.size))
	p.remember(ctx, res)

	mirrored := p.mirrorFile(ctx, dest, res)
	p.uploadAsset(ctx, dest, src.req.Location.ID, res)
	p.events.EntityImported(ctx, queue.EntityImportedPayload{
		Entity:       entityRef(res, src.req.Location.ID),
		OriginalName: src.req.OriginalName,
		DeviceID:     src.req.DeviceID,
		Mirrored:     mirrored,
	})

	return res, nil
}

// placement 记录放置方式，失败回滚时使用.
type placement int

const (
	placedExisting placement = iota // 目标已存在，未写入
	placedCopy
	placedRename
)

func (p *Pipeline) place(ctx context.Context, req Request, dest string) (placement, error) {
	if _, err := os.Stat(dest); err == nil {
		return placedExisting, nil
	}

	if req.DeleteSource {
		if err := os.Rename(req.SourcePath, dest); err == nil {
			return placedRename, nil
		}
		// 跨文件系统时退回复制
	}

	if err := p.copy(ctx, req.SourcePath, dest); err != nil {
		_ = os.Remove(dest)
		return placedCopy, fmt.Errorf("place %s: %w", dest, err)
	}

	return placedCopy, nil
}

func (p *Pipeline) undoPlace(req Request, dest string, how placement) {
	var err error

	switch how {
	case placedRename:
		err = os.Rename(dest, req.SourcePath)
	case placedCopy:
		err = os.Remove(dest)
	case placedExisting:
		return
	}

	if err != nil && !os.IsNotExist(err) {
		nlog.Logger().Warn().Err(err).Str("dest", dest).Msg("undo placement failed")
	}
}

// verify 在最终路径上重新计算哈希. 失败时撤销放置：移动来的文件放回源路径，
// 复制出的文件删除. ctx 取消不是损坏，只回滚不发布复核失败事件.
func (p *Pipeline) verify(ctx context.Context, src *source, hash, dest string, how placement) error {
	actual, err := hasher.HashFileContext(ctx, dest)
	if err == nil && actual == hash {
		return nil
	}

	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		p.undoPlace(src.req, dest, how)
		return fmt.Errorf("verify %s: %w", dest, ctxErr)
	}

	if how == placedRename {
		p.undoPlace(src.req, dest, how)
	} else if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
		nlog.Logger().Warn().Err(rmErr).Str("dest", dest).Msg("remove unverified copy failed")
	}

	cause := fmt.Errorf("%w: expected %s, got %s", errs.ErrVerificationFailed, hash, actual)
	if err != nil {
		cause = fmt.Errorf("%w: %w", errs.ErrVerificationFailed, err)
	}

	p.events.EntityVerifyFailed(ctx, queue.EntityVerifyFailedPayload{
		Kind:       string(src.kind),
		LocationID: src.req.Location.ID,
		Expected:   hash,
		Actual:     actual,
		Path:       dest,
		Error:      cause.Error(),
	})

	return cause
}

// persist 在一个事务内复核去重与标识符并写入记录.
// 事务内发现相同内容已存在时返回已有结果，不写入.
func (p *Pipeline) persist(ctx context.Context, src *source, id string, res *Result) (*Result, error) {
	var dup *Result

	table := src.kind.Table()

	rev := p.clock.Begin()
	defer rev.End()

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findByHash(ctx, tx, src.kind, res.Hash)
		if err != nil {
			return err
		}

		if existing != nil {
			dup = existing
			return nil
		}

		if id, err = p.confirmID(ctx, tx, table, id); err != nil {
			return err
		}

		now := model.Stamp(time.Now())
		rec := src.kind.New()
		base := rec.Base()
		base.ID = id
		base.DeviceID = src.req.DeviceID
		base.Verified = true
		base.CreatedAt = now
		base.UpdatedAt = now
		base.ModifiedAt = rev.Next()

		file := rec.(model.FileRecord).File()
		file.LocationID = src.req.Location.ID
		file.SubLocationID = src.req.SubLocationID
		file.Hash = res.Hash
		file.OriginalName = src.req.OriginalName
		file.CanonicalName = res.CanonicalName
		file.ArchivePath = res.ArchivePath
		file.Extension = src.ext
		file.Size = src.size

		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}

		res.EntityID = id

		return nil
	})
	if err != nil {
		return nil, err
	}

	return dup, nil
}

// confirmID 复核预设或先前生成的 ID；完整 ID 已被占用时重新生成.
func (p *Pipeline) confirmID(ctx context.Context, tx *gorm.DB, table, id string) (string, error) {
	if id == "" {
		return p.ids.Generate(ctx, tx, table)
	}

	var n int64
	if err := tx.WithContext(ctx).Table(table).Where("id = ?", id).Count(&n).Error; err != nil {
		return "", err
	}

	if n > 0 {
		return p.ids.Generate(ctx, tx, table)
	}

	return p.ids.Confirm(ctx, tx, table, id)
}

// lookup 先查 KV 哈希索引，再查数据库.
func (p *Pipeline) lookup(ctx context.Context, kind model.Kind, hash string) (*Result, error) {
	if p.index != nil {
		cached, err := cache.Get[Result](ctx, p.index, cacheKey(kind, hash))
		switch {
		case err == nil && cached.EntityID != "":
			cached.Duplicate = true
			return &cached, nil
		case err != nil && !errors.Is(err, cache.ErrMiss):
			nlog.Logger().Warn().Err(err).Msg("hash index lookup failed, falling back to db")
		}
	}

	res, err := findByHash(ctx, p.db, kind, hash)
	if err != nil || res == nil {
		return res, err
	}

	p.remember(ctx, res)

	return res, nil
}

func findByHash(ctx context.Context, db *gorm.DB, kind model.Kind, hash string) (*Result, error) {
	rec := kind.New()

	err := db.WithContext(ctx).Where("hash = ?", hash).Take(rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("dedup lookup in %s: %w", kind.Table(), err)
	}

	file := rec.(model.FileRecord).File()

	return &Result{
		Success:       true,
		Duplicate:     true,
		EntityID:      file.ID,
		Kind:          kind,
		CanonicalName: file.CanonicalName,
		ArchivePath:   file.ArchivePath,
		Hash:          file.Hash,
		Verified:      file.Verified,
		Size:          file.Size,
	}, nil
}

func cacheKey(kind model.Kind, hash string) string {
	return string(kind) + ":" + hash
}

// remember 缓存 hash → 实体，失败只记录日志.
func (p *Pipeline) remember(ctx context.Context, res *Result) {
	if p.index == nil {
		return
	}

	if err := cache.Set(ctx, p.index, cacheKey(res.Kind, res.Hash), *res, p.cfg.HashCacheTTL); err != nil {
		nlog.Logger().Warn().Err(err).Msg("hash index update failed")
	}
}

func (p *Pipeline) mirrorFile(ctx context.Context, dest string, res *Result) bool {
	if p.mirror == nil {
		return false
	}

	if err := p.mirror.Mirror(ctx, dest, res.ArchivePath, res.Hash); err != nil {
		nlog.Logger().Warn().Err(err).Str("path", res.ArchivePath).Msg("archive mirror failed")
		return false
	}

	return true
}

// removeSource 删除源文件. 失败只记录日志，归档副本已经持久.
func (p *Pipeline) removeSource(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		nlog.Logger().Warn().Err(err).Str("source", path).Msg("delete source failed")
	}
}

func entityRef(r *Result, locationID string) queue.EntityRef {
	return queue.EntityRef{
		Kind:        string(r.Kind),
		ID:          r.EntityID,
		LocationID:  locationID,
		Hash:        r.Hash,
		ArchivePath: r.ArchivePath,
		Size:        r.Size,
	}
}
