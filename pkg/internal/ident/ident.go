// Package ident 生成在表内前缀唯一的实体标识符.
//
// 标识符为随机 UUIDv4（小写带连字符）. 派生文件名只取前 Width 个字符，
// 因此约束的是前缀唯一，而不是完整值唯一. 前缀从不落库，使用时截取.
package ident

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
)

const (
	DefaultWidth      = 12
	DefaultMaxRetries = 100
)

// prefixUpperBound 大于 UUID 文本中可能出现的任何字符（0-9 a-f -），用于前缀范围查询.
const prefixUpperBound = "~"

// Generator 标识符生成器. 同一张表的生成过程在进程内串行.
type Generator struct {
	width      int
	maxRetries int
	source     func() string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option 配置 Generator.
type Option func(*Generator)

// WithSource 替换随机源，测试用.
func WithSource(fn func() string) Option {
	return func(g *Generator) { g.source = fn }
}

// New 创建生成器. width/maxRetries 非正时使用默认值.
func New(width, maxRetries int, opts ...Option) *Generator {
	if width <= 0 {
		width = DefaultWidth
	}

	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	g := &Generator{
		width:      width,
		maxRetries: maxRetries,
		source:     func() string { return uuid.New().String() },
		locks:      make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Width 返回前缀宽度.
func (g *Generator) Width() int { return g.width }

// Prefix 截取标识符前缀.
func Prefix(id string, width int) string {
	if len(id) <= width {
		return id
	}

	return id[:width]
}

// Valid 报告 id 是否为规范小写 UUID 文本.
func Valid(id string) bool {
	u, err := uuid.Parse(id)

	return err == nil && u.String() == id
}

func (g *Generator) tableLock(table string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.locks[table]
	if !ok {
		l = &sync.Mutex{}
		g.locks[table] = l
	}

	return l
}

// prefixTaken 统计 table 中以 prefix 开头的行（排除 except）.
// 使用主键范围查询代替 LIKE，可以走主键索引.
func prefixTaken(ctx context.Context, tx *gorm.DB, table, prefix, except string) (bool, error) {
	var n int64

	q := tx.WithContext(ctx).Table(table).
		Where("id >= ? AND id < ?", prefix, prefix+prefixUpperBound)
	if except != "" {
		q = q.Where("id <> ?", except)
	}

	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("check id prefix in %s: %w", table, err)
	}

	return n > 0, nil
}

// Generate 生成一个在 table 内前缀唯一的标识符. tx 可以是事务或普通连接.
func (g *Generator) Generate(ctx context.Context, tx *gorm.DB, table string) (string, error) {
	l := g.tableLock(table)
	l.Lock()
	defer l.Unlock()

	return g.generate(ctx, tx, table)
}

func (g *Generator) generate(ctx context.Context, tx *gorm.DB, table string) (string, error) {
	for range g.maxRetries {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		id := strings.ToLower(g.source())

		taken, err := prefixTaken(ctx, tx, table, Prefix(id, g.width), "")
		if err != nil {
			return "", err
		}

		if !taken {
			return id, nil
		}
	}

	return "", fmt.Errorf("%s after %d attempts: %w", table, g.maxRetries, errs.ErrIdentifierExhausted)
}

// Confirm 在持久化事务内复核 id：为空或前缀已被其它行占用时重新生成.
// id 已经以完整值存在于表中时原样返回，由调用方决定如何处理.
func (g *Generator) Confirm(ctx context.Context, tx *gorm.DB, table, id string) (string, error) {
	l := g.tableLock(table)
	l.Lock()
	defer l.Unlock()

	if id == "" {
		return g.generate(ctx, tx, table)
	}

	if !Valid(id) {
		return "", fmt.Errorf("identifier %q: %w", id, errs.ErrValidationFailed)
	}

	taken, err := prefixTaken(ctx, tx, table, Prefix(id, g.width), id)
	if err != nil {
		return "", err
	}

	if !taken {
		return id, nil
	}

	return g.generate(ctx, tx, table)
}
