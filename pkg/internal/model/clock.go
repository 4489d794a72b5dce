package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// RevisionClock 分配严格递增的修订号（unix 纳秒），跨全部实体表共享.
//
// 写事务通过 Begin 取得作用域分配修订号，提交或回滚后 End. 多连接的数据库上
// 事务的提交顺序可能与分配顺序不同，Visible 因此只公开低于所有在途修订号的部分，
// 拉取不会把水位线推过尚未提交的行.
type RevisionClock struct {
	mu       sync.Mutex
	last     int64
	inflight map[int64]struct{}
	now      func() time.Time
}

// NewRevisionClock 创建时钟.
func NewRevisionClock() *RevisionClock {
	return &RevisionClock{now: time.Now, inflight: make(map[int64]struct{})}
}

// Seed 以全部实体表中最大的 modified_at 作为起点.
func (c *RevisionClock) Seed(ctx context.Context, db *gorm.DB) error {
	var highest int64

	for _, k := range Kinds() {
		var v int64

		row := db.WithContext(ctx).Table(k.Table()).Select("COALESCE(MAX(modified_at), 0)").Row()
		if err := row.Scan(&v); err != nil {
			return fmt.Errorf("seed revision clock from %s: %w", k.Table(), err)
		}

		if v > highest {
			highest = v
		}
	}

	c.Observe(highest)

	return nil
}

// Observe 确保后续修订号大于 v.
func (c *RevisionClock) Observe(v int64) {
	c.mu.Lock()
	if v > c.last {
		c.last = v
	}
	c.mu.Unlock()
}

// Next 返回下一个修订号，不登记为在途.
func (c *RevisionClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.next()
}

func (c *RevisionClock) next() int64 {
	n := c.now().UnixNano()
	if n <= c.last {
		n = c.last + 1
	}

	c.last = n

	return n
}

// Last 返回最近一次分配的修订号.
func (c *RevisionClock) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}

// Visible 返回可以安全交给拉取方的最大修订号.
func (c *RevisionClock) Visible() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.last
	for r := range c.inflight {
		if r-1 < v {
			v = r - 1
		}
	}

	return v
}

// Begin 为一个写事务打开修订作用域. 调用方必须在事务结束后调用 End.
func (c *RevisionClock) Begin() *RevisionScope {
	return &RevisionScope{clock: c}
}

// RevisionScope 一个写事务内分配的修订号.
type RevisionScope struct {
	clock *RevisionClock
	revs  []int64
}

// Next 分配修订号并登记为在途.
func (s *RevisionScope) Next() int64 {
	c := s.clock

	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.next()
	c.inflight[n] = struct{}{}
	s.revs = append(s.revs, n)

	return n
}

// End 结束作用域. 可重复调用.
func (s *RevisionScope) End() {
	c := s.clock

	c.mu.Lock()
	for _, r := range s.revs {
		delete(c.inflight, r)
	}
	c.mu.Unlock()

	s.revs = nil
}

// Stamp 规范化逻辑时间：UTC，微秒精度（各数据库可无损往返）.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
