// Package cache 在键值存储之上提供带类型的缓存.
//
// 值使用 sonic 序列化，键按命名空间拼接. 导入流水线用它维护
// 内容哈希 -> 归档实体 的索引，索引丢失时调用方回退到数据库.
//
// 基本用法:
//
//	c := cache.New(kvClient, "hash")
//	err := cache.Set(ctx, c, "img:"+sum, result, time.Hour)
//	res, err := cache.Get[Result](ctx, c, "img:"+sum)
//
// 未命中返回 ErrMiss，底层存储的错误原样包装返回.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/bizzlechizzle/aupat/pkg/internal/storage/kv"
)

// ErrMiss 缓存未命中.
var ErrMiss = errors.New("cache: miss")

// Store 缓存依赖的最小键值接口，*kv.Client 满足该接口.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache 基于 Store 的命名空间缓存.
type Cache struct {
	store     Store
	namespace string
}

// New 创建缓存. namespace 为空时键不加前缀.
func New(store Store, namespace string) *Cache {
	return &Cache{store: store, namespace: namespace}
}

// Key 返回带命名空间的完整键.
func (c *Cache) Key(key string) string {
	if c.namespace == "" {
		return key
	}

	return c.namespace + ":" + key
}

// Get 读取并反序列化缓存值.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var value T

	data, err := c.store.Get(ctx, c.Key(key))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return value, ErrMiss
	}

	if err != nil {
		return value, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := sonic.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return value, nil
}

// Set 序列化并写入缓存值. ttl 为 0 表示不过期.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.store.Set(ctx, c.Key(key), data, ttl)
}

// Delete 删除缓存键.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.Key(key))
}

// GetOrSet 命中时直接返回，否则调用 load 并回写. 回写失败不影响返回值.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, load func() (T, error), ttl time.Duration) (T, error) {
	if value, err := Get[T](ctx, c, key); err == nil {
		return value, nil
	}

	value, err := load()
	if err != nil {
		return value, err
	}

	_ = Set(ctx, c, key, value, ttl)

	return value, nil
}
