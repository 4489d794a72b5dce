// Package kv 提供用于键值存储的接口和实现. 归档服务用它缓存 内容哈希 -> 实体ID 索引.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bizzlechizzle/aupat/pkg/configs"
)

// ErrKeyNotFound 键不存在或已过期.
var ErrKeyNotFound = errors.New("kv: key not found")

// KVStore 定义键值存储接口.
type KVStore interface {
	// Get 获取键的值.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 设置键的值，可选过期时间.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete 删除键.
	Delete(ctx context.Context, key string) error
	// Exists 检查键是否存在.
	Exists(ctx context.Context, key string) (bool, error)
	// Keys 获取所有键（可选，用于调试）.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Close 关闭存储连接.
	Close() error
}

// KVFactory 定义创建 KVStore 的工厂函数类型.
type KVFactory func(ctx context.Context, cfg configs.KVConfig) (KVStore, error)

// kvFactories 存储 KV 类型到工厂的映射.
var kvFactories = make(map[configs.KVType]KVFactory)

// RegisterKVFactory 注册 KV 工厂函数.
func RegisterKVFactory(kvType configs.KVType, factory KVFactory) {
	kvFactories[kvType] = factory
}

// GetRegisteredKVTypes 返回已注册的 KV 类型列表.
func GetRegisteredKVTypes() []configs.KVType {
	types := make([]configs.KVType, 0, len(kvFactories))
	for kvType := range kvFactories {
		types = append(types, kvType)
	}

	return types
}

// NewKVStore 根据类型创建 KVStore 实例.
func NewKVStore(ctx context.Context, cfg configs.KVConfig) (KVStore, error) {
	factory, exists := kvFactories[cfg.Type]
	if !exists {
		return nil, fmt.Errorf("unsupported KV type: %s", cfg.Type)
	}

	return factory(ctx, cfg)
}

// Client 在 KVStore 之上统一加 key 前缀.
type Client struct {
	store  KVStore
	prefix string
}

// New 按配置创建 KV 客户端.
func New(ctx context.Context, cfg configs.KVConfig) (*Client, error) {
	store, err := NewKVStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Client{store: store, prefix: cfg.KeyPrefix}, nil
}

// NewWithStore 用已有实现构造客户端，测试使用.
func NewWithStore(store KVStore, prefix string) *Client {
	return &Client{store: store, prefix: prefix}
}

// Prefix 返回客户端的键前缀，Keys 的结果带此前缀.
func (c *Client) Prefix() string { return c.prefix }

func (c *Client) key(k string) string {
	return c.prefix + k
}

// Get 获取键的值，不存在返回 ErrKeyNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	return c.store.Get(ctx, c.key(key))
}

// Set 写入键值.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.store.Set(ctx, c.key(key), value, ttl)
}

// Delete 删除键.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.key(key))
}

// Keys 列出带前缀的键，pattern 为空时列出全部.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	return c.store.Keys(ctx, c.key(pattern))
}

// Ping 通过一次 Exists 调用检查后端可用.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.store.Exists(ctx, c.key("ping"))
	return err
}

// Close 关闭底层存储.
func (c *Client) Close() error {
	return c.store.Close()
}
