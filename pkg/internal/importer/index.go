package importer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bizzlechizzle/aupat/pkg/cache"
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/storage/kv"
)

// indexNamespace 哈希索引在 KV 中的命名空间，完整键为 hash:<kind>:<sha256>.
const indexNamespace = "hash"

// IndexEntries 列出 KV 中的哈希索引条目，kind 为空时列出全部类型.
// 扫描与读取之间过期的键被跳过. 结果按键排序.
func IndexEntries(ctx context.Context, c *kv.Client, kind model.Kind) ([]Result, error) {
	pattern := indexNamespace + ":*"
	if kind != "" {
		pattern = indexNamespace + ":" + string(kind) + ":*"
	}

	keys, err := c.Keys(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("list hash index: %w", err)
	}

	slices.Sort(keys)

	idx := cache.New(c, indexNamespace)
	trim := c.Prefix() + indexNamespace + ":"
	out := make([]Result, 0, len(keys))

	for _, k := range keys {
		res, err := cache.Get[Result](ctx, idx, strings.TrimPrefix(k, trim))
		if errors.Is(err, cache.ErrMiss) {
			continue
		}

		if err != nil {
			return nil, err
		}

		out = append(out, res)
	}

	return out, nil
}

// ForgetIndex 删除一条哈希索引. 下一次导入同内容文件时回退到数据库查询并重建索引.
func ForgetIndex(ctx context.Context, c *kv.Client, kind model.Kind, hash string) error {
	return cache.New(c, indexNamespace).Delete(ctx, cacheKey(kind, hash))
}
