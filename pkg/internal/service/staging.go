package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bizzlechizzle/aupat/pkg/internal/errs"
	"github.com/bizzlechizzle/aupat/pkg/internal/naming"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
	nlog "github.com/bizzlechizzle/aupat/pkg/log"
)

// stagePrefix 暂存文件名前缀，清理任务只处理带此前缀的文件.
const stagePrefix = "push-"

var errMediaTooLarge = errors.New("media exceeds size limit")

// stageMedia 把内联 base64 媒体流式解码到暂存目录，返回暂存文件路径.
func stageMedia(dir string, m *types.Media, limit int64) (string, error) {
	if int64(base64.StdEncoding.DecodedLen(len(m.Base64Data))) > limit+2 {
		return "", fmt.Errorf("%s: %w: %w", m.Filename, errs.ErrValidationFailed, errMediaTooLarge)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	ext := naming.NormalizeExt(filepath.Ext(m.Filename))
	if ext != "" {
		ext = "." + ext
	}

	f, err := os.CreateTemp(dir, stagePrefix+"*"+ext)
	if err != nil {
		return "", err
	}

	dec := base64.NewDecoder(base64.StdEncoding, strings.NewReader(m.Base64Data))

	n, err := io.Copy(f, io.LimitReader(dec, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	switch {
	case err != nil:
		err = fmt.Errorf("decode %s: %w: %w", m.Filename, errs.ErrValidationFailed, err)
	case n > limit:
		err = fmt.Errorf("%s: %w: %w", m.Filename, errs.ErrValidationFailed, errMediaTooLarge)
	}

	if err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

// CleanStaging 删除暂存目录中早于 maxAge 的文件，返回删除数量.
// 正常情况下导入成功会移走暂存文件，残留来自中途崩溃或失败的推送.
func CleanStaging(ctx context.Context, dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	removed := 0

	for _, ent := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		if ent.IsDir() || !strings.HasPrefix(ent.Name(), stagePrefix) {
			continue
		}

		info, err := ent.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}

		path := filepath.Join(dir, ent.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			nlog.Logger().Warn().Err(err).Str("path", path).Msg("remove stale staging file failed")
			continue
		}

		removed++
	}

	return removed, nil
}
