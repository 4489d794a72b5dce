// Package hasher 以流式方式计算内容哈希（SHA-256，小写十六进制）.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ChunkSize 每次读取的字节数，内存占用与文件大小无关.
const ChunkSize = 64 * 1024

// Size 十六进制摘要长度.
const Size = sha256.Size * 2

// Hash 计算 r 的摘要.
func Hash(r io.Reader) (string, error) {
	return HashContext(context.Background(), r)
}

// HashContext 计算 r 的摘要，在每块之间检查取消.
func HashContext(ctx context.Context, r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}

		if err == io.EOF {
			break
		}

		if err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile 计算文件内容摘要.
func HashFile(path string) (string, error) {
	return HashFileContext(context.Background(), path)
}

// HashFileContext 计算文件内容摘要，可取消.
func HashFileContext(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum, err := HashContext(ctx, f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return sum, nil
}
