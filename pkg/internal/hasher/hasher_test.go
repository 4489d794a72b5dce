package hasher_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/aupat/pkg/internal/hasher"
)

const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestHashKnownValues(t *testing.T) {
	sum, err := hasher.Hash(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, emptySHA256, sum)

	sum, err = hasher.Hash(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
	assert.Len(t, sum, hasher.Size)
}

func TestHashIgnoresPathAndMetadata(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte("aupat"), 3*hasher.ChunkSize/5+7)

	a := filepath.Join(dir, "IMG_0001.JPG")
	b := filepath.Join(dir, "sub", "copy.jpeg")

	require.NoError(t, os.MkdirAll(filepath.Dir(b), 0o755))
	require.NoError(t, os.WriteFile(a, data, 0o644))
	require.NoError(t, os.WriteFile(b, data, 0o600))
	require.NoError(t, os.Chtimes(b, time.Unix(0, 0), time.Unix(0, 0)))

	ha, err := hasher.HashFile(a)
	require.NoError(t, err)

	hb, err := hasher.HashFile(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)

	direct, err := hasher.Hash(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, ha, direct)
}

type failingReader struct{ n int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n > 0 {
		f.n--
		return len(p), nil
	}

	return 0, errors.New("device unplugged")
}

func TestHashPropagatesReadError(t *testing.T) {
	_, err := hasher.Hash(&failingReader{n: 2})
	require.Error(t, err)
}

func TestHashFileContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := hasher.HashFileContext(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHashFileMissing(t *testing.T) {
	_, err := hasher.HashFile(filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
