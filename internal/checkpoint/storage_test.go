// internal/checkpoint/storage_test.go
package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"ladybug/internal/logging"
)

const jsonCapture = `{
  "storageId": 7,
  "name": "Pipeline A",
  "description": null,
  "path": "/a/",
  "stubStrategy": "Stub all external connection code",
  "variables": {"b": "2", "a": "1"},
  "checkpoints": [
    {"index": 0, "level": 0, "type": 1, "name": "start", "stub": -1},
    {"index": 1, "level": 1, "type": "Infopoint", "name": "info", "message": "hello", "stub": -1},
    {"index": 2, "level": 0, "type": 2, "name": "end", "stub": -1}
  ]
}`

const yamlCapture = `
storageId: 3
name: Pipeline B
checkpoints:
  - index: 1
    type: Endpoint
    name: end
  - index: 0
    type: Startpoint
    name: start
`

func writeCapture(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func newTestStorage(t *testing.T, dir string, logger *logging.Logger) *Storage {
	t.Helper()
	s, err := NewStorage(dir, logger)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStorage_LoadJSON(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, "a.json", []byte(jsonCapture))
	storage := newTestStorage(t, dir, nil)

	r, err := storage.Load(context.Background(), "a.json")
	require.NoError(t, err)

	assert.Equal(t, filepath.Base(dir), r.StorageName)
	assert.Equal(t, 7, r.StorageID)
	assert.Nil(t, r.Description)
	require.NotNil(t, r.Path)
	assert.Equal(t, "/a/", *r.Path)
	assert.Equal(t, []string{"b", "a"}, r.Variables.Keys())
	require.Len(t, r.Checkpoints, 3)
	assert.Equal(t, Infopoint, r.Checkpoints[1].Type)
	assert.Equal(t, "hello", *r.Checkpoints[1].Message)
	assert.Nil(t, r.Checkpoints[0].Message)
	assert.Same(t, r, r.Checkpoints[2].Report())
	assert.Equal(t, "7#2", r.Checkpoints[2].UID())
}

func TestStorage_LoadYAMLSortsByIndex(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, "b.yaml", []byte(yamlCapture))
	logger := logging.NewTestLogger()
	storage := newTestStorage(t, dir, logger.Logger)

	r, err := storage.Load(context.Background(), "b.yaml")
	require.NoError(t, err)

	require.Len(t, r.Checkpoints, 2)
	assert.Equal(t, 0, r.Checkpoints[0].Index)
	assert.Equal(t, Startpoint, r.Checkpoints[0].Type)
	logger.AssertLogged(t, zapcore.WarnLevel, "out of index order")

	roots := r.Tree()
	require.Len(t, roots, 1)
	assert.Len(t, roots[0].Checkpoints, 1)
}

func TestStorage_LoadZstd(t *testing.T) {
	dir := t.TempDir()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	writeCapture(t, dir, "a.json.zst", enc.EncodeAll([]byte(jsonCapture), nil))
	require.NoError(t, enc.Close())
	storage := newTestStorage(t, dir, nil)

	r, err := storage.Load(context.Background(), "a.json.zst")
	require.NoError(t, err)
	assert.Equal(t, "Pipeline A", r.Name)
	assert.Len(t, r.Checkpoints, 3)
}

func TestStorage_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, "broken.json", []byte(`{"checkpoints": [`))
	writeCapture(t, dir, "notes.txt", []byte("hello"))
	storage := newTestStorage(t, dir, nil)
	ctx := context.Background()

	_, err := storage.Load(ctx, "broken.json")
	assert.Error(t, err)

	_, err = storage.Load(ctx, "notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedCapture)

	_, err = storage.Load(ctx, "missing.json")
	assert.Error(t, err)
}

func TestStorage_List(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, "a.json", []byte(jsonCapture))
	writeCapture(t, dir, "b.yml", []byte(yamlCapture))
	writeCapture(t, dir, "broken.json", []byte(`nope`))
	writeCapture(t, dir, "readme.md", []byte(`# captures`))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))
	logger := logging.NewTestLogger()
	storage := newTestStorage(t, dir, logger.Logger)

	infos, err := storage.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []CaptureInfo{
		{File: "b.yml", StorageID: 3, Name: "Pipeline B", Checkpoints: 2},
		{File: "a.json", StorageID: 7, Name: "Pipeline A", Checkpoints: 3},
	}, infos)
	logger.AssertLogged(t, zapcore.WarnLevel, "skipping unreadable capture")
}

func TestStorage_ListMissingDir(t *testing.T) {
	storage := newTestStorage(t, filepath.Join(t.TempDir(), "absent"), nil)

	infos, err := storage.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestIsCapture(t *testing.T) {
	for _, name := range []string{"a.json", "a.YAML", "a.yml", "a.json.zst", "A.JSON.ZST"} {
		assert.True(t, IsCapture(name), name)
	}
	for _, name := range []string{"a.txt", "a.zst", "json", "a.json.gz"} {
		assert.False(t, IsCapture(name), name)
	}
}
