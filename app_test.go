package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladybug/internal/checkpoint"
	"ladybug/internal/config"
	"ladybug/internal/logging"
)

const originalCapture = `{
  "storageId": 1,
  "name": "Order flow",
  "description": null,
  "path": "/orders/",
  "stubStrategy": "Stub all external connection code",
  "variables": {"customer": "42", "region": "eu"},
  "checkpoints": [
    {"index": 0, "type": "Startpoint", "name": "receive", "message": "<order id=\"1\">open</order>", "stub": -1},
    {"index": 1, "type": "Infopoint", "name": "validate", "message": "ok", "stub": -1},
    {"index": 2, "type": "Endpoint", "name": "receive", "message": "done", "stub": -1}
  ]
}`

const rerunCapture = `{
  "storageId": 2,
  "name": "Order flow",
  "description": "",
  "path": "/orders/",
  "stubStrategy": "Stub all external connection code",
  "variables": {"customer": "43", "region": "eu"},
  "checkpoints": [
    {"index": 0, "type": "Startpoint", "name": "receive", "message": "<order id=\"2\">open</order>", "stub": 1},
    {"index": 1, "type": "Startpoint", "name": "enrich", "stub": -1},
    {"index": 2, "type": "Endpoint", "name": "enrich", "stub": -1},
    {"index": 3, "type": "Endpoint", "name": "receive", "stub": -1}
  ]
}`

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "original.json"), []byte(originalCapture), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rerun.json"), []byte(rerunCapture), 0o644))

	cfg := &config.Config{
		CaptureDir: dir,
		Log:        *logging.NewDefaultConfig(),
		Compare:    config.CompareConfig{Strategy: "checkpoint_number"},
		Render:     config.RenderConfig{CacheSize: 8},
		Watch:      config.WatchConfig{Debounce: 30 * time.Millisecond},
	}

	app := NewApp()
	app.SetLogger(logging.NewNop())
	require.NoError(t, app.Startup(context.Background(), cfg))
	t.Cleanup(func() { app.Shutdown(context.Background()) })
	return app, dir
}

func TestApp_ListCaptures(t *testing.T) {
	app, _ := newTestApp(t)

	infos, err := app.ListCaptures()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "original.json", infos[0].File)
	assert.Equal(t, 4, infos[1].Checkpoints)
}

func TestApp_OpenTree(t *testing.T) {
	app, _ := newTestApp(t)

	view, err := app.OpenTree()
	require.NoError(t, err)
	require.Len(t, view.Tree.Reports, 2)
	assert.Equal(t, "1#0", view.Tree.Selected().UID)

	var out bytes.Buffer
	printTree(&out, view.Tree)
	assert.Contains(t, out.String(), "*   receive  1#0")
	assert.Contains(t, out.String(), "      enrich  2#2")

	_, err = app.OpenTree("missing.json")
	assert.Error(t, err)
}

func TestApp_Compare(t *testing.T) {
	app, _ := newTestApp(t)

	view, err := app.OpenCompare("original.json", "rerun.json", "")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StrategyCheckpointNumber, view.Compare.Strategy)

	linked, err := app.SelectCompare(view.ID, "left", "1#2")
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, "2#2", linked.UID)

	view, err = app.OpenCompare("original.json", "rerun.json", "path")
	require.NoError(t, err)
	linked, err = app.SelectCompare(view.ID, "left", "1#2")
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, "2#3", linked.UID)

	_, err = app.OpenCompare("original.json", "rerun.json", "closest")
	assert.Error(t, err)
}

func TestApp_DiffReports(t *testing.T) {
	app, _ := newTestApp(t)

	diff, err := app.DiffReports("original.json", "rerun.json")
	require.NoError(t, err)

	var names []string
	for _, d := range diff.Differences {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Description - null status", "Variable customer"}, names)
	assert.Equal(t, "null", diff.Differences[0].Replacement.From)
	assert.Equal(t, "blank", diff.Differences[0].Replacement.To)
	assert.Equal(t, 1, diff.Update["storageId"])
	assert.Contains(t, diff.Update, "description")
	assert.Contains(t, diff.Update, "variables")

	var out bytes.Buffer
	printDifferences(&out, diff.Differences)
	assert.Contains(t, out.String(), "[-42-]{+43+}")
}

func TestApp_DiffCheckpoints(t *testing.T) {
	app, _ := newTestApp(t)

	diff, err := app.DiffCheckpoints("original.json", "rerun.json", 0)
	require.NoError(t, err)
	require.Len(t, diff.Differences, 2)
	assert.Equal(t, "Message", diff.Differences[0].Name)
	assert.Equal(t, "1#0", diff.Update["uid"])
	assert.Equal(t, 1, diff.Update["stub"])

	var out bytes.Buffer
	printDifferences(&out, diff.Differences)
	assert.Contains(t, out.String(), `<order id="[-1-]{+2+}">open</order>`)

	_, err = app.DiffCheckpoints("original.json", "rerun.json", 3)
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestApp_WatchRefreshesView(t *testing.T) {
	app, dir := newTestApp(t)

	view, err := app.OpenTree("original.json")
	require.NoError(t, err)
	_, err = app.SelectNode(view.ID, "1#1")
	require.NoError(t, err)

	var events safeBuffer
	app.SetEventHubBroadcaster(newLineBroadcaster(&events))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.WatchView(ctx, view.ID))
	assert.Error(t, app.WatchView(ctx, view.ID))
	time.Sleep(100 * time.Millisecond)

	updated := strings.Replace(originalCapture, `"name": "validate"`, `"name": "validate again"`, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "original.json"), []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		return strings.Contains(events.String(), `"type":"report:rebuilt"`)
	}, 2*time.Second, 20*time.Millisecond)

	var rebuilt struct {
		Type    string `json:"type"`
		Payload struct {
			StorageID int    `json:"storageId"`
			Selected  string `json:"selected"`
		} `json:"payload"`
	}
	for _, line := range strings.Split(strings.TrimSpace(events.String()), "\n") {
		require.NoError(t, json.Unmarshal([]byte(line), &rebuilt))
		if rebuilt.Type == "report:rebuilt" {
			break
		}
	}
	assert.Equal(t, 1, rebuilt.Payload.StorageID)
	assert.Equal(t, "1#1", rebuilt.Payload.Selected)
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
