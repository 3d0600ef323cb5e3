// bindings.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"ladybug/internal/checkpoint"
	"ladybug/internal/difference"
	"ladybug/internal/logging"
	"ladybug/internal/watcher"
)

// ===== Capture Bindings =====

// ListCaptures lists the captures in the configured capture directory.
func (a *App) ListCaptures() ([]checkpoint.CaptureInfo, error) {
	return a.storage.List(a.ctx)
}

// LoadReport loads a capture by file name in the capture directory, or by
// path when ref names an existing file.
func (a *App) LoadReport(ref string) (*checkpoint.Report, error) {
	if strings.ContainsRune(ref, os.PathSeparator) {
		return a.storage.LoadFile(a.ctx, ref)
	}
	if _, err := os.Stat(ref); err == nil {
		return a.storage.LoadFile(a.ctx, ref)
	}
	return a.storage.Load(a.ctx, ref)
}

func (a *App) loadReports(refs []string) ([]*checkpoint.Report, error) {
	if len(refs) == 0 {
		infos, err := a.ListCaptures()
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			refs = append(refs, info.File)
		}
	}

	reports := make([]*checkpoint.Report, 0, len(refs))
	for _, ref := range refs {
		r, err := a.LoadReport(ref)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", ref, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// ===== Tree Bindings =====

// OpenTree opens a tree view of the given captures, or of every capture in
// the capture directory when none are given.
func (a *App) OpenTree(refs ...string) (*checkpoint.View, error) {
	reports, err := a.loadReports(refs)
	if err != nil {
		return nil, err
	}
	return a.manager.OpenTree(a.ctx, reports...), nil
}

// SelectNode selects a node of a tree view.
func (a *App) SelectNode(viewID, uid string) (*checkpoint.Node, error) {
	return a.manager.Select(a.ctx, viewID, uid)
}

// RefreshReport reloads a capture and replaces its subtree in the view.
func (a *App) RefreshReport(viewID, ref string) (*checkpoint.Node, error) {
	r, err := a.LoadReport(ref)
	if err != nil {
		return nil, err
	}
	return a.manager.Refresh(a.ctx, viewID, r)
}

// CloseView closes a tree or compare view.
func (a *App) CloseView(viewID string) error {
	return a.manager.CloseView(viewID)
}

// ===== Compare Bindings =====

// OpenCompare opens a compare view. An empty strategy uses the configured
// one.
func (a *App) OpenCompare(left, right, strategy string) (*checkpoint.View, error) {
	s := a.config.Strategy()
	if strategy != "" {
		var err error
		if s, err = checkpoint.ParseStrategy(strategy); err != nil {
			return nil, err
		}
	}

	reports, err := a.loadReports([]string{left, right})
	if err != nil {
		return nil, err
	}
	return a.manager.OpenCompare(a.ctx, reports[0], reports[1], s), nil
}

// SelectCompare selects uid on one side of a compare view and returns the
// node the other side moved to, or nil when none corresponds.
func (a *App) SelectCompare(viewID, side, uid string) (*checkpoint.Node, error) {
	return a.manager.SelectCompare(a.ctx, viewID, checkpoint.Side(side), uid)
}

// ===== Difference Bindings =====

// ReportDiff is the rendered difference between two reports together with
// the update that would turn the original into the edited one.
type ReportDiff struct {
	Differences []difference.Rendered `json:"differences"`
	Update      difference.Update     `json:"update,omitempty"`
}

// DiffReports compares the metadata and variables of two captures.
func (a *App) DiffReports(original, edited string) (*ReportDiff, error) {
	reports, err := a.loadReports([]string{original, edited})
	if err != nil {
		return nil, err
	}
	o := difference.ReportFieldsOf(reports[0])
	e := difference.ReportFieldsOf(reports[1])

	if dups := reports[1].Variables.Duplicates(); len(dups) > 0 {
		a.logger.Warn(a.ctx, "edited variables repeat keys", zap.Strings("keys", dups))
	}
	return &ReportDiff{
		Differences: a.renderer.RenderAll(difference.DiffReport(o, e)),
		Update:      difference.NewReportUpdate(reports[0].StorageID, o, e),
	}, nil
}

// ErrCheckpointNotFound is returned when a report has no checkpoint with the
// requested index.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// DiffCheckpoints compares the checkpoint with the given index in two
// captures.
func (a *App) DiffCheckpoints(original, edited string, index int) (*ReportDiff, error) {
	reports, err := a.loadReports([]string{original, edited})
	if err != nil {
		return nil, err
	}

	var fields [2]difference.CheckpointFields
	var uid string
	for i, r := range reports {
		c := findCheckpoint(r, index)
		if c == nil {
			return nil, fmt.Errorf("%s#%d: %w", r.Name, index, ErrCheckpointNotFound)
		}
		fields[i] = difference.CheckpointFieldsOf(c)
		if i == 0 {
			uid = c.UID()
		}
	}
	return &ReportDiff{
		Differences: a.renderer.RenderAll(difference.DiffCheckpoint(fields[0], fields[1])),
		Update:      difference.NewCheckpointUpdate(uid, fields[0], fields[1]),
	}, nil
}

func findCheckpoint(r *checkpoint.Report, index int) *checkpoint.Checkpoint {
	for _, c := range r.Checkpoints {
		if c.Index == index {
			return c
		}
	}
	return nil
}

// ===== Watch Bindings =====

// WatchView refreshes the view whenever a capture in the capture directory
// settles after a change. It returns once the watcher runs; the watcher
// stops with ctx or at Shutdown.
func (a *App) WatchView(ctx context.Context, viewID string) error {
	if _, err := a.manager.View(viewID); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watcher != nil {
		return fmt.Errorf("already watching %s", a.config.CaptureDir)
	}

	ctx = logging.WithViewID(ctx, viewID)
	w, err := watcher.New(a.config.CaptureDir, a.config.Watch.Debounce,
		func(ctx context.Context, e watcher.Event) { a.onCaptureChanged(ctx, viewID, e) },
		watcher.WithFilter(checkpoint.IsCapture),
		watcher.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Close()
		return err
	}
	a.watcher = w
	return nil
}

func (a *App) onCaptureChanged(ctx context.Context, viewID string, e watcher.Event) {
	if e.Gone() {
		a.logger.Info(ctx, "capture removed, keeping its subtree",
			zap.String("file", filepath.Base(e.Path)))
		return
	}
	r, err := a.storage.LoadFile(ctx, e.Path)
	if err != nil {
		a.logger.Warn(ctx, "reload capture", zap.String("file", e.Path), zap.Error(err))
		return
	}
	if _, err := a.manager.Refresh(ctx, viewID, r); err != nil {
		a.logger.Warn(ctx, "refresh view", zap.String("file", e.Path), zap.Error(err))
	}
}
