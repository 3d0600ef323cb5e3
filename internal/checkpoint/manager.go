// internal/checkpoint/manager.go
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ladybug/internal/eventhub"
	"ladybug/internal/logging"
)

// ErrViewNotFound is returned for unknown or closed view ids.
var ErrViewNotFound = errors.New("view not found")

// EventEmitter receives workspace events.
type EventEmitter interface {
	EmitReportRebuilt(event eventhub.ReportRebuiltEvent)
	EmitNodeSelected(event eventhub.NodeSelectedEvent)
	EmitCompareLinked(event eventhub.CompareLinkedEvent)
}

// Side names a tree of a compare view.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// View is one open tree or compare view.
type View struct {
	ID      string
	Tree    *Tree
	Compare *Compare
	mu      sync.Mutex
}

// target returns the tree a rebuild of storageID replaces, or nil when a
// compare view does not show the report. An empty side picks the side that
// shows it, preferring the right one when both do. The caller holds v.mu.
func (v *View) target(storageID int, side Side) (*Tree, error) {
	if v.Compare == nil {
		if side != "" {
			return nil, fmt.Errorf("view %s is not a compare view", v.ID)
		}
		return v.Tree, nil
	}

	left, right := v.Compare.Left, v.Compare.Right
	switch side {
	case SideLeft, SideRight:
		tree := left
		if side == SideRight {
			tree = right
		}
		if tree.reportPosition(storageID) < 0 {
			return nil, fmt.Errorf("%s side of view %s does not show report %d", side, v.ID, storageID)
		}
		return tree, nil
	case "":
	default:
		return nil, fmt.Errorf("unknown side %q", side)
	}

	switch {
	case right.reportPosition(storageID) >= 0:
		return right, nil
	case left.reportPosition(storageID) >= 0:
		return left, nil
	}
	return nil, nil
}

// Manager owns the open views. Rebuilds are serialized per report identity;
// rebuilds of different reports run concurrently and only take the view
// lock to pick the target tree and to splice the finished subtree in.
type Manager struct {
	mu      sync.RWMutex
	views   map[string]*View
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
	emitter EventEmitter
	logger  *logging.Logger
}

// NewManager creates a manager. emitter may be nil.
func NewManager(emitter EventEmitter, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		views:   make(map[string]*View),
		locks:   make(map[string]*sync.Mutex),
		emitter: emitter,
		logger:  logger.Named("checkpoint"),
	}
}

// GenerateID generates a new view ID
func GenerateID() string {
	return uuid.New().String()
}

// OpenTree renders the reports into a new tree view and selects the first
// checkpoint of the first report.
func (m *Manager) OpenTree(ctx context.Context, reports ...*Report) *View {
	view := &View{ID: GenerateID(), Tree: &Tree{}}
	for _, r := range reports {
		_, _ = m.rebuild(logging.WithViewID(ctx, view.ID), view, r, "")
	}

	m.mu.Lock()
	m.views[view.ID] = view
	m.mu.Unlock()
	return view
}

// OpenCompare renders two reports into a compare view.
func (m *Manager) OpenCompare(ctx context.Context, left, right *Report, strategy Strategy) *View {
	view := &View{ID: GenerateID()}

	// Lock in key order so two compare views of the same pair cannot
	// deadlock.
	first, second := left, right
	if reportKey(second) < reportKey(first) {
		first, second = second, first
	}
	unlockFirst := m.lockReport(first)
	unlockSecond := func() {}
	if reportKey(first) != reportKey(second) {
		unlockSecond = m.lockReport(second)
	}
	view.Compare = NewCompare(left, right, strategy)
	unlockSecond()
	unlockFirst()

	m.mu.Lock()
	m.views[view.ID] = view
	m.mu.Unlock()

	m.logger.Info(logging.WithViewID(ctx, view.ID), "compare view opened",
		zap.Int("left_storage_id", left.StorageID),
		zap.Int("right_storage_id", right.StorageID),
		zap.Stringer("strategy", strategy))
	return view
}

// View returns an open view.
func (m *Manager) View(viewID string) (*View, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	view, ok := m.views[viewID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", viewID, ErrViewNotFound)
	}
	return view, nil
}

// CloseView forgets a view.
func (m *Manager) CloseView(viewID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.views[viewID]; !ok {
		return fmt.Errorf("%s: %w", viewID, ErrViewNotFound)
	}
	delete(m.views, viewID)
	return nil
}

// Refresh replaces the subtree of report in the view. Tree views get the
// report inserted when it is new. Compare views only replace a side that
// already shows the report; when both sides show it the right side, which
// holds the re-fetched run, is replaced.
func (m *Manager) Refresh(ctx context.Context, viewID string, report *Report) (*Node, error) {
	view, err := m.View(viewID)
	if err != nil {
		return nil, err
	}
	return m.rebuild(logging.WithViewID(ctx, viewID), view, report, "")
}

// RefreshSide replaces the report shown on one side of a compare view.
func (m *Manager) RefreshSide(ctx context.Context, viewID string, side Side, report *Report) (*Node, error) {
	view, err := m.View(viewID)
	if err != nil {
		return nil, err
	}
	if view.Compare == nil {
		return nil, fmt.Errorf("view %s is not a compare view", viewID)
	}
	return m.rebuild(logging.WithViewID(ctx, viewID), view, report, side)
}

func (m *Manager) rebuild(ctx context.Context, view *View, report *Report, side Side) (*Node, error) {
	unlock := m.lockReport(report)
	defer unlock()

	view.mu.Lock()
	tree, err := view.target(report.StorageID, side)
	view.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		m.logger.Debug(ctx, "report not shown in compare view",
			zap.Int("storage_id", report.StorageID))
		return nil, nil
	}

	fresh, stats := buildReportNode(report)

	view.mu.Lock()
	tree.install(fresh, report.StorageID)
	var selected string
	if s := tree.Selected(); s != nil {
		selected = s.UID
	}
	view.mu.Unlock()

	if stats.Orphans > 0 {
		m.logger.Warn(ctx, "closing checkpoints without open block promoted to root",
			zap.Int("storage_id", report.StorageID), zap.Int("orphans", stats.Orphans))
	}
	m.logger.Debug(ctx, "report subtree rebuilt",
		zap.String("storage", report.StorageName),
		zap.Int("storage_id", report.StorageID),
		zap.Int("checkpoints", len(report.Checkpoints)))

	if m.emitter != nil {
		m.emitter.EmitReportRebuilt(eventhub.ReportRebuiltEvent{
			ViewID:      view.ID,
			StorageName: report.StorageName,
			StorageID:   report.StorageID,
			Checkpoints: len(report.Checkpoints),
			Orphans:     stats.Orphans,
			Selected:    selected,
		})
	}
	return fresh, nil
}

// Select moves the selection of a tree view.
func (m *Manager) Select(ctx context.Context, viewID, uid string) (*Node, error) {
	view, err := m.View(viewID)
	if err != nil {
		return nil, err
	}
	if view.Tree == nil {
		return nil, fmt.Errorf("view %s is a compare view", viewID)
	}

	view.mu.Lock()
	n, err := view.Tree.Select(uid)
	view.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if m.emitter != nil {
		m.emitter.EmitNodeSelected(eventhub.NodeSelectedEvent{ViewID: viewID, UID: uid})
	}
	return n, nil
}

// SelectCompare selects uid on one side of a compare view and returns the
// node the other side moved to. When no node corresponds the other side
// keeps its selection and the result is nil.
func (m *Manager) SelectCompare(ctx context.Context, viewID string, side Side, uid string) (*Node, error) {
	view, err := m.View(viewID)
	if err != nil {
		return nil, err
	}
	if view.Compare == nil {
		return nil, fmt.Errorf("view %s is not a compare view", viewID)
	}

	view.mu.Lock()
	var linked *Node
	switch side {
	case SideLeft:
		linked, err = view.Compare.SelectLeft(uid)
	case SideRight:
		linked, err = view.Compare.SelectRight(uid)
	default:
		err = fmt.Errorf("unknown side %q", side)
	}
	strategy := view.Compare.Strategy
	view.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ctx = logging.WithViewID(ctx, viewID)
	event := eventhub.CompareLinkedEvent{
		ViewID:   viewID,
		Strategy: strategy.String(),
		Source:   uid,
		Matched:  linked != nil,
	}
	if linked != nil {
		event.Target = linked.UID
	} else {
		m.logger.Debug(ctx, "no corresponding node, keeping selection",
			zap.String("uid", uid), zap.Stringer("strategy", strategy))
	}
	if m.emitter != nil {
		m.emitter.EmitNodeSelected(eventhub.NodeSelectedEvent{ViewID: viewID, Side: string(side), UID: uid})
		m.emitter.EmitCompareLinked(event)
	}
	return linked, nil
}

func reportKey(r *Report) string {
	return r.StorageName + "/" + strconv.Itoa(r.StorageID)
}

func (m *Manager) lockReport(r *Report) func() {
	key := reportKey(r)

	m.locksMu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}
