package eventhub

import (
	"context"
	"sync"
)

// Broadcaster delivers events to the UI layer.
type Broadcaster interface {
	BroadcastEvent(eventType string, payload interface{})
}

// EventHub fans workspace events out to the configured broadcaster.
type EventHub struct {
	ctx         context.Context
	mu          sync.RWMutex
	broadcaster Broadcaster
}

// New creates an EventHub with no broadcaster; events are dropped until one
// is set.
func New(ctx context.Context) *EventHub {
	return &EventHub{ctx: ctx}
}

// SetBroadcaster sets the event sink.
func (h *EventHub) SetBroadcaster(b Broadcaster) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcaster = b
}

func (h *EventHub) emit(eventName string, payload interface{}) {
	h.mu.RLock()
	b := h.broadcaster
	h.mu.RUnlock()

	if b != nil {
		b.BroadcastEvent(eventName, payload)
	}
}

const (
	EventReportRebuilt = "report:rebuilt"
	EventNodeSelected  = "node:selected"
	EventCompareLinked = "compare:linked"
)

// ReportRebuiltEvent is sent after a report subtree was replaced or inserted.
type ReportRebuiltEvent struct {
	ViewID      string `json:"viewId"`
	StorageName string `json:"storageName"`
	StorageID   int    `json:"storageId"`
	Checkpoints int    `json:"checkpoints"`
	Orphans     int    `json:"orphans,omitempty"`
	Selected    string `json:"selected,omitempty"`
}

func (h *EventHub) EmitReportRebuilt(event ReportRebuiltEvent) {
	h.emit(EventReportRebuilt, event)
}

// NodeSelectedEvent is sent when a view's selection moves.
type NodeSelectedEvent struct {
	ViewID string `json:"viewId"`
	Side   string `json:"side,omitempty"` // "left", "right" for compare views
	UID    string `json:"uid"`
}

func (h *EventHub) EmitNodeSelected(event NodeSelectedEvent) {
	h.emit(EventNodeSelected, event)
}

// CompareLinkedEvent is sent when a compare selection resolved, or failed
// to resolve, a corresponding node.
type CompareLinkedEvent struct {
	ViewID   string `json:"viewId"`
	Strategy string `json:"strategy"`
	Source   string `json:"source"`
	Target   string `json:"target,omitempty"`
	Matched  bool   `json:"matched"`
}

func (h *EventHub) EmitCompareLinked(event CompareLinkedEvent) {
	h.emit(EventCompareLinked, event)
}
