package main

import (
	"encoding/json"
	"io"
	"sync"
)

// event is the line written per broadcast event.
type event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// lineBroadcaster writes each event as one JSON line.
type lineBroadcaster struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineBroadcaster(w io.Writer) *lineBroadcaster {
	return &lineBroadcaster{enc: json.NewEncoder(w)}
}

func (b *lineBroadcaster) BroadcastEvent(eventType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.enc.Encode(event{Type: eventType, Payload: payload})
}
