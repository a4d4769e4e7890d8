package pushrules

import (
	"encoding/json"
	"fmt"

	"github.com/charlesng35/roomnotify/internal/events"
)

// LazyJSON holds the generic JSON form of an event, computed on first use.
// It is not safe for concurrent use; one cell belongs to one evaluation.
type LazyJSON struct {
	event    *events.Event
	computed bool
	value    map[string]any
	err      error
}

// NewLazyJSON returns a cell for ev. Nothing is serialized until Get is called.
func NewLazyJSON(ev *events.Event) *LazyJSON {
	return &LazyJSON{event: ev}
}

// Get returns the event as a generic JSON object, serializing at most once.
func (l *LazyJSON) Get() (map[string]any, error) {
	if l.computed {
		return l.value, l.err
	}
	l.computed = true

	raw, err := json.Marshal(l.event)
	if err != nil {
		l.err = fmt.Errorf("pushrules: encode event: %w", err)
		return nil, l.err
	}
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		l.err = fmt.Errorf("pushrules: decode event: %w", err)
		return nil, l.err
	}
	l.value = value
	return l.value, nil
}

// Computed reports whether Get has run.
func (l *LazyJSON) Computed() bool {
	return l.computed
}
