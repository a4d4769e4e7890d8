package notification

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/roomnotify/internal/events"
	"github.com/charlesng35/roomnotify/internal/pushrules"
	"github.com/charlesng35/roomnotify/pkg/logger"
)

const sortKeyCounterStart = 0xFFFFFFFF

// Converter turns a room's event stream into notification updates.
type Converter struct {
	rooms     RoomService
	evaluator *pushrules.Evaluator
	now       func() time.Time
	lastStamp atomic.Int64
	log       *zap.Logger
}

// ConverterOption customises a Converter.
type ConverterOption func(*Converter)

// WithClock overrides the clock used for sort key prefixes.
func WithClock(now func() time.Time) ConverterOption {
	return func(c *Converter) {
		if now != nil {
			c.now = now
		}
	}
}

// NewConverter constructs a Converter.
func NewConverter(rooms RoomService, evaluator *pushrules.Evaluator, opts ...ConverterOption) *Converter {
	c := &Converter{
		rooms:     rooms,
		evaluator: evaluator,
		now:       time.Now,
		log:       logger.WithModule("notification.converter"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert consumes stream once, newest event first, and returns the updates needed to
// bring the notifications of roomID in line with rules. existing maps the identities of
// currently stored notifications to their sort keys. With removeStale, every existing
// notification not touched by an update is removed at the end.
func (c *Converter) Convert(
	ctx context.Context,
	roomID string,
	stream iter.Seq2[*events.Event, error],
	rules []*pushrules.Rule,
	existing map[string]string,
	removeStale bool,
) ([]Update, error) {
	b := &batch{
		Converter:   c,
		roomID:      roomID,
		rules:       rules,
		existing:    existing,
		prefix:      c.sortKeyPrefix(),
		counter:     sortKeyCounterStart,
		seen:        map[string]struct{}{},
		referenced:  map[string]struct{}{},
		pendingEdit: map[string]*events.Event{},
	}

	for ev, err := range stream {
		if err != nil {
			return nil, fmt.Errorf("notification: read events of %s: %w", roomID, err)
		}
		if ev == nil {
			continue
		}
		sortKey := b.nextSortKey()
		if err := b.handle(ctx, ev, sortKey); err != nil {
			return nil, err
		}
	}

	if removeStale {
		stale := make([]string, 0, len(existing))
		for id := range existing {
			if _, ok := b.referenced[id]; !ok {
				stale = append(stale, id)
			}
		}
		sort.Strings(stale)
		for _, id := range stale {
			b.emit(&UpdateRemove{ID: id, RoomID: roomID})
		}
	}
	return b.updates, nil
}

// sortKeyPrefix returns a fixed width, strictly increasing stamp.
func (c *Converter) sortKeyPrefix() string {
	stamp := c.now().UnixMilli()
	for {
		last := c.lastStamp.Load()
		if stamp <= last {
			stamp = last + 1
		}
		if c.lastStamp.CompareAndSwap(last, stamp) {
			break
		}
	}
	return fmt.Sprintf("%016x", stamp)
}

// batch is the state of one Convert call. It is never shared between calls.
type batch struct {
	*Converter
	roomID   string
	rules    []*pushrules.Rule
	existing map[string]string
	prefix   string
	counter  uint32

	seen        map[string]struct{}
	referenced  map[string]struct{}
	pendingEdit map[string]*events.Event // target event ID -> newest edit in this batch
	updates     []Update
}

func (b *batch) nextSortKey() string {
	key := fmt.Sprintf("%s%08x", b.prefix, b.counter)
	b.counter--
	return key
}

func (b *batch) emit(u Update) {
	b.updates = append(b.updates, u)
	b.referenced[u.NotificationID()] = struct{}{}
}

// markSeen returns false when id was already handled in this batch.
func (b *batch) markSeen(id string) bool {
	if _, ok := b.seen[id]; ok {
		return false
	}
	b.seen[id] = struct{}{}
	return true
}

func (b *batch) handle(ctx context.Context, ev *events.Event, sortKey string) error {
	if ev.IsState() {
		return b.handleState(ctx, ev, sortKey)
	}
	if ev.Type == events.TypeRedaction {
		return b.handleRedaction(ctx, ev, sortKey)
	}
	if targetID, ok := ev.ReplacedEventID(); ok {
		return b.handleEdit(ctx, ev, targetID)
	}
	return b.handleMessage(ctx, ev, sortKey)
}

func (b *batch) handleState(ctx context.Context, ev *events.Event, sortKey string) error {
	id := StateID(b.roomID, ev.Type, ev.StateKeyValue())
	if !b.markSeen(id) {
		return nil
	}
	return b.reevaluate(ctx, id, ev, sortKey, func(sk string, actions []*pushrules.Action) StoredNotification {
		return &StateNotification{
			Common:   Common{RoomID: b.roomID, EventID: ev.EventID, SortKey: sk, Actions: actions},
			Type:     ev.Type,
			StateKey: ev.StateKeyValue(),
		}
	})
}

func (b *batch) handleMessage(ctx context.Context, ev *events.Event, sortKey string) error {
	id := MessageID(b.roomID, ev.EventID)
	if !b.markSeen(id) {
		return nil
	}
	evaluated := ev
	if edit, ok := b.pendingEdit[ev.EventID]; ok {
		evaluated = ev.WithContent(edit.EditedContent())
	}
	return b.reevaluate(ctx, id, evaluated, sortKey, b.messageContent(ev.EventID))
}

func (b *batch) handleRedaction(ctx context.Context, ev *events.Event, sortKey string) error {
	targetID, ok := ev.RedactedEventID()
	if !ok {
		return nil
	}
	target, err := b.rooms.GetTimelineEvent(ctx, b.roomID, targetID)
	if err != nil {
		return fmt.Errorf("notification: resolve redacted event %s: %w", targetID, err)
	}
	if target == nil {
		b.log.Debug("redaction target unknown", zap.String("room_id", b.roomID), zap.String("event_id", targetID))
		return nil
	}

	if target.IsState() {
		current, err := b.rooms.GetState(ctx, b.roomID, target.Type, target.StateKeyValue())
		if err != nil {
			return fmt.Errorf("notification: resolve state %s/%s: %w", target.Type, target.StateKeyValue(), err)
		}
		if current == nil {
			id := StateID(b.roomID, target.Type, target.StateKeyValue())
			if !b.markSeen(id) {
				return nil
			}
			if _, exists := b.existing[id]; exists {
				b.emit(&UpdateRemove{ID: id, RoomID: b.roomID})
			}
			return nil
		}
		return b.handleState(ctx, current, sortKey)
	}

	id := MessageID(b.roomID, targetID)
	if !b.markSeen(id) {
		return nil
	}
	if _, exists := b.existing[id]; exists {
		b.emit(&UpdateRemove{ID: id, RoomID: b.roomID})
	}
	return nil
}

func (b *batch) handleEdit(ctx context.Context, ev *events.Event, targetID string) error {
	id := MessageID(b.roomID, targetID)
	if _, ok := b.seen[id]; ok {
		return nil
	}
	if _, ok := b.pendingEdit[targetID]; ok {
		return nil
	}
	target, err := b.rooms.GetTimelineEvent(ctx, b.roomID, targetID)
	if err != nil {
		return fmt.Errorf("notification: resolve edited event %s: %w", targetID, err)
	}
	if target == nil {
		b.log.Debug("edit target unknown", zap.String("room_id", b.roomID), zap.String("event_id", targetID))
		return nil
	}

	existingKey, exists := b.existing[id]
	if !exists {
		// The target has no notification yet. If it shows up later in this batch it
		// is evaluated with the newest edited content.
		b.pendingEdit[targetID] = ev
		return nil
	}
	b.markSeen(id)
	return b.reevaluate(ctx, id, target.WithContent(ev.EditedContent()), existingKey, b.messageContent(targetID))
}

func (b *batch) messageContent(eventID string) func(string, []*pushrules.Action) StoredNotification {
	return func(sk string, actions []*pushrules.Action) StoredNotification {
		return &MessageNotification{Common: Common{RoomID: b.roomID, EventID: eventID, SortKey: sk, Actions: actions}}
	}
}

// reevaluate emits New, Change or Remove for id depending on whether the rules match
// ev and whether a notification for id already exists. An existing notification keeps
// its sort key.
func (b *batch) reevaluate(
	ctx context.Context,
	id string,
	ev *events.Event,
	sortKey string,
	build func(sortKey string, actions []*pushrules.Action) StoredNotification,
) error {
	actions, err := b.evaluator.Evaluate(ctx, ev, b.rules)
	if err != nil {
		return fmt.Errorf("notification: evaluate %s: %w", ev.EventID, err)
	}
	existingKey, exists := b.existing[id]

	switch {
	case actions != nil && exists:
		b.emit(&UpdateChange{ID: id, SortKey: existingKey, Actions: actions, Content: build(existingKey, actions)})
	case actions != nil:
		b.emit(&UpdateNew{ID: id, SortKey: sortKey, Actions: actions, Content: build(sortKey, actions)})
	case exists:
		b.emit(&UpdateRemove{ID: id, RoomID: b.roomID})
	}
	return nil
}
