package notification

import (
	"context"
	"iter"

	"github.com/charlesng35/roomnotify/internal/events"
	"github.com/charlesng35/roomnotify/internal/pushrules"
)

// Direction is the walking direction through a room timeline.
type Direction int

const (
	Backward Direction = iota
	Forward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// RoomService reads the locally stored timeline and room state.
type RoomService interface {
	// GetTimelineEvent returns nil without error when the event is unknown.
	GetTimelineEvent(ctx context.Context, roomID, eventID string) (*events.Event, error)
	// GetTimelineEvents walks the timeline starting at (and including) startEventID.
	// A non-nil maxSize limits the number of yielded events; zero yields none.
	GetTimelineEvents(ctx context.Context, roomID, startEventID string, dir Direction, maxSize *int) iter.Seq2[*events.Event, error]
	// GetState returns the current state event, or nil without error when unset.
	GetState(ctx context.Context, roomID, eventType, stateKey string) (*events.Event, error)
	// GetAllState returns every current state event of the room.
	GetAllState(ctx context.Context, roomID string) ([]*events.Event, error)
}

// Store persists notifications, per-room state records and the external delivery queue.
type Store interface {
	GetAll(ctx context.Context, roomID string) (map[string]StoredNotification, error)
	GetState(ctx context.Context, roomID string) (State, error)
	GetAllStates(ctx context.Context) ([]State, error)
	// Transaction runs fn atomically: either every write made through tx is
	// committed or none is.
	Transaction(ctx context.Context, fn func(tx StoreTx) error) error
}

// StoreTx is the write side of Store, only available inside a transaction.
type StoreTx interface {
	Save(ctx context.Context, n StoredNotification) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context, roomID string) error
	// UpdateState replaces the room's record with fn(current). current is nil when
	// no record exists; returning nil deletes the record.
	UpdateState(ctx context.Context, roomID string, fn func(current State) State) error
	EnqueueUpdates(ctx context.Context, updates []Update) error
}

// RulesSource provides the current push rules in evaluation order.
type RulesSource interface {
	Rules() []*pushrules.Rule
}

// MutedRooms is implemented by rule sources that know which rooms an override
// rule has muted. Such rooms are processed as if their record had notifications
// disabled.
type MutedRooms interface {
	NotificationsDisabled(roomID string) bool
}
