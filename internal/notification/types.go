// Package notification turns room timelines into a persisted set of local
// notifications and keeps that set consistent across syncs.
package notification

import (
	"github.com/charlesng35/roomnotify/internal/pushrules"
)

// MessageID is the identity of a notification for a timeline message.
func MessageID(roomID, eventID string) string {
	return "message-" + roomID + "-" + eventID
}

// StateID is the identity of a notification for a piece of room state.
func StateID(roomID, eventType, stateKey string) string {
	return "state-" + roomID + "-" + eventType + "-" + stateKey
}

// StoredNotification is a persisted notification. Implemented by *MessageNotification
// and *StateNotification only.
type StoredNotification interface {
	ID() string
	Base() Common
	isStoredNotification()
}

// Common holds the fields shared by every stored notification.
type Common struct {
	RoomID  string
	EventID string
	SortKey string
	Actions []*pushrules.Action
}

// MessageNotification notifies about a timeline message.
type MessageNotification struct {
	Common
}

func (n *MessageNotification) ID() string             { return MessageID(n.RoomID, n.EventID) }
func (n *MessageNotification) Base() Common           { return n.Common }
func (n *MessageNotification) isStoredNotification() {}

// StateNotification notifies about the current value of a piece of room state.
type StateNotification struct {
	Common
	Type     string
	StateKey string
}

func (n *StateNotification) ID() string             { return StateID(n.RoomID, n.Type, n.StateKey) }
func (n *StateNotification) Base() Common           { return n.Common }
func (n *StateNotification) isStoredNotification() {}

// Update is a mutation of the notification set produced by the Converter.
// Implemented by *UpdateNew, *UpdateChange and *UpdateRemove only.
type Update interface {
	NotificationID() string
	isUpdate()
}

// UpdateNew creates a notification.
type UpdateNew struct {
	ID      string
	SortKey string
	Actions []*pushrules.Action
	Content StoredNotification
}

// UpdateChange replaces an existing notification.
type UpdateChange struct {
	ID      string
	SortKey string
	Actions []*pushrules.Action
	Content StoredNotification
}

// UpdateRemove deletes a notification.
type UpdateRemove struct {
	ID     string
	RoomID string
}

func (u *UpdateNew) NotificationID() string    { return u.ID }
func (u *UpdateChange) NotificationID() string { return u.ID }
func (u *UpdateRemove) NotificationID() string { return u.ID }
func (*UpdateNew) isUpdate()                   {}
func (*UpdateChange) isUpdate()                {}
func (*UpdateRemove) isUpdate()                {}

// IsRead is the read status of a room as last reported by sync. The check
// variants are provisional until more of the timeline has been examined.
type IsRead string

const (
	IsReadTrue          IsRead = "true"
	IsReadFalse         IsRead = "false"
	IsReadTrueButCheck  IsRead = "true_but_check"
	IsReadFalseButCheck IsRead = "false_but_check"
	IsReadCheck         IsRead = "check"
)

// NeedsCheck reports whether the value is provisional.
func (r IsRead) NeedsCheck() bool {
	switch r {
	case IsReadTrueButCheck, IsReadFalseButCheck, IsReadCheck:
		return true
	default:
		return false
	}
}

// State is the per-room notification state record. Implemented by *StatePush,
// *StateRead, *StateSyncWithoutTimeline and *StateSyncWithTimeline only.
type State interface {
	StateRoomID() string
	Variant() string
	isState()
}

// StatePush is a dormant record awaiting the first real sync.
type StatePush struct {
	RoomID string
}

// StateRead marks a room as fully read.
type StateRead struct {
	RoomID string
}

// StateSyncWithoutTimeline records a sync that carried no timeline events.
type StateSyncWithoutTimeline struct {
	RoomID                string
	NotificationsDisabled bool
}

// StateSyncWithTimeline is the steady-state record of a room.
type StateSyncWithTimeline struct {
	RoomID                       string
	NeedsSync                    bool
	NotificationsDisabled        bool
	ReadReceipts                 []string
	LastEventID                  string
	LastRelevantEventID          *string
	LastProcessedEventID         *string
	ExpectedMaxNotificationCount *int64
	IsRead                       IsRead
}

// State variant names, also used as the persisted discriminator.
const (
	VariantPush                = "push"
	VariantRead                = "read"
	VariantSyncWithoutTimeline = "sync_without_timeline"
	VariantSyncWithTimeline    = "sync_with_timeline"
)

func (s *StatePush) StateRoomID() string                { return s.RoomID }
func (s *StateRead) StateRoomID() string                { return s.RoomID }
func (s *StateSyncWithoutTimeline) StateRoomID() string { return s.RoomID }
func (s *StateSyncWithTimeline) StateRoomID() string    { return s.RoomID }

func (*StatePush) Variant() string                { return VariantPush }
func (*StateRead) Variant() string                { return VariantRead }
func (*StateSyncWithoutTimeline) Variant() string { return VariantSyncWithoutTimeline }
func (*StateSyncWithTimeline) Variant() string    { return VariantSyncWithTimeline }

func (*StatePush) isState()                {}
func (*StateRead) isState()                {}
func (*StateSyncWithoutTimeline) isState() {}
func (*StateSyncWithTimeline) isState()    {}

// HasReadReceipt reports whether eventID carries one of the user's read receipts.
func (s *StateSyncWithTimeline) HasReadReceipt(eventID string) bool {
	for _, id := range s.ReadReceipts {
		if id == eventID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record.
func (s *StateSyncWithTimeline) Clone() *StateSyncWithTimeline {
	cpy := *s
	cpy.ReadReceipts = append([]string(nil), s.ReadReceipts...)
	cpy.LastRelevantEventID = cloneString(s.LastRelevantEventID)
	cpy.LastProcessedEventID = cloneString(s.LastProcessedEventID)
	if s.ExpectedMaxNotificationCount != nil {
		n := *s.ExpectedMaxNotificationCount
		cpy.ExpectedMaxNotificationCount = &n
	}
	return &cpy
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
