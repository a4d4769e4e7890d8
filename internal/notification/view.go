package notification

import (
	"fmt"

	"github.com/charlesng35/roomnotify/internal/pushrules"
)

// View is the JSON representation of a stored notification.
type View struct {
	ID       string              `json:"id"`
	Kind     string              `json:"kind"`
	RoomID   string              `json:"room_id"`
	EventID  string              `json:"event_id"`
	Type     string              `json:"type,omitempty"`
	StateKey *string             `json:"state_key,omitempty"`
	SortKey  string              `json:"sort_key"`
	Actions  []*pushrules.Action `json:"actions"`
}

// View kinds.
const (
	KindMessage = "message"
	KindState   = "state"
)

// NewView renders n.
func NewView(n StoredNotification) View {
	base := n.Base()
	v := View{
		ID:      n.ID(),
		Kind:    KindMessage,
		RoomID:  base.RoomID,
		EventID: base.EventID,
		SortKey: base.SortKey,
		Actions: base.Actions,
	}
	if s, ok := n.(*StateNotification); ok {
		key := s.StateKey
		v.Kind = KindState
		v.Type = s.Type
		v.StateKey = &key
	}
	return v
}

// Notification rebuilds the stored notification described by v.
func (v View) Notification() (StoredNotification, error) {
	common := Common{RoomID: v.RoomID, EventID: v.EventID, SortKey: v.SortKey, Actions: v.Actions}
	switch v.Kind {
	case KindMessage:
		return &MessageNotification{Common: common}, nil
	case KindState:
		n := &StateNotification{Common: common, Type: v.Type}
		if v.StateKey != nil {
			n.StateKey = *v.StateKey
		}
		return n, nil
	default:
		return nil, fmt.Errorf("notification: unknown kind %q", v.Kind)
	}
}

// Update operations as rendered in UpdateView.
const (
	OpNew    = "new"
	OpChange = "change"
	OpRemove = "remove"
)

// UpdateView is the JSON representation of an Update, used for the external
// delivery queue and the notification stream.
type UpdateView struct {
	Op           string `json:"op"`
	ID           string `json:"id"`
	RoomID       string `json:"room_id"`
	Notification *View  `json:"notification,omitempty"`
}

// NewUpdateView renders u.
func NewUpdateView(u Update) UpdateView {
	switch u := u.(type) {
	case *UpdateNew:
		v := NewView(u.Content)
		return UpdateView{Op: OpNew, ID: u.ID, RoomID: v.RoomID, Notification: &v}
	case *UpdateChange:
		v := NewView(u.Content)
		return UpdateView{Op: OpChange, ID: u.ID, RoomID: v.RoomID, Notification: &v}
	case *UpdateRemove:
		return UpdateView{Op: OpRemove, ID: u.ID, RoomID: u.RoomID}
	default:
		return UpdateView{}
	}
}

// Update rebuilds the update described by v.
func (v UpdateView) Update() (Update, error) {
	if v.Op == OpRemove {
		return &UpdateRemove{ID: v.ID, RoomID: v.RoomID}, nil
	}
	if v.Notification == nil {
		return nil, fmt.Errorf("notification: %s update %s without content", v.Op, v.ID)
	}
	content, err := v.Notification.Notification()
	if err != nil {
		return nil, err
	}
	base := content.Base()
	switch v.Op {
	case OpNew:
		return &UpdateNew{ID: v.ID, SortKey: base.SortKey, Actions: base.Actions, Content: content}, nil
	case OpChange:
		return &UpdateChange{ID: v.ID, SortKey: base.SortKey, Actions: base.Actions, Content: content}, nil
	default:
		return nil, fmt.Errorf("notification: unknown update op %q", v.Op)
	}
}
