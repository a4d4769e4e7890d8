// Package events models the Matrix client events consumed by the notification engine.
package events

import (
	"encoding/json"
	"fmt"
)

// Well-known event types.
const (
	TypeRoomMessage = "m.room.message"
	TypeRedaction   = "m.room.redaction"
	TypeMember      = "m.room.member"
	TypeRoomName    = "m.room.name"
	TypeRoomTopic   = "m.room.topic"
)

// Textual message types.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeEmote  = "m.emote"
)

// RelTypeReplace marks an edit of an earlier event.
const RelTypeReplace = "m.replace"

// Event is a Matrix room event as delivered by sync or read from the local timeline.
type Event struct {
	EventID        string          `json:"event_id"`
	RoomID         string          `json:"room_id"`
	Sender         string          `json:"sender"`
	Type           string          `json:"type"`
	StateKey       *string         `json:"state_key,omitempty"`
	Content        json.RawMessage `json:"content"`
	Redacts        string          `json:"redacts,omitempty"`
	OriginServerTS int64           `json:"origin_server_ts,omitempty"`
	Unsigned       json.RawMessage `json:"unsigned,omitempty"`
}

// RelatesTo is the m.relates_to block of an event content.
type RelatesTo struct {
	RelType string `json:"rel_type,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType    string          `json:"msgtype"`
	Body       string          `json:"body"`
	RelatesTo  *RelatesTo      `json:"m.relates_to,omitempty"`
	NewContent json.RawMessage `json:"m.new_content,omitempty"`
}

// IsTextual reports whether the content carries a human readable body.
func (c MessageContent) IsTextual() bool {
	switch c.MsgType {
	case MsgTypeText, MsgTypeNotice, MsgTypeEmote:
		return true
	default:
		return false
	}
}

// RedactionContent is the content of an m.room.redaction event (room version 11+).
type RedactionContent struct {
	Redacts string `json:"redacts,omitempty"`
}

// MemberContent is the content of an m.room.member event.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}

// IsState reports whether the event is a state event.
func (e *Event) IsState() bool {
	return e != nil && e.StateKey != nil
}

// StateKeyValue returns the state key or an empty string for non-state events.
func (e *Event) StateKeyValue() string {
	if e == nil || e.StateKey == nil {
		return ""
	}
	return *e.StateKey
}

// TextMessage decodes the content as a textual message. The boolean is false for any
// other event type, undecodable content, or non-textual msgtypes.
func (e *Event) TextMessage() (MessageContent, bool) {
	if e == nil || e.Type != TypeRoomMessage {
		return MessageContent{}, false
	}
	var content MessageContent
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return MessageContent{}, false
	}
	return content, content.IsTextual()
}

// RedactedEventID returns the target of a redaction event.
func (e *Event) RedactedEventID() (string, bool) {
	if e == nil || e.Type != TypeRedaction {
		return "", false
	}
	var content RedactionContent
	if len(e.Content) > 0 {
		_ = json.Unmarshal(e.Content, &content)
	}
	if content.Redacts != "" {
		return content.Redacts, true
	}
	if e.Redacts != "" {
		return e.Redacts, true
	}
	return "", false
}

// ReplacedEventID returns the target of an m.replace relation.
func (e *Event) ReplacedEventID() (string, bool) {
	if e == nil || e.IsState() || len(e.Content) == 0 {
		return "", false
	}
	var content struct {
		RelatesTo *RelatesTo `json:"m.relates_to"`
	}
	if err := json.Unmarshal(e.Content, &content); err != nil || content.RelatesTo == nil {
		return "", false
	}
	if content.RelatesTo.RelType != RelTypeReplace || content.RelatesTo.EventID == "" {
		return "", false
	}
	return content.RelatesTo.EventID, true
}

// EditedContent returns the replacement content of an edit: m.new_content when
// present, otherwise the edit's own content.
func (e *Event) EditedContent() json.RawMessage {
	var content struct {
		NewContent json.RawMessage `json:"m.new_content"`
	}
	if err := json.Unmarshal(e.Content, &content); err == nil && len(content.NewContent) > 0 {
		return content.NewContent
	}
	return e.Content
}

// WithContent returns a shallow copy of the event carrying the supplied content.
func (e *Event) WithContent(content json.RawMessage) *Event {
	cpy := *e
	cpy.Content = content
	return &cpy
}

// Member decodes the content as m.room.member content.
func (e *Event) Member() (MemberContent, error) {
	var content MemberContent
	if e == nil || e.Type != TypeMember {
		return content, fmt.Errorf("events: %q is not a member event", eventType(e))
	}
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return content, fmt.Errorf("events: decode member content: %w", err)
	}
	return content, nil
}

func eventType(e *Event) string {
	if e == nil {
		return ""
	}
	return e.Type
}

// StateKey is a convenience for building state events.
func StateKey(key string) *string {
	return &key
}
