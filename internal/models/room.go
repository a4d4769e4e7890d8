package models

import "gorm.io/datatypes"

// TimelineEvent is a locally stored room timeline event. Sequence orders the
// timeline oldest first.
type TimelineEvent struct {
	Sequence       uint64         `gorm:"primaryKey;autoIncrement" json:"sequence"`
	RoomID         string         `gorm:"type:varchar(255);not null;index:idx_timeline_room_seq,priority:1" json:"room_id"`
	EventID        string         `gorm:"type:varchar(255);not null;uniqueIndex" json:"event_id"`
	Sender         string         `gorm:"type:varchar(255)" json:"sender"`
	Type           string         `gorm:"type:varchar(255);not null" json:"type"`
	StateKey       *string        `gorm:"type:varchar(255)" json:"state_key,omitempty"`
	Content        datatypes.JSON `json:"content"`
	Redacts        string         `gorm:"type:varchar(255)" json:"redacts,omitempty"`
	OriginServerTS int64          `json:"origin_server_ts"`
}

// RoomStateEvent holds the current value of one piece of room state.
type RoomStateEvent struct {
	RoomID         string         `gorm:"primaryKey;type:varchar(255)" json:"room_id"`
	Type           string         `gorm:"primaryKey;type:varchar(255)" json:"type"`
	StateKey       string         `gorm:"primaryKey;type:varchar(255)" json:"state_key"`
	EventID        string         `gorm:"type:varchar(255);not null" json:"event_id"`
	Sender         string         `gorm:"type:varchar(255)" json:"sender"`
	Content        datatypes.JSON `json:"content"`
	OriginServerTS int64          `json:"origin_server_ts"`
}

// PushRuleSet stores the user's global push rules as received from the homeserver.
type PushRuleSet struct {
	UserID    string         `gorm:"primaryKey;type:varchar(255)" json:"user_id"`
	Rules     datatypes.JSON `json:"rules"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli" json:"updated_at"`
}
