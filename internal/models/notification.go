package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification kinds persisted in StoredNotification.Kind.
const (
	NotificationKindMessage = "message"
	NotificationKindState   = "state"
)

// StoredNotification is a local notification for one room event or one piece of room state.
type StoredNotification struct {
	ID        string         `gorm:"primaryKey;type:varchar(512)" json:"id"`
	RoomID    string         `gorm:"type:varchar(255);not null;index:idx_notification_room_sort,priority:1" json:"room_id"`
	SortKey   string         `gorm:"type:varchar(64);not null;index:idx_notification_room_sort,priority:2" json:"sort_key"`
	Kind      string         `gorm:"type:varchar(16);not null" json:"kind"`
	EventID   string         `gorm:"type:varchar(255);not null" json:"event_id"`
	Type      string         `gorm:"type:varchar(255)" json:"type,omitempty"`
	StateKey  string         `gorm:"type:varchar(255)" json:"state_key,omitempty"`
	Actions   datatypes.JSON `json:"actions"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NotificationState is the per-room processing record.
type NotificationState struct {
	RoomID                       string         `gorm:"primaryKey;type:varchar(255)" json:"room_id"`
	Variant                      string         `gorm:"type:varchar(32);not null;index" json:"variant"`
	NeedsSync                    bool           `gorm:"default:false" json:"needs_sync"`
	NotificationsDisabled        bool           `gorm:"default:false" json:"notifications_disabled"`
	ReadReceipts                 datatypes.JSON `json:"read_receipts"`
	LastEventID                  string         `gorm:"type:varchar(255)" json:"last_event_id"`
	LastRelevantEventID          *string        `gorm:"type:varchar(255)" json:"last_relevant_event_id"`
	LastProcessedEventID         *string        `gorm:"type:varchar(255)" json:"last_processed_event_id"`
	ExpectedMaxNotificationCount *int64         `json:"expected_max_notification_count"`
	IsRead                       string         `gorm:"type:varchar(32)" json:"is_read"`
	CreatedAt                    time.Time      `json:"created_at"`
	UpdatedAt                    time.Time      `json:"updated_at"`
}

// QueuedUpdate is a notification update awaiting one-shot external delivery.
type QueuedUpdate struct {
	BaseModel

	RoomID         string         `gorm:"type:varchar(255);index" json:"room_id"`
	NotificationID string         `gorm:"type:varchar(512);not null" json:"notification_id"`
	Position       int            `gorm:"not null;default:0" json:"position"`
	Payload        datatypes.JSON `json:"payload"`
}
