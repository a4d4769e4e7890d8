package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/charlesng35/roomnotify/internal/models"
	"github.com/charlesng35/roomnotify/internal/notification"
	"github.com/charlesng35/roomnotify/internal/pushrules"
	apperrors "github.com/charlesng35/roomnotify/pkg/errors"
)

func notificationRow(n notification.StoredNotification) (models.StoredNotification, error) {
	base := n.Base()
	actions, err := json.Marshal(base.Actions)
	if err != nil {
		return models.StoredNotification{}, fmt.Errorf("store: marshal actions: %w", err)
	}
	row := models.StoredNotification{
		ID:      n.ID(),
		RoomID:  base.RoomID,
		SortKey: base.SortKey,
		EventID: base.EventID,
		Actions: datatypes.JSON(actions),
	}
	switch n := n.(type) {
	case *notification.MessageNotification:
		row.Kind = models.NotificationKindMessage
	case *notification.StateNotification:
		row.Kind = models.NotificationKindState
		row.Type = n.Type
		row.StateKey = n.StateKey
	default:
		return models.StoredNotification{}, fmt.Errorf("store: unsupported notification %T", n)
	}
	return row, nil
}

func notificationFromRow(row models.StoredNotification) (notification.StoredNotification, error) {
	var actions []*pushrules.Action
	if len(row.Actions) > 0 {
		if err := json.Unmarshal(row.Actions, &actions); err != nil {
			return nil, fmt.Errorf("store: decode actions of %s: %w", row.ID, err)
		}
	}
	common := notification.Common{RoomID: row.RoomID, EventID: row.EventID, SortKey: row.SortKey, Actions: actions}
	switch row.Kind {
	case models.NotificationKindMessage:
		return &notification.MessageNotification{Common: common}, nil
	case models.NotificationKindState:
		return &notification.StateNotification{Common: common, Type: row.Type, StateKey: row.StateKey}, nil
	default:
		return nil, fmt.Errorf("store: notification %s has unknown kind %q", row.ID, row.Kind)
	}
}

func stateRow(state notification.State) (models.NotificationState, error) {
	row := models.NotificationState{RoomID: state.StateRoomID(), Variant: state.Variant()}
	switch s := state.(type) {
	case *notification.StatePush, *notification.StateRead:
	case *notification.StateSyncWithoutTimeline:
		row.NotificationsDisabled = s.NotificationsDisabled
	case *notification.StateSyncWithTimeline:
		receipts, err := json.Marshal(s.ReadReceipts)
		if err != nil {
			return row, fmt.Errorf("store: marshal read receipts: %w", err)
		}
		row.NeedsSync = s.NeedsSync
		row.NotificationsDisabled = s.NotificationsDisabled
		row.ReadReceipts = datatypes.JSON(receipts)
		row.LastEventID = s.LastEventID
		row.LastRelevantEventID = s.LastRelevantEventID
		row.LastProcessedEventID = s.LastProcessedEventID
		row.ExpectedMaxNotificationCount = s.ExpectedMaxNotificationCount
		row.IsRead = string(s.IsRead)
	default:
		return row, apperrors.ErrUnknownState.WithInternal(fmt.Errorf("variant %T", state))
	}
	return row, nil
}

func stateFromRow(row models.NotificationState) (notification.State, error) {
	switch row.Variant {
	case notification.VariantPush:
		return &notification.StatePush{RoomID: row.RoomID}, nil
	case notification.VariantRead:
		return &notification.StateRead{RoomID: row.RoomID}, nil
	case notification.VariantSyncWithoutTimeline:
		return &notification.StateSyncWithoutTimeline{RoomID: row.RoomID, NotificationsDisabled: row.NotificationsDisabled}, nil
	case notification.VariantSyncWithTimeline:
		var receipts []string
		if len(row.ReadReceipts) > 0 {
			if err := json.Unmarshal(row.ReadReceipts, &receipts); err != nil {
				return nil, fmt.Errorf("store: decode read receipts of %s: %w", row.RoomID, err)
			}
		}
		return &notification.StateSyncWithTimeline{
			RoomID:                       row.RoomID,
			NeedsSync:                    row.NeedsSync,
			NotificationsDisabled:        row.NotificationsDisabled,
			ReadReceipts:                 receipts,
			LastEventID:                  row.LastEventID,
			LastRelevantEventID:          row.LastRelevantEventID,
			LastProcessedEventID:         row.LastProcessedEventID,
			ExpectedMaxNotificationCount: row.ExpectedMaxNotificationCount,
			IsRead:                       notification.IsRead(row.IsRead),
		}, nil
	default:
		return nil, apperrors.ErrUnknownState.WithInternal(fmt.Errorf("room %s has variant %q", row.RoomID, row.Variant))
	}
}
