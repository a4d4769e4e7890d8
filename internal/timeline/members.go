package timeline

import (
	"context"
	"fmt"

	"github.com/charlesng35/roomnotify/internal/events"
	"github.com/charlesng35/roomnotify/internal/models"
)

// JoinedMemberCount counts members whose current membership is join.
func (s *Service) JoinedMemberCount(ctx context.Context, roomID string) (int, error) {
	var rows []models.RoomStateEvent
	if err := s.db.WithContext(ctx).
		Where("room_id = ? AND type = ?", roomID, events.TypeMember).
		Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("timeline: list members of %s: %w", roomID, err)
	}
	joined := 0
	for _, row := range rows {
		member, err := stateEvent(row).Member()
		if err != nil {
			continue
		}
		if member.Membership == "join" {
			joined++
		}
	}
	return joined, nil
}

// DisplayName returns the user's display name in the room, or an empty string.
func (s *Service) DisplayName(ctx context.Context, roomID, userID string) (string, error) {
	ev, err := s.GetState(ctx, roomID, events.TypeMember, userID)
	if err != nil || ev == nil {
		return "", err
	}
	member, err := ev.Member()
	if err != nil {
		return "", err
	}
	return member.DisplayName, nil
}
