package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charlesng35/roomnotify/internal/models"
	"github.com/charlesng35/roomnotify/internal/notification"
)

// QueuedUpdate is an update awaiting external delivery.
type QueuedUpdate struct {
	ID     string
	Update notification.UpdateView
}

// Pending returns up to limit queued updates in enqueue order.
func (s *Store) Pending(ctx context.Context, limit int) ([]QueuedUpdate, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var rows []models.QueuedUpdate
	if err := s.db.WithContext(ctx).
		Order("created_at ASC").
		Order("position ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list queued updates: %w", err)
	}

	out := make([]QueuedUpdate, 0, len(rows))
	for _, row := range rows {
		var view notification.UpdateView
		if err := json.Unmarshal(row.Payload, &view); err != nil {
			return nil, fmt.Errorf("store: decode queued update %s: %w", row.ID, err)
		}
		out = append(out, QueuedUpdate{ID: row.ID, Update: view})
	}
	return out, nil
}

// Ack removes delivered updates from the queue.
func (s *Store) Ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.QueuedUpdate{}).Error; err != nil {
		return fmt.Errorf("store: ack queued updates: %w", err)
	}
	return nil
}
