// Package timeline serves the locally stored room timeline and room state.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/roomnotify/internal/events"
	"github.com/charlesng35/roomnotify/internal/models"
	"github.com/charlesng35/roomnotify/internal/notification"
	"github.com/charlesng35/roomnotify/internal/pushrules"
	"github.com/charlesng35/roomnotify/pkg/logger"
)

const defaultPageSize = 100

// Service implements notification.RoomService and pushrules.RoomInfo.
type Service struct {
	db       *gorm.DB
	pageSize int
	log      *zap.Logger
}

var (
	_ notification.RoomService = (*Service)(nil)
	_ pushrules.RoomInfo       = (*Service)(nil)
)

// Option customises a Service.
type Option func(*Service)

// WithPageSize sets how many rows GetTimelineEvents loads per query.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// New constructs a Service.
func New(db *gorm.DB, opts ...Option) (*Service, error) {
	if db == nil {
		return nil, errors.New("timeline: db is required")
	}
	s := &Service{db: db, pageSize: defaultPageSize, log: logger.WithModule("timeline")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetTimelineEvent returns nil without error when the event is not stored.
func (s *Service) GetTimelineEvent(ctx context.Context, roomID, eventID string) (*events.Event, error) {
	var row models.TimelineEvent
	err := s.db.WithContext(ctx).Take(&row, "room_id = ? AND event_id = ?", roomID, eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("timeline: get event %s: %w", eventID, err)
	}
	return timelineEvent(row), nil
}

// GetTimelineEvents walks the timeline from startEventID, loading one page at a
// time while the consumer keeps reading.
func (s *Service) GetTimelineEvents(ctx context.Context, roomID, startEventID string, dir notification.Direction, maxSize *int) iter.Seq2[*events.Event, error] {
	return func(yield func(*events.Event, error) bool) {
		if maxSize != nil && *maxSize <= 0 {
			return
		}

		var start models.TimelineEvent
		err := s.db.WithContext(ctx).Select("sequence").Take(&start, "room_id = ? AND event_id = ?", roomID, startEventID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Debug("timeline start event unknown", zap.String("room_id", roomID), zap.String("event_id", startEventID))
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("timeline: locate %s: %w", startEventID, err))
			return
		}

		cmp, order := "sequence <= ?", "sequence DESC"
		if dir == notification.Forward {
			cmp, order = "sequence >= ?", "sequence ASC"
		}

		cursor := start.Sequence
		yielded := 0
		for {
			var rows []models.TimelineEvent
			if err := s.db.WithContext(ctx).
				Where("room_id = ?", roomID).
				Where(cmp, cursor).
				Order(order).
				Limit(s.pageSize).
				Find(&rows).Error; err != nil {
				yield(nil, fmt.Errorf("timeline: load page of %s: %w", roomID, err))
				return
			}
			for _, row := range rows {
				if maxSize != nil && yielded >= *maxSize {
					return
				}
				yielded++
				if !yield(timelineEvent(row), nil) {
					return
				}
			}
			if len(rows) < s.pageSize {
				return
			}
			last := rows[len(rows)-1].Sequence
			if dir == notification.Forward {
				cursor = last + 1
			} else {
				if last == 0 {
					return
				}
				cursor = last - 1
			}
		}
	}
}

// GetState returns the current state event or nil when unset.
func (s *Service) GetState(ctx context.Context, roomID, eventType, stateKey string) (*events.Event, error) {
	var row models.RoomStateEvent
	err := s.db.WithContext(ctx).Take(&row, "room_id = ? AND type = ? AND state_key = ?", roomID, eventType, stateKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("timeline: get state %s/%s: %w", eventType, stateKey, err)
	}
	return stateEvent(row), nil
}

// GetAllState returns the current room state ordered by type and state key.
func (s *Service) GetAllState(ctx context.Context, roomID string) ([]*events.Event, error) {
	var rows []models.RoomStateEvent
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("type").Order("state_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("timeline: list state of %s: %w", roomID, err)
	}
	out := make([]*events.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, stateEvent(row))
	}
	return out, nil
}

// Append stores timeline events in order. State events also become the current
// room state. Events already stored are skipped.
func (s *Service) Append(ctx context.Context, evs ...*events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ev := range evs {
			if ev == nil {
				continue
			}
			row := models.TimelineEvent{
				RoomID:         ev.RoomID,
				EventID:        ev.EventID,
				Sender:         ev.Sender,
				Type:           ev.Type,
				StateKey:       ev.StateKey,
				Content:        datatypes.JSON(ev.Content),
				Redacts:        ev.Redacts,
				OriginServerTS: ev.OriginServerTS,
			}
			if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("timeline: append %s: %w", ev.EventID, err)
			}
			if ev.IsState() {
				if err := setState(tx, ev); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SetState replaces the current value of a piece of room state.
func (s *Service) SetState(ctx context.Context, ev *events.Event) error {
	if !ev.IsState() {
		return fmt.Errorf("timeline: %s is not a state event", ev.EventID)
	}
	return setState(s.db.WithContext(ctx), ev)
}

// DeleteState removes a piece of room state.
func (s *Service) DeleteState(ctx context.Context, roomID, eventType, stateKey string) error {
	return s.db.WithContext(ctx).
		Where("room_id = ? AND type = ? AND state_key = ?", roomID, eventType, stateKey).
		Delete(&models.RoomStateEvent{}).Error
}

func setState(db *gorm.DB, ev *events.Event) error {
	row := models.RoomStateEvent{
		RoomID:         ev.RoomID,
		Type:           ev.Type,
		StateKey:       ev.StateKeyValue(),
		EventID:        ev.EventID,
		Sender:         ev.Sender,
		Content:        datatypes.JSON(ev.Content),
		OriginServerTS: ev.OriginServerTS,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "type"}, {Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"event_id", "sender", "content", "origin_server_ts"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("timeline: set state %s/%s: %w", ev.Type, ev.StateKeyValue(), err)
	}
	return nil
}

func timelineEvent(row models.TimelineEvent) *events.Event {
	return &events.Event{
		EventID:        row.EventID,
		RoomID:         row.RoomID,
		Sender:         row.Sender,
		Type:           row.Type,
		StateKey:       row.StateKey,
		Content:        []byte(row.Content),
		Redacts:        row.Redacts,
		OriginServerTS: row.OriginServerTS,
	}
}

func stateEvent(row models.RoomStateEvent) *events.Event {
	return &events.Event{
		EventID:        row.EventID,
		RoomID:         row.RoomID,
		Sender:         row.Sender,
		Type:           row.Type,
		StateKey:       events.StateKey(row.StateKey),
		Content:        []byte(row.Content),
		OriginServerTS: row.OriginServerTS,
	}
}
