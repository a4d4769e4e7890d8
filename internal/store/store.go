// Package store persists notifications, room notification states, the external
// delivery queue and push rules with gorm.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/roomnotify/internal/models"
	"github.com/charlesng35/roomnotify/internal/notification"
	"github.com/charlesng35/roomnotify/internal/pushrules"
)

const defaultListLimit = 50

// Store implements notification.Store on top of gorm.
type Store struct {
	db *gorm.DB
}

var _ notification.Store = (*Store)(nil)

// New constructs a Store.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	return &Store{db: db}, nil
}

// GetAll returns every notification of roomID keyed by identity.
func (s *Store) GetAll(ctx context.Context, roomID string) (map[string]notification.StoredNotification, error) {
	var rows []models.StoredNotification
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list notifications of %s: %w", roomID, err)
	}
	out := make(map[string]notification.StoredNotification, len(rows))
	for _, row := range rows {
		n, err := notificationFromRow(row)
		if err != nil {
			return nil, err
		}
		out[row.ID] = n
	}
	return out, nil
}

// ListInput filters List.
type ListInput struct {
	RoomID string
	Limit  int
	// Before returns only notifications sorting before this key.
	Before string
}

// List returns notifications newest first.
func (s *Store) List(ctx context.Context, input ListInput) ([]notification.StoredNotification, error) {
	limit := input.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}

	query := s.db.WithContext(ctx).Model(&models.StoredNotification{})
	if roomID := strings.TrimSpace(input.RoomID); roomID != "" {
		query = query.Where("room_id = ?", roomID)
	}
	if input.Before != "" {
		query = query.Where("sort_key < ?", input.Before)
	}

	var rows []models.StoredNotification
	if err := query.Order("sort_key DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list notifications: %w", err)
	}
	out := make([]notification.StoredNotification, 0, len(rows))
	for _, row := range rows {
		n, err := notificationFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// GetState returns the record of roomID or nil when none exists.
func (s *Store) GetState(ctx context.Context, roomID string) (notification.State, error) {
	return getState(ctx, s.db, roomID)
}

// GetAllStates returns every stored record.
func (s *Store) GetAllStates(ctx context.Context) ([]notification.State, error) {
	var rows []models.NotificationState
	if err := s.db.WithContext(ctx).Order("room_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list states: %w", err)
	}
	out := make([]notification.State, 0, len(rows))
	for _, row := range rows {
		state, err := stateFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

// SaveState replaces the record of the state's room. The sync driver calls it
// after every sync response.
func (s *Store) SaveState(ctx context.Context, state notification.State) error {
	return saveState(ctx, s.db, state)
}

// Transaction implements notification.Store.
func (s *Store) Transaction(ctx context.Context, fn func(tx notification.StoreTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txStore{db: tx})
	})
}

// LoadRuleSet returns the stored push rules of userID or nil when none are stored.
func (s *Store) LoadRuleSet(ctx context.Context, userID string) (*pushrules.RuleSet, error) {
	var row models.PushRuleSet
	err := s.db.WithContext(ctx).Take(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load push rules: %w", err)
	}
	var rs pushrules.RuleSet
	if err := json.Unmarshal(row.Rules, &rs); err != nil {
		return nil, fmt.Errorf("store: decode push rules: %w", err)
	}
	return &rs, nil
}

// SaveRuleSet validates and stores the push rules of userID.
func (s *Store) SaveRuleSet(ctx context.Context, userID string, rs *pushrules.RuleSet) error {
	if err := pushrules.Validate(rs); err != nil {
		return err
	}
	raw, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("store: encode push rules: %w", err)
	}
	row := models.PushRuleSet{UserID: userID, Rules: datatypes.JSON(raw)}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rules", "updated_at"}),
		}).Create(&row).Error
}

func getState(ctx context.Context, db *gorm.DB, roomID string) (notification.State, error) {
	var row models.NotificationState
	err := db.WithContext(ctx).Take(&row, "room_id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load state of %s: %w", roomID, err)
	}
	return stateFromRow(row)
}

func saveState(ctx context.Context, db *gorm.DB, state notification.State) error {
	row, err := stateRow(state)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "room_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"variant", "needs_sync", "notifications_disabled", "read_receipts",
				"last_event_id", "last_relevant_event_id", "last_processed_event_id",
				"expected_max_notification_count", "is_read", "updated_at",
			}),
		}).Create(&row).Error
}

// txStore implements notification.StoreTx inside a gorm transaction.
type txStore struct {
	db *gorm.DB
}

func (t *txStore) Save(ctx context.Context, n notification.StoredNotification) error {
	row, err := notificationRow(n)
	if err != nil {
		return err
	}
	return t.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"room_id", "sort_key", "kind", "event_id", "type", "state_key", "actions", "updated_at"}),
		}).Create(&row).Error
}

func (t *txStore) Delete(ctx context.Context, id string) error {
	return t.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StoredNotification{}).Error
}

func (t *txStore) DeleteAll(ctx context.Context, roomID string) error {
	return t.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&models.StoredNotification{}).Error
}

func (t *txStore) UpdateState(ctx context.Context, roomID string, fn func(notification.State) notification.State) error {
	current, err := getState(ctx, t.db, roomID)
	if err != nil {
		return err
	}
	next := fn(current)
	if next == nil {
		if current == nil {
			return nil
		}
		return t.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&models.NotificationState{}).Error
	}
	if next.StateRoomID() != roomID {
		return fmt.Errorf("store: state for %s returned for room %s", next.StateRoomID(), roomID)
	}
	return saveState(ctx, t.db, next)
}

func (t *txStore) EnqueueUpdates(ctx context.Context, updates []notification.Update) error {
	if len(updates) == 0 {
		return nil
	}
	rows := make([]models.QueuedUpdate, 0, len(updates))
	for i, u := range updates {
		view := notification.NewUpdateView(u)
		payload, err := json.Marshal(view)
		if err != nil {
			return fmt.Errorf("store: encode update %s: %w", u.NotificationID(), err)
		}
		rows = append(rows, models.QueuedUpdate{
			RoomID:         view.RoomID,
			NotificationID: u.NotificationID(),
			Position:       i,
			Payload:        datatypes.JSON(payload),
		})
	}
	return t.db.WithContext(ctx).Create(&rows).Error
}
