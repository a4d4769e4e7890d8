package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/roomnotify/internal/database/testutil"
	"github.com/charlesng35/roomnotify/internal/notification"
	"github.com/charlesng35/roomnotify/internal/pushrules"
	apperrors "github.com/charlesng35/roomnotify/pkg/errors"
)

const room = "!garden:localhost"

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	require.NoError(t, err)
	return s
}

func messageNotification(eventID, sortKey string) *notification.MessageNotification {
	return &notification.MessageNotification{Common: notification.Common{
		RoomID:  room,
		EventID: eventID,
		SortKey: sortKey,
		Actions: []*pushrules.Action{pushrules.Notify(), pushrules.HighlightTweakAction(true)},
	}}
}

func TestSaveAndLoadNotifications(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	msg := messageNotification("$m1", "0001")
	state := &notification.StateNotification{
		Common:   notification.Common{RoomID: room, EventID: "$s1", SortKey: "0002", Actions: []*pushrules.Action{pushrules.Notify()}},
		Type:     "m.room.name",
		StateKey: "",
	}

	require.NoError(t, s.Transaction(ctx, func(tx notification.StoreTx) error {
		require.NoError(t, tx.Save(ctx, msg))
		return tx.Save(ctx, state)
	}))

	all, err := s.GetAll(ctx, room)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, msg, all[msg.ID()])
	require.Equal(t, state, all[state.ID()])

	updated := messageNotification("$m1", "0001")
	updated.Actions = []*pushrules.Action{pushrules.Notify()}
	require.NoError(t, s.Transaction(ctx, func(tx notification.StoreTx) error {
		return tx.Save(ctx, updated)
	}))
	all, err = s.GetAll(ctx, room)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Len(t, all[msg.ID()].Base().Actions, 1)

	listed, err := s.List(ctx, ListInput{RoomID: room})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, state.ID(), listed[0].ID())

	listed, err = s.List(ctx, ListInput{Before: "0002"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, msg.ID(), listed[0].ID())

	require.NoError(t, s.Transaction(ctx, func(tx notification.StoreTx) error {
		return tx.Delete(ctx, msg.ID())
	}))
	all, err = s.GetAll(ctx, room)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.Transaction(ctx, func(tx notification.StoreTx) error {
		return tx.DeleteAll(ctx, room)
	}))
	all, err = s.GetAll(ctx, room)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestStatesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	prev := "$m1"
	expected := int64(4)
	states := []notification.State{
		&notification.StatePush{RoomID: "!a:localhost"},
		&notification.StateRead{RoomID: "!b:localhost"},
		&notification.StateSyncWithoutTimeline{RoomID: "!c:localhost", NotificationsDisabled: true},
		&notification.StateSyncWithTimeline{
			RoomID:                       "!d:localhost",
			NeedsSync:                    true,
			ReadReceipts:                 []string{"$r1"},
			LastEventID:                  "$m2",
			LastProcessedEventID:         &prev,
			ExpectedMaxNotificationCount: &expected,
			IsRead:                       notification.IsReadFalseButCheck,
		},
	}
	for _, state := range states {
		require.NoError(t, s.SaveState(ctx, state))
	}

	all, err := s.GetAllStates(ctx)
	require.NoError(t, err)
	require.Equal(t, states, all)

	missing, err := s.GetState(ctx, "!missing:localhost")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestUpdateState(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveState(ctx, &notification.StatePush{RoomID: room}))

	require.NoError(t, s.Transaction(ctx, func(tx notification.StoreTx) error {
		return tx.UpdateState(ctx, room, func(current notification.State) notification.State {
			require.IsType(t, &notification.StatePush{}, current)
			return &notification.StateRead{RoomID: room}
		})
	}))
	state, err := s.GetState(ctx, room)
	require.NoError(t, err)
	require.Equal(t, &notification.StateRead{RoomID: room}, state)

	require.NoError(t, s.Transaction(ctx, func(tx notification.StoreTx) error {
		return tx.UpdateState(ctx, room, func(notification.State) notification.State { return nil })
	}))
	state, err = s.GetState(ctx, room)
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx notification.StoreTx) error {
		require.NoError(t, tx.Save(ctx, messageNotification("$m1", "1")))
		require.NoError(t, tx.UpdateState(ctx, room, func(notification.State) notification.State {
			return &notification.StatePush{RoomID: room}
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := s.GetAll(ctx, room)
	require.NoError(t, err)
	require.Empty(t, all)
	state, err := s.GetState(ctx, room)
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	msg := messageNotification("$m1", "1")
	updates := []notification.Update{
		&notification.UpdateNew{ID: msg.ID(), SortKey: "1", Actions: msg.Actions, Content: msg},
		&notification.UpdateRemove{ID: notification.MessageID(room, "$m0"), RoomID: room},
	}
	require.NoError(t, s.Transaction(ctx, func(tx notification.StoreTx) error {
		return tx.EnqueueUpdates(ctx, updates)
	}))

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, notification.OpNew, pending[0].Update.Op)
	require.Equal(t, notification.OpRemove, pending[1].Update.Op)

	decoded, err := pending[0].Update.Update()
	require.NoError(t, err)
	require.Equal(t, updates[0], decoded)

	require.NoError(t, s.Ack(ctx, []string{pending[0].ID, pending[1].ID}))
	pending, err = s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestRuleSetPersistence(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	rs, err := s.LoadRuleSet(ctx, "@me:localhost")
	require.NoError(t, err)
	require.Nil(t, rs)

	valid := &pushrules.RuleSet{Content: []*pushrules.Rule{{
		RuleID:  "dino",
		Enabled: true,
		Pattern: "dino",
		Actions: []*pushrules.Action{pushrules.Notify()},
	}}}
	require.NoError(t, s.SaveRuleSet(ctx, "@me:localhost", valid))
	valid.Content[0].Pattern = "dinosaur"
	require.NoError(t, s.SaveRuleSet(ctx, "@me:localhost", valid))

	rs, err = s.LoadRuleSet(ctx, "@me:localhost")
	require.NoError(t, err)
	require.Len(t, rs.Content, 1)
	require.Equal(t, "dinosaur", rs.Content[0].Pattern)

	invalid := &pushrules.RuleSet{Content: []*pushrules.Rule{{RuleID: "x", Enabled: true}}}
	require.ErrorIs(t, s.SaveRuleSet(ctx, "@me:localhost", invalid), apperrors.ErrInvalidRuleSet)
}
