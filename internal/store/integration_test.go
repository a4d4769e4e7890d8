package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/roomnotify/internal/database/testutil"
	"github.com/charlesng35/roomnotify/internal/events"
	"github.com/charlesng35/roomnotify/internal/notification"
	"github.com/charlesng35/roomnotify/internal/pushrules"
	"github.com/charlesng35/roomnotify/internal/timeline"
)

func roomEvent(id, eventType string, stateKey *string, content map[string]any) *events.Event {
	raw, _ := json.Marshal(content)
	return &events.Event{EventID: id, RoomID: room, Sender: "@alice:localhost", Type: eventType, StateKey: stateKey, Content: raw}
}

func TestProcessorAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	s, err := New(db)
	require.NoError(t, err)
	rooms, err := timeline.New(db)
	require.NoError(t, err)

	cache := pushrules.NewCache()
	require.NoError(t, cache.Set(&pushrules.RuleSet{
		Override: []*pushrules.Rule{{
			RuleID:     ".m.rule.contains_display_name",
			Enabled:    true,
			Conditions: []*pushrules.Condition{pushrules.ContainsDisplayName()},
			Actions:    []*pushrules.Action{pushrules.Notify(), pushrules.HighlightTweakAction(true)},
		}},
		Underride: []*pushrules.Rule{{
			RuleID:     ".m.rule.room_one_to_one",
			Enabled:    true,
			Conditions: []*pushrules.Condition{pushrules.RoomMemberCount("2"), pushrules.EventMatch("type", events.TypeRoomMessage)},
			Actions:    []*pushrules.Action{pushrules.Notify()},
		}},
	}))

	evaluator := pushrules.NewEvaluator(pushrules.NewEventConditionMatcher("@me:localhost", rooms))
	processor := notification.NewProcessor(rooms, s, notification.NewConverter(rooms, evaluator), notification.Config{EnableExternalNotifications: true})
	engine := notification.NewEngine(processor, s, cache)

	require.NoError(t, rooms.Append(ctx,
		roomEvent("$join-me", events.TypeMember, events.StateKey("@me:localhost"), map[string]any{"membership": "join", "displayname": "Me"}),
		roomEvent("$join-alice", events.TypeMember, events.StateKey("@alice:localhost"), map[string]any{"membership": "join"}),
		roomEvent("$m1", events.TypeRoomMessage, nil, map[string]any{"msgtype": "m.text", "body": "hello"}),
		roomEvent("$m2", events.TypeRoomMessage, nil, map[string]any{"msgtype": "m.text", "body": "hey Me, look"}),
	))
	require.NoError(t, s.SaveState(ctx, &notification.StateSyncWithTimeline{
		RoomID:      room,
		LastEventID: "$m2",
		IsRead:      notification.IsReadFalse,
	}))

	require.NoError(t, engine.ProcessAll(ctx))

	all, err := s.GetAll(ctx, room)
	require.NoError(t, err)
	require.Len(t, all, 2)
	highlighted := all[notification.MessageID(room, "$m2")]
	require.NotNil(t, highlighted)
	require.True(t, highlighted.Base().Actions[1].IsHighlight())

	state, err := s.GetState(ctx, room)
	require.NoError(t, err)
	require.Equal(t, "$m2", *state.(*notification.StateSyncWithTimeline).LastProcessedEventID)

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// Redacting a message removes its notification on the next sync.
	require.NoError(t, rooms.Append(ctx, roomEvent("$r1", events.TypeRedaction, nil, map[string]any{"redacts": "$m1"})))
	require.NoError(t, s.SaveState(ctx, &notification.StateSyncWithTimeline{
		RoomID:               room,
		LastEventID:          "$r1",
		LastProcessedEventID: state.(*notification.StateSyncWithTimeline).LastProcessedEventID,
		IsRead:               notification.IsReadFalse,
	}))
	require.NoError(t, engine.ProcessRoom(ctx, room))

	all, err = s.GetAll(ctx, room)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Contains(t, all, notification.MessageID(room, "$m2"))

	// Reading the room clears everything.
	require.NoError(t, engine.Process(ctx, &notification.StateRead{RoomID: room}))
	all, err = s.GetAll(ctx, room)
	require.NoError(t, err)
	require.Empty(t, all)
	state, err = s.GetState(ctx, room)
	require.NoError(t, err)
	require.Nil(t, state)
}
