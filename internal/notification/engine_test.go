package notification

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/roomnotify/internal/pushrules"
)

// staleListing lists records captured before the sync layer replaced them.
type staleListing struct {
	*fakeStore
	listed []State
}

func (s staleListing) GetAllStates(context.Context) ([]State, error) {
	return s.listed, nil
}

func TestEngineProcessAll(t *testing.T) {
	rooms := newFakeRooms(message("$m1", "dino"))
	store := newFakeStore()
	seedNotification(store, "!read:localhost", "$x")
	store.states["!read:localhost"] = &StateRead{RoomID: "!read:localhost"}
	store.states[testRoom] = timelineState("$m1", nil)
	store.states["!push:localhost"] = &StatePush{RoomID: "!push:localhost"}

	engine := NewEngine(newTestProcessor(rooms, store, false), store, testRules(), WithMaxConcurrentRooms(2))
	require.NoError(t, engine.ProcessAll(context.Background()))

	require.Len(t, store.notifications, 1)
	require.Contains(t, store.notifications, MessageID(testRoom, "$m1"))
	require.NotContains(t, store.states, "!read:localhost")
	require.Contains(t, store.states, "!push:localhost")
}

func TestEngineProcessAllCollectsFailures(t *testing.T) {
	rooms := newFakeRooms(message("$m1", "dino"))
	store := newFakeStore()
	store.failSave = true
	store.states[testRoom] = timelineState("$m1", nil)
	seedNotification(store, "!read:localhost", "$x")
	store.states["!read:localhost"] = &StateRead{RoomID: "!read:localhost"}

	engine := NewEngine(newTestProcessor(rooms, store, false), store, testRules())
	err := engine.ProcessAll(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), testRoom)

	// The failing room does not prevent other rooms from being processed.
	require.NotContains(t, store.states, "!read:localhost")
}

func TestEngineProcessRoom(t *testing.T) {
	rooms := newFakeRooms(message("$m1", "dino"))
	store := newFakeStore()
	engine := NewEngine(newTestProcessor(rooms, store, false), store, testRules())

	require.NoError(t, engine.ProcessRoom(context.Background(), testRoom))
	require.Empty(t, store.notifications)

	store.states[testRoom] = timelineState("$m1", nil)
	require.NoError(t, engine.ProcessRoom(context.Background(), testRoom))
	require.Len(t, store.notifications, 1)
}

func TestEngineProcessHonoursCancellation(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(newTestProcessor(newFakeRooms(), store, false), store, testRules())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, engine.Process(ctx, &StateRead{RoomID: testRoom}), context.Canceled)
}

func TestEngineProcessAllRereadsRecords(t *testing.T) {
	rooms := newFakeRooms(message("$m1", "dino"))
	store := newFakeStore()
	store.states[testRoom] = timelineState("$m1", nil)
	listing := staleListing{fakeStore: store, listed: []State{&StateRead{RoomID: testRoom}}}

	engine := NewEngine(newTestProcessor(rooms, store, false), listing, testRules())
	require.NoError(t, engine.ProcessAll(context.Background()))

	require.Contains(t, store.notifications, MessageID(testRoom, "$m1"))
	next := store.states[testRoom].(*StateSyncWithTimeline)
	require.Equal(t, "$m1", *next.LastProcessedEventID)
}

func TestEngineHonoursMutedRooms(t *testing.T) {
	cache := pushrules.NewCache()
	require.NoError(t, cache.Set(&pushrules.RuleSet{
		Override: []*pushrules.Rule{{
			RuleID:     testRoom,
			Enabled:    true,
			Actions:    []*pushrules.Action{},
			Conditions: []*pushrules.Condition{pushrules.EventMatch("room_id", testRoom)},
		}},
		Content: []*pushrules.Rule{{
			RuleID:  "dino",
			Enabled: true,
			Pattern: "dino",
			Actions: []*pushrules.Action{pushrules.Notify()},
		}},
	}))

	rooms := newFakeRooms(message("$m1", "dino"), message("$m2", "dino"))
	store := newFakeStore()
	seedNotification(store, testRoom, "$m1")
	store.states[testRoom] = timelineState("$m2", strPtr("$m1"))

	engine := NewEngine(newTestProcessor(rooms, store, false), store, cache)
	require.NoError(t, engine.ProcessAll(context.Background()))

	require.Empty(t, store.notifications)
	next := store.states[testRoom].(*StateSyncWithTimeline)
	require.Equal(t, "$m2", *next.LastProcessedEventID)
	require.False(t, next.NotificationsDisabled)
}

func TestEngineReleasesRoomLocks(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(newTestProcessor(newFakeRooms(), store, false), store, testRules())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = engine.Process(context.Background(), &StatePush{RoomID: testRoom})
		}()
	}
	wg.Wait()
	require.NoError(t, engine.ProcessRoom(context.Background(), "!other:localhost"))

	engine.locksMu.Lock()
	defer engine.locksMu.Unlock()
	require.Empty(t, engine.locks)
}
