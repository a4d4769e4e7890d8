package notification

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"maps"
	"sync"

	"github.com/charlesng35/roomnotify/internal/events"
	"github.com/charlesng35/roomnotify/internal/pushrules"
)

const testRoom = "!room:localhost"

// fakeRooms serves an in-memory timeline, ordered oldest first.
type fakeRooms struct {
	mu       sync.Mutex
	timeline []*events.Event
	state    map[[2]string]*events.Event
	limits   []*int
	failOn   string
}

func newFakeRooms(timeline ...*events.Event) *fakeRooms {
	r := &fakeRooms{state: map[[2]string]*events.Event{}}
	for _, ev := range timeline {
		r.add(ev)
	}
	return r
}

func (r *fakeRooms) add(ev *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeline = append(r.timeline, ev)
	if ev.IsState() {
		r.state[[2]string{ev.Type, ev.StateKeyValue()}] = ev
	}
}

func (r *fakeRooms) setState(eventType, stateKey string, ev *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev == nil {
		delete(r.state, [2]string{eventType, stateKey})
		return
	}
	r.state[[2]string{eventType, stateKey}] = ev
}

func (r *fakeRooms) GetTimelineEvent(_ context.Context, _ string, eventID string) (*events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if eventID == r.failOn {
		return nil, errors.New("timeline unavailable")
	}
	for _, ev := range r.timeline {
		if ev.EventID == eventID {
			return ev, nil
		}
	}
	return nil, nil
}

func (r *fakeRooms) GetTimelineEvents(_ context.Context, _ string, startEventID string, dir Direction, maxSize *int) iter.Seq2[*events.Event, error] {
	r.mu.Lock()
	r.limits = append(r.limits, maxSize)
	timeline := append([]*events.Event(nil), r.timeline...)
	r.mu.Unlock()

	return func(yield func(*events.Event, error) bool) {
		start := -1
		for i, ev := range timeline {
			if ev.EventID == startEventID {
				start = i
			}
		}
		if start < 0 {
			return
		}
		yielded := 0
		step := -1
		if dir == Forward {
			step = 1
		}
		for i := start; i >= 0 && i < len(timeline); i += step {
			if maxSize != nil && yielded >= *maxSize {
				return
			}
			yielded++
			if !yield(timeline[i], nil) {
				return
			}
		}
	}
}

func (r *fakeRooms) GetState(_ context.Context, _ string, eventType, stateKey string) (*events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state[[2]string{eventType, stateKey}], nil
}

func (r *fakeRooms) GetAllState(context.Context, string) ([]*events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*events.Event, 0, len(r.state))
	for _, ev := range r.timeline {
		if cur, ok := r.state[[2]string{ev.Type, ev.StateKeyValue()}]; ok && cur == ev {
			out = append(out, ev)
		}
	}
	return out, nil
}

// fakeStore keeps everything in maps; a failed transaction restores the snapshot.
type fakeStore struct {
	mu            sync.Mutex
	notifications map[string]StoredNotification
	states        map[string]State
	queue         []Update
	failSave      bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		notifications: map[string]StoredNotification{},
		states:        map[string]State{},
	}
}

func (s *fakeStore) GetAll(_ context.Context, roomID string) (map[string]StoredNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]StoredNotification{}
	for id, n := range s.notifications {
		if n.Base().RoomID == roomID {
			out[id] = n
		}
	}
	return out, nil
}

func (s *fakeStore) GetState(_ context.Context, roomID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[roomID], nil
}

func (s *fakeStore) GetAllStates(context.Context) ([]State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	return out, nil
}

func (s *fakeStore) Transaction(ctx context.Context, fn func(tx StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	notifications := maps.Clone(s.notifications)
	states := maps.Clone(s.states)
	queue := append([]Update(nil), s.queue...)
	if err := fn(fakeTx{s}); err != nil {
		s.notifications, s.states, s.queue = notifications, states, queue
		return err
	}
	return nil
}

type fakeTx struct{ s *fakeStore }

func (t fakeTx) Save(_ context.Context, n StoredNotification) error {
	if t.s.failSave {
		return errors.New("disk full")
	}
	t.s.notifications[n.ID()] = n
	return nil
}

func (t fakeTx) Delete(_ context.Context, id string) error {
	delete(t.s.notifications, id)
	return nil
}

func (t fakeTx) DeleteAll(_ context.Context, roomID string) error {
	for id, n := range t.s.notifications {
		if n.Base().RoomID == roomID {
			delete(t.s.notifications, id)
		}
	}
	return nil
}

func (t fakeTx) UpdateState(_ context.Context, roomID string, fn func(State) State) error {
	next := fn(t.s.states[roomID])
	if next == nil {
		delete(t.s.states, roomID)
		return nil
	}
	t.s.states[roomID] = next
	return nil
}

func (t fakeTx) EnqueueUpdates(_ context.Context, updates []Update) error {
	t.s.queue = append(t.s.queue, updates...)
	return nil
}

type staticRules []*pushrules.Rule

func (r staticRules) Rules() []*pushrules.Rule { return r }

// testRules notify on messages containing "dino" and on room name changes.
func testRules() staticRules {
	rs := &pushrules.RuleSet{
		Override: []*pushrules.Rule{{
			RuleID:     ".m.rule.room_name",
			Enabled:    true,
			Conditions: []*pushrules.Condition{pushrules.EventMatch("type", events.TypeRoomName)},
			Actions:    []*pushrules.Action{pushrules.Notify()},
		}},
		Content: []*pushrules.Rule{{
			RuleID:  "dino",
			Enabled: true,
			Pattern: "dino",
			Actions: []*pushrules.Action{pushrules.Notify(), pushrules.SoundTweakAction("default")},
		}},
	}
	return staticRules(rs.Ordered())
}

func newTestConverter(rooms RoomService) *Converter {
	return NewConverter(rooms, pushrules.NewEvaluator(pushrules.NewEventConditionMatcher("@me:localhost", nil)))
}

func message(id, body string) *events.Event {
	content, _ := json.Marshal(map[string]string{"msgtype": events.MsgTypeText, "body": body})
	return &events.Event{EventID: id, RoomID: testRoom, Sender: "@alice:localhost", Type: events.TypeRoomMessage, Content: content}
}

func edit(id, targetID, body string) *events.Event {
	content, _ := json.Marshal(map[string]any{
		"msgtype":       events.MsgTypeText,
		"body":          "* " + body,
		"m.new_content": map[string]string{"msgtype": events.MsgTypeText, "body": body},
		"m.relates_to":  map[string]string{"rel_type": events.RelTypeReplace, "event_id": targetID},
	})
	return &events.Event{EventID: id, RoomID: testRoom, Sender: "@alice:localhost", Type: events.TypeRoomMessage, Content: content}
}

func redaction(id, targetID string) *events.Event {
	content, _ := json.Marshal(map[string]string{"redacts": targetID})
	return &events.Event{EventID: id, RoomID: testRoom, Sender: "@alice:localhost", Type: events.TypeRedaction, Content: content}
}

func roomName(id, name string) *events.Event {
	content, _ := json.Marshal(map[string]string{"name": name})
	return &events.Event{EventID: id, RoomID: testRoom, Sender: "@alice:localhost", Type: events.TypeRoomName, StateKey: events.StateKey(""), Content: content}
}

func stream(evs ...*events.Event) iter.Seq2[*events.Event, error] {
	return sliceStream(evs)
}

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }
