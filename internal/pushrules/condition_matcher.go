package pushrules

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charlesng35/roomnotify/internal/events"
	"github.com/charlesng35/roomnotify/pkg/glob"
)

// RoomInfo exposes the per-room facts some conditions depend on.
type RoomInfo interface {
	JoinedMemberCount(ctx context.Context, roomID string) (int, error)
	DisplayName(ctx context.Context, roomID, userID string) (string, error)
}

// EventConditionMatcher is the default ConditionMatcher for the account UserID.
type EventConditionMatcher struct {
	UserID string
	Rooms  RoomInfo
}

// NewEventConditionMatcher constructs an EventConditionMatcher.
func NewEventConditionMatcher(userID string, rooms RoomInfo) *EventConditionMatcher {
	return &EventConditionMatcher{UserID: userID, Rooms: rooms}
}

// MatchCondition implements ConditionMatcher.
func (m *EventConditionMatcher) MatchCondition(ctx context.Context, cond *Condition, ev *events.Event, lazy *LazyJSON) (bool, error) {
	if cond == nil {
		return false, nil
	}
	switch cond.Kind {
	case EventMatchCondition:
		return m.matchEvent(cond, ev, lazy)
	case ContainsDisplayNameCondition:
		return m.matchDisplayName(ctx, ev)
	case RoomMemberCountCondition:
		return m.matchMemberCount(ctx, cond, ev)
	default:
		return false, nil
	}
}

func (m *EventConditionMatcher) matchEvent(cond *Condition, ev *events.Event, lazy *LazyJSON) (bool, error) {
	var (
		value string
		found bool
	)
	// Top level keys are read straight from the event so the JSON form is only
	// built for content lookups.
	switch cond.Key {
	case "type":
		value, found = ev.Type, true
	case "room_id":
		value, found = ev.RoomID, true
	case "sender":
		value, found = ev.Sender, true
	case "state_key":
		value, found = ev.StateKeyValue(), ev.IsState()
	default:
		doc, err := lazy.Get()
		if err != nil {
			return false, err
		}
		value, found = lookupString(doc, cond.Key)
	}
	if !found {
		return false, nil
	}

	value, pattern := strings.ToLower(value), strings.ToLower(cond.Pattern)
	if cond.Key == "content.body" {
		return glob.HasGlobMatch(value, pattern), nil
	}
	return glob.HasFullGlobMatch(value, pattern), nil
}

func (m *EventConditionMatcher) matchDisplayName(ctx context.Context, ev *events.Event) (bool, error) {
	content, ok := ev.TextMessage()
	if !ok || m.Rooms == nil || m.UserID == "" {
		return false, nil
	}
	name, err := m.Rooms.DisplayName(ctx, ev.RoomID, m.UserID)
	if err != nil {
		return false, fmt.Errorf("pushrules: display name: %w", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}
	re, err := regexp.Compile(`(?i)(^|\W)` + regexp.QuoteMeta(name) + `(\W|$)`)
	if err != nil {
		return false, nil
	}
	return re.MatchString(content.Body), nil
}

func (m *EventConditionMatcher) matchMemberCount(ctx context.Context, cond *Condition, ev *events.Event) (bool, error) {
	op, want, ok := ParseMemberCount(cond.Is)
	if !ok || m.Rooms == nil {
		return false, nil
	}
	count, err := m.Rooms.JoinedMemberCount(ctx, ev.RoomID)
	if err != nil {
		return false, fmt.Errorf("pushrules: member count: %w", err)
	}
	switch op {
	case "==":
		return count == want, nil
	case "<":
		return count < want, nil
	case ">":
		return count > want, nil
	case "<=":
		return count <= want, nil
	case ">=":
		return count >= want, nil
	default:
		return false, nil
	}
}

// ParseMemberCount splits a room_member_count "is" value into operator and operand.
// A bare number means "==".
func ParseMemberCount(is string) (string, int, bool) {
	is = strings.TrimSpace(is)
	op := "=="
	for _, prefix := range []string{"==", "<=", ">=", "<", ">"} {
		if strings.HasPrefix(is, prefix) {
			op = prefix
			is = is[len(prefix):]
			break
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(is))
	if err != nil || n < 0 {
		return "", 0, false
	}
	return op, n, true
}

func lookupString(doc map[string]any, path string) (string, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = obj[part]
		if !ok {
			return "", false
		}
	}
	s, ok := current.(string)
	return s, ok
}
