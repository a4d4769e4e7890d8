package pushrules

import (
	"context"

	"github.com/charlesng35/roomnotify/internal/events"
	"github.com/charlesng35/roomnotify/pkg/glob"
)

// ConditionMatcher decides whether a single condition holds for an event.
// Implementations should only call lazy.Get when they need the raw event JSON.
type ConditionMatcher interface {
	MatchCondition(ctx context.Context, cond *Condition, ev *events.Event, lazy *LazyJSON) (bool, error)
}

// Match reports whether rule applies to ev.
func Match(ctx context.Context, rule *Rule, ev *events.Event, lazy *LazyJSON, cm ConditionMatcher) (bool, error) {
	if rule == nil || !rule.Enabled {
		return false, nil
	}

	switch rule.Kind {
	case OverrideKind, UnderrideKind:
		for _, cond := range rule.Conditions {
			ok, err := cm.MatchCondition(ctx, cond, ev, lazy)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case ContentKind:
		content, ok := ev.TextMessage()
		if !ok {
			return false, nil
		}
		return glob.HasGlobMatch(content.Body, rule.Pattern), nil

	case RoomKind:
		return ev.RoomID == rule.RuleID, nil

	case SenderKind:
		return ev.Sender == rule.RuleID, nil

	default:
		return false, nil
	}
}
