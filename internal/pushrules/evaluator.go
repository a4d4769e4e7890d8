package pushrules

import (
	"context"
	"fmt"

	"github.com/charlesng35/roomnotify/internal/events"
)

// Evaluator picks the winning rule for an event.
type Evaluator struct {
	matcher ConditionMatcher
}

// NewEvaluator constructs an Evaluator using cm for override and underride conditions.
func NewEvaluator(cm ConditionMatcher) *Evaluator {
	return &Evaluator{matcher: cm}
}

// Evaluate walks rules, which must already be in evaluation order (see RuleSet.Ordered),
// and returns the actions of the first matching rule. It returns nil when no rule
// matches and when the winning rule has no effective actions.
func (e *Evaluator) Evaluate(ctx context.Context, ev *events.Event, rules []*Rule) ([]*Action, error) {
	lazy := NewLazyJSON(ev)
	for _, rule := range rules {
		ok, err := Match(ctx, rule, ev, lazy, e.matcher)
		if err != nil {
			return nil, fmt.Errorf("pushrules: evaluate %s rule %q: %w", rule.Kind, rule.RuleID, err)
		}
		if !ok {
			continue
		}
		actions := Effective(rule.Actions)
		if len(actions) == 0 {
			return nil, nil
		}
		return actions, nil
	}
	return nil, nil
}
