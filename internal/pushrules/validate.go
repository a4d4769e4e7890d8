package pushrules

import (
	"fmt"

	"go.uber.org/multierr"

	apperrors "github.com/charlesng35/roomnotify/pkg/errors"
	"github.com/charlesng35/roomnotify/pkg/validator"
)

// Validate rejects structurally invalid rule sets before they reach the engine.
func Validate(rs *RuleSet) error {
	if rs == nil {
		return apperrors.ErrInvalidRuleSet.WithInternal(fmt.Errorf("rule set is nil"))
	}
	if err := validator.ValidateStruct(rs); err != nil {
		return apperrors.ErrInvalidRuleSet.WithInternal(err)
	}

	var errs error
	for _, kind := range KindOrder {
		for i, rule := range rs.RulesOf(kind) {
			if rule == nil {
				errs = multierr.Append(errs, fmt.Errorf("%s[%d]: rule is null", kind, i))
				continue
			}
			if err := validateRule(kind, rule); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s[%d] %q: %w", kind, i, rule.RuleID, err))
			}
		}
	}
	if errs != nil {
		return apperrors.ErrInvalidRuleSet.WithInternal(errs)
	}
	return nil
}

func validateRule(kind Kind, rule *Rule) error {
	switch kind {
	case ContentKind:
		if rule.Pattern == "" {
			return fmt.Errorf("content rule requires a pattern")
		}
	case RoomKind, SenderKind:
		if len(rule.Conditions) > 0 {
			return fmt.Errorf("%s rule must not carry conditions", kind)
		}
	case OverrideKind, UnderrideKind:
		for _, cond := range rule.Conditions {
			switch cond.Kind {
			case EventMatchCondition:
				if cond.Key == "" || cond.Pattern == "" {
					return fmt.Errorf("event_match requires key and pattern")
				}
			case RoomMemberCountCondition:
				if cond.Is == "" {
					return fmt.Errorf("room_member_count requires is")
				}
			}
		}
	}
	return nil
}
