package pushrules

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/charlesng35/roomnotify/pkg/errors"
)

func TestValidateRejectsMalformedRules(t *testing.T) {
	cases := map[string]*RuleSet{
		"nil":              nil,
		"missing rule id":  {Underride: []*Rule{{Enabled: true}}},
		"content pattern":  {Content: []*Rule{{RuleID: "c", Enabled: true}}},
		"room conditions":  {Room: []*Rule{{RuleID: "!r", Conditions: []*Condition{EventMatch("type", "x")}}}},
		"event match key":  {Override: []*Rule{{RuleID: "o", Conditions: []*Condition{{Kind: EventMatchCondition, Pattern: "x"}}}}},
		"member count":     {Override: []*Rule{{RuleID: "o", Conditions: []*Condition{RoomMemberCount("many")}}}},
		"null rule":        {Sender: []*Rule{nil}},
		"null condition":   {Override: []*Rule{{RuleID: "o", Conditions: []*Condition{nil}}}},
		"condition kind":   {Override: []*Rule{{RuleID: "o", Conditions: []*Condition{{Key: "type"}}}}},
		"null action":      {Override: []*Rule{{RuleID: "o", Actions: []*Action{nil}}}},
		"member count op":  {Underride: []*Rule{{RuleID: "u", Conditions: []*Condition{{Kind: RoomMemberCountCondition}}}}},
	}
	for name, rs := range cases {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, Validate(rs), apperrors.ErrInvalidRuleSet)
		})
	}
}

func TestCacheSet(t *testing.T) {
	cache := NewCache()
	require.Empty(t, cache.Rules())
	require.False(t, cache.NotificationsDisabled("!muted:localhost"))

	rs := &RuleSet{
		Override:  []*Rule{{RuleID: "!muted:localhost", Enabled: true, Actions: []*Action{}, Conditions: []*Condition{EventMatch("room_id", "!muted:localhost")}}},
		Underride: []*Rule{{RuleID: ".m.rule.message", Enabled: true, Actions: []*Action{Notify()}}},
	}
	require.NoError(t, cache.Set(rs))
	require.Same(t, rs, cache.RuleSet())
	require.Len(t, cache.Rules(), 2)
	require.True(t, cache.NotificationsDisabled("!muted:localhost"))

	require.Error(t, cache.Set(&RuleSet{Content: []*Rule{{RuleID: "broken", Enabled: true}}}))
	require.Same(t, rs, cache.RuleSet(), "a rejected rule set leaves the cache untouched")
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = cache.Set(&RuleSet{Underride: []*Rule{{RuleID: "u", Enabled: true, Actions: []*Action{Notify()}}}})
		}()
		go func() {
			defer wg.Done()
			_ = cache.Rules()
			_ = cache.NotificationsDisabled("!x")
		}()
	}
	wg.Wait()
	require.Len(t, cache.Rules(), 1)
}
