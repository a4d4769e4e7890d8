package pushrules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActionJSON(t *testing.T) {
	var actions []*Action
	require.NoError(t, json.Unmarshal([]byte(`["notify",{"set_tweak":"sound","value":"default"},{"set_tweak":"highlight"},"dont_notify"]`), &actions))
	require.Len(t, actions, 4)
	require.Equal(t, NotifyAction, actions[0].Kind)
	require.Equal(t, SoundTweak, actions[1].Tweak)
	require.Equal(t, "default", actions[1].Value)
	require.True(t, actions[2].IsHighlight())
	require.Len(t, Effective(actions), 3)

	out, err := json.Marshal(actions[:3])
	require.NoError(t, err)
	require.JSONEq(t, `["notify",{"set_tweak":"sound","value":"default"},{"set_tweak":"highlight","value":true}]`, string(out))

	var bad Action
	require.Error(t, json.Unmarshal([]byte(`{"something":"else"}`), &bad))
}

func TestRuleSetJSON(t *testing.T) {
	raw := `{
		"override": [{"rule_id": "!muted:localhost", "default": false, "enabled": true, "actions": [],
		              "conditions": [{"kind": "event_match", "key": "room_id", "pattern": "!muted:localhost"}]}],
		"content": [{"rule_id": ".m.rule.contains_user_name", "default": true, "enabled": true, "pattern": "alice",
		             "actions": ["notify", {"set_tweak": "highlight"}]}],
		"underride": [{"rule_id": ".m.rule.message", "default": true, "enabled": true, "actions": ["notify"],
		               "conditions": [{"kind": "event_match", "key": "type", "pattern": "m.room.message"}]}]
	}`
	var rs RuleSet
	require.NoError(t, json.Unmarshal([]byte(raw), &rs))
	require.NoError(t, Validate(&rs))
	require.Len(t, rs.Ordered(), 3)
	require.Contains(t, RoomsWithDisabledPushRules(&rs), "!muted:localhost")
}
