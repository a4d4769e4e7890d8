package pushrules

// RoomIDKey is the event_match key used by per-room mute rules.
const RoomIDKey = "room_id"

// RoomsWithDisabledPushRules returns the rooms muted by an enabled override rule that has
// no actions and a single room_id event_match condition. The pattern is taken as a literal
// room ID.
func RoomsWithDisabledPushRules(rs *RuleSet) map[string]struct{} {
	rooms := make(map[string]struct{})
	if rs == nil {
		return rooms
	}
	for _, rule := range rs.Override {
		if rule == nil || !rule.Enabled || len(rule.Actions) != 0 || len(rule.Conditions) != 1 {
			continue
		}
		cond := rule.Conditions[0]
		if cond == nil || cond.Kind != EventMatchCondition || cond.Key != RoomIDKey {
			continue
		}
		rooms[cond.Pattern] = struct{}{}
	}
	return rooms
}
