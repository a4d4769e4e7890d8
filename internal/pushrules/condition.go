package pushrules

// A Condition dictates extra conditions for a matching rules. See
// ConditionKind.
type Condition struct {
	Kind    ConditionKind `json:"kind" validate:"required"` // Required.
	Key     string        `json:"key,omitempty"`            // Required for EventMatchCondition and SenderNotificationPermissionCondition.
	Pattern string        `json:"pattern,omitempty"`        // Required for EventMatchCondition.
	Is      string        `json:"is,omitempty"`             // Required for RoomMemberCountCondition.
}

// ConditionKind represents a kind of condition.
//
// Unrecognised conditions never match any events, effectively
// disabling the push rule.
type ConditionKind string

const (
	UnknownCondition                      ConditionKind = ""
	EventMatchCondition                   ConditionKind = "event_match"
	ContainsDisplayNameCondition          ConditionKind = "contains_display_name"
	RoomMemberCountCondition              ConditionKind = "room_member_count"
	SenderNotificationPermissionCondition ConditionKind = "sender_notification_permission"
)

// EventMatch builds an event_match condition.
func EventMatch(key, pattern string) *Condition {
	return &Condition{Kind: EventMatchCondition, Key: key, Pattern: pattern}
}

// ContainsDisplayName builds a contains_display_name condition.
func ContainsDisplayName() *Condition {
	return &Condition{Kind: ContainsDisplayNameCondition}
}

// RoomMemberCount builds a room_member_count condition, e.g. "2" or "<=3".
func RoomMemberCount(is string) *Condition {
	return &Condition{Kind: RoomMemberCountCondition, Is: is}
}
