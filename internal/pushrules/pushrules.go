// Package pushrules implements Matrix push rule matching and evaluation.
package pushrules

// A RuleSet contains all the various push rules for an
// account. Listed in decreasing order of priority.
type RuleSet struct {
	Override  []*Rule `json:"override,omitempty" validate:"dive"`
	Content   []*Rule `json:"content,omitempty" validate:"dive"`
	Room      []*Rule `json:"room,omitempty" validate:"dive"`
	Sender    []*Rule `json:"sender,omitempty" validate:"dive"`
	Underride []*Rule `json:"underride,omitempty" validate:"dive"`
}

// Rule is a single push rule. Which fields apply depends on Kind.
type Rule struct {
	// Kind is not part of the wire format; it is assigned from the
	// RuleSet list the rule was taken from.
	Kind Kind `json:"-"`

	RuleID  string    `json:"rule_id" validate:"required"` // For RoomKind the room ID, for SenderKind the user ID.
	Default bool      `json:"default"`
	Enabled bool      `json:"enabled"`
	Actions []*Action `json:"actions" validate:"dive,required"`

	Conditions []*Condition `json:"conditions,omitempty" validate:"dive,required"` // Only OverrideKind and UnderrideKind.
	Pattern    string       `json:"pattern,omitempty"`                            // Required for ContentKind.
}

// Kind is the section of the rule set a rule belongs to.
type Kind string

const (
	UnknownKind   Kind = ""
	OverrideKind  Kind = "override"
	ContentKind   Kind = "content"
	RoomKind      Kind = "room"
	SenderKind    Kind = "sender"
	UnderrideKind Kind = "underride"
)

// KindOrder is the fixed evaluation order of rule kinds.
var KindOrder = [...]Kind{OverrideKind, ContentKind, RoomKind, SenderKind, UnderrideKind}

// RulesOf returns the list backing the given kind.
func (rs *RuleSet) RulesOf(kind Kind) []*Rule {
	if rs == nil {
		return nil
	}
	switch kind {
	case OverrideKind:
		return rs.Override
	case ContentKind:
		return rs.Content
	case RoomKind:
		return rs.Room
	case SenderKind:
		return rs.Sender
	case UnderrideKind:
		return rs.Underride
	default:
		return nil
	}
}

// Ordered flattens the rule set into evaluation order. The returned rules are copies
// carrying their Kind, so the rule set itself is never mutated.
func (rs *RuleSet) Ordered() []*Rule {
	if rs == nil {
		return nil
	}
	var out []*Rule
	for _, kind := range KindOrder {
		for _, rule := range rs.RulesOf(kind) {
			if rule == nil {
				continue
			}
			cpy := *rule
			cpy.Kind = kind
			out = append(out, &cpy)
		}
	}
	return out
}
