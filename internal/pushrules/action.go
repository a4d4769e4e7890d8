package pushrules

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Action is what a matching rule asks the client to do.
type Action struct {
	Kind  ActionKind  `json:"-"` // Custom encoding in JSON.
	Tweak TweakKey    `json:"-"` // Custom encoding in JSON.
	Value interface{} `json:"value,omitempty"`
}

// Notify returns the notify action.
func Notify() *Action { return &Action{Kind: NotifyAction} }

// SoundTweakAction returns a set_tweak sound action.
func SoundTweakAction(sound string) *Action {
	return &Action{Kind: SetTweakAction, Tweak: SoundTweak, Value: sound}
}

// HighlightTweakAction returns a set_tweak highlight action.
func HighlightTweakAction(highlight bool) *Action {
	return &Action{Kind: SetTweakAction, Tweak: HighlightTweak, Value: highlight}
}

// IsHighlight reports whether the action requests a highlight. A highlight tweak
// without a value defaults to true.
func (a *Action) IsHighlight() bool {
	if a == nil || a.Kind != SetTweakAction || a.Tweak != HighlightTweak {
		return false
	}
	if a.Value == nil {
		return true
	}
	v, ok := a.Value.(bool)
	return ok && v
}

func (a *Action) MarshalJSON() ([]byte, error) {
	if a.Value == nil && a.Kind != SetTweakAction {
		return json.Marshal(a.Kind)
	}

	if a.Kind != SetTweakAction {
		return nil, fmt.Errorf("only set_tweak actions may have a value, but got kind %q", a.Kind)
	}

	out := map[string]interface{}{string(a.Kind): a.Tweak}
	if a.Value != nil {
		out["value"] = a.Value
	}
	return json.Marshal(out)
}

func (a *Action) UnmarshalJSON(bs []byte) error {
	if bytes.HasPrefix(bs, []byte("\"")) {
		return json.Unmarshal(bs, &a.Kind)
	}

	var raw struct {
		SetTweak TweakKey    `json:"set_tweak"`
		Value    interface{} `json:"value"`
	}
	if err := json.Unmarshal(bs, &raw); err != nil {
		return err
	}
	if raw.SetTweak == UnknownTweak {
		return fmt.Errorf("got unknown action JSON: %s", string(bs))
	}
	a.Kind = SetTweakAction
	a.Tweak = raw.SetTweak
	a.Value = raw.Value
	if a.Tweak == HighlightTweak && a.Value == nil {
		a.Value = true
	}

	return nil
}

type ActionKind string

const (
	UnknownAction  ActionKind = ""
	NotifyAction   ActionKind = "notify"
	SetTweakAction ActionKind = "set_tweak"

	// Deprecated kinds still sent by older servers. They decode but have no effect.
	DontNotifyAction ActionKind = "dont_notify"
	CoalesceAction   ActionKind = "coalesce"
)

type TweakKey string

const (
	UnknownTweak   TweakKey = ""
	SoundTweak     TweakKey = "sound"
	HighlightTweak TweakKey = "highlight"
)

// Effective drops deprecated no-op actions. A rule whose actions are all
// deprecated behaves like a rule with no actions.
func Effective(actions []*Action) []*Action {
	out := make([]*Action, 0, len(actions))
	for _, a := range actions {
		if a == nil || a.Kind == DontNotifyAction || a.Kind == CoalesceAction || a.Kind == UnknownAction {
			continue
		}
		out = append(out, a)
	}
	return out
}
