package policy

import (
	"encoding/json"
	"errors"
)

type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// ErrAccessDenied is what the host turns into a 403.
var ErrAccessDenied = errors.New("requested method is not allowed")

// Decision is either Allow(predicate) or Deny. Rule names the rule that
// produced it.
type Decision struct {
	Effect    Effect
	Predicate Predicate
	Rule      string
}

func Allow(p Predicate) Decision { return Decision{Effect: EffectAllow, Predicate: p} }

func Deny() Decision { return Decision{Effect: EffectDeny} }

func (d Decision) Allowed() bool { return d.Effect == EffectAllow }

func (d Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	return ErrAccessDenied
}

func (d Decision) String() string {
	if !d.Allowed() {
		return "deny"
	}
	return "allow(" + d.Predicate.String() + ")"
}

type decisionJSON struct {
	Effect    Effect     `json:"effect"`
	Predicate *Predicate `json:"predicate,omitempty"`
	Rule      string     `json:"rule,omitempty"`
}

func (d Decision) MarshalJSON() ([]byte, error) {
	out := decisionJSON{Effect: d.Effect, Rule: d.Rule}
	if d.Allowed() {
		p := d.Predicate
		out.Predicate = &p
	}
	return json.Marshal(out)
}

func (d *Decision) UnmarshalJSON(b []byte) error {
	var in decisionJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*d = Decision{Effect: in.Effect, Rule: in.Rule}
	if in.Predicate != nil {
		d.Predicate = *in.Predicate
	}
	return nil
}
