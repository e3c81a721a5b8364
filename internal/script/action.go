// File: internal/script/action.go
// Description: The recorded-action data model. An Action is a tagged variant;
// Data carries the fields of whichever kind is set, including the nested
// branches of a conditional.

package script

import (
	"fmt"
	"path/filepath"

	"github.com/tapdeck/tapdeck-cli/internal/condition"
)

// Kind discriminates the action variants.
type Kind string

const (
	Tap           Kind = "tap"
	Swipe         Kind = "swipe"
	Wait          Kind = "wait"
	Key           Kind = "key"
	Text          Kind = "text"
	LongPress     Kind = "long_press"
	TemplateMatch Kind = "template_match"
	Conditional   Kind = "conditional"
)

// Action is one step of a playback script. Timestamp is the capture moment
// (unix seconds); TimeOffset is seconds since recording start and drives
// inter-action pacing during playback. Manually added actions carry offset 0.
type Action struct {
	ID         string  `json:"id,omitempty"`
	Kind       Kind    `json:"type"`
	Data       Data    `json:"data"`
	Timestamp  float64 `json:"timestamp,omitempty"`
	TimeOffset float64 `json:"time_offset"`
}

// Data is the union of every action kind's payload. Unused fields stay zero
// and are omitted from JSON.
type Data struct {
	// Tap / LongPress coordinates.
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`

	// Swipe endpoints.
	X1 int `json:"x1,omitempty"`
	Y1 int `json:"y1,omitempty"`
	X2 int `json:"x2,omitempty"`
	Y2 int `json:"y2,omitempty"`

	// Wait, Swipe and LongPress duration, milliseconds.
	Duration int `json:"duration,omitempty"`

	// Key event.
	Keycode string `json:"keycode,omitempty"`

	// Text input.
	Text string `json:"text,omitempty"`

	// Template match.
	TemplatePath string  `json:"template_path,omitempty"`
	Wait         bool    `json:"wait,omitempty"`
	MaxWait      float64 `json:"max_wait,omitempty"` // seconds
	Tap          bool    `json:"tap,omitempty"`

	// Conditional branch.
	Condition *condition.Condition `json:"condition,omitempty"`
	Then      []Action             `json:"then_actions,omitempty"`
	Else      []Action             `json:"else_actions,omitempty"`
}

// Describe returns a human-readable one-liner for an action, used by logs and
// the CLI script listing.
func Describe(a Action) string {
	d := a.Data
	switch a.Kind {
	case Tap:
		return fmt.Sprintf("Tap at (%d, %d)", d.X, d.Y)
	case Swipe:
		return fmt.Sprintf("Swipe from (%d, %d) to (%d, %d)", d.X1, d.Y1, d.X2, d.Y2)
	case Wait:
		return fmt.Sprintf("Wait for %d ms", d.Duration)
	case Key:
		return fmt.Sprintf("Key event: %s", d.Keycode)
	case Text:
		return fmt.Sprintf("Text input: %s", d.Text)
	case LongPress:
		return fmt.Sprintf("Long press at (%d, %d) for %d ms", d.X, d.Y, d.Duration)
	case TemplateMatch:
		s := fmt.Sprintf("Find template: %s", filepath.Base(d.TemplatePath))
		if d.Tap {
			s += " and tap"
		}
		return s
	case Conditional:
		return fmt.Sprintf("If condition then %d action(s) else %d action(s)",
			len(d.Then), len(d.Else))
	default:
		return fmt.Sprintf("Unknown action: %s", a.Kind)
	}
}

// Clone returns a deep copy of the action, including nested branches.
// Sequences handed to the playback engine are cloned so the engine's copy is
// never shared with a recorder buffer or a scheduled task.
func (a Action) Clone() Action {
	c := a
	c.Data.Then = CloneActions(a.Data.Then)
	c.Data.Else = CloneActions(a.Data.Else)
	if a.Data.Condition != nil {
		cond := *a.Data.Condition
		c.Data.Condition = &cond
	}
	return c
}

// CloneActions deep-copies an action sequence.
func CloneActions(actions []Action) []Action {
	if actions == nil {
		return nil
	}
	out := make([]Action, len(actions))
	for i, a := range actions {
		out[i] = a.Clone()
	}
	return out
}
