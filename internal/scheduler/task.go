// File: internal/scheduler/task.go
// Description: The scheduled-task model and the due-ness rules, one per
// schedule kind. Due-ness is recomputed fresh every tick; the only stored
// state is enabled + last_run.

package scheduler

import (
	"strings"
	"time"

	"github.com/tapdeck/tapdeck-cli/internal/script"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind discriminates the recurrence rules.
type Kind string

const (
	OneTime  Kind = "one_time"
	Daily    Kind = "daily"
	Weekly   Kind = "weekly"
	Interval Kind = "interval"
)

// Schedule carries the kind-specific parameters. Unused fields stay zero.
type Schedule struct {
	// OneTime: the target moment, RFC 3339.
	DateTime string `json:"datetime,omitempty"`

	// Daily and Weekly: time of day as "HH:MM".
	Time string `json:"time,omitempty"`

	// Weekly: lowercase English weekday names, e.g. "monday".
	Days []string `json:"days,omitempty"`

	// Interval: period as hours + minutes.
	Hours   int `json:"hours,omitempty"`
	Minutes int `json:"minutes,omitempty"`
}

// LooseTime is a timestamp that tolerates malformed persisted values:
// null, empty, or unparseable input all decode to the zero time, which the
// due-ness rules treat as "never".
type LooseTime struct {
	time.Time
}

func (lt LooseTime) MarshalJSON() ([]byte, error) {
	if lt.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(lt.Time.Format(time.RFC3339))
}

func (lt *LooseTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		lt.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		lt.Time = time.Time{}
		return nil
	}
	lt.Time = t
	return nil
}

// Task is one scheduled playback. Externally tasks are addressed by their
// position in the list; ID exists so the scheduler's own bookkeeping survives
// concurrent list mutation.
type Task struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Actions     []script.Action `json:"actions"`
	Kind        Kind            `json:"schedule_type"`
	Schedule    Schedule        `json:"schedule_data"`
	Enabled     bool            `json:"enabled"`
	SpeedFactor float64         `json:"speed_factor"`
	Created     LooseTime       `json:"created"`
	LastRun     LooseTime       `json:"last_run"`
}

// Clone deep-copies the task, including its action sequence.
func (t Task) Clone() Task {
	c := t
	c.Actions = script.CloneActions(t.Actions)
	c.Schedule.Days = append([]string(nil), t.Schedule.Days...)
	return c
}

// due decides whether the task should run at now.
func (t Task) due(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	switch t.Kind {
	case OneTime:
		return t.dueOneTime(now)
	case Daily:
		return t.dueAtTimeOfDay(now)
	case Weekly:
		if !containsDay(t.Schedule.Days, now.Weekday()) {
			return false
		}
		return t.dueAtTimeOfDay(now)
	case Interval:
		return t.dueInterval(now)
	default:
		return false
	}
}

// dueOneTime fires once, at or after the target moment, and never again once
// last_run reaches that moment.
func (t Task) dueOneTime(now time.Time) bool {
	scheduled, err := time.Parse(time.RFC3339, t.Schedule.DateTime)
	if err != nil {
		return false
	}
	if now.Before(scheduled) {
		return false
	}
	return t.LastRun.IsZero() || scheduled.After(t.LastRun.Time)
}

// dueAtTimeOfDay implements the daily rule: not due before today's
// occurrence, not due again once last_run covers today's slot.
func (t Task) dueAtTimeOfDay(now time.Time) bool {
	hour, minute, ok := parseClock(t.Schedule.Time)
	if !ok {
		return false
	}
	scheduled := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.Before(scheduled) {
		return false
	}
	last := t.LastRun.Time
	if !t.LastRun.IsZero() && sameDate(last, now) && !clockBefore(last, scheduled) {
		// Already ran today at or after the slot.
		return false
	}
	return true
}

func (t Task) dueInterval(now time.Time) bool {
	period := time.Duration(t.Schedule.Hours)*time.Hour + time.Duration(t.Schedule.Minutes)*time.Minute
	if t.LastRun.IsZero() {
		return true
	}
	return now.Sub(t.LastRun.Time) >= period
}

func parseClock(s string) (hour, minute int, ok bool) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, false
	}
	return parsed.Hour(), parsed.Minute(), true
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// clockBefore compares the time-of-day of a to that of b, ignoring dates.
func clockBefore(a, b time.Time) bool {
	ah, am, as := a.Clock()
	bh, bm, bs := b.Clock()
	if ah != bh {
		return ah < bh
	}
	if am != bm {
		return am < bm
	}
	return as < bs
}

func containsDay(days []string, weekday time.Weekday) bool {
	name := strings.ToLower(weekday.String())
	for _, d := range days {
		if strings.ToLower(d) == name {
			return true
		}
	}
	return false
}
