// File: internal/script/recorder.go
package script

import (
	"time"

	"github.com/google/uuid"
)

// Recorder accumulates actions during a recording session, stamping each with
// its offset from the session start. It also serves as the edit buffer for
// scripts built by hand: helpers outside a session append with offset 0.
type Recorder struct {
	actions   []Action
	recording bool
	start     time.Time
	now       func() time.Time // swapped in tests
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// StartRecording begins a new session, discarding any buffered actions.
func (r *Recorder) StartRecording() {
	r.actions = nil
	r.recording = true
	r.start = r.now()
}

// StopRecording ends the session; the buffer stays available for editing and
// saving.
func (r *Recorder) StopRecording() {
	r.recording = false
}

// Recording reports whether a session is in progress.
func (r *Recorder) Recording() bool {
	return r.recording
}

// Add appends an action, stamping timestamp and offset when a session is in
// progress. Returns the index of the appended action.
func (r *Recorder) Add(kind Kind, data Data) int {
	a := Action{
		ID:   uuid.NewString(),
		Kind: kind,
		Data: data,
	}
	if r.recording {
		now := r.now()
		a.Timestamp = float64(now.UnixNano()) / float64(time.Second)
		a.TimeOffset = now.Sub(r.start).Seconds()
	}
	r.actions = append(r.actions, a)
	return len(r.actions) - 1
}

func (r *Recorder) AddTap(x, y int) int {
	return r.Add(Tap, Data{X: x, Y: y})
}

func (r *Recorder) AddSwipe(x1, y1, x2, y2, durationMs int) int {
	return r.Add(Swipe, Data{X1: x1, Y1: y1, X2: x2, Y2: y2, Duration: durationMs})
}

func (r *Recorder) AddWait(durationMs int) int {
	return r.Add(Wait, Data{Duration: durationMs})
}

func (r *Recorder) AddKeyEvent(keycode string) int {
	return r.Add(Key, Data{Keycode: keycode})
}

func (r *Recorder) AddTextInput(text string) int {
	return r.Add(Text, Data{Text: text})
}

func (r *Recorder) AddLongPress(x, y, durationMs int) int {
	return r.Add(LongPress, Data{X: x, Y: y, Duration: durationMs})
}

func (r *Recorder) AddTemplateMatch(templatePath string, wait bool, maxWaitS float64, tap bool) int {
	return r.Add(TemplateMatch, Data{
		TemplatePath: templatePath,
		Wait:         wait,
		MaxWait:      maxWaitS,
		Tap:          tap,
	})
}

// Remove deletes the action at index; false when out of range.
func (r *Recorder) Remove(index int) bool {
	if index < 0 || index >= len(r.actions) {
		return false
	}
	r.actions = append(r.actions[:index], r.actions[index+1:]...)
	return true
}

// Move relocates an action from one position to another; false when either
// index is out of range.
func (r *Recorder) Move(from, to int) bool {
	n := len(r.actions)
	if from < 0 || from >= n || to < 0 || to >= n {
		return false
	}
	a := r.actions[from]
	rest := append(r.actions[:from], r.actions[from+1:]...)
	r.actions = append(rest[:to], append([]Action{a}, rest[to:]...)...)
	return true
}

// Replace swaps the action at index for a new one; false when out of range.
// The replacement keeps the slot's identity.
func (r *Recorder) Replace(index int, a Action) bool {
	if index < 0 || index >= len(r.actions) {
		return false
	}
	if a.ID == "" {
		a.ID = r.actions[index].ID
	}
	r.actions[index] = a
	return true
}

// Clear empties the buffer.
func (r *Recorder) Clear() {
	r.actions = nil
}

// Actions returns a deep copy of the buffer, so callers can hand it to the
// playback engine without sharing mutable state with the recorder.
func (r *Recorder) Actions() []Action {
	return CloneActions(r.actions)
}

// Len returns the number of buffered actions.
func (r *Recorder) Len() int {
	return len(r.actions)
}
