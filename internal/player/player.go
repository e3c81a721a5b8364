// File: internal/player/player.go
// Description: The action playback engine. One cancellable background run at
// a time replays a loaded action sequence with recorded-cadence pacing,
// reporting progress to registered listeners.

package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tapdeck/tapdeck-cli/internal/condition"
	"github.com/tapdeck/tapdeck-cli/internal/config"
	"github.com/tapdeck/tapdeck-cli/internal/device"
	"github.com/tapdeck/tapdeck-cli/internal/script"
	"github.com/tapdeck/tapdeck-cli/internal/vision"
	"go.uber.org/zap"
)

// stopGrace bounds how long Stop waits for a run to observe cancellation.
const stopGrace = 5 * time.Second

// Listener receives playback progress signals. Each listener sees events in
// the engine's chronological order; ordering across listeners is unspecified.
type Listener interface {
	PlaybackStarted()
	PlaybackCompleted()
	ActionStarted(index int, action script.Action)
	ActionCompleted(index int)
	PlaybackError(msg string)
}

// Hooks adapts plain functions to the Listener interface. Nil fields are
// skipped.
type Hooks struct {
	OnStarted         func()
	OnCompleted       func()
	OnActionStarted   func(index int, action script.Action)
	OnActionCompleted func(index int)
	OnError           func(msg string)
}

func (h *Hooks) PlaybackStarted() {
	if h.OnStarted != nil {
		h.OnStarted()
	}
}

func (h *Hooks) PlaybackCompleted() {
	if h.OnCompleted != nil {
		h.OnCompleted()
	}
}

func (h *Hooks) ActionStarted(index int, action script.Action) {
	if h.OnActionStarted != nil {
		h.OnActionStarted(index, action)
	}
}

func (h *Hooks) ActionCompleted(index int) {
	if h.OnActionCompleted != nil {
		h.OnActionCompleted(index)
	}
}

func (h *Hooks) PlaybackError(msg string) {
	if h.OnError != nil {
		h.OnError(msg)
	}
}

// Engine replays action sequences against a device, consulting the vision
// capability for template actions and conditional branches. At most one run
// is in flight per engine.
type Engine struct {
	dev  device.Capability
	vis  vision.Capability
	eval *condition.Evaluator
	cfg  config.PlayerConfig
	log  *zap.Logger

	mu      sync.Mutex
	actions []script.Action
	playing bool
	cancel  context.CancelFunc
	done    chan struct{}

	lmu       sync.Mutex
	listeners []Listener
}

// New creates an engine. vis may be nil; template and conditional actions
// then fail with a descriptive message instead of executing.
func New(dev device.Capability, vis vision.Capability, cfg config.PlayerConfig, logger *zap.Logger) *Engine {
	log := logger.With(zap.String("component", "player"))
	return &Engine{
		dev:  dev,
		vis:  vis,
		eval: condition.NewEvaluator(vis, log),
		cfg:  cfg,
		log:  log,
	}
}

// AddListener registers a progress listener.
func (e *Engine) AddListener(l Listener) {
	if l == nil {
		return
	}
	e.lmu.Lock()
	e.listeners = append(e.listeners, l)
	e.lmu.Unlock()
}

// Load replaces the engine's action sequence with a deep copy of actions.
// A no-op while a run is in flight; callers check IsPlaying first.
func (e *Engine) Load(actions []script.Action) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		e.log.Warn("Load ignored, playback in progress")
		return
	}
	e.actions = script.CloneActions(actions)
}

// IsPlaying reports whether a run is in flight.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Play begins asynchronous playback from startIndex at the given speed
// factor, with an optional extra fixed delay between actions. Returns false
// without side effects when the sequence is empty, a run is already in
// flight, startIndex is out of bounds, or speed is not positive.
func (e *Engine) Play(speed float64, startIndex int, interActionDelay time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.actions) == 0 || e.playing || startIndex < 0 || startIndex >= len(e.actions) || speed <= 0 {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.playing = true
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(ctx, e.actions, speed, startIndex, interActionDelay, e.done)
	return true
}

// Stop requests cancellation and waits up to the grace period for the run to
// exit. Returns false if nothing was playing. The wait is best-effort: a run
// stuck on a device call past the grace period is left to finish on its own.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return false
	}
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		e.log.Warn("Playback did not stop within grace period", zap.Duration("grace", stopGrace))
	}
	return true
}

// run is the body of one playback. It owns the actions slice for its whole
// lifetime and must not be given a sequence that anyone else mutates.
func (e *Engine) run(ctx context.Context, actions []script.Action, speed float64, startIndex int, interActionDelay time.Duration, done chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Panic during playback", zap.Any("panic", r))
			e.emitError(fmt.Sprintf("internal error during playback: %v", r))
		}
		e.mu.Lock()
		e.playing = false
		e.cancel = nil
		e.mu.Unlock()
		close(done)
		// Fires exactly once per Play call, no matter how the loop exited.
		e.emitCompleted()
	}()

	e.log.Info("Playback started",
		zap.Int("actions", len(actions)),
		zap.Int("start_index", startIndex),
		zap.Float64("speed", speed))
	e.emitStarted()

	for i := startIndex; i < len(actions); i++ {
		if ctx.Err() != nil {
			e.log.Info("Playback cancelled", zap.Int("at_index", i))
			return
		}
		a := actions[i]
		e.emitActionStarted(i, a)

		// Reproduce the recorded cadence, scaled by speed.
		if i > startIndex {
			delay := time.Duration((a.TimeOffset - actions[i-1].TimeOffset) / speed * float64(time.Second))
			if !sleepCtx(ctx, delay) {
				e.log.Info("Playback cancelled during pacing", zap.Int("at_index", i))
				return
			}
		}

		err := e.execute(ctx, a, 0)
		e.emitActionCompleted(i)
		if err != nil {
			msg := fmt.Sprintf("failed to execute action %d (%s): %v", i, script.Describe(a), err)
			e.log.Warn("Playback aborted", zap.Int("index", i), zap.Error(err))
			e.emitError(msg)
			return
		}

		if interActionDelay > 0 && i < len(actions)-1 {
			if !sleepCtx(ctx, interActionDelay) {
				e.log.Info("Playback cancelled during inter-action delay", zap.Int("after_index", i))
				return
			}
		}
	}
	e.log.Info("Playback finished")
}

func (e *Engine) snapshot() []Listener {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	out := make([]Listener, len(e.listeners))
	copy(out, e.listeners)
	return out
}

func (e *Engine) emitStarted() {
	for _, l := range e.snapshot() {
		l.PlaybackStarted()
	}
}

func (e *Engine) emitCompleted() {
	for _, l := range e.snapshot() {
		l.PlaybackCompleted()
	}
}

func (e *Engine) emitActionStarted(i int, a script.Action) {
	for _, l := range e.snapshot() {
		l.ActionStarted(i, a)
	}
}

func (e *Engine) emitActionCompleted(i int) {
	for _, l := range e.snapshot() {
		l.ActionCompleted(i)
	}
}

func (e *Engine) emitError(msg string) {
	for _, l := range e.snapshot() {
		l.PlaybackError(msg)
	}
}

// sleepCtx sleeps for d, returning false if the context was cancelled first.
// Non-positive durations return immediately.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
