// File: internal/scheduler/scheduler.go
// Description: The background loop that evaluates recurrence rules against
// wall-clock time and drives due tasks through the playback engine.

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tapdeck/tapdeck-cli/internal/script"
	"go.uber.org/zap"
)

// stopGrace bounds how long Stop waits for the loop to observe cancellation.
const stopGrace = 5 * time.Second

// Player is the slice of the playback engine the scheduler drives. The
// engine's single-flight guard is what keeps scheduled runs from overlapping.
type Player interface {
	Load(actions []script.Action)
	Play(speed float64, startIndex int, interActionDelay time.Duration) bool
	IsPlaying() bool
}

// Scheduler owns the task list, its persistence, and the poll loop.
// All access to the list, from callers and from the tick, is serialized by a
// mutex.
type Scheduler struct {
	player     Player
	store      *Store
	log        *zap.Logger
	pollPeriod time.Duration
	now        func() time.Time // swapped in tests

	mu      sync.Mutex
	tasks   []Task
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler, loading any persisted tasks. A corrupt or
// unreadable store degrades to an empty list rather than failing startup.
func New(player Player, store *Store, pollPeriod time.Duration, logger *zap.Logger) *Scheduler {
	if pollPeriod <= 0 {
		pollPeriod = 30 * time.Second
	}
	s := &Scheduler{
		player:     player,
		store:      store,
		log:        logger.With(zap.String("component", "scheduler")),
		pollPeriod: pollPeriod,
		now:        time.Now,
	}
	tasks, err := store.Load()
	if err != nil {
		s.log.Warn("Failed to load task store, starting empty", zap.Error(err))
		tasks = nil
	}
	s.tasks = tasks
	return s
}

// Start launches the poll loop. Idempotent: returns false if already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.Info("Scheduler started", zap.Duration("poll_period", s.pollPeriod))
	return true
}

// Stop requests cancellation and waits up to the grace period for the loop to
// exit. Returns false if the scheduler was not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.log.Warn("Scheduler loop did not stop within grace period", zap.Duration("grace", stopGrace))
	}

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.mu.Unlock()
	return true
}

// Running reports whether the poll loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.pollPeriod)
	defer ticker.Stop()
	for {
		s.tick(s.now())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick evaluates due-ness for every task once, then runs the due ones.
// Evaluation is decoupled from execution: a long-running playback can delay
// later due tasks (only one playback exists) but never due-ness evaluation
// itself; a task skipped because the player was busy is simply reconsidered
// next tick, its last_run untouched.
func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	var due []Task
	for _, t := range s.tasks {
		if t.due(now) {
			due = append(due, t.Clone())
		}
	}
	s.mu.Unlock()

	ranAny := false
	for _, t := range due {
		if !s.runTask(t) {
			continue
		}
		ranAny = true

		s.mu.Lock()
		// Re-locate by ID: the list may have been mutated while we ran.
		for i := range s.tasks {
			if s.tasks[i].ID != t.ID {
				continue
			}
			s.tasks[i].LastRun = LooseTime{now}
			if s.tasks[i].Kind == OneTime {
				s.tasks[i].Enabled = false
			}
			break
		}
		s.mu.Unlock()
	}

	if ranAny {
		s.persist()
	}
}

// runTask drives one task through the player. Returns true only if playback
// actually started; a busy player means the task is skipped for this tick.
func (s *Scheduler) runTask(t Task) bool {
	if len(t.Actions) == 0 {
		s.log.Info("Scheduled task has no actions to run", zap.String("task", t.Name))
		return false
	}
	if s.player.IsPlaying() {
		s.log.Info("Player busy, skipping due task this tick", zap.String("task", t.Name))
		return false
	}

	speed := t.SpeedFactor
	if speed <= 0 {
		speed = 1.0
	}
	s.log.Info("Running scheduled task", zap.String("task", t.Name), zap.Float64("speed", speed))
	s.player.Load(t.Actions)
	if !s.player.Play(speed, 0, 0) {
		s.log.Warn("Playback refused scheduled task", zap.String("task", t.Name))
		return false
	}
	return true
}

// persist writes the full task list out; failures are logged, never fatal.
func (s *Scheduler) persist() {
	s.mu.Lock()
	snapshot := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		snapshot[i] = t.Clone()
	}
	s.mu.Unlock()

	if err := s.store.Save(snapshot); err != nil {
		s.log.Error("Failed to persist tasks", zap.Error(err))
	}
}

// AddTask appends a task, stamps its identity and creation time, persists,
// and returns the new task's index.
func (s *Scheduler) AddTask(t Task) int {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Created.IsZero() {
		t.Created = LooseTime{s.now()}
	}
	if t.SpeedFactor <= 0 {
		t.SpeedFactor = 1.0
	}

	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	index := len(s.tasks) - 1
	s.mu.Unlock()

	s.persist()
	return index
}

// TaskPatch is a partial update; nil fields are left untouched.
type TaskPatch struct {
	Name        *string
	Actions     []script.Action
	Kind        *Kind
	Schedule    *Schedule
	Enabled     *bool
	SpeedFactor *float64
}

// UpdateTask merges a patch into the task at index; false when out of range.
func (s *Scheduler) UpdateTask(index int, patch TaskPatch) bool {
	s.mu.Lock()
	if index < 0 || index >= len(s.tasks) {
		s.mu.Unlock()
		return false
	}
	t := &s.tasks[index]
	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.Actions != nil {
		t.Actions = script.CloneActions(patch.Actions)
	}
	if patch.Kind != nil {
		t.Kind = *patch.Kind
	}
	if patch.Schedule != nil {
		t.Schedule = *patch.Schedule
	}
	if patch.Enabled != nil {
		t.Enabled = *patch.Enabled
	}
	if patch.SpeedFactor != nil {
		t.SpeedFactor = *patch.SpeedFactor
	}
	s.mu.Unlock()

	s.persist()
	return true
}

// SetTaskEnabled toggles a task; false when out of range.
func (s *Scheduler) SetTaskEnabled(index int, enabled bool) bool {
	s.mu.Lock()
	if index < 0 || index >= len(s.tasks) {
		s.mu.Unlock()
		return false
	}
	s.tasks[index].Enabled = enabled
	s.mu.Unlock()

	s.persist()
	return true
}

// RemoveTask deletes the task at index; false when out of range.
func (s *Scheduler) RemoveTask(index int) bool {
	s.mu.Lock()
	if index < 0 || index >= len(s.tasks) {
		s.mu.Unlock()
		return false
	}
	s.tasks = append(s.tasks[:index], s.tasks[index+1:]...)
	s.mu.Unlock()

	s.persist()
	return true
}

// GetTasks returns a deep-copied snapshot of the task list.
func (s *Scheduler) GetTasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}
