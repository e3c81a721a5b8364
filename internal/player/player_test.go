// internal/player/player_test.go
package player

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/tapdeck/tapdeck-cli/internal/condition"
	"github.com/tapdeck/tapdeck-cli/internal/config"
	"github.com/tapdeck/tapdeck-cli/internal/script"
	"github.com/tapdeck/tapdeck-cli/internal/vision"
)

// -- Mock Implementations for Testing --

// fakeDevice records every input command it receives.
type fakeDevice struct {
	mu    sync.Mutex
	calls []string
	err   error // returned by every command when set
}

func (f *fakeDevice) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeDevice) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeDevice) Tap(ctx context.Context, x, y int) error {
	return f.record(fmt.Sprintf("tap %d,%d", x, y))
}

func (f *fakeDevice) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return f.record(fmt.Sprintf("swipe %d,%d->%d,%d %v", x1, y1, x2, y2, duration))
}

func (f *fakeDevice) LongPress(ctx context.Context, x, y int, duration time.Duration) error {
	return f.record(fmt.Sprintf("longpress %d,%d %v", x, y, duration))
}

func (f *fakeDevice) KeyEvent(ctx context.Context, keycode string) error {
	return f.record("key " + keycode)
}

func (f *fakeDevice) TextInput(ctx context.Context, text string) error {
	return f.record("text " + text)
}

func (f *fakeDevice) CaptureScreen(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (f *fakeDevice) ScreenSize(ctx context.Context) (int, int, error) {
	return 1080, 1920, nil
}

// fakeVision serves canned answers for every lookup.
type fakeVision struct {
	match *vision.Match
	frame image.Image
}

func (f *fakeVision) FindTemplate(path string, threshold float64) (*vision.Match, error) {
	return f.match, nil
}

func (f *fakeVision) FindColorRegion(lower, upper [3]float64, minArea float64) (*vision.Match, error) {
	return f.match, nil
}

func (f *fakeVision) LastFrame() image.Image {
	return f.frame
}

func (f *fakeVision) WaitForTemplate(ctx context.Context, path string, timeout time.Duration) (*vision.Match, error) {
	return f.match, nil
}

// recordingListener collects every playback signal in order.
type recordingListener struct {
	mu        sync.Mutex
	events    []string
	completed chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{completed: make(chan struct{}, 4)}
}

func (l *recordingListener) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

func (l *recordingListener) PlaybackStarted()   { l.add("started") }
func (l *recordingListener) PlaybackCompleted() { l.add("completed"); l.completed <- struct{}{} }

func (l *recordingListener) ActionStarted(i int, a script.Action) {
	l.add(fmt.Sprintf("action_started %d", i))
}

func (l *recordingListener) ActionCompleted(i int) { l.add(fmt.Sprintf("action_completed %d", i)) }

func (l *recordingListener) PlaybackError(msg string) { l.add("error: " + msg) }

func (l *recordingListener) waitCompleted(t *testing.T) {
	t.Helper()
	select {
	case <-l.completed:
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not complete in time")
	}
}

func newTestEngine(t *testing.T, dev *fakeDevice, vis vision.Capability) (*Engine, *recordingListener) {
	t.Helper()
	engine := New(dev, vis, config.PlayerConfig{TemplateThreshold: 0.8}, zaptest.NewLogger(t))
	listener := newRecordingListener()
	engine.AddListener(listener)
	return engine, listener
}

func tapAction(x, y int, offset float64) script.Action {
	return script.Action{Kind: script.Tap, Data: script.Data{X: x, Y: y}, TimeOffset: offset}
}

// -- Test Cases --

func TestPlay_InputValidation(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := &fakeDevice{}
	engine, listener := newTestEngine(t, dev, &fakeVision{})

	t.Run("should refuse an empty sequence", func(t *testing.T) {
		assert.False(t, engine.Play(1.0, 0, 0))
	})

	engine.Load([]script.Action{tapAction(1, 2, 0)})

	t.Run("should refuse an out-of-range start index", func(t *testing.T) {
		assert.False(t, engine.Play(1.0, -1, 0))
		assert.False(t, engine.Play(1.0, 1, 0))
	})

	t.Run("should refuse a non-positive speed", func(t *testing.T) {
		assert.False(t, engine.Play(0, 0, 0))
		assert.False(t, engine.Play(-2.0, 0, 0))
	})

	assert.Empty(t, dev.Calls(), "no action should have executed")
	assert.Empty(t, listener.Events(), "no signal should have fired")
}

func TestPlay_ExecutesSequenceAndSignals(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := &fakeDevice{}
	engine, listener := newTestEngine(t, dev, &fakeVision{})

	engine.Load([]script.Action{
		tapAction(10, 20, 0),
		{Kind: script.Key, Data: script.Data{Keycode: "KEYCODE_HOME"}, TimeOffset: 0.01},
		{Kind: script.Text, Data: script.Data{Text: "hello"}, TimeOffset: 0.02},
	})

	require.True(t, engine.Play(1.0, 0, 0))
	listener.waitCompleted(t)

	assert.Equal(t, []string{"tap 10,20", "key KEYCODE_HOME", "text hello"}, dev.Calls())
	assert.Equal(t, []string{
		"started",
		"action_started 0", "action_completed 0",
		"action_started 1", "action_completed 1",
		"action_started 2", "action_completed 2",
		"completed",
	}, listener.Events())
	assert.False(t, engine.IsPlaying())
}

func TestPlay_SingleFlight(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := &fakeDevice{}
	engine, listener := newTestEngine(t, dev, &fakeVision{})

	engine.Load([]script.Action{
		{Kind: script.Wait, Data: script.Data{Duration: 2000}},
	})

	require.True(t, engine.Play(1.0, 0, 0))
	assert.True(t, engine.IsPlaying())
	assert.False(t, engine.Play(1.0, 0, 0), "second Play must be refused while running")

	require.True(t, engine.Stop())
	listener.waitCompleted(t)
	assert.False(t, engine.IsPlaying())

	// A fresh run is accepted once the first has unwound.
	require.True(t, engine.Play(1.0, 0, 0))
	engine.Stop()
	listener.waitCompleted(t)
}

func TestStop_CancelsMidRun(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := &fakeDevice{}
	engine, listener := newTestEngine(t, dev, &fakeVision{})

	engine.Load([]script.Action{
		tapAction(1, 1, 0),
		{Kind: script.Wait, Data: script.Data{Duration: 10_000}, TimeOffset: 0.01},
		tapAction(2, 2, 0.02),
	})

	require.True(t, engine.Play(1.0, 0, 0))
	require.Eventually(t, func() bool {
		return len(dev.Calls()) >= 1
	}, 2*time.Second, 5*time.Millisecond, "first action should have run")

	require.True(t, engine.Stop())
	listener.waitCompleted(t)

	assert.Equal(t, []string{"tap 1,1"}, dev.Calls(), "actions after the cancel point must not run")
	events := listener.Events()
	assert.Equal(t, 1, countOf(events, "completed"), "completed must fire exactly once")
	assert.NotContains(t, events, "action_started 2")
	assert.False(t, engine.Stop(), "Stop with nothing playing returns false")
}

func TestPlay_PacingScalesWithSpeed(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := &fakeDevice{}
	engine, listener := newTestEngine(t, dev, &fakeVision{})

	// 0.4s of recorded gap at double speed should pace out around 0.2s.
	engine.Load([]script.Action{
		tapAction(1, 1, 0),
		tapAction(2, 2, 0.4),
	})

	start := time.Now()
	require.True(t, engine.Play(2.0, 0, 0))
	listener.waitCompleted(t)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 400*time.Millisecond)
	assert.Len(t, dev.Calls(), 2)
}

func TestPlay_StartIndexSkipsPrefix(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := &fakeDevice{}
	engine, listener := newTestEngine(t, dev, &fakeVision{})

	engine.Load([]script.Action{
		tapAction(1, 1, 0),
		tapAction(2, 2, 0.01),
		tapAction(3, 3, 0.02),
	})

	require.True(t, engine.Play(1.0, 1, 0))
	listener.waitCompleted(t)

	assert.Equal(t, []string{"tap 2,2", "tap 3,3"}, dev.Calls())
	assert.NotContains(t, listener.Events(), "action_started 0")
}

func TestPlay_DeviceErrorAbortsRun(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := &fakeDevice{err: errors.New("device gone")}
	engine, listener := newTestEngine(t, dev, &fakeVision{})

	engine.Load([]script.Action{
		tapAction(1, 1, 0),
		tapAction(2, 2, 0.01),
	})

	require.True(t, engine.Play(1.0, 0, 0))
	listener.waitCompleted(t)

	assert.Len(t, dev.Calls(), 1, "the failing action ends the run")
	events := listener.Events()
	require.NotEmpty(t, events)
	assert.Contains(t, events, "action_completed 0")
	assert.Equal(t, 1, countOf(events, "completed"))

	var sawError bool
	for _, ev := range events {
		if len(ev) > 6 && ev[:6] == "error:" {
			sawError = true
		}
	}
	assert.True(t, sawError, "a device failure must surface as a playback error")
}

func TestPlay_UnknownKindFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := &fakeDevice{}
	engine, listener := newTestEngine(t, dev, &fakeVision{})

	engine.Load([]script.Action{{Kind: "teleport"}})
	require.True(t, engine.Play(1.0, 0, 0))
	listener.waitCompleted(t)

	events := listener.Events()
	var sawError bool
	for _, ev := range events {
		if len(ev) > 6 && ev[:6] == "error:" {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestConditional_BranchSelection(t *testing.T) {
	defer goleak.VerifyNone(t)

	// A solid red frame; the pixel condition below matches it.
	frame := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			frame.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}

	conditional := func(cond condition.Condition) []script.Action {
		return []script.Action{{
			Kind: script.Conditional,
			Data: script.Data{
				Condition: &cond,
				Then:      []script.Action{tapAction(1, 1, 0)},
				Else:      []script.Action{tapAction(9, 9, 0)},
			},
		}}
	}

	t.Run("should run the then-branch when the condition holds", func(t *testing.T) {
		dev := &fakeDevice{}
		engine, listener := newTestEngine(t, dev, &fakeVision{frame: frame})
		engine.Load(conditional(condition.Condition{
			Kind: condition.PixelColor,
			Data: condition.Data{X: 5, Y: 5, Color: []int{200, 10, 10}, Tolerance: 5},
		}))
		require.True(t, engine.Play(1.0, 0, 0))
		listener.waitCompleted(t)
		assert.Equal(t, []string{"tap 1,1"}, dev.Calls())
	})

	t.Run("should run the else-branch when the condition fails", func(t *testing.T) {
		dev := &fakeDevice{}
		engine, listener := newTestEngine(t, dev, &fakeVision{frame: frame})
		engine.Load(conditional(condition.Condition{
			Kind: condition.PixelColor,
			Data: condition.Data{X: 5, Y: 5, Color: []int{0, 200, 0}, Tolerance: 5},
		}))
		require.True(t, engine.Play(1.0, 0, 0))
		listener.waitCompleted(t)
		assert.Equal(t, []string{"tap 9,9"}, dev.Calls())
	})

	t.Run("should fail when no vision capability is configured", func(t *testing.T) {
		dev := &fakeDevice{}
		engine, listener := newTestEngine(t, dev, nil)
		engine.Load(conditional(condition.Condition{Kind: condition.PixelColor}))
		require.True(t, engine.Play(1.0, 0, 0))
		listener.waitCompleted(t)
		assert.Empty(t, dev.Calls())

		var sawError bool
		for _, ev := range listener.Events() {
			if len(ev) > 6 && ev[:6] == "error:" {
				sawError = true
			}
		}
		assert.True(t, sawError)
	})
}

func TestConditional_DepthCap(t *testing.T) {
	defer goleak.VerifyNone(t)

	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))
	cond := condition.Condition{
		Kind: condition.PixelColor,
		Data: condition.Data{X: 0, Y: 0, Color: []int{0, 0, 0}, Tolerance: 10},
	}

	// Nest one level past the cap.
	inner := tapAction(1, 1, 0)
	nested := inner
	for i := 0; i < maxConditionalDepth+1; i++ {
		c := cond
		nested = script.Action{
			Kind: script.Conditional,
			Data: script.Data{Condition: &c, Then: []script.Action{nested}},
		}
	}

	dev := &fakeDevice{}
	engine, listener := newTestEngine(t, dev, &fakeVision{frame: frame})
	engine.Load([]script.Action{nested})
	require.True(t, engine.Play(1.0, 0, 0))
	listener.waitCompleted(t)

	assert.Empty(t, dev.Calls(), "the innermost tap must never be reached")
}

func TestLoad_IgnoredWhileRunning(t *testing.T) {
	defer goleak.VerifyNone(t)
	dev := &fakeDevice{}
	engine, listener := newTestEngine(t, dev, &fakeVision{})

	engine.Load([]script.Action{{Kind: script.Wait, Data: script.Data{Duration: 2000}}})
	require.True(t, engine.Play(1.0, 0, 0))

	engine.Load([]script.Action{tapAction(7, 7, 0)})
	engine.Stop()
	listener.waitCompleted(t)

	// The in-flight sequence was the wait, not the tap.
	assert.Empty(t, dev.Calls())
}

func countOf(events []string, want string) int {
	n := 0
	for _, ev := range events {
		if ev == want {
			n++
		}
	}
	return n
}
