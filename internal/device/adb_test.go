// internal/device/adb_test.go
package device

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeRunner records every invocation and serves canned output per command
// prefix.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	out   map[string][]byte // keyed by joined args
	err   error
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, f.err
	}
	return f.out[strings.Join(args, " ")], nil
}

func (f *fakeRunner) lastCall() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func newTestADB(t *testing.T, serial string) (*ADB, *fakeRunner) {
	t.Helper()
	fr := &fakeRunner{out: map[string][]byte{}}
	adb := NewADB("adb", serial, zaptest.NewLogger(t))
	adb.run = fr.run
	return adb, fr
}

func TestADB_CommandAssembly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("tap targets the serial", func(t *testing.T) {
		t.Parallel()
		adb, fr := newTestADB(t, "emulator-5554")
		require.NoError(t, adb.Tap(ctx, 540, 1200))
		assert.Equal(t, []string{"adb", "-s", "emulator-5554", "shell", "input", "tap", "540", "1200"}, fr.lastCall())
	})

	t.Run("empty serial omits the -s flag", func(t *testing.T) {
		t.Parallel()
		adb, fr := newTestADB(t, "")
		require.NoError(t, adb.Tap(ctx, 1, 2))
		assert.Equal(t, []string{"adb", "shell", "input", "tap", "1", "2"}, fr.lastCall())
	})

	t.Run("swipe carries endpoints and milliseconds", func(t *testing.T) {
		t.Parallel()
		adb, fr := newTestADB(t, "x")
		require.NoError(t, adb.Swipe(ctx, 100, 800, 100, 200, 300*time.Millisecond))
		assert.Equal(t, []string{"adb", "-s", "x", "shell", "input", "swipe", "100", "800", "100", "200", "300"}, fr.lastCall())
	})

	t.Run("long press is a held same-point swipe", func(t *testing.T) {
		t.Parallel()
		adb, fr := newTestADB(t, "x")
		require.NoError(t, adb.LongPress(ctx, 50, 60, time.Second))
		assert.Equal(t, []string{"adb", "-s", "x", "shell", "input", "swipe", "50", "60", "50", "60", "1000"}, fr.lastCall())
	})

	t.Run("key event passes the keycode through", func(t *testing.T) {
		t.Parallel()
		adb, fr := newTestADB(t, "x")
		require.NoError(t, adb.KeyEvent(ctx, "KEYCODE_HOME"))
		assert.Equal(t, []string{"adb", "-s", "x", "shell", "input", "keyevent", "KEYCODE_HOME"}, fr.lastCall())
	})

	t.Run("command errors propagate", func(t *testing.T) {
		t.Parallel()
		adb, fr := newTestADB(t, "x")
		fr.err = errors.New("device offline")
		assert.Error(t, adb.Tap(ctx, 1, 2))
	})
}

func TestEscapeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "hello", want: "hello"},
		{name: "spaces become %s", input: "hello world", want: "hello%sworld"},
		{name: "single quotes escaped", input: "it's", want: `it\'s`},
		{name: "double quotes escaped", input: `say "hi"`, want: `say%s\"hi\"`},
		{name: "empty", input: "", want: ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, escapeText(tc.input))
		})
	}
}

func TestADB_TextInputEscapes(t *testing.T) {
	t.Parallel()
	adb, fr := newTestADB(t, "x")
	require.NoError(t, adb.TextInput(context.Background(), "two words"))
	assert.Equal(t, []string{"adb", "-s", "x", "shell", "input", "text", "two%swords"}, fr.lastCall())
}

func TestADB_ScreenSize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("physical size", func(t *testing.T) {
		t.Parallel()
		adb, fr := newTestADB(t, "x")
		fr.out["-s x shell wm size"] = []byte("Physical size: 1080x2340\n")
		w, h, err := adb.ScreenSize(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1080, w)
		assert.Equal(t, 2340, h)
	})

	t.Run("override line wins when physical is absent", func(t *testing.T) {
		t.Parallel()
		adb, fr := newTestADB(t, "x")
		fr.out["-s x shell wm size"] = []byte("Override size: 720x1280\n")
		w, h, err := adb.ScreenSize(ctx)
		require.NoError(t, err)
		assert.Equal(t, 720, w)
		assert.Equal(t, 1280, h)
	})

	t.Run("garbage output is an error", func(t *testing.T) {
		t.Parallel()
		adb, fr := newTestADB(t, "x")
		fr.out["-s x shell wm size"] = []byte("no sizes here\n")
		_, _, err := adb.ScreenSize(ctx)
		assert.Error(t, err)
	})
}

func TestADB_CaptureScreen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("decodes the screencap stream", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 6))))

		adb, fr := newTestADB(t, "x")
		fr.out["-s x exec-out screencap -p"] = buf.Bytes()

		img, err := adb.CaptureScreen(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8, img.Bounds().Dx())
		assert.Equal(t, 6, img.Bounds().Dy())
	})

	t.Run("non-image output is an error", func(t *testing.T) {
		t.Parallel()
		adb, fr := newTestADB(t, "x")
		fr.out["-s x exec-out screencap -p"] = []byte("not a png")
		_, err := adb.CaptureScreen(ctx)
		assert.Error(t, err)
	})
}
