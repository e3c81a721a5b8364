// File: internal/device/adb.go
package device

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
	"time"

	_ "image/png" // screencap decoding

	"go.uber.org/zap"
)

// runner executes an external command and returns its stdout. Swapped out in
// tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// ADB drives an Android device through the adb binary's CLI.
type ADB struct {
	adbPath string
	serial  string
	log     *zap.Logger
	run     runner
}

// NewADB creates a controller for the device with the given serial. An empty
// serial targets whatever single device adb sees; an empty adbPath falls back
// to "adb" on PATH.
func NewADB(adbPath, serial string, logger *zap.Logger) *ADB {
	if adbPath == "" {
		adbPath = "adb"
	}
	return &ADB{
		adbPath: adbPath,
		serial:  serial,
		log:     logger.Named("adb").With(zap.String("serial", serial)),
		run:     execRunner,
	}
}

// Serial returns the device serial this controller targets.
func (a *ADB) Serial() string { return a.serial }

func (a *ADB) args(shell bool, rest ...string) []string {
	var out []string
	if a.serial != "" {
		out = append(out, "-s", a.serial)
	}
	if shell {
		out = append(out, "shell")
	}
	return append(out, rest...)
}

func (a *ADB) shell(ctx context.Context, rest ...string) error {
	_, err := a.run(ctx, a.adbPath, a.args(true, rest...)...)
	return err
}

func (a *ADB) Tap(ctx context.Context, x, y int) error {
	return a.shell(ctx, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
}

func (a *ADB) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return a.shell(ctx, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1),
		strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.Itoa(int(duration.Milliseconds())))
}

// LongPress is a same-point swipe held for the duration; Android has no
// dedicated long-press input command.
func (a *ADB) LongPress(ctx context.Context, x, y int, duration time.Duration) error {
	return a.Swipe(ctx, x, y, x, y, duration)
}

func (a *ADB) KeyEvent(ctx context.Context, keycode string) error {
	return a.shell(ctx, "input", "keyevent", keycode)
}

func (a *ADB) TextInput(ctx context.Context, text string) error {
	return a.shell(ctx, "input", "text", escapeText(text))
}

// escapeText makes a string safe for `adb shell input text`: spaces become
// %s and quotes are backslash-escaped.
func escapeText(text string) string {
	s := strings.ReplaceAll(text, " ", "%s")
	s = strings.ReplaceAll(s, `'`, `\'`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// CaptureScreen grabs a PNG via `exec-out screencap -p` and decodes it.
// exec-out keeps the stream binary-clean, avoiding the CRLF mangling that
// plain `shell` inflicts on some hosts.
func (a *ADB) CaptureScreen(ctx context.Context) (image.Image, error) {
	data, err := a.run(ctx, a.adbPath, a.args(false, "exec-out", "screencap", "-p")...)
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot: %w", err)
	}
	return img, nil
}

// ScreenSize parses `wm size` output, e.g. "Physical size: 1080x2340".
func (a *ADB) ScreenSize(ctx context.Context) (int, int, error) {
	out, err := a.run(ctx, a.adbPath, a.args(true, "wm", "size")...)
	if err != nil {
		return 0, 0, fmt.Errorf("querying screen size: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		_, dims, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		ws, hs, ok := strings.Cut(strings.TrimSpace(dims), "x")
		if !ok {
			continue
		}
		w, werr := strconv.Atoi(ws)
		h, herr := strconv.Atoi(hs)
		if werr == nil && herr == nil {
			return w, h, nil
		}
	}
	return 0, 0, fmt.Errorf("unexpected wm size output: %q", strings.TrimSpace(string(out)))
}
