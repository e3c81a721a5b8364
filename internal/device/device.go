// File: internal/device/device.go
// Description: Contract for the remote screen-bearing device. The playback
// engine only ever sees this interface; the adb and browser transports both
// satisfy it.

package device

import (
	"context"
	"image"
	"time"
)

// Capability exposes the input and capture surface of a device. Command-style
// calls return a nil error as the acknowledgement; any error means the
// command was not accepted by the device.
type Capability interface {
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error
	LongPress(ctx context.Context, x, y int, duration time.Duration) error
	KeyEvent(ctx context.Context, keycode string) error
	TextInput(ctx context.Context, text string) error

	// CaptureScreen returns the current frame.
	CaptureScreen(ctx context.Context) (image.Image, error)

	// ScreenSize returns the device's screen dimensions in pixels.
	ScreenSize(ctx context.Context) (width, height int, err error)
}
