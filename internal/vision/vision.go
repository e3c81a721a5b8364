// File: internal/vision/vision.go
// Description: Contract for image-based lookups against the most recently
// captured device frame. Consumers (the playback engine, the condition
// evaluator) depend on this interface, never on the concrete matcher.

package vision

import (
	"context"
	"image"
	"time"
)

// Match is the bounding box of a located template or color region, in frame
// coordinates.
type Match struct {
	X int
	Y int
	W int
	H int
}

// Center returns the midpoint of the match, the spot a tap should land on.
func (m Match) Center() (int, int) {
	return m.X + m.W/2, m.Y + m.H/2
}

// Capability exposes visual lookups over the last captured frame.
// A nil *Match with a nil error means "not found"; errors are reserved for
// plumbing failures (unreadable template file, no frame yet).
type Capability interface {
	// FindTemplate locates a reference image within the last frame.
	FindTemplate(path string, threshold float64) (*Match, error)

	// FindColorRegion locates the largest contiguous region whose pixels fall
	// inside the given HSV range and whose area is at least minArea.
	// Bounds use OpenCV scaling: H in [0,180), S and V in [0,256).
	FindColorRegion(lower, upper [3]float64, minArea float64) (*Match, error)

	// LastFrame returns the most recent frame seen by the capability, or nil.
	LastFrame() image.Image

	// WaitForTemplate polls capture-and-match until the template appears or
	// the timeout elapses. Returns (nil, nil) on timeout.
	WaitForTemplate(ctx context.Context, path string, timeout time.Duration) (*Match, error)
}

// FrameSource is the slice of the device capability the processor needs in
// order to refresh its frame while polling.
type FrameSource interface {
	CaptureScreen(ctx context.Context) (image.Image, error)
}
