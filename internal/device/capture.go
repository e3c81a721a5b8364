// File: internal/device/capture.go
package device

import (
	"context"
	"image"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FrameSink receives captured frames; the vision processor implements it.
type FrameSink interface {
	ObserveFrame(frame image.Image)
}

// consecutive capture failures before the loop reports an error upward.
const captureFailureLimit = 3

// CaptureLoop continuously pulls frames from a device and pushes them into a
// sink, paced by a rate limiter. It feeds the vision capability's notion of
// "last frame" while the system idles between playbacks.
type CaptureLoop struct {
	dev     Capability
	sink    FrameSink
	limiter *rate.Limiter
	log     *zap.Logger

	// OnError, when set, is invoked after repeated consecutive capture
	// failures.
	OnError func(msg string)
}

// NewCaptureLoop builds a loop capturing at most one frame per interval.
func NewCaptureLoop(dev Capability, sink FrameSink, interval rate.Limit, logger *zap.Logger) *CaptureLoop {
	return &CaptureLoop{
		dev:     dev,
		sink:    sink,
		limiter: rate.NewLimiter(interval, 1),
		log:     logger.Named("capture"),
	}
}

// Run captures until the context is cancelled. Returns the context error on
// exit; individual capture failures are logged and counted, never fatal.
func (c *CaptureLoop) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		frame, err := c.dev.CaptureScreen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			c.log.Debug("Screen capture failed", zap.Error(err), zap.Int("consecutive", failures))
			if failures >= captureFailureLimit {
				msg := "failed to capture screenshot multiple times"
				c.log.Error(msg, zap.Int("failures", failures))
				if c.OnError != nil {
					c.OnError(msg)
				}
				failures = 0
			}
			continue
		}
		failures = 0
		c.sink.ObserveFrame(frame)
	}
}
