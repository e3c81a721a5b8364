// File: internal/device/browser.go
// Description: A browser page as the screen-bearing device, driven over CDP.
// Gestures become dispatched mouse events, text lands on the focused element,
// and screenshots come from the page compositor.

package device

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// swipeSteps is the number of intermediate move events per swipe.
const swipeSteps = 12

// Browser implements Capability against a chromedp-managed page.
type Browser struct {
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelCtx   context.CancelFunc
	log         *zap.Logger
}

// NewBrowser launches a browser, navigates to url and returns a controller
// for the resulting page.
func NewBrowser(ctx context.Context, url string, headless bool, logger *zap.Logger) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx, chromedp.Navigate(url)); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("navigating to %s: %w", url, err)
	}
	return &Browser{
		browserCtx:  browserCtx,
		cancelAlloc: cancelAlloc,
		cancelCtx:   cancelCtx,
		log:         logger.Named("browser"),
	}, nil
}

// Close tears the browser down.
func (b *Browser) Close() {
	b.cancelCtx()
	b.cancelAlloc()
}

func (b *Browser) runCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	// chromedp actions must run on the browser context; honor the caller's
	// deadline by watching it alongside.
	runCtx, cancel := context.WithCancel(b.browserCtx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() { stop(); cancel() }
}

func (b *Browser) Tap(ctx context.Context, x, y int) error {
	runCtx, cancel := b.runCtx(ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.MouseClickXY(float64(x), float64(y)))
}

func (b *Browser) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	runCtx, cancel := b.runCtx(ctx)
	defer cancel()

	step := duration / swipeSteps
	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		press := input.DispatchMouseEvent(input.MousePressed, float64(x1), float64(y1)).
			WithButton(input.Left).WithClickCount(1)
		if err := press.Do(ctx); err != nil {
			return err
		}
		for i := 1; i <= swipeSteps; i++ {
			mx := float64(x1) + float64(x2-x1)*float64(i)/swipeSteps
			my := float64(y1) + float64(y2-y1)*float64(i)/swipeSteps
			move := input.DispatchMouseEvent(input.MouseMoved, mx, my).WithButton(input.Left)
			if err := move.Do(ctx); err != nil {
				return err
			}
			if step > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(step):
				}
			}
		}
		release := input.DispatchMouseEvent(input.MouseReleased, float64(x2), float64(y2)).
			WithButton(input.Left).WithClickCount(1)
		return release.Do(ctx)
	}))
}

func (b *Browser) LongPress(ctx context.Context, x, y int, duration time.Duration) error {
	runCtx, cancel := b.runCtx(ctx)
	defer cancel()

	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		press := input.DispatchMouseEvent(input.MousePressed, float64(x), float64(y)).
			WithButton(input.Left).WithClickCount(1)
		if err := press.Do(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(duration):
		}
		release := input.DispatchMouseEvent(input.MouseReleased, float64(x), float64(y)).
			WithButton(input.Left).WithClickCount(1)
		return release.Do(ctx)
	}))
}

func (b *Browser) KeyEvent(ctx context.Context, keycode string) error {
	runCtx, cancel := b.runCtx(ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.KeyEvent(keycode))
}

func (b *Browser) TextInput(ctx context.Context, text string) error {
	runCtx, cancel := b.runCtx(ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

func (b *Browser) CaptureScreen(ctx context.Context) (image.Image, error) {
	runCtx, cancel := b.runCtx(ctx)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot: %w", err)
	}
	return img, nil
}

func (b *Browser) ScreenSize(ctx context.Context) (int, int, error) {
	runCtx, cancel := b.runCtx(ctx)
	defer cancel()

	var w, h int
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, cssVisualViewport, _, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		if cssVisualViewport == nil {
			return fmt.Errorf("no viewport metrics available")
		}
		w = int(cssVisualViewport.ClientWidth)
		h = int(cssVisualViewport.ClientHeight)
		return nil
	}))
	if err != nil {
		return 0, 0, fmt.Errorf("querying viewport size: %w", err)
	}
	return w, h, nil
}
