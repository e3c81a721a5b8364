// File: internal/vision/processor.go
package vision

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "image/jpeg" // template decoding

	"go.uber.org/zap"
)

// Processor is the production Capability implementation: a pure-Go matcher
// over the stdlib image types. It holds the last observed frame and a cache
// of decoded templates.
type Processor struct {
	source       FrameSource
	log          *zap.Logger
	pollInterval time.Duration

	mu        sync.Mutex
	lastFrame image.Image
	templates map[string]image.Image
}

// NewProcessor creates a processor that refreshes frames from source while
// polling. pollInterval <= 0 falls back to 500ms.
func NewProcessor(source FrameSource, pollInterval time.Duration, logger *zap.Logger) *Processor {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Processor{
		source:       source,
		log:          logger.Named("vision"),
		pollInterval: pollInterval,
		templates:    make(map[string]image.Image),
	}
}

// ObserveFrame records a newly captured frame as the current one.
func (p *Processor) ObserveFrame(frame image.Image) {
	if frame == nil {
		return
	}
	p.mu.Lock()
	p.lastFrame = frame
	p.mu.Unlock()
}

// LastFrame returns the most recent observed frame, or nil.
func (p *Processor) LastFrame() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFrame
}

func (p *Processor) loadTemplate(path string) (image.Image, error) {
	p.mu.Lock()
	if tpl, ok := p.templates[path]; ok {
		p.mu.Unlock()
		return tpl, nil
	}
	p.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening template %s: %w", path, err)
	}
	defer f.Close()

	tpl, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding template %s: %w", path, err)
	}

	p.mu.Lock()
	p.templates[path] = tpl
	p.mu.Unlock()
	return tpl, nil
}

// FindTemplate slides the template over the last frame and reports the best
// zero-mean normalized cross-correlation position, if it clears the
// threshold.
func (p *Processor) FindTemplate(path string, threshold float64) (*Match, error) {
	frame := p.LastFrame()
	if frame == nil {
		return nil, nil
	}
	tpl, err := p.loadTemplate(path)
	if err != nil {
		return nil, err
	}

	fg := grayMatrix(frame)
	tg := grayMatrix(tpl)
	fh, fw := len(fg), 0
	if fh > 0 {
		fw = len(fg[0])
	}
	th, tw := len(tg), 0
	if th > 0 {
		tw = len(tg[0])
	}
	if th == 0 || tw == 0 || th > fh || tw > fw {
		return nil, nil
	}

	tMean := matrixMean(tg)
	var tVar float64
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			d := tg[y][x] - tMean
			tVar += d * d
		}
	}
	if tVar == 0 {
		// A flat template correlates with everything; treat as unmatched.
		return nil, nil
	}

	bestScore := -2.0
	bestX, bestY := 0, 0
	for oy := 0; oy <= fh-th; oy++ {
		for ox := 0; ox <= fw-tw; ox++ {
			var fSum float64
			for y := 0; y < th; y++ {
				for x := 0; x < tw; x++ {
					fSum += fg[oy+y][ox+x]
				}
			}
			fMean := fSum / float64(th*tw)

			var num, fVar float64
			for y := 0; y < th; y++ {
				for x := 0; x < tw; x++ {
					fd := fg[oy+y][ox+x] - fMean
					td := tg[y][x] - tMean
					num += fd * td
					fVar += fd * fd
				}
			}
			if fVar == 0 {
				continue
			}
			score := num / math.Sqrt(fVar*tVar)
			if score > bestScore {
				bestScore, bestX, bestY = score, ox, oy
			}
		}
	}

	if bestScore < threshold {
		return nil, nil
	}
	m := &Match{X: bestX, Y: bestY, W: tw, H: th}
	p.log.Debug("Template matched",
		zap.String("template", path),
		zap.Float64("score", bestScore),
		zap.Int("x", m.X), zap.Int("y", m.Y))
	return m, nil
}

// FindColorRegion masks the last frame by the HSV range, scans connected
// regions, and returns the bounding box of the largest one with area at least
// minArea.
func (p *Processor) FindColorRegion(lower, upper [3]float64, minArea float64) (*Match, error) {
	frame := p.LastFrame()
	if frame == nil {
		return nil, nil
	}

	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hh, ss, vv := rgbToHSV(frame.At(b.Min.X+x, b.Min.Y+y))
			if hh >= lower[0] && hh <= upper[0] &&
				ss >= lower[1] && ss <= upper[1] &&
				vv >= lower[2] && vv <= upper[2] {
				mask[y*w+x] = true
			}
		}
	}

	var best *Match
	bestArea := 0
	visited := make([]bool, w*h)
	queue := make([]int, 0, 64)
	for i := range mask {
		if !mask[i] || visited[i] {
			continue
		}
		// Flood-fill this region (4-connectivity).
		minX, minY, maxX, maxY := w, h, 0, 0
		area := 0
		queue = append(queue[:0], i)
		visited[i] = true
		for len(queue) > 0 {
			c := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			cx, cy := c%w, c/w
			area++
			if cx < minX {
				minX = cx
			}
			if cy < minY {
				minY = cy
			}
			if cx > maxX {
				maxX = cx
			}
			if cy > maxY {
				maxY = cy
			}
			for _, n := range [4]int{c - 1, c + 1, c - w, c + w} {
				if n < 0 || n >= w*h || visited[n] || !mask[n] {
					continue
				}
				// Reject horizontal wrap-around.
				if (n == c-1 && cx == 0) || (n == c+1 && cx == w-1) {
					continue
				}
				visited[n] = true
				queue = append(queue, n)
			}
		}
		if float64(area) >= minArea && area > bestArea {
			bestArea = area
			best = &Match{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1}
		}
	}
	return best, nil
}

// WaitForTemplate re-captures and matches until the template appears, the
// timeout elapses, or the context is cancelled.
func (p *Processor) WaitForTemplate(ctx context.Context, path string, timeout time.Duration) (*Match, error) {
	if p.source == nil {
		return nil, fmt.Errorf("no frame source configured")
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		frame, err := p.source.CaptureScreen(ctx)
		if err != nil {
			p.log.Debug("Capture failed while waiting for template", zap.Error(err))
		} else {
			p.ObserveFrame(frame)
			match, err := p.FindTemplate(path, 0.8)
			if err != nil {
				return nil, err
			}
			if match != nil {
				return match, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
	return nil, nil
}

// CreateTemplate crops a region of the last frame and writes it out as a PNG
// template, priming the cache.
func (p *Processor) CreateTemplate(region Match, path string) error {
	frame := p.LastFrame()
	if frame == nil {
		return fmt.Errorf("no frame captured yet")
	}
	b := frame.Bounds()
	crop := image.Rect(
		b.Min.X+region.X, b.Min.Y+region.Y,
		b.Min.X+region.X+region.W, b.Min.Y+region.Y+region.H,
	).Intersect(b)
	if crop.Empty() {
		return fmt.Errorf("region %+v lies outside the frame", region)
	}

	out := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	for y := 0; y < crop.Dy(); y++ {
		for x := 0; x < crop.Dx(); x++ {
			out.Set(x, y, frame.At(crop.Min.X+x, crop.Min.Y+y))
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating template directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating template file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		return fmt.Errorf("encoding template: %w", err)
	}

	p.mu.Lock()
	p.templates[path] = out
	p.mu.Unlock()
	return nil
}

func grayMatrix(img image.Image) [][]float64 {
	b := img.Bounds()
	m := make([][]float64, b.Dy())
	for y := range m {
		row := make([]float64, b.Dx())
		for x := range row {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// Luma weights, 16-bit channels scaled down to [0,255].
			row[x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257.0
		}
		m[y] = row
	}
	return m
}

func matrixMean(m [][]float64) float64 {
	var sum float64
	var n int
	for _, row := range m {
		for _, v := range row {
			sum += v
		}
		n += len(row)
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// rgbToHSV converts a color to OpenCV-scaled HSV: H in [0,180), S and V in
// [0,255].
func rgbToHSV(c interface {
	RGBA() (r, g, b, a uint32)
}) (float64, float64, float64) {
	r16, g16, b16, _ := c.RGBA()
	r := float64(r16) / 257.0
	g := float64(g16) / 257.0
	b := float64(b16) / 257.0

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	v := maxC
	var s float64
	if maxC > 0 {
		s = 255 * delta / maxC
	}

	var h float64
	switch {
	case delta == 0:
		h = 0
	case maxC == r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case maxC == g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h / 2, s, v
}
