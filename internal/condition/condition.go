// File: internal/condition/condition.go
// Description: Visual predicates evaluated against the most recent screen
// capture. Conditions are stateless value types; all lookups go through the
// vision capability.

package condition

import (
	"image"
	"os"

	"github.com/tapdeck/tapdeck-cli/internal/vision"
	"go.uber.org/zap"
)

// Kind discriminates the condition variants.
type Kind string

const (
	TemplatePresent Kind = "template_present"
	TemplateAbsent  Kind = "template_absent"
	ColorPresent    Kind = "color_present"
	PixelColor      Kind = "pixel_color"
)

// Condition is a tagged variant; Data carries the fields of whichever kind is
// set.
type Condition struct {
	Kind Kind `json:"type"`
	Data Data `json:"data"`
}

// Data is the union of every condition kind's parameters. Unused fields stay
// zero and are omitted from JSON.
type Data struct {
	// Template kinds.
	TemplatePath string  `json:"template_path,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`

	// Color-region kind: two HSV endpoints, each [h, s, v].
	ColorRange [][]float64 `json:"color_range,omitempty"`
	MinArea    float64     `json:"min_area,omitempty"`

	// Pixel kind.
	X         int   `json:"x,omitempty"`
	Y         int   `json:"y,omitempty"`
	Color     []int `json:"color,omitempty"` // up to 3 channels, RGB
	Tolerance int   `json:"tolerance,omitempty"`
}

const (
	defaultThreshold = 0.8
	defaultMinArea   = 100
	defaultTolerance = 10
)

// Evaluator resolves conditions against an injected vision capability.
// Every malformed or unanswerable condition evaluates to false, never an
// error: branches fail closed.
type Evaluator struct {
	vision vision.Capability
	log    *zap.Logger
}

// NewEvaluator creates an evaluator bound to the given vision capability,
// which may be nil (every condition then evaluates false).
func NewEvaluator(v vision.Capability, logger *zap.Logger) *Evaluator {
	return &Evaluator{vision: v, log: logger.Named("condition")}
}

// Evaluate resolves the condition to a boolean.
func (e *Evaluator) Evaluate(c *Condition) bool {
	if c == nil || c.Kind == "" || e.vision == nil {
		return false
	}
	switch c.Kind {
	case TemplatePresent:
		return e.templatePresent(c.Data)
	case TemplateAbsent:
		return !e.templatePresent(c.Data)
	case ColorPresent:
		return e.colorPresent(c.Data)
	case PixelColor:
		return e.pixelColor(c.Data)
	default:
		e.log.Warn("Unknown condition kind", zap.String("kind", string(c.Kind)))
		return false
	}
}

func (e *Evaluator) templatePresent(d Data) bool {
	if d.TemplatePath == "" {
		return false
	}
	if _, err := os.Stat(d.TemplatePath); err != nil {
		e.log.Debug("Template file missing, condition fails closed",
			zap.String("template", d.TemplatePath))
		return false
	}
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	match, err := e.vision.FindTemplate(d.TemplatePath, threshold)
	if err != nil {
		e.log.Warn("Template lookup failed", zap.String("template", d.TemplatePath), zap.Error(err))
		return false
	}
	return match != nil
}

func (e *Evaluator) colorPresent(d Data) bool {
	if len(d.ColorRange) != 2 || len(d.ColorRange[0]) != 3 || len(d.ColorRange[1]) != 3 {
		return false
	}
	minArea := d.MinArea
	if minArea <= 0 {
		minArea = defaultMinArea
	}
	var lower, upper [3]float64
	copy(lower[:], d.ColorRange[0])
	copy(upper[:], d.ColorRange[1])
	match, err := e.vision.FindColorRegion(lower, upper, minArea)
	if err != nil {
		e.log.Warn("Color lookup failed", zap.Error(err))
		return false
	}
	return match != nil
}

func (e *Evaluator) pixelColor(d Data) bool {
	frame := e.vision.LastFrame()
	if frame == nil {
		return false
	}
	b := frame.Bounds()
	if d.X < 0 || d.Y < 0 || d.X >= b.Dx() || d.Y >= b.Dy() {
		return false
	}
	tolerance := d.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	actual := channelValues(frame, b.Min.X+d.X, b.Min.Y+d.Y)
	n := len(d.Color)
	if n > len(actual) {
		n = len(actual)
	}
	for i := 0; i < n; i++ {
		diff := actual[i] - d.Color[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			return false
		}
	}
	return true
}

func channelValues(img image.Image, x, y int) [3]int {
	r, g, b, _ := img.At(x, y).RGBA()
	return [3]int{int(r / 257), int(g / 257), int(b / 257)}
}
