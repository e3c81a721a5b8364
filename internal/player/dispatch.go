// File: internal/player/dispatch.go
package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tapdeck/tapdeck-cli/internal/script"
)

// maxConditionalDepth caps conditional nesting. The data model cannot express
// a cycle, but a pathological file could still nest deep enough to blow the
// stack without this.
const maxConditionalDepth = 32

// defaultMaxWaitS is the template wait timeout when the action carries none.
const defaultMaxWaitS = 10.0

// execute dispatches one action. A nil return is the success acknowledgement;
// cancellation mid-action is not an error, the loop's next checkpoint ends
// the run.
func (e *Engine) execute(ctx context.Context, a script.Action, depth int) error {
	d := a.Data
	switch a.Kind {
	case script.Tap:
		return e.dev.Tap(ctx, d.X, d.Y)

	case script.Swipe:
		return e.dev.Swipe(ctx, d.X1, d.Y1, d.X2, d.Y2, time.Duration(d.Duration)*time.Millisecond)

	case script.LongPress:
		// A long press is a same-point swipe held for the duration.
		return e.dev.Swipe(ctx, d.X, d.Y, d.X, d.Y, time.Duration(d.Duration)*time.Millisecond)

	case script.Wait:
		sleepCtx(ctx, time.Duration(d.Duration)*time.Millisecond)
		return nil

	case script.Key:
		return e.dev.KeyEvent(ctx, d.Keycode)

	case script.Text:
		return e.dev.TextInput(ctx, d.Text)

	case script.TemplateMatch:
		return e.templateMatch(ctx, d)

	case script.Conditional:
		return e.conditional(ctx, d, depth)

	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

func (e *Engine) templateMatch(ctx context.Context, d script.Data) error {
	if e.vis == nil {
		return errors.New("template matching requested but no vision capability configured")
	}
	if _, err := os.Stat(d.TemplatePath); err != nil {
		return fmt.Errorf("template file not found: %s", d.TemplatePath)
	}

	if d.Wait {
		maxWait := d.MaxWait
		if maxWait <= 0 {
			maxWait = defaultMaxWaitS
		}
		match, err := e.vis.WaitForTemplate(ctx, d.TemplatePath, time.Duration(maxWait*float64(time.Second)))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("waiting for template: %w", err)
		}
		if match == nil {
			return fmt.Errorf("template %s did not appear within %.0fs", filepath.Base(d.TemplatePath), maxWait)
		}
	}

	match, err := e.vis.FindTemplate(d.TemplatePath, e.threshold())
	if err != nil {
		return fmt.Errorf("matching template: %w", err)
	}
	if match == nil {
		return fmt.Errorf("template %s not found on screen", filepath.Base(d.TemplatePath))
	}
	if d.Tap {
		cx, cy := match.Center()
		return e.dev.Tap(ctx, cx, cy)
	}
	return nil
}

func (e *Engine) conditional(ctx context.Context, d script.Data, depth int) error {
	if depth >= maxConditionalDepth {
		return fmt.Errorf("conditional nesting exceeds %d levels", maxConditionalDepth)
	}
	if d.Condition == nil {
		return errors.New("conditional action carries no condition")
	}
	if e.vis == nil {
		return errors.New("condition evaluation requested but no vision capability configured")
	}

	branch := d.Else
	if e.eval.Evaluate(d.Condition) {
		branch = d.Then
	}
	for _, sub := range branch {
		if ctx.Err() != nil {
			return nil
		}
		if err := e.execute(ctx, sub, depth+1); err != nil {
			return fmt.Errorf("%s: %w", script.Describe(sub), err)
		}
	}
	return nil
}

func (e *Engine) threshold() float64 {
	if e.cfg.TemplateThreshold > 0 {
		return e.cfg.TemplateThreshold
	}
	return 0.8
}
