// File: cmd/components.go
// Description: Composition root for the playback stack. Subcommands call
// these helpers instead of wiring device, vision and player by hand.

package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tapdeck/tapdeck-cli/internal/device"
	"github.com/tapdeck/tapdeck-cli/internal/observability"
	"github.com/tapdeck/tapdeck-cli/internal/player"
	"github.com/tapdeck/tapdeck-cli/internal/vision"
)

// buildDevice creates the configured device transport. The returned cleanup
// must be called when the command finishes.
func buildDevice(ctx context.Context) (device.Capability, func(), error) {
	logger := observability.GetLogger()
	switch appConfig.Device.Kind {
	case "browser":
		if appConfig.Device.Browser.URL == "" {
			return nil, nil, fmt.Errorf("device.browser.url must be set for the browser device")
		}
		b, err := device.NewBrowser(ctx, appConfig.Device.Browser.URL, appConfig.Device.Browser.Headless, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("starting browser device: %w", err)
		}
		return b, b.Close, nil
	default:
		adb := device.NewADB(appConfig.Device.ADBPath, appConfig.Device.Serial, logger)
		return adb, func() {}, nil
	}
}

// stack bundles the fully wired playback components for a command.
type stack struct {
	Device device.Capability
	Vision *vision.Processor
	Engine *player.Engine
	Close  func()
}

// buildStack assembles device, vision processor and playback engine.
func buildStack(ctx context.Context) (*stack, error) {
	logger := observability.GetLogger()

	dev, cleanup, err := buildDevice(ctx)
	if err != nil {
		return nil, err
	}

	proc := vision.NewProcessor(dev, appConfig.Player.PollInterval, logger)
	engine := player.New(dev, proc, appConfig.Player, logger)

	// Prime the vision capability with one frame so conditions evaluated
	// before the first template wait have something to look at.
	if frame, err := dev.CaptureScreen(ctx); err == nil {
		proc.ObserveFrame(frame)
	} else {
		logger.Debug("Initial screen capture failed", zap.Error(err))
	}

	return &stack{Device: dev, Vision: proc, Engine: engine, Close: cleanup}, nil
}
