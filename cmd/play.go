// File: cmd/play.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tapdeck/tapdeck-cli/internal/observability"
	"github.com/tapdeck/tapdeck-cli/internal/player"
	"github.com/tapdeck/tapdeck-cli/internal/script"
)

func newPlayCmd() *cobra.Command {
	var (
		scriptPath string
		speed      float64
		startIndex int
		extraDelay time.Duration
	)

	playCmd := &cobra.Command{
		Use:   "play",
		Short: "Plays back a recorded action script on the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			actions, err := script.Load(scriptPath)
			if err != nil {
				return err
			}
			if len(actions) == 0 {
				return fmt.Errorf("script %s contains no actions", scriptPath)
			}

			s, err := buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			engine := s.Engine

			done := make(chan struct{})
			var playbackErr error
			engine.AddListener(&player.Hooks{
				OnActionStarted: func(i int, a script.Action) {
					logger.Info("Action", zap.Int("index", i), zap.String("action", script.Describe(a)))
				},
				OnError: func(msg string) {
					playbackErr = fmt.Errorf("%s", msg)
				},
				OnCompleted: func() {
					close(done)
				},
			})

			engine.Load(actions)
			if !engine.Play(speed, startIndex, extraDelay) {
				return fmt.Errorf("could not start playback (empty script, bad start index, or already playing)")
			}

			select {
			case <-done:
			case <-ctx.Done():
				logger.Info("Interrupted, stopping playback")
				engine.Stop()
				<-done
			}
			return playbackErr
		},
	}

	playCmd.Flags().StringVarP(&scriptPath, "script", "s", "", "path to the action script (required)")
	playCmd.Flags().Float64Var(&speed, "speed", 1.0, "playback speed factor")
	playCmd.Flags().IntVar(&startIndex, "start", 0, "index of the first action to play")
	playCmd.Flags().DurationVar(&extraDelay, "delay", 0, "extra fixed delay between actions")
	_ = playCmd.MarkFlagRequired("script")
	return playCmd
}
