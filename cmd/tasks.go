// File: cmd/tasks.go
package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tapdeck/tapdeck-cli/internal/device"
	"github.com/tapdeck/tapdeck-cli/internal/observability"
	"github.com/tapdeck/tapdeck-cli/internal/scheduler"
	"github.com/tapdeck/tapdeck-cli/internal/script"
)

// noopPlayer satisfies scheduler.Player for task-mutation commands that never
// tick the scheduler.
type noopPlayer struct{}

func (noopPlayer) Load([]script.Action)                  {}
func (noopPlayer) Play(float64, int, time.Duration) bool { return false }
func (noopPlayer) IsPlaying() bool                       { return false }

func newTasksCmd() *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manages scheduled playback tasks",
	}
	tasksCmd.AddCommand(newTasksListCmd())
	tasksCmd.AddCommand(newTasksAddCmd())
	tasksCmd.AddCommand(newTasksRemoveCmd())
	tasksCmd.AddCommand(newTasksToggleCmd("enable", true))
	tasksCmd.AddCommand(newTasksToggleCmd("disable", false))
	tasksCmd.AddCommand(newTasksRunCmd())
	return tasksCmd
}

// mutationScheduler builds a scheduler suitable for list/add/remove commands:
// persisted tasks loaded, no playback stack behind it.
func mutationScheduler() *scheduler.Scheduler {
	logger := observability.GetLogger()
	store := scheduler.NewStore(appConfig.Scheduler.TasksFile, logger)
	return scheduler.New(noopPlayer{}, store, appConfig.Scheduler.PollPeriod, logger)
}

func newTasksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks := mutationScheduler().GetTasks()
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no scheduled tasks")
				return nil
			}
			for i, t := range tasks {
				state := "enabled"
				if !t.Enabled {
					state = "disabled"
				}
				lastRun := "never"
				if !t.LastRun.IsZero() {
					lastRun = t.LastRun.Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-24s %-9s %-8s actions=%-3d last_run=%s\n",
					i, t.Name, string(t.Kind), state, len(t.Actions), lastRun)
			}
			return nil
		},
	}
}

func newTasksAddCmd() *cobra.Command {
	var (
		name       string
		scriptPath string
		kind       string
		at         string
		clock      string
		days       []string
		hours      int
		minutes    int
		speed      float64
		disabled   bool
	)

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Adds a scheduled task from a recorded script",
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := script.Load(scriptPath)
			if err != nil {
				return err
			}

			task := scheduler.Task{
				Name:        name,
				Actions:     actions,
				Kind:        scheduler.Kind(kind),
				Enabled:     !disabled,
				SpeedFactor: speed,
			}
			switch task.Kind {
			case scheduler.OneTime:
				if _, err := time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at must be RFC 3339 for a one-time task: %w", err)
				}
				task.Schedule.DateTime = at
			case scheduler.Daily:
				if _, err := time.Parse("15:04", clock); err != nil {
					return fmt.Errorf("--time must be HH:MM: %w", err)
				}
				task.Schedule.Time = clock
			case scheduler.Weekly:
				if _, err := time.Parse("15:04", clock); err != nil {
					return fmt.Errorf("--time must be HH:MM: %w", err)
				}
				task.Schedule.Time = clock
				for _, d := range days {
					task.Schedule.Days = append(task.Schedule.Days, strings.ToLower(d))
				}
			case scheduler.Interval:
				if hours == 0 && minutes == 0 {
					return fmt.Errorf("an interval task needs --hours and/or --minutes")
				}
				task.Schedule.Hours = hours
				task.Schedule.Minutes = minutes
			default:
				return fmt.Errorf("unknown schedule kind %q", kind)
			}

			index := mutationScheduler().AddTask(task)
			fmt.Fprintf(cmd.OutOrStdout(), "added task %d (%s)\n", index, name)
			return nil
		},
	}

	addCmd.Flags().StringVar(&name, "name", "", "task name (required)")
	addCmd.Flags().StringVarP(&scriptPath, "script", "s", "", "path to the action script (required)")
	addCmd.Flags().StringVar(&kind, "kind", "interval", "schedule kind: one_time, daily, weekly or interval")
	addCmd.Flags().StringVar(&at, "at", "", "one-time target moment, RFC 3339")
	addCmd.Flags().StringVar(&clock, "time", "00:00", "time of day for daily/weekly tasks, HH:MM")
	addCmd.Flags().StringSliceVar(&days, "days", nil, "weekday names for weekly tasks")
	addCmd.Flags().IntVar(&hours, "hours", 0, "interval hours")
	addCmd.Flags().IntVar(&minutes, "minutes", 0, "interval minutes")
	addCmd.Flags().Float64Var(&speed, "speed", 1.0, "playback speed factor")
	addCmd.Flags().BoolVar(&disabled, "disabled", false, "create the task disabled")
	_ = addCmd.MarkFlagRequired("name")
	_ = addCmd.MarkFlagRequired("script")
	return addCmd
}

func parseIndexArg(args []string) (int, error) {
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("task index must be a number, got %q", args[0])
	}
	return index, nil
}

func newTasksRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <index>",
		Short: "Removes a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndexArg(args)
			if err != nil {
				return err
			}
			if !mutationScheduler().RemoveTask(index) {
				return fmt.Errorf("no task at index %d", index)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed task %d\n", index)
			return nil
		},
	}
}

func newTasksToggleCmd(verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <index>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + "s a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndexArg(args)
			if err != nil {
				return err
			}
			if !mutationScheduler().SetTaskEnabled(index, enabled) {
				return fmt.Errorf("no task at index %d", index)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd task %d\n", verb, index)
			return nil
		},
	}
}

func newTasksRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs the scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			s, err := buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			store := scheduler.NewStore(appConfig.Scheduler.TasksFile, logger)
			sched := scheduler.New(s.Engine, store, appConfig.Scheduler.PollPeriod, logger)

			interval := rate.Every(appConfig.Device.CaptureInterval)
			capture := device.NewCaptureLoop(s.Device, s.Vision, interval, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				// Frame pump; exits with the context.
				return capture.Run(gctx)
			})
			g.Go(func() error {
				sched.Start()
				<-gctx.Done()
				sched.Stop()
				s.Engine.Stop()
				return gctx.Err()
			})

			logger.Info("Scheduler daemon running",
				zap.Int("tasks", len(sched.GetTasks())),
				zap.String("tasks_file", appConfig.Scheduler.TasksFile))

			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
