// File: cmd/record.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tapdeck/tapdeck-cli/internal/observability"
	"github.com/tapdeck/tapdeck-cli/internal/script"
)

const recordUsage = `Commands (one per line, offsets are stamped from real time between them):
  tap <x> <y>
  swipe <x1> <y1> <x2> <y2> <ms>
  longpress <x> <y> <ms>
  wait <ms>
  key <keycode>
  text <words...>
  template <path> [wait] [tap]
  undo                 remove the last action
  list                 show the buffer so far
  done                 save and exit
  abort                exit without saving`

func newRecordCmd() *cobra.Command {
	var (
		output string
		replay bool
	)

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Records an action script interactively",
		Long: "Reads actions line by line from stdin, optionally replaying each on the\n" +
			"device as it is entered, and saves the timed sequence as a script file.\n\n" + recordUsage,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			s, err := buildStack(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			rec := script.NewRecorder()
			rec.StartRecording()
			fmt.Fprintln(cmd.OutOrStdout(), "recording; type commands, \"done\" to save")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				if ctx.Err() != nil {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				fields := strings.Fields(line)
				verb, rest := fields[0], fields[1:]

				switch verb {
				case "done":
					rec.StopRecording()
					if rec.Len() == 0 {
						return fmt.Errorf("nothing recorded")
					}
					if err := script.Save(output, rec.Actions()); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "saved %d action(s) to %s\n", rec.Len(), output)
					return nil
				case "abort":
					fmt.Fprintln(cmd.OutOrStdout(), "aborted, nothing saved")
					return nil
				case "undo":
					if rec.Remove(rec.Len() - 1) {
						fmt.Fprintln(cmd.OutOrStdout(), "removed last action")
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), "buffer is empty")
					}
					continue
				case "list":
					for i, a := range rec.Actions() {
						fmt.Fprintf(cmd.OutOrStdout(), "%3d  +%6.2fs  %s\n", i, a.TimeOffset, script.Describe(a))
					}
					continue
				case "help":
					fmt.Fprintln(cmd.OutOrStdout(), recordUsage)
					continue
				}

				index, err := recordLine(rec, verb, rest)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "error: %v\n", err)
					continue
				}

				action := rec.Actions()[index]
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", index, script.Describe(action))

				if replay {
					if err := replayAction(ctx, s, action); err != nil {
						logger.Warn("Replaying recorded action failed", zap.Error(err))
						fmt.Fprintf(cmd.OutOrStdout(), "replay failed: %v\n", err)
					}
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			return fmt.Errorf("input ended before \"done\"; nothing saved")
		},
	}

	recordCmd.Flags().StringVarP(&output, "output", "o", "", "script file to write (required)")
	recordCmd.Flags().BoolVar(&replay, "replay", true, "execute each action on the device as it is recorded")
	_ = recordCmd.MarkFlagRequired("output")
	return recordCmd
}

// recordLine parses one input line into a recorder entry, returning the index
// of the appended action.
func recordLine(rec *script.Recorder, verb string, args []string) (int, error) {
	ints := func(n int) ([]int, error) {
		if len(args) < n {
			return nil, fmt.Errorf("%s needs %d numeric argument(s)", verb, n)
		}
		out := make([]int, n)
		for i := 0; i < n; i++ {
			v, err := strconv.Atoi(args[i])
			if err != nil {
				return nil, fmt.Errorf("%s: %q is not a number", verb, args[i])
			}
			out[i] = v
		}
		return out, nil
	}

	switch verb {
	case "tap":
		v, err := ints(2)
		if err != nil {
			return 0, err
		}
		return rec.AddTap(v[0], v[1]), nil
	case "swipe":
		v, err := ints(5)
		if err != nil {
			return 0, err
		}
		return rec.AddSwipe(v[0], v[1], v[2], v[3], v[4]), nil
	case "longpress":
		v, err := ints(3)
		if err != nil {
			return 0, err
		}
		return rec.AddLongPress(v[0], v[1], v[2]), nil
	case "wait":
		v, err := ints(1)
		if err != nil {
			return 0, err
		}
		return rec.AddWait(v[0]), nil
	case "key":
		if len(args) != 1 {
			return 0, fmt.Errorf("key needs exactly one keycode")
		}
		return rec.AddKeyEvent(args[0]), nil
	case "text":
		if len(args) == 0 {
			return 0, fmt.Errorf("text needs at least one word")
		}
		return rec.AddTextInput(strings.Join(args, " ")), nil
	case "template":
		if len(args) == 0 {
			return 0, fmt.Errorf("template needs a file path")
		}
		var wait, tap bool
		for _, opt := range args[1:] {
			switch opt {
			case "wait":
				wait = true
			case "tap":
				tap = true
			default:
				return 0, fmt.Errorf("unknown template option %q", opt)
			}
		}
		return rec.AddTemplateMatch(args[0], wait, 0, tap), nil
	default:
		return 0, fmt.Errorf("unknown command %q (try \"help\")", verb)
	}
}

// replayAction executes a freshly recorded action on the live device so the
// operator sees its effect immediately.
func replayAction(ctx context.Context, s *stack, a script.Action) error {
	d := a.Data
	switch a.Kind {
	case script.Tap:
		return s.Device.Tap(ctx, d.X, d.Y)
	case script.Swipe:
		return s.Device.Swipe(ctx, d.X1, d.Y1, d.X2, d.Y2, time.Duration(d.Duration)*time.Millisecond)
	case script.LongPress:
		return s.Device.LongPress(ctx, d.X, d.Y, time.Duration(d.Duration)*time.Millisecond)
	case script.Key:
		return s.Device.KeyEvent(ctx, d.Keycode)
	case script.Text:
		return s.Device.TextInput(ctx, d.Text)
	default:
		// Waits and visual actions only matter during playback.
		return nil
	}
}
