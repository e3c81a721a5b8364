// File: cmd/script_cmd.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tapdeck/tapdeck-cli/internal/script"
)

func newScriptCmd() *cobra.Command {
	scriptCmd := &cobra.Command{
		Use:   "script",
		Short: "Inspects and converts recorded action scripts",
	}
	scriptCmd.AddCommand(newScriptShowCmd())
	scriptCmd.AddCommand(newScriptConvertCmd())
	return scriptCmd
}

func newScriptShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Lists the actions in a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := script.Load(args[0])
			if err != nil {
				return err
			}
			for i, a := range actions {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  +%6.2fs  %s\n", i, a.TimeOffset, script.Describe(a))
			}
			return nil
		},
	}
}

// newScriptConvertCmd rewrites a script in the current wrapped format; handy
// for upgrading bare-list exports.
func newScriptConvertCmd() *cobra.Command {
	var out string

	convertCmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Rewrites a script in the current file format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := script.Load(args[0])
			if err != nil {
				return err
			}
			target := out
			if target == "" {
				target = args[0]
			}
			return script.Save(target, actions)
		},
	}

	convertCmd.Flags().StringVarP(&out, "output", "o", "", "output path (default: rewrite in place)")
	return convertCmd
}
