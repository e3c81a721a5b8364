// File: cmd/devices.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tapdeck/tapdeck-cli/internal/device"
	"github.com/tapdeck/tapdeck-cli/internal/observability"
)

func newDevicesCmd() *cobra.Command {
	var restartServer bool

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Lists connected adb devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mgr := device.NewManager(appConfig.Device.ADBPath, observability.GetLogger())

			if restartServer {
				if err := mgr.RestartServer(ctx); err != nil {
					return fmt.Errorf("restarting adb server: %w", err)
				}
			}

			serials, err := mgr.Refresh(ctx)
			if err != nil {
				return err
			}
			if len(serials) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no devices connected")
				return nil
			}
			for _, s := range serials {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}

	devicesCmd.Flags().BoolVar(&restartServer, "restart-server", false, "restart the adb server before listing")
	return devicesCmd
}
