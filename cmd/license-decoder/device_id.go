package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/technosupport/frl-toolbox/internal/platform/device"
)

var deviceIDCmd = &cobra.Command{
	Use:   "device-id",
	Short: "Print the device id this computer reports to the licensing server",
	Args:  cobra.NoArgs,
	RunE:  deviceIDCmdRun,
}

type deviceIDFlags struct {
	expect string
}

var deviceIDArgs deviceIDFlags

// systemProvider is replaced in tests.
var systemProvider device.Provider = device.NewHashedProvider()

func init() {
	deviceIDCmd.Flags().StringVar(&deviceIDArgs.expect, "expect", "",
		"Fail unless the computed id equals this one (e.g. the deviceId of a proxy transaction).")
	rootCmd.AddCommand(deviceIDCmd)
}

func deviceIDCmdRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if deviceIDArgs.expect == "" {
		id, err := systemProvider.DeviceID(ctx)
		if err != nil {
			return fmt.Errorf("failed to compute device id: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	}

	expected := &device.NativeProvider{Get: func(buf []byte) int {
		if len(deviceIDArgs.expect) > len(buf) {
			return -1
		}
		return copy(buf, deviceIDArgs.expect)
	}}
	id, err := device.CrossCheck(ctx, systemProvider, expected)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id, "(matches)")
	return nil
}
