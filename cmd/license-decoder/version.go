package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/technosupport/frl-toolbox/internal/cops"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Args:  cobra.NoArgs,
	RunE:  versionCmdRun,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func versionCmdRun(cmd *cobra.Command, args []string) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "license-decoder: %s\nproxy user agent: %s\ngo: %s\n",
		VERSION, cops.UserAgent(), runtime.Version())
	if err != nil {
		return fmt.Errorf("failed to print version: %w", err)
	}
	return nil
}
