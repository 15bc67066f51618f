package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/technosupport/frl-toolbox/internal/license"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the fully decoded contents of an operating config file",
	Long: `Prints the operating config document with every base64 encoded
field unwrapped. Signatures are shown as stored and are not verified.`,
	Args: cobra.ExactArgs(1),
	RunE: inspectCmdRun,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func inspectCmdRun(cmd *cobra.Command, args []string) error {
	doc, err := license.ReadDocument(args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
