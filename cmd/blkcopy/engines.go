package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bamsammich/blkcopy/internal/engine"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List available I/O engines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, name := range engine.DefaultTable().Names() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", name, engineDescriptions[name])
		}
		return nil
	},
}

var engineDescriptions = map[string]string{
	engine.NameBlkcopy: "BLKCOPY ioctl per batch (pread/pwrite with --emulate)",
	engine.NameSplit:   "one-entry BLKCOPY ioctl per range",
}
