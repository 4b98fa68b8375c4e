// Package cmd assembles termbroker's cobra command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "termbroker",
		Short: "Multiplexing pseudo-terminal broker",
		Long:  "termbroker hosts one program on a PTY and lets multiple remote clients attach to, detach from, and share that terminal session over a local or TCP socket.",
	}

	rootCmd.AddCommand(
		newServeCmd(),
	)

	return rootCmd
}
