package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"termbroker/internal/broker"
	"termbroker/internal/config"
	"termbroker/internal/daemonize"
)

func newServeCmd() *cobra.Command {
	var chdir string
	var daemonizeFlag bool
	var verbose bool
	var quiet bool
	var replay bool
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve <identifier> -- <program> [args...]",
		Short: "Host a program on a PTY and accept attaching clients",
		Long: `serve starts <program> attached to a PTY and listens for clients at
<identifier>, an address of the form host:port, or a filesystem path for a
Unix domain socket.

  termbroker serve /tmp/build.sock -- make -j8
  termbroker serve 0.0.0.0:4200 -- bash`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dash := cmd.ArgsLenAtDash()
			if dash < 0 || dash != 1 {
				return fmt.Errorf("usage: termbroker serve <identifier> -- <program> [args...]")
			}
			identifier := args[0]
			if len(args) <= dash {
				return fmt.Errorf("missing program after --")
			}
			program := args[dash]
			programArgs := args[dash+1:]
			if program == "" {
				return fmt.Errorf("missing program after --")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cmd.Flags().Changed("verbose") {
				verbose = cfg.Verbose
			}
			if !cmd.Flags().Changed("quiet") {
				quiet = cfg.Quiet
			}
			if !cmd.Flags().Changed("replay") {
				replay = cfg.Replay
			}
			if !cmd.Flags().Changed("daemonize") {
				daemonizeFlag = cfg.Daemonize
			}
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = cfg.MetricsAddr
			}

			if daemonizeFlag {
				if err := daemonize.Daemonize(); err != nil {
					return fmt.Errorf("daemonize: %w", err)
				}
				// Daemonize only returns in the re-executed, detached
				// child; the original process has already exited.
			}

			b := broker.New(broker.Options{
				Identifier:  identifier,
				Program:     program,
				Args:        programArgs,
				Dir:         chdir,
				Replay:      replay,
				Verbose:     verbose,
				Quiet:       quiet,
				MetricsAddr: metricsAddr,
			})

			code, err := b.Run()
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			if code != 0 {
				os.Exit(int(code))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&chdir, "chdir", "", "Directory to run the program in (default: inherit)")
	cmd.Flags().BoolVar(&daemonizeFlag, "daemonize", false, "Detach from the controlling terminal before serving")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Log every chunk of traffic")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress all logging")
	cmd.Flags().BoolVar(&replay, "replay", false, "Keep a replay cache for late-joining clients")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (default: disabled)")

	return cmd
}
