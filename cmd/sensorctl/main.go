package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev" // replaced at build time with -ldflags "-X main.version=..."

// globalOptions are the connection flags shared by every subcommand.
type globalOptions struct {
	addr     string
	user     string
	password string
	timeout  time.Duration
}

func main() {
	opts := &globalOptions{}

	app := &cobra.Command{
		Use:           "sensorctl",
		Short:         "sensorctl - client for the sensord configuration server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := app.PersistentFlags()
	flags.StringVar(&opts.addr, "addr", "localhost:2233", "Server address (host:port)")
	flags.StringVarP(&opts.user, "user", "u", "", "Username (prompted if empty)")
	flags.StringVarP(&opts.password, "password", "p", "", "Password (prompted if empty)")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Dial and per-request timeout")

	app.AddCommand(
		gconfEntry(opts),
		sconfEntry(opts),
		rmdatEntry(opts),
		gdatEntry(opts),
		showEntry(),
		shellEntry(opts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A second interrupt kills the process.
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := app.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[WARNING] %v\n", err)
		os.Exit(1)
	}
}

func gconfEntry(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gconf",
		Short: "Print the sensor configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return s.getConfig()
			})
		},
	}
}

func sconfEntry(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sconf <TMP|PRS|HUM|IIR|PRD> <ON|OFF> [value]",
		Short: "Change one sensor setting",
		Long: `Change one sensor setting.

Oversampling values for TMP, PRS and HUM: OFF, 1X, 2X, 4X, 8X, 16X.
Filter coefficients for IIR: OFF, 2, 4, 8, 16.
The period takes seconds and no status: "sconf PRD 10". 0 pauses measuring.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, period, err := parseSetConfig(args)
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(s *session) error {
				return s.setConfig(sel, period)
			})
		},
	}
}

func rmdatEntry(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rmdat",
		Short: "Remove all measurement data on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return s.removeData()
			})
		},
	}
}

func gdatEntry(opts *globalOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "gdat",
		Short: "Download the measurement data file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				return s.getData(out)
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", defaultDataFile, "Local file to write")
	return cmd
}

func showEntry() *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a downloaded measurement data file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showFile(cmd.OutOrStdout(), in)
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", defaultDataFile, "Local file to read")
	return cmd
}

func shellEntry(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sh := newShell(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
			if isTerminal(os.Stdin) {
				sh.readPassword = terminalPassword
			}
			return sh.run(cmd.Context())
		},
	}
}

// withSession dials, runs fn and disconnects.
func withSession(cmd *cobra.Command, opts *globalOptions, fn func(s *session) error) error {
	p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	if isTerminal(os.Stdin) {
		p.readPassword = terminalPassword
	}

	c, err := dial(cmd.Context(), opts, p)
	if err != nil {
		return err
	}

	s := &session{client: c, out: cmd.OutOrStdout()}
	err = fn(s)

	if derr := c.Disconnect(); derr != nil && err == nil {
		err = fmt.Errorf("disconnect: %w", derr)
	}
	return err
}
