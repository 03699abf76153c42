package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev" // replaced at build time with -ldflags "-X main.version=..."

func main() {
	app := &cobra.Command{
		Use:     "sensord",
		Short:   "sensord - remote sensor configuration server",
		Version: version,
	}

	app.AddCommand(startEntry())
	app.AddCommand(initEntry())
	app.AddCommand(versionEntry())

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionEntry() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sensord %s\n", version)
		},
	}
}

func initEntry() *cobra.Command {
	var force bool
	var path string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	cmd.Flags().StringVar(&path, "config", "", "Config file path (default: $XDG_CONFIG_HOME/sensord/config.yaml)")

	return cmd
}
