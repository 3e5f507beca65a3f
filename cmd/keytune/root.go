package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/muurk/keytune/internal/config"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/version"
)

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	simulate   bool
	configPath string
	batchSize  int
	logLevel   string
	envFile    string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "keytune",
		Short: "Hall-effect keyboard configuration utility",
		Long: `Configure hall-effect keyboards over their vendor HID interface.

keytune pairs with one keyboard and reconnects to it automatically when it
re-enumerates. Its whole configuration (bindings, actuation, advanced keys,
lighting and macros) can be exported to a JSON snapshot and replayed later.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup()
		},
		Example: `  # List attached keyboards and pair the only one
  keytune scan
  keytune pair

  # Save and restore the configuration
  keytune export board.json
  keytune import board.json

  # Try everything without hardware
  keytune --simulate export -`,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.BoolVar(&g.simulate, "simulate", false, "Use an in-memory simulated keyboard instead of HID")
	pf.StringVar(&g.configPath, "config", "", "Path to config.yaml (default: user config dir)")
	pf.IntVar(&g.batchSize, "batch-size", 0, "Concurrent per-key calls during export/import (0 = config value)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset")
	pf.StringVar(&g.envFile, "env-file", ".env", "Environment file loaded before logging starts")

	root.AddCommand(
		newScanCmd(g),
		newPairCmd(g),
		newStatusCmd(g),
		newExportCmd(g),
		newImportCmd(g),
		newDiffCmd(g),
		newPollingRateCmd(g),
		newFactoryResetCmd(g),
		newServeCmd(g),
		newBridgesCmd(g),
		newWatchCmd(g),
		newVersionCmd(),
	)
	return root
}

// setup loads the env file and starts logging. The log level comes from
// --log-level, then KEYTUNE_LOG_LEVEL, then the config file.
func (g *globalFlags) setup() error {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", g.envFile, err)
		}
	}

	level := g.logLevel
	if level == "" {
		level = os.Getenv(logging.LogLevelEnvVar)
	}
	if level == "" {
		if reg, err := config.Load(g.configPath); err == nil {
			level = reg.Preferences.LogLevel
		}
	}
	return logging.Initialize(level)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "keytune %s\n", version.Get())
		},
	}
}
