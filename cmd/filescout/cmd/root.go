// Package cmd provides the CLI commands for filescout.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Itsme23476/filescout/internal/config"
	"github.com/Itsme23476/filescout/internal/logging"
	"github.com/Itsme23476/filescout/internal/ui"
	"github.com/Itsme23476/filescout/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	noColor        bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the filescout CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filescout",
		Short: "Local AI-powered file indexing and search",
		Long: `filescout indexes local files with AI-generated captions, tags, and
extracted text, then answers natural-language and structured queries
over them. Everything runs locally by default; cloud providers are
opt-in.

Get started:
  filescout index ~/Documents
  filescout search "tax invoice from march"`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("filescout version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: ~/.config/filescout/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.filescout/logs/")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable styled output")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging initializes slog output and loads .env so provider API
// keys can live next to the project instead of the shell profile.
func setupLogging(_ *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}

	_, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging failures never block the command
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
		return nil
	}
	loggingCleanup = cleanup
	return nil
}

// loadConfig loads configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// printer builds the output renderer for a command, styled only when
// stdout is a terminal.
func printer(cmd *cobra.Command) *ui.Printer {
	plain := noColor || !ui.IsTerminal(os.Stdout)
	return ui.NewPrinter(cmd.OutOrStdout(), plain)
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
