// Package cmd provides the CLI commands for the flintd daemon.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/flint-notes/flint/internal/config"
	"github.com/flint-notes/flint/internal/logging"
	"github.com/flint-notes/flint/pkg/version"
)

var (
	vaultFlag      string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the flintd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flintd",
		Short: "Synchronization daemon for Flint note vaults",
		Long: `Flintd keeps a vault of markdown notes in sync with its record store.

Edits from any source (editor sessions, AI agent tools, external
programs) are reconciled through one engine: the database is updated
first, file writes are debounced behind it, and external changes on
disk are detected and folded back in.

Run 'flintd serve' in a vault directory to start.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("flintd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&vaultFlag, "vault", "", "Vault directory (default: nearest .flint ancestor of cwd)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = teardownLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// resolveVault returns the vault root from the flag or by walking up from
// the working directory.
func resolveVault() (string, error) {
	if vaultFlag != "" {
		return vaultFlag, nil
	}
	return config.FindVaultRoot(".")
}

// setupLogging installs a stderr logger early; serve replaces it with the
// vault's file-backed logger once the vault is known.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg.Level = "debug"
	}

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// logStartup records daemon identity once per invocation.
func logStartup(command string) {
	slog.Debug("flintd starting",
		slog.String("command", command),
		slog.String("version", version.Short()),
	)
}
