package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flint-notes/flint/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a vault in a directory",
		Long: `Create the .flint state directory and a default config file so
the directory becomes a Flint vault. Existing notes are imported on
the first 'flintd serve' or 'flintd scan'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing vault config")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	vault, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve vault directory: %w", err)
	}
	logStartup("init")

	if info, err := os.Stat(vault); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", vault)
	}

	cfgPath := config.VaultConfigPath(vault)
	if _, err := os.Stat(cfgPath); err == nil {
		if !force {
			return fmt.Errorf("vault already initialized at %s (use --force to overwrite)", vault)
		}
		backupPath, err := config.BackupConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("backup existing config: %w", err)
		}
		if backupPath != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up existing config to %s\n", backupPath)
		}
	}

	cfg := config.NewConfig()
	cfg.Vault.Root = vault
	if err := cfg.WriteYAML(cfgPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized vault at %s\n", vault)
	fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", cfgPath)
	fmt.Fprintln(cmd.OutOrStdout(), "Run 'flintd serve' to start syncing.")
	return nil
}
