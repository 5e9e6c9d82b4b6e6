package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flint-notes/flint/internal/config"
	"github.com/flint-notes/flint/internal/store"
)

// vaultStatus is the status snapshot printed by 'flintd status'.
type vaultStatus struct {
	Vault        string `json:"vault"`
	Notes        int    `json:"notes"`
	DBPath       string `json:"db_path"`
	DBSizeBytes  int64  `json:"db_size_bytes"`
	IndexEnabled bool   `json:"index_enabled"`
	DaemonActive bool   `json:"daemon_active"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show vault health and daemon state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	vault, err := resolveVault()
	if err != nil {
		return err
	}
	logStartup("status")

	cfg, err := config.Load(vault)
	if err != nil {
		return err
	}

	dbPath := cfg.ResolveDBPath(vault)
	info := vaultStatus{
		Vault:        vault,
		DBPath:       dbPath,
		IndexEnabled: cfg.Index.Enabled,
	}

	if fi, err := os.Stat(dbPath); err == nil {
		info.DBSizeBytes = fi.Size()

		st, err := store.OpenWithCache(dbPath, cfg.Storage.CacheSize)
		if err != nil {
			return err
		}
		count, err := st.Count(cmd.Context())
		_ = st.Close()
		if err != nil {
			return err
		}
		info.Notes = count
	}

	// A held lock means a daemon is serving this vault.
	lock := store.NewVaultLock(config.StateDir(vault))
	if acquired, err := lock.TryLock(); err == nil {
		info.DaemonActive = !acquired
		_ = lock.Unlock()
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Vault:   %s\n", info.Vault)
	fmt.Fprintf(cmd.OutOrStdout(), "Notes:   %d\n", info.Notes)
	fmt.Fprintf(cmd.OutOrStdout(), "DB:      %s (%d bytes)\n", info.DBPath, info.DBSizeBytes)
	fmt.Fprintf(cmd.OutOrStdout(), "Index:   %v\n", info.IndexEnabled)
	fmt.Fprintf(cmd.OutOrStdout(), "Daemon:  %v\n", info.DaemonActive)
	return nil
}
