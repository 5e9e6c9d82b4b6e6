package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flint-notes/flint/internal/config"
	"github.com/flint-notes/flint/internal/engine"
	"github.com/flint-notes/flint/internal/index"
	"github.com/flint-notes/flint/internal/session"
	"github.com/flint-notes/flint/internal/store"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Import untracked markdown notes into the record store",
		Long: `Walk the vault and create records for markdown files the store
does not know yet. Already-tracked notes are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd)
		},
	}
	return cmd
}

func runScan(cmd *cobra.Command) error {
	vault, err := resolveVault()
	if err != nil {
		return err
	}
	logStartup("scan")

	cfg, err := config.Load(vault)
	if err != nil {
		return err
	}

	lock := store.NewVaultLock(config.StateDir(vault))
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("vault is managed by a running flintd; it scans on startup")
	}
	defer func() { _ = lock.Unlock() }()

	st, err := store.OpenWithCache(cfg.ResolveDBPath(vault), cfg.Storage.CacheSize)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	var idx index.Index = index.Disabled{}
	if cfg.Index.Enabled {
		bleveIdx, err := index.Open(cfg.ResolveIndexPath(vault))
		if err != nil {
			return err
		}
		idx = bleveIdx
	}
	defer func() { _ = idx.Close() }()

	eng, err := engine.New(st, idx, session.NewRegistry(), engine.Options{VaultRoot: vault})
	if err != nil {
		return err
	}

	ctx := context.Background()
	defer func() { _ = eng.Close(ctx) }()

	imported, err := eng.ScanVault(ctx)
	if err != nil {
		return err
	}

	total, err := st.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d new notes (%d total)\n", imported, total)
	return nil
}
