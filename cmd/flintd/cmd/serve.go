package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flint-notes/flint/internal/config"
	"github.com/flint-notes/flint/internal/engine"
	"github.com/flint-notes/flint/internal/errors"
	"github.com/flint-notes/flint/internal/index"
	"github.com/flint-notes/flint/internal/logging"
	"github.com/flint-notes/flint/internal/session"
	"github.com/flint-notes/flint/internal/store"
	"github.com/flint-notes/flint/internal/watcher"
	"github.com/flint-notes/flint/internal/writer"
)

// shutdownTimeout bounds the final flush on SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var noScan bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon for a vault",
		Long: `Start the synchronization engine for a vault and run until
interrupted. On SIGINT/SIGTERM all pending note writes are flushed
before exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), noScan)
		},
	}

	cmd.Flags().BoolVar(&noScan, "no-scan", false, "Skip the startup scan for untracked notes")

	return cmd
}

func runServe(ctx context.Context, noScan bool) error {
	vault, err := resolveVault()
	if err != nil {
		return err
	}
	logStartup("serve")

	cfg, err := config.Load(vault)
	if err != nil {
		return err
	}

	// Switch to the vault's file-backed logger for the daemon lifetime.
	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxBackups:    cfg.Logging.MaxBackups,
		MaxAgeDays:    cfg.Logging.MaxAgeDays,
		WriteToStderr: true,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.VaultLogPath(vault)
	}
	if debugMode {
		logCfg.Level = "debug"
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return err
	}
	defer cleanup()

	lock := store.NewVaultLock(config.StateDir(vault))
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("vault %s is already managed by another flintd (lock: %s)", vault, lock.Path())
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

	retry := errors.DefaultRetryConfig()
	retry.MaxRetries = cfg.Sync.MaxRetries
	retry.InitialDelay = cfg.RetryInitialDelayDuration()
	retry.MaxDelay = cfg.RetryMaxDelayDuration()

	eng, err := engine.New(st, idx, session.NewRegistry(), engine.Options{
		VaultRoot: vault,
		Queue: writer.Options{
			Debounce: cfg.WriteDebounceDuration(),
			Retry:    retry,
		},
		Watch: watcher.Options{
			DebounceWindow:  cfg.WatchDebounceDuration(),
			PollInterval:    cfg.PollIntervalDuration(),
			EventBufferSize: cfg.Sync.EventBufferSize,
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	slog.Info("flintd serving",
		slog.String("vault", vault),
		slog.String("db", cfg.ResolveDBPath(vault)),
		slog.Bool("index", cfg.Index.Enabled),
	)

	if cfg.ScanOnStartEnabled() && !noScan {
		imported, err := eng.ScanVault(ctx)
		if err != nil {
			slog.Warn("vault scan incomplete", slog.String("error", err.Error()))
		} else if imported > 0 {
			slog.Info("vault scan complete", slog.Int("imported", imported))
		}
	}

	<-ctx.Done()
	slog.Info("shutdown requested, flushing pending writes")

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := eng.Close(flushCtx); err != nil {
		slog.Error("flush on shutdown failed", slog.String("error", err.Error()))
		return err
	}

	slog.Info("flintd stopped")
	return nil
}
