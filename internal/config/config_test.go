package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateUserConfig points the user config at a temp dir so host state
// never leaks into tests.
func isolateUserConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "flint", "config.yaml")
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "1s", cfg.Sync.WriteDebounce)
	assert.Equal(t, "200ms", cfg.Sync.WatchDebounce)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, "100ms", cfg.Sync.RetryInitialDelay)
	assert.Equal(t, "notes.db", cfg.Storage.DBPath)
	assert.True(t, cfg.Index.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.ScanOnStartEnabled())

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolateUserConfig(t)
	vault := t.TempDir()

	cfg, err := Load(vault)

	require.NoError(t, err)
	assert.Equal(t, vault, cfg.Vault.Root)
	assert.Equal(t, time.Second, cfg.WriteDebounceDuration())
	assert.Equal(t, 200*time.Millisecond, cfg.WatchDebounceDuration())
}

func TestLoad_VaultConfigOverridesDefaults(t *testing.T) {
	// Given a vault config tuning the sync section
	isolateUserConfig(t)
	vault := t.TempDir()
	require.NoError(t, os.MkdirAll(StateDir(vault), 0o755))
	require.NoError(t, os.WriteFile(VaultConfigPath(vault), []byte(`
sync:
  write_debounce: 250ms
  max_retries: 5
storage:
  cache_size: 64
`), 0o644))

	// When loading
	cfg, err := Load(vault)

	// Then file values win over defaults, untouched fields keep defaults
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteDebounceDuration())
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 64, cfg.Storage.CacheSize)
	assert.Equal(t, "200ms", cfg.Sync.WatchDebounce)
}

func TestLoad_VaultConfigOverridesUserConfig(t *testing.T) {
	// Given both a user config and a vault config
	userPath := isolateUserConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte(`
logging:
  level: debug
sync:
  write_debounce: 2s
`), 0o644))

	vault := t.TempDir()
	require.NoError(t, os.MkdirAll(StateDir(vault), 0o755))
	require.NoError(t, os.WriteFile(VaultConfigPath(vault), []byte(`
sync:
  write_debounce: 300ms
`), 0o644))

	// When loading
	cfg, err := Load(vault)

	// Then the vault value wins where both set it, user values survive
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, cfg.WriteDebounceDuration())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ScanOnStartHonoredFromFile(t *testing.T) {
	// Given a vault config explicitly disabling the startup scan
	isolateUserConfig(t)
	vault := t.TempDir()
	require.NoError(t, os.MkdirAll(StateDir(vault), 0o755))
	require.NoError(t, os.WriteFile(VaultConfigPath(vault), []byte(`
vault:
  scan_on_start: false
`), 0o644))

	// When loading
	cfg, err := Load(vault)

	// Then the explicit false wins over the enabled default
	require.NoError(t, err)
	assert.False(t, cfg.ScanOnStartEnabled())

	// And an absent field keeps the default
	require.NoError(t, os.WriteFile(VaultConfigPath(vault), []byte(`
sync:
  max_retries: 2
`), 0o644))
	cfg, err = Load(vault)
	require.NoError(t, err)
	assert.True(t, cfg.ScanOnStartEnabled())
}

func TestLoad_ScanOnStartEnvOverride(t *testing.T) {
	isolateUserConfig(t)
	vault := t.TempDir()
	t.Setenv("FLINT_SCAN_ON_START", "false")

	cfg, err := Load(vault)

	require.NoError(t, err)
	assert.False(t, cfg.ScanOnStartEnabled())
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	isolateUserConfig(t)
	vault := t.TempDir()
	require.NoError(t, os.MkdirAll(StateDir(vault), 0o755))
	require.NoError(t, os.WriteFile(VaultConfigPath(vault), []byte(`
logging:
  level: warn
`), 0o644))
	t.Setenv("FLINT_LOG_LEVEL", "error")
	t.Setenv("FLINT_WRITE_DEBOUNCE", "750ms")

	cfg, err := Load(vault)

	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, 750*time.Millisecond, cfg.WriteDebounceDuration())
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	isolateUserConfig(t)
	vault := t.TempDir()
	require.NoError(t, os.MkdirAll(StateDir(vault), 0o755))
	require.NoError(t, os.WriteFile(VaultConfigPath(vault), []byte("sync: [not a map"), 0o644))

	_, err := Load(vault)

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad debounce duration",
			mutate:  func(c *Config) { c.Sync.WriteDebounce = "fast" },
			wantErr: "not a valid duration",
		},
		{
			name:    "negative debounce",
			mutate:  func(c *Config) { c.Sync.WatchDebounce = "-1s" },
			wantErr: "must be positive",
		},
		{
			name:    "retries out of range",
			mutate:  func(c *Config) { c.Sync.MaxRetries = 11 },
			wantErr: "max_retries",
		},
		{
			name:    "zero cache size",
			mutate:  func(c *Config) { c.Storage.CacheSize = 0 },
			wantErr: "cache_size",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDurationAccessorsFallBackOnGarbage(t *testing.T) {
	cfg := NewConfig()
	cfg.Sync.WriteDebounce = "garbage"

	assert.Equal(t, time.Second, cfg.WriteDebounceDuration())
}

func TestResolvePaths(t *testing.T) {
	cfg := NewConfig()
	vault := "/vaults/personal"

	assert.Equal(t, filepath.Join(vault, ".flint", "notes.db"), cfg.ResolveDBPath(vault))
	assert.Equal(t, filepath.Join(vault, ".flint", "index.bleve"), cfg.ResolveIndexPath(vault))

	cfg.Storage.DBPath = "/var/lib/flint/notes.db"
	assert.Equal(t, "/var/lib/flint/notes.db", cfg.ResolveDBPath(vault))
}

func TestFindVaultRoot(t *testing.T) {
	// Given a vault with a .flint dir and a nested subdirectory
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".flint"), 0o755))
	nested := filepath.Join(root, "projects", "notes")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	// When searching from the nested directory
	found, err := FindVaultRoot(nested)

	// Then the directory holding .flint is returned
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestFindVaultRoot_NoMarkerReturnsStart(t *testing.T) {
	dir := t.TempDir()

	found, err := FindVaultRoot(dir)

	require.NoError(t, err)
	assert.Equal(t, dir, found)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	isolateUserConfig(t)
	vault := t.TempDir()

	cfg := NewConfig()
	cfg.Sync.WriteDebounce = "2s"
	cfg.Logging.Level = "debug"
	require.NoError(t, cfg.WriteYAML(VaultConfigPath(vault)))

	loaded, err := Load(vault)
	require.NoError(t, err)
	assert.Equal(t, "2s", loaded.Sync.WriteDebounce)
	assert.Equal(t, "debug", loaded.Logging.Level)
}
