package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "devnet", cfg.Env)
	assert.Equal(t, "temp", cfg.CacheName)
	assert.Equal(t, 100, cfg.Upload.MaxAttempts)
	assert.Equal(t, 10, cfg.Reconcile.BatchSize)
	assert.Equal(t, 1000, cfg.Reconcile.GroupSize)
	assert.Equal(t, 500, cfg.Verify.GroupSize)
	assert.Equal(t, 2*time.Minute, cfg.Storage.Timeout)
	assert.True(t, cfg.Upload.Mutable)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bundlepress.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
env: mainnet-beta
cache_name: drop-1
ledger:
  rpc_url: https://ledger.example.test
  timeout: 15s
upload:
  max_attempts: 5
`), 0o644))
	t.Setenv("BUNDLEPRESS_CACHE_NAME", "drop-2")
	t.Setenv("BUNDLEPRESS_VERIFY_GROUP_SIZE", "50")

	v, err := NewViper(file)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "mainnet-beta", cfg.Env)
	assert.Equal(t, "drop-2", cfg.CacheName, "env overrides file")
	assert.Equal(t, "https://ledger.example.test", cfg.Ledger.RPCURL)
	assert.Equal(t, 15*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, 5, cfg.Upload.MaxAttempts)
	assert.Equal(t, 50, cfg.Verify.GroupSize)
}

func TestExplicitConfigFileMustExist(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestBindFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	fs := pflag.NewFlagSet("upload", pflag.ContinueOnError)
	fs.Int("max-attempts", 100, "")
	fs.String("cache-name", "temp", "")
	require.NoError(t, fs.Parse([]string{"--max-attempts=3", "--cache-name=run7"}))

	v, err := NewViper("")
	require.NoError(t, err)
	require.NoError(t, BindFlags(v, fs, map[string]string{
		"max-attempts": "upload.max_attempts",
		"cache-name":   "cache_name",
		"not-declared": "env",
	}))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Upload.MaxAttempts)
	assert.Equal(t, "run7", cfg.CacheName)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunConfig)
		key    string
	}{
		{name: "empty env", mutate: func(c *RunConfig) { c.Env = "" }, key: "env"},
		{name: "cache name with separator", mutate: func(c *RunConfig) { c.CacheName = "../x" }, key: "cache_name"},
		{name: "unknown storage", mutate: func(c *RunConfig) { c.Storage.Backend = "ipfs" }, key: "storage.backend"},
		{name: "zero attempts", mutate: func(c *RunConfig) { c.Upload.MaxAttempts = 0 }, key: "upload.max_attempts"},
		{name: "group smaller than batch", mutate: func(c *RunConfig) { c.Reconcile.GroupSize = 5 }, key: "reconcile.group_size"},
		{name: "negative total", mutate: func(c *RunConfig) { c.TotalItems = -1 }, key: "total_items"},
		{name: "unknown ledger", mutate: func(c *RunConfig) { c.Ledger.Backend = "carrier-pigeon" }, key: "ledger.backend"},
		{name: "rpc without url", mutate: func(c *RunConfig) { c.Ledger.RPCURL = "" }, key: "ledger.rpc_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.key, ce.Key)
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())

	cfg.Ledger.Backend = LedgerMemory
	cfg.Ledger.RPCURL = ""
	assert.NoError(t, cfg.Validate(), "memory ledger needs no url")
}

func TestDocumentName(t *testing.T) {
	cfg := Default()
	cfg.CacheName = "bears"
	assert.Equal(t, "bears", cfg.DocumentName())

	cfg.Ledger.Backend = LedgerMemory
	assert.Equal(t, "bears-dryrun", cfg.DocumentName())
}
