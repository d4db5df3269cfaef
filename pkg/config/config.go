package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Storage backends understood by the uploader factory.
const (
	StorageArweave = "arweave"
)

// Ledger backends. The memory ledger lives only for the current process and
// is meant for dry runs.
const (
	LedgerRPC    = "rpc"
	LedgerMemory = "memory"
)

// RunConfig holds everything a pipeline invocation needs. It is built once per
// process and treated as read-only afterwards.
type RunConfig struct {
	Env            string          `mapstructure:"env"`
	CacheName      string          `mapstructure:"cache_name"`
	CacheDir       string          `mapstructure:"cache_dir"`
	CredentialPath string          `mapstructure:"keypair"`
	TotalItems     int             `mapstructure:"total_items"`
	Concurrency    int             `mapstructure:"concurrency"`
	Storage        StorageConfig   `mapstructure:"storage"`
	Ledger         LedgerConfig    `mapstructure:"ledger"`
	Upload         UploadConfig    `mapstructure:"upload"`
	Reconcile      ReconcileConfig `mapstructure:"reconcile"`
	Verify         VerifyConfig    `mapstructure:"verify"`
}

// DryRunSuffix is appended to the cache name of runs on the memory ledger.
const DryRunSuffix = "-dryrun"

// DocumentName is the cache name of the progress document this run uses.
// Memory ledger runs keep a separate document so a program that only existed
// in an earlier process is never bound to the real run.
func (c *RunConfig) DocumentName() string {
	if c.Ledger.Backend == LedgerMemory {
		return c.CacheName + DryRunSuffix
	}
	return c.CacheName
}

// StorageConfig selects and configures the durable storage backend
type StorageConfig struct {
	Backend  string        `mapstructure:"backend"`
	Endpoint string        `mapstructure:"endpoint"`
	Gateway  string        `mapstructure:"gateway"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LedgerConfig configures the remote ledger RPC gateway
type LedgerConfig struct {
	Backend string        `mapstructure:"backend"`
	RPCURL  string        `mapstructure:"rpc_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// UploadConfig controls the upload phase
type UploadConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	Mutable         bool          `mapstructure:"mutable"`
	RetainAuthority bool          `mapstructure:"retain_authority"`
}

// ReconcileConfig controls ledger write batching
type ReconcileConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	GroupSize int `mapstructure:"group_size"`
}

// VerifyConfig controls verification fan-out
type VerifyConfig struct {
	GroupSize int `mapstructure:"group_size"`
}

var defaultConfig = RunConfig{
	Env:         "devnet",
	CacheName:   "temp",
	CacheDir:    ".cache",
	Concurrency: 8,
	Storage: StorageConfig{
		Backend:  StorageArweave,
		Endpoint: "https://us-central1-metaplex-studios.cloudfunctions.net/uploadFile",
		Gateway:  "https://arweave.net",
		Timeout:  parseDurationDefault("2m"),
	},
	Ledger: LedgerConfig{
		Backend: LedgerRPC,
		RPCURL:  "http://127.0.0.1:8899",
		Timeout: parseDurationDefault("60s"),
	},
	Upload: UploadConfig{
		MaxAttempts:     100,
		RetryDelay:      parseDurationDefault("2s"),
		Mutable:         true,
		RetainAuthority: true,
	},
	Reconcile: ReconcileConfig{
		BatchSize: 10,
		GroupSize: 1000,
	},
	Verify: VerifyConfig{
		GroupSize: 500,
	},
}

// Default returns a copy of the built-in defaults.
func Default() RunConfig {
	return defaultConfig
}

// ConfigError is a fatal configuration problem detected before any remote call.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Message)
}

// IsConfigError reports whether err wraps a ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// NewViper returns a viper instance with defaults, env binding and the optional
// config file applied. An explicit configFile must exist; the implicit search
// locations are optional.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("env", defaultConfig.Env)
	v.SetDefault("cache_name", defaultConfig.CacheName)
	v.SetDefault("cache_dir", defaultConfig.CacheDir)
	v.SetDefault("keypair", defaultConfig.CredentialPath)
	v.SetDefault("total_items", defaultConfig.TotalItems)
	v.SetDefault("concurrency", defaultConfig.Concurrency)

	v.SetDefault("storage.backend", defaultConfig.Storage.Backend)
	v.SetDefault("storage.endpoint", defaultConfig.Storage.Endpoint)
	v.SetDefault("storage.gateway", defaultConfig.Storage.Gateway)
	v.SetDefault("storage.timeout", defaultConfig.Storage.Timeout)

	v.SetDefault("ledger.backend", defaultConfig.Ledger.Backend)
	v.SetDefault("ledger.rpc_url", defaultConfig.Ledger.RPCURL)
	v.SetDefault("ledger.timeout", defaultConfig.Ledger.Timeout)

	v.SetDefault("upload.max_attempts", defaultConfig.Upload.MaxAttempts)
	v.SetDefault("upload.retry_delay", defaultConfig.Upload.RetryDelay)
	v.SetDefault("upload.mutable", defaultConfig.Upload.Mutable)
	v.SetDefault("upload.retain_authority", defaultConfig.Upload.RetainAuthority)

	v.SetDefault("reconcile.batch_size", defaultConfig.Reconcile.BatchSize)
	v.SetDefault("reconcile.group_size", defaultConfig.Reconcile.GroupSize)
	v.SetDefault("verify.group_size", defaultConfig.Verify.GroupSize)

	v.SetEnvPrefix("BUNDLEPRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigError{Key: "config", Message: fmt.Sprintf("failed to read %s: %v", configFile, err)}
		}
		return v, nil
	}

	v.SetConfigName("bundlepress")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".bundlepress"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &ConfigError{Key: "config", Message: err.Error()}
		}
	}
	return v, nil
}

// BindFlags binds command flags to config keys. Flags missing from fs are skipped
// so commands only bind what they declare.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", flag, err)
		}
	}
	return nil
}

// Load decodes v into a RunConfig and validates it.
func Load(v *viper.Viper) (*RunConfig, error) {
	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("error unmarshaling config: %v", err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks for contradictory or missing settings.
func (c *RunConfig) Validate() error {
	if strings.TrimSpace(c.Env) == "" {
		return &ConfigError{Key: "env", Message: "must not be empty"}
	}
	if strings.TrimSpace(c.CacheName) == "" {
		return &ConfigError{Key: "cache_name", Message: "must not be empty"}
	}
	if strings.ContainsAny(c.CacheName, `/\`) || strings.ContainsAny(c.Env, `/\`) {
		return &ConfigError{Key: "cache_name", Message: "env and cache name must not contain path separators"}
	}
	if c.TotalItems < 0 {
		return &ConfigError{Key: "total_items", Message: "must not be negative"}
	}
	switch c.Storage.Backend {
	case StorageArweave:
		if c.Storage.Endpoint == "" || c.Storage.Gateway == "" {
			return &ConfigError{Key: "storage", Message: "arweave backend needs endpoint and gateway"}
		}
	default:
		return &ConfigError{Key: "storage.backend", Message: fmt.Sprintf("unsupported storage backend %q", c.Storage.Backend)}
	}
	switch c.Ledger.Backend {
	case LedgerRPC:
		if c.Ledger.RPCURL == "" {
			return &ConfigError{Key: "ledger.rpc_url", Message: "must not be empty"}
		}
	case LedgerMemory:
	default:
		return &ConfigError{Key: "ledger.backend", Message: fmt.Sprintf("unsupported ledger backend %q", c.Ledger.Backend)}
	}
	if c.Upload.MaxAttempts < 1 {
		return &ConfigError{Key: "upload.max_attempts", Message: "must be at least 1"}
	}
	if c.Reconcile.BatchSize < 1 {
		return &ConfigError{Key: "reconcile.batch_size", Message: "must be at least 1"}
	}
	if c.Reconcile.GroupSize < c.Reconcile.BatchSize {
		return &ConfigError{Key: "reconcile.group_size", Message: "must not be smaller than reconcile.batch_size"}
	}
	if c.Verify.GroupSize < 1 {
		return &ConfigError{Key: "verify.group_size", Message: "must be at least 1"}
	}
	if c.Concurrency < 1 {
		return &ConfigError{Key: "concurrency", Message: "must be at least 1"}
	}
	return nil
}

// parseDurationDefault is a helper to create default duration values from string literal
func parseDurationDefault(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
