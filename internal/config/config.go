// Package config loads fincrypt settings from a YAML file, FINCRYPT_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/illarion/fincrypt/internal/audit"
	"github.com/illarion/fincrypt/internal/kdf"
	"github.com/illarion/fincrypt/internal/store"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix        = "FINCRYPT"
	ConfigName       = ".fincrypt"
	ConfigType       = "yaml"
	DefaultAuditLog  = "audit.log"
	DefaultContainer = "fincrypt.db"
)

// Config is the merged configuration.
type Config struct {
	KDF     KDFConfig     `mapstructure:"kdf" yaml:"kdf"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Audit   AuditConfig   `mapstructure:"audit" yaml:"audit"`
	Keyring KeyringConfig `mapstructure:"keyring" yaml:"keyring"`
}

type KDFConfig struct {
	MemoryKiB   uint32 `mapstructure:"memory_kib" yaml:"memory_kib"`
	Time        uint32 `mapstructure:"time" yaml:"time"`
	Parallelism uint8  `mapstructure:"parallelism" yaml:"parallelism"`
}

type StoreConfig struct {
	Path        string        `mapstructure:"path" yaml:"path"`
	WorkDir     string        `mapstructure:"work_dir" yaml:"work_dir"`
	SaveRetries int           `mapstructure:"save_retries" yaml:"save_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	File    string `mapstructure:"file" yaml:"file"`
}

type KeyringConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		KDF: KDFConfig{
			MemoryKiB:   kdf.DefaultMemoryKiB,
			Time:        kdf.DefaultTime,
			Parallelism: kdf.DefaultParallelism,
		},
		Store: StoreConfig{
			Path:        DefaultContainer,
			SaveRetries: store.DefaultSaveRetries,
			RetryDelay:  store.DefaultRetryDelay,
		},
		Keyring: KeyringConfig{Enabled: true},
	}
}

// SetDefaults registers every key with its default so environment variables
// are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("kdf.memory_kib", d.KDF.MemoryKiB)
	v.SetDefault("kdf.time", d.KDF.Time)
	v.SetDefault("kdf.parallelism", d.KDF.Parallelism)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.work_dir", d.Store.WorkDir)
	v.SetDefault("store.save_retries", d.Store.SaveRetries)
	v.SetDefault("store.retry_delay", d.Store.RetryDelay)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.file", d.Audit.File)
	v.SetDefault("keyring.enabled", d.Keyring.Enabled)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads cfgFile, or $HOME/.fincrypt.yaml / ./.fincrypt.yaml when
// cfgFile is empty, and returns the validated configuration. A missing
// default config file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(ConfigName)
		v.SetConfigType(ConfigType)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Audit.Enabled && cfg.Audit.File == "" {
		cfg.Audit.File = defaultAuditPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultAuditPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "fincrypt", DefaultAuditLog)
	}
	return DefaultAuditLog
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := c.KDFParams().Validate(); err != nil {
		return fmt.Errorf("invalid kdf settings: %w", err)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.Store.SaveRetries < 0 {
		return fmt.Errorf("store.save_retries must not be negative")
	}
	if c.Store.RetryDelay < 0 {
		return fmt.Errorf("store.retry_delay must not be negative")
	}
	if c.Store.WorkDir != "" {
		info, err := os.Stat(c.Store.WorkDir)
		if err != nil {
			return fmt.Errorf("store.work_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("store.work_dir %s is not a directory", c.Store.WorkDir)
		}
	}
	return nil
}

func (c *Config) KDFParams() kdf.Params {
	return kdf.Params{
		MemoryKiB:   c.KDF.MemoryKiB,
		Time:        c.KDF.Time,
		Parallelism: c.KDF.Parallelism,
		KeyLen:      kdf.KeySize,
	}
}

// StoreOptions maps the configuration onto store options. Logger and audit
// sink are left for the caller.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Params:      c.KDFParams(),
		WorkDir:     c.Store.WorkDir,
		SaveRetries: c.Store.SaveRetries,
		RetryDelay:  c.Store.RetryDelay,
	}
}

func (c *Config) AuditConfig() *audit.Config {
	return &audit.Config{
		Enabled:  c.Audit.Enabled,
		FilePath: c.Audit.File,
	}
}

// WriteDefault writes the default configuration to path. An existing file is
// never overwritten.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
