// Package config loads gmailcli settings from defaults, an optional
// config.yaml in the config directory, GMAILCLI_* environment variables and
// command-line flags, in increasing order of precedence.
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

	"github.com/teemow/gmailcli/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g. GMAILCLI_LOG_LEVEL.
const EnvPrefix = "GMAILCLI"

// Token storage backends.
const (
	BackendFile    = "file"
	BackendKeyring = "keyring"
)

// Default file names inside the config directory.
const (
	DefaultDirName          = ".gmail-cli"
	DefaultTokenFile        = "token.json"
	DefaultClientSecretFile = "credentials.json"
	FileName                = "config.yaml"
)

// Flag names bound by BindFlags. Kept here so cmd and tests agree.
const (
	FlagConfigDir = "config-dir"
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"
)

// LogConfig controls the stderr logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the resolved configuration for one invocation.
type Config struct {
	// Dir holds the client secret, the token file and config.yaml.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// TokenFile defaults to <Dir>/token.json.
	TokenFile string `mapstructure:"token_file" yaml:"token_file"`

	// ClientSecretFile defaults to <Dir>/credentials.json.
	ClientSecretFile string `mapstructure:"client_secret_file" yaml:"client_secret_file"`

	// TokenBackend is "file" or "keyring".
	TokenBackend string `mapstructure:"token_backend" yaml:"token_backend"`

	// ExpiryLeeway treats a token as expired this long before its expiry.
	ExpiryLeeway time.Duration `mapstructure:"expiry_leeway" yaml:"expiry_leeway"`

	// AuthTimeout bounds the wait for the browser consent callback.
	AuthTimeout time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout"`

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// DefaultDir returns ~/.gmail-cli, or ./.gmail-cli when the home directory
// cannot be determined.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDirName
	}
	return filepath.Join(home, DefaultDirName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dir", DefaultDir())
	v.SetDefault("token_file", "")
	v.SetDefault("client_secret_file", "")
	v.SetDefault("token_backend", BackendFile)
	v.SetDefault("expiry_leeway", time.Minute)
	v.SetDefault("auth_timeout", 5*time.Minute)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", logging.FormatText)
}

// BindFlags registers the persistent flags that override configuration.
func BindFlags(flags *pflag.FlagSet) {
	flags.String(FlagConfigDir, "", "directory holding credentials.json, token.json and config.yaml (default ~/.gmail-cli)")
	flags.String(FlagLogLevel, "", "log level: debug, info, warn or error (default warn)")
	flags.String(FlagLogFormat, "", "log format: text or json (default text)")
}

// Load resolves the configuration. flags may be nil; when set, only flags the
// user actually changed take precedence.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range map[string]string{
			"dir":        FlagConfigDir,
			"log.level":  FlagLogLevel,
			"log.format": FlagLogFormat,
		} {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	dir, err := expandHome(v.GetString("dir"))
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, FileName)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// The directory that located config.yaml stays authoritative.
	cfg.Dir = dir
	if cfg.TokenFile, err = resolvePath(dir, cfg.TokenFile, DefaultTokenFile); err != nil {
		return nil, err
	}
	if cfg.ClientSecretFile, err = resolvePath(dir, cfg.ClientSecretFile, DefaultClientSecretFile); err != nil {
		return nil, err
	}
	cfg.TokenBackend = strings.ToLower(cfg.TokenBackend)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	return cfg, nil
}

// Validate rejects unknown backends, log settings and negative durations.
func (c *Config) Validate() error {
	switch c.TokenBackend {
	case BackendFile, BackendKeyring:
	default:
		return fmt.Errorf("invalid token_backend %q, must be one of: file, keyring", c.TokenBackend)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	switch c.Log.Format {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("invalid log.format %q, must be one of: text, json", c.Log.Format)
	}

	if c.ExpiryLeeway < 0 {
		return fmt.Errorf("expiry_leeway must not be negative, got %s", c.ExpiryLeeway)
	}
	if c.AuthTimeout <= 0 {
		return fmt.Errorf("auth_timeout must be positive, got %s", c.AuthTimeout)
	}
	return nil
}

// resolvePath expands ~ and anchors relative paths in dir. An empty value
// selects dir/def.
func resolvePath(dir, value, def string) (string, error) {
	if value == "" {
		return filepath.Join(dir, def), nil
	}
	p, err := expandHome(value)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	return p, nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
