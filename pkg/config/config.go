package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/secenv"
)

// Config represents the pam_single_kcm_cache configuration.
//
// The same structure drives the PAM module and the kcmcache CLI:
//   - Logging configuration
//   - Cache collection backend (KCM daemon or ccache directory)
//   - Target cache selection (fixed or random suffix)
//   - Candidate ranking policy
//
// Configuration sources (in order of precedence):
//  1. PAM module arguments or CLI flags (highest priority)
//  2. Environment variables (KCMCACHE_*), CLI only
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Cache selects and configures the credential cache collection
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Selection decides the name of the fixed target cache
	Selection SelectionConfig `mapstructure:"selection" yaml:"selection"`

	// Policy tunes how candidate caches are ranked
	Policy PolicyConfig `mapstructure:"policy" yaml:"policy"`

	// Debug raises the log level to DEBUG. It never changes behavior.
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, syslog, or a file path
	// The PAM module always uses syslog instead of stdout/stderr, which
	// belong to the calling application.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`

	// Tag is the syslog identifier
	// Default: pam_single_kcm_cache
	Tag string `mapstructure:"tag" yaml:"tag,omitempty"`
}

// LoggerConfig converts the logging section into the logger's configuration.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
		Tag:    c.Logging.Tag,
	}
}

// Backend names accepted in CacheConfig.Backend.
const (
	BackendKCM = "kcm"
	BackendDir = "dir"
)

// CacheConfig selects the credential cache collection.
type CacheConfig struct {
	// Backend is the collection type
	// Valid values: kcm, dir
	// Default: kcm
	Backend string `mapstructure:"backend" validate:"required,oneof=kcm dir" yaml:"backend"`

	// KCMSocket is the KCM daemon's unix socket
	// Default: /var/run/.heim_org.h5l.kcm-socket
	KCMSocket string `mapstructure:"kcm_socket" validate:"required_if=Backend kcm" yaml:"kcm_socket"`

	// KCMTimeout bounds one request to the KCM daemon
	// Default: 5s
	KCMTimeout time.Duration `mapstructure:"kcm_timeout" validate:"gte=0" yaml:"kcm_timeout"`

	// DirPath is the ccache directory for the dir backend. "%{uid}" is
	// replaced with the target user's numeric id.
	// Default: /tmp/krb5cc_%{uid}.d
	DirPath string `mapstructure:"dir_path" validate:"required_if=Backend dir" yaml:"dir_path"`

	// Krb5Conf overrides the krb5.conf used to find the default realm
	// Default: $KRB5_CONFIG or /etc/krb5.conf
	Krb5Conf string `mapstructure:"krb5_conf" yaml:"krb5_conf,omitempty"`
}

// SelectionConfig decides the suffix of the fixed target cache name. At most
// one of Suffix and Random may be set; with neither, the module does nothing.
type SelectionConfig struct {
	// Suffix is a fixed, operator-chosen suffix
	Suffix string `mapstructure:"suffix" validate:"omitempty,excludesall=:/@\\,excluded_with=Random" yaml:"suffix,omitempty"`

	// Random requests a random 10-letter lowercase suffix per session
	Random bool `mapstructure:"random" yaml:"random,omitempty"`
}

// Enabled reports whether a selection mode is configured.
func (s SelectionConfig) Enabled() bool {
	return s.Random || s.Suffix != ""
}

// PolicyConfig tunes the ranking of candidate caches.
type PolicyConfig struct {
	// FreshnessWindow is how old a TGT may be and still be picked
	// Default: 10s
	FreshnessWindow time.Duration `mapstructure:"freshness_window" validate:"gt=0" yaml:"freshness_window"`

	// TieBreak picks between equally fresh TGTs
	// Valid values: first, last
	// Default: first
	TieBreak string `mapstructure:"tie_break" validate:"required,oneof=first last" yaml:"tie_break"`
}

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "KCMCACHE"

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (KCMCACHE_*)
//  2. Configuration file
//  3. Default values
//
// Environment variables are ignored in a set-id process. A missing
// configuration file is not an error.
func Load(configPath string) (*Config, error) {
	return load(configPath, !secenv.Setid())
}

// LoadFile loads configuration from file and defaults only. The PAM module
// uses it: the environment of the process belongs to the application that
// loaded the module, not to the administrator. An empty path means
// DefaultConfigPath.
func LoadFile(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return load(configPath, false)
}

func load(configPath string, useEnv bool) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath, useEnv)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration and fails if the file does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Print a starting point with:\n"+
			"  kcmcache config show > %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with defaults, the config file location and,
// when useEnv is set, environment variables.
func setupViper(v *viper.Viper, configPath string, useEnv bool) {
	if useEnv {
		// Example: KCMCACHE_LOGGING_LEVEL=DEBUG, KCMCACHE_CACHE_BACKEND=dir
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	// AutomaticEnv only resolves keys viper knows about, so register every
	// key through its default.
	registerDefaults(v)

	if configPath == "" {
		configPath = GetDefaultConfigPath()
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
}

// registerDefaults registers every leaf key with its default value.
func registerDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("debug", d.Debug)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.tag", d.Logging.Tag)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.kcm_socket", d.Cache.KCMSocket)
	v.SetDefault("cache.kcm_timeout", d.Cache.KCMTimeout)
	v.SetDefault("cache.dir_path", d.Cache.DirPath)
	v.SetDefault("cache.krb5_conf", d.Cache.Krb5Conf)
	v.SetDefault("selection.suffix", d.Selection.Suffix)
	v.SetDefault("selection.random", d.Selection.Random)
	v.SetDefault("policy.freshness_window", d.Policy.FreshnessWindow)
	v.SetDefault("policy.tie_break", d.Policy.TieBreak)
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Explicit config file paths surface as *fs.PathError
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "10s", "1m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Plain numbers are seconds, which is what operators mean here
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

// DefaultConfigPath is where the PAM module looks for its configuration.
const DefaultConfigPath = "/etc/security/pam_single_kcm_cache.yaml"

// GetDefaultConfigPath returns the default configuration file path. It can be
// overridden with KCMCACHE_CONFIG, except in a set-id process.
func GetDefaultConfigPath() string {
	if p := secenv.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
