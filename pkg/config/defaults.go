package config

import (
	"strings"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache/kcm"
)

// DefaultDirPath is the ccache directory used by the dir backend.
const DefaultDirPath = "/tmp/krb5cc_%{uid}.d"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false) are replaced with defaults
//   - Explicit values are preserved
//   - Debug forces the DEBUG log level
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyCacheDefaults(&cfg.Cache)
	applyPolicyDefaults(&cfg.Policy)

	if cfg.Debug {
		cfg.Logging.Level = "DEBUG"
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
	if cfg.Tag == "" {
		cfg.Tag = logger.DefaultSyslogTag
	}
}

// applyCacheDefaults sets backend defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	cfg.Backend = strings.ToLower(cfg.Backend)
	if cfg.Backend == "" {
		cfg.Backend = BackendKCM
	}
	if cfg.KCMSocket == "" {
		cfg.KCMSocket = kcm.DefaultSocketPath
	}
	if cfg.KCMTimeout == 0 {
		cfg.KCMTimeout = kcm.DefaultTimeout
	}
	if cfg.DirPath == "" {
		cfg.DirPath = DefaultDirPath
	}
}

// applyPolicyDefaults sets ranking defaults.
func applyPolicyDefaults(cfg *PolicyConfig) {
	if cfg.FreshnessWindow == 0 {
		cfg.FreshnessWindow = ccache.DefaultFreshnessWindow
	}
	cfg.TieBreak = strings.ToLower(cfg.TieBreak)
	if cfg.TieBreak == "" {
		cfg.TieBreak = ccache.TieBreakFirstSeen.String()
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// No selection mode is set, so a default configuration is valid but the
// session flow skips itself until a suffix or random selection is given.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
