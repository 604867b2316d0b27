package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default output 'stderr', got %q", cfg.Logging.Output)
	}
	if cfg.Logging.Tag != "pam_single_kcm_cache" {
		t.Errorf("Expected default tag, got %q", cfg.Logging.Tag)
	}
}

func TestApplyDefaults_Cache(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Cache.Backend != BackendKCM {
		t.Errorf("Expected default backend 'kcm', got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.KCMSocket != "/var/run/.heim_org.h5l.kcm-socket" {
		t.Errorf("Unexpected default socket %q", cfg.Cache.KCMSocket)
	}
	if cfg.Cache.KCMTimeout != 5*time.Second {
		t.Errorf("Expected default timeout 5s, got %v", cfg.Cache.KCMTimeout)
	}
	if cfg.Cache.DirPath != DefaultDirPath {
		t.Errorf("Expected default dir path, got %q", cfg.Cache.DirPath)
	}
}

func TestApplyDefaults_Policy(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Policy.FreshnessWindow != 10*time.Second {
		t.Errorf("Expected default freshness window 10s, got %v", cfg.Policy.FreshnessWindow)
	}
	if cfg.Policy.TieBreak != "first" {
		t.Errorf("Expected default tie break 'first', got %q", cfg.Policy.TieBreak)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "json",
			Output: "syslog",
			Tag:    "sshd-kcm",
		},
		Cache: CacheConfig{
			Backend:    "DIR",
			KCMTimeout: time.Second,
			DirPath:    "/run/user/%{uid}/krb5cc",
		},
		Policy: PolicyConfig{
			FreshnessWindow: 3 * time.Second,
			TieBreak:        "LAST",
		},
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level normalized to 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Output != "syslog" || cfg.Logging.Tag != "sshd-kcm" {
		t.Errorf("Explicit logging values were overwritten: %+v", cfg.Logging)
	}
	if cfg.Cache.Backend != BackendDir {
		t.Errorf("Expected backend normalized to 'dir', got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.KCMTimeout != time.Second {
		t.Errorf("Expected explicit timeout preserved, got %v", cfg.Cache.KCMTimeout)
	}
	if cfg.Cache.DirPath != "/run/user/%{uid}/krb5cc" {
		t.Errorf("Expected explicit dir path preserved, got %q", cfg.Cache.DirPath)
	}
	if cfg.Policy.FreshnessWindow != 3*time.Second || cfg.Policy.TieBreak != "last" {
		t.Errorf("Explicit policy values were not preserved: %+v", cfg.Policy)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Default config should be valid, got: %v", err)
	}
}
