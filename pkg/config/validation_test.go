package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Selection.Suffix = "fixed"

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidBackend(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cache.Backend = "keyring"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown backend")
	}
	if !strings.Contains(err.Error(), "Backend") {
		t.Errorf("Expected error to name the field, got: %v", err)
	}
}

func TestValidate_DirBackendNeedsAbsolutePath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cache.Backend = BackendDir
	cfg.Cache.DirPath = "krb5cc.d"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for relative dir_path")
	}

	cfg.Cache.DirPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for empty dir_path")
	}
}

func TestValidate_Suffix(t *testing.T) {
	tests := []struct {
		name    string
		suffix  string
		wantErr bool
	}{
		{"Letters", "fixed", false},
		{"Digits", "2024", false},
		{"Colon", "a:b", true},
		{"Slash", "../x", true},
		{"At", "a@b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Selection.Suffix = tt.suffix

			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Policy(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Policy.FreshnessWindow = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative freshness window")
	}

	cfg = GetDefaultConfig()
	cfg.Policy.TieBreak = "middle"
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown tie break")
	}
}
