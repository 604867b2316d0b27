package kerberos

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	krb5config "github.com/jcmturner/gokrb5/v8/config"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/secenv"
)

// DefaultKrb5Conf is the system Kerberos configuration.
const DefaultKrb5Conf = "/etc/krb5.conf"

// EnvKrb5Config is the MIT environment variable that overrides the
// configuration path. It may hold a colon-separated list.
const EnvKrb5Config = "KRB5_CONFIG"

// Provider holds the parsed krb5.conf.
//
// Thread Safety: All methods are safe for concurrent use. The configuration
// is loaded lazily on first use and then cached.
type Provider struct {
	path string

	once     sync.Once
	krb5Conf *krb5config.Config
	err      error
}

// NewProvider creates a provider for the given krb5.conf path. The path is
// resolved with ResolveKrb5ConfPath; nothing is read until first use.
func NewProvider(configured string) *Provider {
	return &Provider{path: ResolveKrb5ConfPath(configured)}
}

// Path returns the resolved krb5.conf path.
func (p *Provider) Path() string {
	return p.path
}

// Krb5Config returns the loaded Kerberos configuration, or nil when the file
// does not exist.
func (p *Provider) Krb5Config() (*krb5config.Config, error) {
	p.once.Do(func() {
		p.krb5Conf, p.err = loadKrb5Conf(p.path)
	})
	return p.krb5Conf, p.err
}

// DefaultRealm returns libdefaults.default_realm. An empty string with a nil
// error means no default realm is configured.
func (p *Provider) DefaultRealm() (string, error) {
	cfg, err := p.Krb5Config()
	if err != nil {
		return "", err
	}
	if cfg == nil {
		return "", nil
	}
	return cfg.LibDefaults.DefaultRealm, nil
}

// DefaultRealm is a shortcut for NewProvider(configured).DefaultRealm().
func DefaultRealm(configured string) (string, error) {
	return NewProvider(configured).DefaultRealm()
}

// ResolveKrb5ConfPath picks the krb5.conf path. KRB5_CONFIG takes
// precedence over the configured path; the first existing entry of its list
// is used, or the first entry if none exists. Like libkrb5, KRB5_CONFIG is
// ignored in a set-id process.
func ResolveKrb5ConfPath(configured string) string {
	if env := secenv.Getenv(EnvKrb5Config); env != "" {
		var first string
		for _, candidate := range filepath.SplitList(env) {
			candidate = strings.TrimSpace(candidate)
			if candidate == "" {
				continue
			}
			if first == "" {
				first = candidate
			}
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		if first != "" {
			return first
		}
	}

	if configured != "" {
		return configured
	}
	return DefaultKrb5Conf
}

// loadKrb5Conf reads and parses a Kerberos configuration file. A missing
// file yields (nil, nil). Directives gokrb5 does not understand are logged
// and skipped.
func loadKrb5Conf(path string) (*krb5config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("No Kerberos configuration found", logger.KeyPath, path)
			return nil, nil
		}
		return nil, fmt.Errorf("stat krb5.conf %s: %w", path, err)
	}

	cfg, err := krb5config.Load(path)
	if err != nil {
		var unsupported krb5config.UnsupportedDirective
		if errors.As(err, &unsupported) && cfg != nil {
			logger.Debug("Ignoring unsupported krb5.conf directive",
				logger.KeyPath, path, logger.KeyError, err)
			return cfg, nil
		}
		return nil, fmt.Errorf("parse krb5.conf %s: %w", path, err)
	}

	return cfg, nil
}
