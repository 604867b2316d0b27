package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of cfg and the cross-field rules the tags
// cannot express. Each failing field is reported on its own line.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s' validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		return errors.New(strings.Join(msgs, "\n"))
	}

	if _, err := ccache.ParseTieBreak(cfg.Policy.TieBreak); err != nil {
		return fmt.Errorf("Config.Policy.TieBreak: %w", err)
	}

	if cfg.Cache.Backend == BackendDir && !strings.HasPrefix(cfg.Cache.DirPath, "/") {
		return fmt.Errorf("Config.Cache.DirPath: must be absolute, got %q", cfg.Cache.DirPath)
	}

	return nil
}
