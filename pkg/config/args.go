package config

import (
	"strings"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
)

// ModuleArgs is the parsed PAM module argument list.
//
// Recognized arguments:
//
//	debug            raise the log level to DEBUG
//	random           use a random 10-letter suffix
//	suffix=<s>       use a fixed suffix
//	config=<path>    load configuration from path
//	backend=<name>   kcm or dir
//
// random and suffix= override each other; the last one wins.
type ModuleArgs struct {
	Debug      bool
	Random     bool
	Suffix     string
	ConfigPath string
	Backend    string
}

// HasSelection reports whether a selection argument was given.
func (a ModuleArgs) HasSelection() bool {
	return a.Random || a.Suffix != ""
}

// ParseModuleArgs parses the argv handed to a pam_sm_* hook. Malformed and
// unknown arguments are logged and ignored.
func ParseModuleArgs(argv []string) ModuleArgs {
	var args ModuleArgs

	for _, arg := range argv {
		key, value, hasValue := strings.Cut(arg, "=")
		switch {
		case arg == "debug":
			args.Debug = true
		case arg == "random":
			args.Random = true
			args.Suffix = ""
		case key == "suffix" && hasValue:
			if value == "" {
				logger.Warn("suffix= specification missing argument - ignored")
				continue
			}
			args.Suffix = value
			args.Random = false
		case key == "config" && hasValue && value != "":
			args.ConfigPath = value
		case key == "backend" && hasValue && value != "":
			args.Backend = strings.ToLower(value)
		default:
			logger.Warn("Unknown module argument ignored", "argument", arg)
		}
	}

	return args
}

// Apply overlays the arguments on cfg. A selection argument replaces the
// selection from the configuration file entirely.
func (a ModuleArgs) Apply(cfg *Config) {
	if a.Debug {
		cfg.Debug = true
		cfg.Logging.Level = "DEBUG"
	}
	if a.HasSelection() {
		cfg.Selection = SelectionConfig{Suffix: a.Suffix, Random: a.Random}
	}
	if a.Backend != "" {
		cfg.Cache.Backend = a.Backend
	}
}
