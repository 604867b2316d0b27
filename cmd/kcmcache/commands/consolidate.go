package commands

import (
	"fmt"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/session"
)

type consolidateOptions struct {
	user    string
	suffix  string
	random  bool
	backend string
	export  bool
}

func newConsolidateCmd(flags *globalFlags) *cobra.Command {
	opts := &consolidateOptions{}

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Copy the youngest TGT into the fixed credential cache",
		Long: `Scan all credential caches of the user, copy the youngest valid TGT
into the fixed cache <backend>:<uid>:<suffix>, and print the KRB5CCNAME
binding for it.

Run as root with --user to act on behalf of another user, exactly like the
PAM module does.

Examples:
  # Fixed suffix, eval'able output
  eval "$(kcmcache consolidate --suffix shared --export)"

  # Random suffix for another user, ccache directory backend
  kcmcache consolidate --user alice --random --backend dir`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsolidate(cmd, flags, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "Login user (default: current user)")
	cmd.Flags().StringVar(&opts.suffix, "suffix", "", "Fixed target cache suffix")
	cmd.Flags().BoolVar(&opts.random, "random", false, "Use a random 10-letter suffix")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Cache collection backend (kcm|dir)")
	cmd.Flags().BoolVar(&opts.export, "export", false, "Print 'export KRB5CCNAME=...'")
	cmd.MarkFlagsMutuallyExclusive("suffix", "random")

	return cmd
}

func runConsolidate(cmd *cobra.Command, flags *globalFlags, opts *consolidateOptions) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}

	if opts.backend != "" {
		cfg.Cache.Backend = opts.backend
	}
	switch {
	case opts.random:
		cfg.Selection.Random, cfg.Selection.Suffix = true, ""
	case opts.suffix != "":
		cfg.Selection.Random, cfg.Selection.Suffix = false, opts.suffix
	}

	name, err := loginName(opts.user)
	if err != nil {
		return err
	}

	p, err := flags.printer(cmd)
	if err != nil {
		return err
	}

	// The binding is printed, not set: a child process cannot change the
	// caller's environment.
	env := &capturedEnv{}
	s, err := session.New(cfg, env)
	if err != nil {
		return err
	}

	ctx := logger.WithContext(cmd.Context(), logger.NewLogContext("kcmcache", "consolidate", name))
	out, err := s.Run(ctx, name, cfg.Selection)
	if err != nil {
		return err
	}

	logger.Debug("Consolidation finished",
		logger.KeyTarget, out.Target,
		logger.KeySource, out.Result.Source,
		"initialized", out.Result.Initialized,
		"copied", out.Result.Copied)

	p.Env(session.EnvVar, env.value, opts.export)
	return nil
}

// loginName returns name, or the invoking user's name when empty.
func loginName(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("cannot determine current user: %w", err)
	}
	return u.Username, nil
}

// capturedEnv records the published binding for printing.
type capturedEnv struct {
	value string
}

func (e *capturedEnv) Setenv(name, value string) error {
	e.value = value
	return nil
}
