// Package pamhook implements the PAM service functions of
// pam_single_kcm_cache independently of libpam. The cgo layer in
// cmd/pam_single_kcm_cache adapts the pam handle to Handle and maps Status to
// PAM return codes.
package pamhook

import (
	"context"
	"io"
	"strings"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/config"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/session"
)

// Status is the outcome of a hook, mapped to PAM_SUCCESS or PAM_IGNORE.
type Status int

const (
	Success Status = iota
	Ignore
)

func (s Status) String() string {
	if s == Success {
		return "PAM_SUCCESS"
	}
	return "PAM_IGNORE"
}

// Hook names, as used in log context.
const (
	HookAuthenticate = "authenticate"
	HookSetcred      = "setcred"
	HookAcctMgmt     = "acct_mgmt"
	HookOpenSession  = "open_session"
	HookCloseSession = "close_session"
	HookChauthtok    = "chauthtok"
)

// Handle is the part of a pam handle the module uses.
type Handle interface {
	// User returns PAM_USER.
	User() (string, error)
	// Service returns PAM_SERVICE, or "" if unavailable.
	Service() string
	// Setenv adds a binding to the PAM environment (pam_putenv).
	Setenv(name, value string) error
}

// Consolidate runs the session flow for pam_sm_setcred and
// pam_sm_open_session. It returns Success only when the target cache is in
// place and KRB5CCNAME is published.
func Consolidate(h Handle, hook string, argv []string) Status {
	initSyslog(logger.DefaultSyslogTag)
	defer func() { _ = logger.Close() }()

	args := config.ParseModuleArgs(argv)
	if args.Debug {
		logger.SetLevel("DEBUG")
	}

	// KCMCACHE_* variables belong to whoever started the application.
	cfg, err := config.LoadFile(args.ConfigPath)
	if err != nil {
		logger.Error("Cannot load configuration", logger.KeyPath, args.ConfigPath, logger.KeyError, err)
		return Ignore
	}
	args.Apply(cfg)
	if err := config.Validate(cfg); err != nil {
		logger.Error("Invalid module configuration", logger.KeyError, err)
		return Ignore
	}

	// stdout and stderr belong to the application that loaded the module.
	logCfg := cfg.LoggerConfig()
	switch strings.ToLower(logCfg.Output) {
	case "stdout", "stderr", "":
		logCfg.Output = logger.OutputSyslog
	}
	if logCfg.Output != logger.OutputSyslog || logCfg.Tag != logger.DefaultSyslogTag {
		if err := logger.Init(logCfg); err != nil {
			logger.Error("Cannot initialize logging", logger.KeyError, err)
		}
	} else {
		logger.SetLevel(logCfg.Level)
		logger.SetFormat(logCfg.Format)
	}

	user, err := h.User()
	if err != nil {
		logger.Error("Cannot get PAM user", logger.KeyError, err)
		return Ignore
	}

	ctx := logger.WithContext(context.Background(), logger.NewLogContext(h.Service(), hook, user))

	s, err := session.New(cfg, h)
	if err != nil {
		logger.ErrorCtx(ctx, "Cannot set up session", logger.KeyError, err)
		return Ignore
	}

	out, err := s.Run(ctx, user, cfg.Selection)
	if err != nil {
		// Already logged by the session; never deny the login.
		return Ignore
	}

	logger.DebugCtx(ctx, "Published credential cache",
		logger.KeyTarget, out.Target, logger.KeySource, out.Result.Source)
	return Success
}

// Authenticate implements pam_sm_authenticate, which has nothing to do.
func Authenticate() Status {
	return Ignore
}

// AcctMgmt implements pam_sm_acct_mgmt.
func AcctMgmt() Status {
	return misplaced("pam_sm_acct_mgmt")
}

// Chauthtok implements pam_sm_chauthtok.
func Chauthtok() Status {
	return misplaced("pam_sm_chauthtok")
}

// CloseSession implements pam_sm_close_session. The fixed cache outlives the
// session on purpose, so there is nothing to clean up.
func CloseSession() Status {
	return Success
}

func misplaced(fn string) Status {
	initSyslog(logger.DefaultSyslogTag)
	defer func() { _ = logger.Close() }()

	logger.Notice(fn + " called inappropriately")
	return Ignore
}

// initSyslog routes logging to syslog, or discards it when syslog is not
// reachable.
func initSyslog(tag string) {
	err := logger.Init(logger.Config{Level: "INFO", Format: "text", Output: logger.OutputSyslog, Tag: tag})
	if err != nil {
		logger.InitWithWriter(io.Discard, "INFO", "text", false)
	}
}
