package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/auth/kerberos"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache/backend"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/config"
)

var (
	// ErrNoSelection is returned when neither a fixed nor a random suffix
	// is configured.
	ErrNoSelection = errors.New("no target cache selection: select 'random' or 'suffix=whatever'")

	// ErrUnknownUser is returned when the login user has no system account.
	ErrUnknownUser = errors.New("no such user")

	// ErrPrivilege is returned when the effective uid cannot be switched or
	// restored.
	ErrPrivilege = errors.New("cannot switch privilege")

	// ErrPublish is returned when the target name cannot be exported.
	ErrPublish = errors.New("cannot publish credential cache name")
)

// Session bundles the collaborators of a consolidation run. Zero-valued
// fields are replaced by the system implementations in New.
type Session struct {
	Users        UserDirectory
	Privilege    PrivilegeSwitch
	Suffix       SuffixGenerator
	Env          EnvPublisher
	Open         CollectionOpener
	Ranker       *ccache.Ranker
	Consolidator *ccache.Consolidator
}

// Outcome describes a successful run.
type Outcome struct {
	User   string
	UID    int
	Target string
	Result *ccache.Result
}

// New builds a Session from the configuration using the system user
// database, the effective uid switch, crypto/rand suffixes, and the configured backend.
// env receives the KRB5CCNAME binding; nil means the process environment.
func New(cfg *config.Config, env EnvPublisher) (*Session, error) {
	tie, err := ccache.ParseTieBreak(cfg.Policy.TieBreak)
	if err != nil {
		return nil, err
	}

	realm, err := kerberos.DefaultRealm(cfg.Cache.Krb5Conf)
	if err != nil {
		// Only needed without a winner; the consolidator reports it then.
		logger.Warn("Cannot read Kerberos configuration", logger.KeyError, err)
	}

	if env == nil {
		env = ProcessEnv{}
	}

	cacheCfg := cfg.Cache
	return &Session{
		Users:     SystemUsers{},
		Privilege: EffectiveUID{},
		Suffix:    RandomSuffix,
		Env:       env,
		Open: func(ctx context.Context, uid int) (ccache.Collection, error) {
			return backend.Open(ctx, cacheCfg, uid)
		},
		Ranker: &ccache.Ranker{
			Window:   cfg.Policy.FreshnessWindow,
			TieBreak: tie,
		},
		Consolidator: &ccache.Consolidator{DefaultRealm: realm},
	}, nil
}

// Run consolidates the caches of user into the target cache chosen by sel
// and publishes its name. The returned error, if any, means the session
// should proceed unchanged.
func (s *Session) Run(ctx context.Context, user string, sel config.SelectionConfig) (*Outcome, error) {
	suffix, err := s.suffix(sel)
	if err != nil {
		if errors.Is(err, ErrNoSelection) {
			logger.ErrorCtx(ctx, "select 'random' or 'suffix=whatever'")
		} else {
			logger.ErrorCtx(ctx, "Cannot generate cache suffix", logger.KeyError, err)
		}
		return nil, err
	}

	uid, err := s.lookup(ctx, user)
	if err != nil {
		return nil, err
	}
	ctx = withUID(ctx, uid)

	out := &Outcome{User: user, UID: uid}
	err = s.asUser(ctx, uid, func(coll ccache.Collection) error {
		out.Target = coll.TargetName(uid, suffix)
		logger.InfoCtx(ctx, "Using fixed credential cache", logger.KeyTarget, out.Target)

		w, err := s.ranker().FindBest(ctx, coll, user)
		if err != nil {
			return err
		}
		if w != nil {
			logger.DebugCtx(ctx, "Selected source credential cache", logger.KeySource, w.Name())
		}

		// Consolidate releases w on every path.
		res, err := s.consolidator().Consolidate(ctx, coll, out.Target, user, w)
		if err != nil {
			logger.ErrorCtx(ctx, "Credential cache consolidation failed",
				logger.KeyTarget, out.Target, logger.KeyError, err)
			return err
		}
		out.Result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.Env.Setenv(EnvVar, out.Target); err != nil {
		logger.ErrorCtx(ctx, "Could not set environment variable",
			"variable", EnvVar+"="+out.Target, logger.KeyError, err)
		return nil, fmt.Errorf("%w: %v", ErrPublish, err)
	}

	return out, nil
}

// Report is the read-only view of a scan produced by Inspect.
type Report struct {
	User       string
	UID        int
	Backend    string
	Candidates []Observation
	Winner     string
}

// Observation is a Candidate detached from the scan: the TGT is reduced to
// the timestamps that drove the verdict.
type Observation struct {
	CacheName string
	Principal string
	Verdict   ccache.Verdict
	Freshness ccache.Timestamp
	EndTime   ccache.Timestamp
	Flags     string
	Err       error
}

// Inspect ranks the caches of user without changing anything.
func (s *Session) Inspect(ctx context.Context, user string) (*Report, error) {
	uid, err := s.lookup(ctx, user)
	if err != nil {
		return nil, err
	}
	ctx = withUID(ctx, uid)

	rep := &Report{User: user, UID: uid}
	err = s.asUser(ctx, uid, func(coll ccache.Collection) error {
		rep.Backend = coll.Namespace()

		r := *s.ranker()
		r.Observe = func(c ccache.Candidate) {
			o := Observation{
				CacheName: c.CacheName,
				Principal: c.Principal,
				Verdict:   c.Verdict,
				Err:       c.Err,
			}
			if c.TGT != nil {
				o.Freshness = c.TGT.Freshness()
				o.EndTime = c.TGT.EndTime
				o.Flags = c.TGT.FlagString()
			}
			rep.Candidates = append(rep.Candidates, o)
		}

		w, err := r.FindBest(ctx, coll, user)
		if err != nil {
			return err
		}
		rep.Winner = w.Name()
		return w.Close()
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (s *Session) suffix(sel config.SelectionConfig) (string, error) {
	switch {
	case sel.Random:
		return s.Suffix()
	case sel.Suffix != "":
		return sel.Suffix, nil
	default:
		return "", ErrNoSelection
	}
}

func (s *Session) lookup(ctx context.Context, user string) (int, error) {
	if user == "" {
		logger.ErrorCtx(ctx, "No user name available")
		return -1, fmt.Errorf("%w: empty user name", ErrUnknownUser)
	}
	uid, err := s.Users.LookupUID(user)
	if err != nil {
		logger.ErrorCtx(ctx, "No such user", logger.KeyError, err)
		if !errors.Is(err, ErrUnknownUser) {
			err = fmt.Errorf("%w: %v", ErrUnknownUser, err)
		}
		return -1, err
	}
	return uid, nil
}

// asUser runs fn with the effective uid of uid and the collection opened as
// that user. The collection is closed and the privilege restored on every
// path; a failed restore overrides fn's result.
func (s *Session) asUser(ctx context.Context, uid int, fn func(ccache.Collection) error) (err error) {
	imp, err := s.Privilege.Assume(uid)
	if err != nil {
		logger.ErrorCtx(ctx, "Could not change to user", logger.KeyError, err)
		return err
	}
	defer func() {
		if rerr := imp.Restore(); rerr != nil {
			logger.ErrorCtx(ctx, "Could not change back to original user", logger.KeyError, rerr)
			if !errors.Is(rerr, ErrPrivilege) {
				rerr = fmt.Errorf("%w: restore: %v", ErrPrivilege, rerr)
			}
			err = rerr
		}
	}()

	coll, err := s.Open(ctx, uid)
	if err != nil {
		logger.ErrorCtx(ctx, "Cannot open credential cache collection", logger.KeyError, err)
		return err
	}
	defer func() {
		if cerr := coll.Close(); cerr != nil {
			logger.DebugCtx(ctx, "Closing credential cache collection failed", logger.KeyError, cerr)
		}
	}()

	return fn(coll)
}

func (s *Session) ranker() *ccache.Ranker {
	if s.Ranker == nil {
		return ccache.NewRanker()
	}
	return s.Ranker
}

func (s *Session) consolidator() *ccache.Consolidator {
	if s.Consolidator == nil {
		return &ccache.Consolidator{}
	}
	return s.Consolidator
}

func withUID(ctx context.Context, uid int) context.Context {
	if lc := logger.FromContext(ctx); lc != nil {
		return logger.WithContext(ctx, lc.WithUID(uid))
	}
	return ctx
}
