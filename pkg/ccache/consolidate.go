package ccache

import (
	"context"
	"errors"
	"io"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
)

// Consolidator places a scan winner into the fixed target cache.
type Consolidator struct {
	// DefaultRealm completes a bare user name when the target cache has to be
	// initialized without a winner.
	DefaultRealm string
}

// Result describes what Consolidate did.
type Result struct {
	Target string
	Source string

	// AlreadyTarget is set when the winner already was the target cache.
	AlreadyTarget bool
	// Initialized is set when the target cache had to be initialized.
	Initialized bool
	// Copied is set when the winner's TGT was stored into the target.
	Copied bool
}

// Consolidate makes sure the cache named target exists, is initialized, and
// holds the winner's TGT. Ownership of w passes to Consolidate, which closes
// it before returning. w may be nil when the scan found nothing.
//
// Failures are returned as *ConsolidateError.
func (c *Consolidator) Consolidate(ctx context.Context, coll Collection, target, user string, w *Winner) (*Result, error) {
	defer closeWinner(w)

	res := &Result{Target: target, Source: w.Name()}

	if w != nil && w.Name() == target {
		logger.Debug("Winning credential cache is already the target", logger.KeyTarget, target)
		res.AlreadyTarget = true
		return res, nil
	}
	if w == nil {
		logger.Info("No suitable source credential cache found", logger.KeyUser, user)
	}

	princ, err := c.targetPrincipal(ctx, user, w)
	if err != nil {
		return nil, &ConsolidateError{Step: StepPrincipal, Target: target, Err: err}
	}

	fixed, err := coll.Resolve(ctx, target)
	if err != nil {
		return nil, &ConsolidateError{Step: StepResolve, Target: target, Err: err}
	}
	defer closeCache(fixed)

	// Re-initializing would drop tickets that earlier runs or other
	// processes placed in the target, so only do it when it has no principal.
	if _, err := fixed.Principal(ctx); err != nil {
		if err := fixed.Initialize(ctx, princ); err != nil {
			return nil, &ConsolidateError{Step: StepInitialize, Target: target, Err: err}
		}
		res.Initialized = true
		logger.Debug("Initialized target credential cache",
			logger.KeyTarget, target, logger.KeyPrincipal, princ.String())
	}

	if w == nil {
		return res, nil
	}

	present, err := contains(ctx, fixed, w.TGT)
	if err != nil {
		logger.Debug("Cannot inspect target credential cache, storing anyway",
			logger.KeyTarget, target, logger.KeyError, err)
	}
	if present {
		logger.Debug("Target credential cache already holds the TGT",
			logger.KeyTarget, target, logger.KeySource, res.Source)
		return res, nil
	}

	if err := fixed.Store(ctx, w.TGT); err != nil {
		return nil, &ConsolidateError{Step: StepStore, Target: target, Source: res.Source, Err: err}
	}
	res.Copied = true
	logger.Info("Copied TGT to fixed credential cache",
		logger.KeySource, res.Source, logger.KeyTarget, target)

	return res, nil
}

// targetPrincipal prefers the winner's principal and falls back to parsing the
// user name.
func (c *Consolidator) targetPrincipal(ctx context.Context, user string, w *Winner) (Principal, error) {
	if w != nil {
		p, err := w.Cache.Principal(ctx)
		if err == nil {
			return p, nil
		}
		logger.Debug("Cannot read principal of winning cache, using user name",
			logger.KeyCache, w.Name(), logger.KeyError, err)
	}
	return ParsePrincipal(user, c.DefaultRealm)
}

func contains(ctx context.Context, cache Cache, want *Credential) (bool, error) {
	cursor, err := cache.Credentials(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = cursor.Close() }()

	for {
		cred, err := cursor.Next(ctx)
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		same := cred.SameTicket(want)
		cred.Wipe()
		if same {
			return true, nil
		}
	}
}
