package ccache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
)

// DefaultFreshnessWindow is how old a TGT may be, relative to the start of the
// scan, and still be picked. It is meant to catch only tickets created by the
// authentication event that triggered the scan.
const DefaultFreshnessWindow = 10 * time.Second

// TieBreak decides between two candidates with the same freshness.
type TieBreak int

const (
	// TieBreakFirstSeen keeps the candidate encountered first.
	TieBreakFirstSeen TieBreak = iota
	// TieBreakLastSeen lets a later candidate with equal freshness win.
	TieBreakLastSeen
)

// String returns the configuration spelling of the tie-break rule.
func (t TieBreak) String() string {
	if t == TieBreakLastSeen {
		return "last"
	}
	return "first"
}

// ParseTieBreak parses "first" or "last".
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "first", "":
		return TieBreakFirstSeen, nil
	case "last":
		return TieBreakLastSeen, nil
	default:
		return TieBreakFirstSeen, fmt.Errorf("invalid tie break %q (valid: first, last)", s)
	}
}

// Verdict is the outcome of inspecting one cache during a scan.
type Verdict int

const (
	VerdictAccepted Verdict = iota
	VerdictNoPrincipal
	VerdictForeignPrincipal
	VerdictNoTGT
	VerdictExpired
	VerdictStale
	VerdictNotYounger
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictNoPrincipal:
		return "no-principal"
	case VerdictForeignPrincipal:
		return "foreign-principal"
	case VerdictNoTGT:
		return "no-tgt"
	case VerdictExpired:
		return "expired"
	case VerdictStale:
		return "stale"
	case VerdictNotYounger:
		return "not-younger"
	default:
		return "unknown"
	}
}

// Candidate describes one visited cache. TGT is only valid for the duration of
// the Observe callback.
type Candidate struct {
	CacheName string
	Principal string
	TGT       *Credential
	Verdict   Verdict
	Err       error
}

// Winner is the cache and TGT selected by a scan. The Winner owns both and
// releases them on Close.
type Winner struct {
	Cache Cache
	TGT   *Credential

	closed bool
}

// Name returns the full name of the winning cache.
func (w *Winner) Name() string {
	if w == nil || w.Cache == nil {
		return ""
	}
	return w.Cache.FullName()
}

// Close wipes the TGT and closes the cache. Safe on nil and idempotent.
func (w *Winner) Close() error {
	if w == nil || w.closed {
		return nil
	}
	w.closed = true
	w.TGT.Wipe()
	w.TGT = nil
	if w.Cache == nil {
		return nil
	}
	return w.Cache.Close()
}

// Ranker scans a collection for the youngest valid TGT of a user.
type Ranker struct {
	// Window bounds how old an accepted TGT may be. Zero means
	// DefaultFreshnessWindow.
	Window time.Duration

	// TieBreak decides between equally fresh candidates.
	TieBreak TieBreak

	// Now returns the scan start time. Nil means time.Now.
	Now func() time.Time

	// Observe, when set, is called once per visited cache.
	Observe func(Candidate)
}

// NewRanker returns a Ranker with the default policy.
func NewRanker() *Ranker {
	return &Ranker{Window: DefaultFreshnessWindow}
}

func (r *Ranker) window() time.Duration {
	if r.Window <= 0 {
		return DefaultFreshnessWindow
	}
	return r.Window
}

func (r *Ranker) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// FindBest returns the winner among coll's caches that belong to user, or nil
// when no cache qualifies. A nil winner with a nil error is a successful scan.
//
// An error wrapping ErrCollection means the collection itself could not be
// iterated; no winner is returned in that case.
func (r *Ranker) FindBest(ctx context.Context, coll Collection, user string) (*Winner, error) {
	now := TimestampOf(r.now())
	notOlderThan := now.Add(-r.window())

	cursor, err := coll.Caches(ctx)
	if err != nil {
		logger.Error("Cannot list credential cache collection",
			logger.KeyBackend, coll.Namespace(), logger.KeyError, err)
		return nil, fmt.Errorf("%w: open cursor: %v", ErrCollection, err)
	}
	defer func() {
		if err := cursor.Close(); err != nil {
			logger.Debug("Cache cursor close failed", logger.KeyError, err)
		}
	}()

	var best *Winner
	for {
		cache, err := cursor.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Error("Cannot read credential cache collection",
				logger.KeyBackend, coll.Namespace(), logger.KeyError, err)
			closeWinner(best)
			return nil, fmt.Errorf("%w: %v", ErrCollection, err)
		}

		tgt, verdict := r.inspect(ctx, cache, user, now, notOlderThan, best)
		if verdict != VerdictAccepted {
			tgt.Wipe()
			closeCache(cache)
			continue
		}

		closeWinner(best)
		best = &Winner{Cache: cache, TGT: tgt}
	}

	return best, nil
}

// inspect evaluates one cache. It never closes the cache; on any verdict other
// than VerdictAccepted the caller releases both the cache and the returned
// credential.
func (r *Ranker) inspect(ctx context.Context, cache Cache, user string, now, notOlderThan Timestamp, best *Winner) (*Credential, Verdict) {
	name := cache.FullName()
	cand := Candidate{CacheName: name}
	defer func() {
		if r.Observe != nil {
			r.Observe(cand)
		}
	}()

	princ, err := cache.Principal(ctx)
	if err != nil {
		logger.Warn("Cannot read principal of credential cache",
			logger.KeyCache, name, logger.KeyError, err)
		cand.Verdict, cand.Err = VerdictNoPrincipal, err
		return nil, cand.Verdict
	}
	cand.Principal = princ.String()

	if !MatchesUser(user, cand.Principal) {
		logger.Debug("Credential cache belongs to another principal",
			logger.KeyCache, name, logger.KeyPrincipal, cand.Principal, logger.KeyUser, user)
		cand.Verdict = VerdictForeignPrincipal
		return nil, cand.Verdict
	}

	tgt, err := ExtractTGT(ctx, cache)
	if err != nil || tgt == nil {
		if err != nil {
			logger.Warn("Cannot read TGT from credential cache",
				logger.KeyCache, name, logger.KeyError, err)
		}
		cand.Verdict, cand.Err = VerdictNoTGT, err
		return nil, cand.Verdict
	}
	cand.TGT = tgt

	fresh := tgt.Freshness()
	switch {
	case !tgt.EndTime.After(now):
		cand.Verdict = VerdictExpired
	case !fresh.After(notOlderThan):
		cand.Verdict = VerdictStale
	case best != nil && !r.younger(fresh, best.TGT.Freshness()):
		cand.Verdict = VerdictNotYounger
	default:
		cand.Verdict = VerdictAccepted
	}

	logger.Debug("Inspected credential cache",
		logger.KeyCache, name,
		logger.KeyPrincipal, cand.Principal,
		logger.KeyVerdict, cand.Verdict.String(),
		"issued", fresh.String(),
		"expires", tgt.EndTime.String())

	return tgt, cand.Verdict
}

func (r *Ranker) younger(fresh, current Timestamp) bool {
	if r.TieBreak == TieBreakLastSeen {
		return !current.After(fresh)
	}
	return fresh.After(current)
}

func closeCache(c Cache) {
	if err := c.Close(); err != nil {
		logger.Debug("Credential cache close failed",
			logger.KeyCache, c.FullName(), logger.KeyError, err)
	}
}

func closeWinner(w *Winner) {
	if err := w.Close(); err != nil {
		logger.Debug("Credential cache close failed",
			logger.KeyCache, w.Name(), logger.KeyError, err)
	}
}
