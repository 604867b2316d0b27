package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jcmturner/gokrb5/v8/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache/memory"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/config"
)

const (
	realm     = "EXAMPLE.COM"
	bobUID    = 1000
	rootUID   = 0
	fixedName = "MEMORY:1000:fixed"
)

var scanStart = time.Unix(1_700_000_000, 0)

func at(offset int) ccache.Timestamp {
	return ccache.TimestampOf(scanStart).Add(time.Duration(offset) * time.Second)
}

func tgtFor(user string, issued int) *ccache.Credential {
	return &ccache.Credential{
		Client:    ccache.NewPrincipal(realm, user),
		Server:    ccache.TGSPrincipal(realm),
		Key:       types.EncryptionKey{KeyType: 18, KeyValue: []byte{1, 2, 3, 4}},
		AuthTime:  at(issued),
		StartTime: at(issued),
		EndTime:   at(3600),
		Ticket:    []byte(user + at(issued).String()),
	}
}

// ============================================================================
// Fakes
// ============================================================================

type fakeUsers map[string]int

func (f fakeUsers) LookupUID(name string) (int, error) {
	uid, ok := f[name]
	if !ok {
		return -1, ErrUnknownUser
	}
	return uid, nil
}

// fakePrivilege tracks the simulated effective uid.
type fakePrivilege struct {
	euid       int
	assumed    []int
	restores   int
	assumeErr  error
	restoreErr error
}

func (f *fakePrivilege) Assume(uid int) (Impersonation, error) {
	if f.assumeErr != nil {
		return nil, f.assumeErr
	}
	f.assumed = append(f.assumed, uid)
	prev := f.euid
	f.euid = uid
	return restoreFunc(func() error {
		f.restores++
		f.euid = prev
		return f.restoreErr
	}), nil
}

type restoreFunc func() error

func (r restoreFunc) Restore() error { return r() }

type fakeEnv struct {
	vars map[string]string
	err  error
}

func (f *fakeEnv) Setenv(name, value string) error {
	if f.err != nil {
		return f.err
	}
	if f.vars == nil {
		f.vars = make(map[string]string)
	}
	f.vars[name] = value
	return nil
}

// sharedCollection keeps the memory collection usable across runs and
// counts closes.
type sharedCollection struct {
	*memory.Collection
	closes int
}

func (s *sharedCollection) Close() error {
	s.closes++
	return nil
}

type fixture struct {
	coll    *sharedCollection
	priv    *fakePrivilege
	env     *fakeEnv
	session *Session

	openedAs []int
	openErr  error
}

func newFixture() *fixture {
	f := &fixture{
		coll: &sharedCollection{Collection: memory.New()},
		priv: &fakePrivilege{euid: rootUID},
		env:  &fakeEnv{},
	}
	ranker := ccache.NewRanker()
	ranker.Now = func() time.Time { return scanStart }

	f.session = &Session{
		Users:     fakeUsers{"bob": bobUID, "carol": 1001},
		Privilege: f.priv,
		Suffix:    func() (string, error) { return "qwertzuiop", nil },
		Env:       f.env,
		Open: func(ctx context.Context, uid int) (ccache.Collection, error) {
			f.openedAs = append(f.openedAs, f.priv.euid)
			if f.openErr != nil {
				return nil, f.openErr
			}
			return f.coll, nil
		},
		Ranker:       ranker,
		Consolidator: &ccache.Consolidator{DefaultRealm: realm},
	}
	return f
}

var fixed = config.SelectionConfig{Suffix: "fixed"}

// ============================================================================
// Run
// ============================================================================

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("ConsolidatesYoungestTGT", func(t *testing.T) {
		f := newFixture()
		bob := ccache.NewPrincipal(realm, "bob")
		f.coll.Add("A", bob, tgtFor("bob", -3))
		b := f.coll.Add("B", bob, tgtFor("bob", -1))
		f.coll.Add("C", ccache.NewPrincipal(realm, "carol"), tgtFor("carol", -1))

		out, err := f.session.Run(ctx, "bob", fixed)
		require.NoError(t, err)

		assert.Equal(t, fixedName, out.Target)
		assert.Equal(t, bobUID, out.UID)
		assert.Equal(t, b, out.Result.Source)
		assert.True(t, out.Result.Copied)

		_, creds, ok := f.coll.Snapshot(fixedName)
		require.True(t, ok)
		require.Len(t, creds, 1)
		assert.Equal(t, tgtFor("bob", -1).Ticket, creds[0].Ticket)

		assert.Equal(t, map[string]string{EnvVar: fixedName}, f.env.vars)
		assert.Equal(t, []int{bobUID}, f.priv.assumed)
		assert.Equal(t, 1, f.priv.restores)
		assert.Equal(t, rootUID, f.priv.euid)
		assert.Equal(t, 1, f.coll.closes)
		assert.Zero(t, f.coll.OpenHandles())
	})

	t.Run("OpensCollectionAsTargetUser", func(t *testing.T) {
		f := newFixture()

		_, err := f.session.Run(ctx, "bob", fixed)
		require.NoError(t, err)

		assert.Equal(t, []int{bobUID}, f.openedAs)
	})

	t.Run("NoCandidateInitializesFromUserName", func(t *testing.T) {
		f := newFixture()

		out, err := f.session.Run(ctx, "bob", fixed)
		require.NoError(t, err)
		assert.True(t, out.Result.Initialized)
		assert.False(t, out.Result.Copied)

		p, creds, ok := f.coll.Snapshot(fixedName)
		require.True(t, ok)
		assert.Equal(t, "bob@EXAMPLE.COM", p.String())
		assert.Empty(t, creds)
		assert.Equal(t, fixedName, f.env.vars[EnvVar])
	})

	t.Run("RandomSuffix", func(t *testing.T) {
		f := newFixture()

		out, err := f.session.Run(ctx, "bob", config.SelectionConfig{Random: true})
		require.NoError(t, err)
		assert.Equal(t, "MEMORY:1000:qwertzuiop", out.Target)
	})

	t.Run("Idempotent", func(t *testing.T) {
		f := newFixture()
		f.coll.Add("B", ccache.NewPrincipal(realm, "bob"), tgtFor("bob", -1))

		_, err := f.session.Run(ctx, "bob", fixed)
		require.NoError(t, err)
		_, first, _ := f.coll.Snapshot(fixedName)

		_, err = f.session.Run(ctx, "bob", fixed)
		require.NoError(t, err)
		_, second, _ := f.coll.Snapshot(fixedName)

		assert.Equal(t, first, second)
	})
}

func TestRunFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name        string
		user        string
		sel         config.SelectionConfig
		setup       func(f *fixture)
		wantErr     error
		wantAssumed bool
	}{
		{
			name:    "NoSelection",
			user:    "bob",
			wantErr: ErrNoSelection,
		},
		{
			name: "SuffixGeneratorFails",
			user: "bob",
			sel:  config.SelectionConfig{Random: true},
			setup: func(f *fixture) {
				f.session.Suffix = func() (string, error) { return "", boom }
			},
			wantErr: boom,
		},
		{
			name:    "UnknownUser",
			user:    "mallory",
			sel:     fixed,
			wantErr: ErrUnknownUser,
		},
		{
			name:    "EmptyUser",
			user:    "",
			sel:     fixed,
			wantErr: ErrUnknownUser,
		},
		{
			name: "AssumeFails",
			user: "bob",
			sel:  fixed,
			setup: func(f *fixture) {
				f.priv.assumeErr = ErrPrivilege
			},
			wantErr: ErrPrivilege,
		},
		{
			name: "OpenFails",
			user: "bob",
			sel:  fixed,
			setup: func(f *fixture) {
				f.openErr = boom
			},
			wantErr:     boom,
			wantAssumed: true,
		},
		{
			name: "CollectionUnreadable",
			user: "bob",
			sel:  fixed,
			setup: func(f *fixture) {
				f.coll.FailList(boom)
			},
			wantErr:     ccache.ErrCollection,
			wantAssumed: true,
		},
		{
			name: "StoreFails",
			user: "bob",
			sel:  fixed,
			setup: func(f *fixture) {
				f.coll.Add("B", ccache.NewPrincipal(realm, "bob"), tgtFor("bob", -1))
				f.coll.FailStore(fixedName, boom)
			},
			wantErr:     boom,
			wantAssumed: true,
		},
		{
			name: "RestoreFails",
			user: "bob",
			sel:  fixed,
			setup: func(f *fixture) {
				f.priv.restoreErr = errors.New("EPERM")
			},
			wantErr:     ErrPrivilege,
			wantAssumed: true,
		},
		{
			name: "PublishFails",
			user: "bob",
			sel:  fixed,
			setup: func(f *fixture) {
				f.env.err = boom
			},
			wantErr:     ErrPublish,
			wantAssumed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f)
			}

			out, err := f.session.Run(ctx, tt.user, tt.sel)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Empty(t, f.env.vars, "nothing is published on failure")
			assert.Zero(t, f.coll.OpenHandles())
			if tt.wantAssumed {
				assert.Equal(t, 1, f.priv.restores, "privilege restored exactly once")
				assert.Equal(t, rootUID, f.priv.euid)
			} else {
				assert.Empty(t, f.priv.assumed)
			}
		})
	}
}

// ============================================================================
// Inspect
// ============================================================================

func TestInspect(t *testing.T) {
	f := newFixture()
	bob := ccache.NewPrincipal(realm, "bob")
	f.coll.Add("A", bob, tgtFor("bob", -3))
	b := f.coll.Add("B", bob, tgtFor("bob", -1))
	f.coll.Add("C", ccache.NewPrincipal(realm, "carol"), tgtFor("carol", -1))
	f.coll.Add("D", bob, tgtFor("bob", -60))

	rep, err := f.session.Inspect(context.Background(), "bob")
	require.NoError(t, err)

	assert.Equal(t, memory.Namespace, rep.Backend)
	assert.Equal(t, b, rep.Winner)
	require.Len(t, rep.Candidates, 4)

	verdicts := make([]string, 0, len(rep.Candidates))
	for _, c := range rep.Candidates {
		verdicts = append(verdicts, c.Verdict.String())
	}
	assert.Equal(t, []string{"accepted", "accepted", "foreign-principal", "stale"}, verdicts)
	assert.Equal(t, at(-1), rep.Candidates[1].Freshness)

	_, _, exists := f.coll.Snapshot(fixedName)
	assert.False(t, exists, "inspect must not create the target")
	assert.Empty(t, f.env.vars)
	assert.Zero(t, f.coll.OpenHandles())
	assert.Equal(t, 1, f.priv.restores)
}

// ============================================================================
// System collaborators
// ============================================================================

func TestRandomSuffix(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		s, err := RandomSuffix()
		require.NoError(t, err)
		assert.Len(t, s, RandomSuffixLength)
		assert.Empty(t, strings.Trim(s, suffixAlphabet), "only lowercase letters")
		seen[s] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestSystemUsers(t *testing.T) {
	_, err := SystemUsers{}.LookupUID("no-such-user-kcmcache")
	assert.ErrorIs(t, err, ErrUnknownUser)

	uid, err := SystemUsers{}.LookupUID("root")
	if err != nil {
		t.Skipf("no root entry in user database: %v", err)
	}
	assert.Equal(t, 0, uid)
}

func TestRunLogsUserOnce(t *testing.T) {
	buf := new(bytes.Buffer)
	logger.InitWithWriter(buf, "DEBUG", "text", false)
	t.Cleanup(func() { logger.InitWithWriter(os.Stderr, "INFO", "text", false) })

	f := newFixture()
	ctx := logger.WithContext(context.Background(), logger.NewLogContext("sshd", "open_session", "mallory"))

	_, err := f.session.Run(ctx, "mallory", config.SelectionConfig{Suffix: "fixed"})
	require.ErrorIs(t, err, ErrUnknownUser)

	out := buf.String()
	assert.Contains(t, out, "No such user")
	assert.Equal(t, 1, strings.Count(out, "user=mallory"))
}

func TestEffectiveUIDSameUserIsNoop(t *testing.T) {
	imp, err := EffectiveUID{}.Assume(os.Geteuid())
	require.NoError(t, err)
	assert.NoError(t, imp.Restore())
}

func TestNew(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Policy.TieBreak = "last"
	cfg.Cache.Krb5Conf = "/nonexistent/krb5.conf"
	t.Setenv("KRB5_CONFIG", "")

	s, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, ccache.TieBreakLastSeen, s.Ranker.TieBreak)
	assert.Equal(t, 10*time.Second, s.Ranker.Window)
	assert.Empty(t, s.Consolidator.DefaultRealm)
	assert.IsType(t, ProcessEnv{}, s.Env)
}
