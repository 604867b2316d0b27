package ccache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache/memory"
)

func TestIsLocalTGT(t *testing.T) {
	assert.True(t, ccache.IsLocalTGT(ccache.TGSPrincipal(realm), realm))

	// Cross-realm TGT.
	assert.False(t, ccache.IsLocalTGT(ccache.NewPrincipal(realm, "krbtgt", "OTHER.ORG"), realm))
	// Issued by another realm.
	assert.False(t, ccache.IsLocalTGT(ccache.NewPrincipal("OTHER.ORG", "krbtgt", realm), realm))
	// Wrong component count.
	assert.False(t, ccache.IsLocalTGT(ccache.NewPrincipal(realm, "krbtgt"), realm))
	assert.False(t, ccache.IsLocalTGT(ccache.NewPrincipal(realm, "krbtgt", realm, "x"), realm))
	// Service ticket.
	assert.False(t, ccache.IsLocalTGT(ccache.NewPrincipal(realm, "host", realm), realm))
}

func TestExtractTGT(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T, coll *memory.Collection, name string) ccache.Cache {
		t.Helper()
		h, err := coll.Resolve(ctx, name)
		require.NoError(t, err)
		t.Cleanup(func() { _ = h.Close() })
		return h
	}

	t.Run("SkipsServiceTickets", func(t *testing.T) {
		coll := memory.New()
		want := tgtFor("bob", -1, 3600)
		name := coll.Add("1", ccache.NewPrincipal(realm, "bob"),
			serviceTicket("bob", "a"), want, serviceTicket("bob", "b"))

		got, err := ccache.ExtractTGT(ctx, open(t, coll, name))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, want.SameTicket(got))
	})

	t.Run("FirstMatchWins", func(t *testing.T) {
		coll := memory.New()
		first := tgtFor("bob", -5, 3600)
		name := coll.Add("1", ccache.NewPrincipal(realm, "bob"), first, tgtFor("bob", -1, 3600))

		got, err := ccache.ExtractTGT(ctx, open(t, coll, name))
		require.NoError(t, err)
		assert.True(t, first.SameTicket(got))
	})

	t.Run("UsesCacheRealm", func(t *testing.T) {
		coll := memory.New()
		name := coll.Add("1", ccache.NewPrincipal("OTHER.ORG", "bob"), tgtFor("bob", -1, 3600))

		got, err := ccache.ExtractTGT(ctx, open(t, coll, name))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("NoTGT", func(t *testing.T) {
		coll := memory.New()
		name := coll.Add("1", ccache.NewPrincipal(realm, "bob"), serviceTicket("bob", "a"))

		got, err := ccache.ExtractTGT(ctx, open(t, coll, name))
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, 1, coll.OpenHandles())
	})

	t.Run("UnreadableCache", func(t *testing.T) {
		coll := memory.New()
		name := coll.Add("1", ccache.NewPrincipal(realm, "bob"), tgtFor("bob", -1, 3600))
		coll.FailCredentials(name, errors.New("permission denied"))

		got, err := ccache.ExtractTGT(ctx, open(t, coll, name))
		assert.Error(t, err)
		assert.Nil(t, got)
	})

	t.Run("Uninitialized", func(t *testing.T) {
		coll := memory.New()
		name := coll.AddUninitialized("1")

		_, err := ccache.ExtractTGT(ctx, open(t, coll, name))
		assert.ErrorIs(t, err, ccache.ErrNotInitialized)
	})
}
