//go:build unix

package dir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/wire"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

func TestNewRejectsForeignOwner(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("changing directory ownership requires root")
	}

	// Another user prepared the directory and planted a cache for alice.
	path := filepath.Join(t.TempDir(), "krb5cc_1000.d")
	require.NoError(t, os.Mkdir(path, 0700))
	planted := testTGT("alice", 1700000000)
	planted.Client = ccache.NewPrincipal("EVIL", "alice")
	planted.Server = ccache.TGSPrincipal("EVIL")
	data, err := wire.MarshalFile(planted.Client, planted)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "tkt0"), data, 0600))
	require.NoError(t, os.Chown(path, 65534, 65534))

	_, err = NewWithPath(path)
	assert.ErrorIs(t, err, ErrInsecureDir)
}
