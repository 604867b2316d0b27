package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/user"
	"strconv"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

// EnvVar is the environment variable naming the active credential cache.
const EnvVar = "KRB5CCNAME"

// UserDirectory maps a login name to its numeric uid.
type UserDirectory interface {
	LookupUID(name string) (int, error)
}

// PrivilegeSwitch assumes the effective identity of another user.
type PrivilegeSwitch interface {
	// Assume switches the effective uid. The returned Impersonation must be
	// restored exactly once.
	Assume(uid int) (Impersonation, error)
}

// Impersonation is the capability of acting as the target user.
type Impersonation interface {
	Restore() error
}

// SuffixGenerator returns a random target cache suffix.
type SuffixGenerator func() (string, error)

// EnvPublisher makes a variable visible to the rest of the login session.
type EnvPublisher interface {
	Setenv(name, value string) error
}

// CollectionOpener opens the cache collection for uid. It is called while
// acting as that user.
type CollectionOpener func(ctx context.Context, uid int) (ccache.Collection, error)

// ============================================================================
// System implementations
// ============================================================================

// SystemUsers looks users up in the system user database.
type SystemUsers struct{}

// LookupUID implements UserDirectory.
func (SystemUsers) LookupUID(name string) (int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return -1, fmt.Errorf("%w: %q", ErrUnknownUser, name)
		}
		return -1, fmt.Errorf("%w: %q: %v", ErrUnknownUser, name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return -1, fmt.Errorf("%w: %q has non-numeric uid %q", ErrUnknownUser, name, u.Uid)
	}
	return uid, nil
}

// ProcessEnv publishes to the current process environment.
type ProcessEnv struct{}

// Setenv implements EnvPublisher.
func (ProcessEnv) Setenv(name, value string) error {
	return os.Setenv(name, value)
}

// RandomSuffixLength is the length of generated suffixes.
const RandomSuffixLength = 10

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz"

// RandomSuffix returns RandomSuffixLength lowercase letters drawn from
// crypto/rand.
func RandomSuffix() (string, error) {
	buf := make([]byte, RandomSuffixLength)
	letters := big.NewInt(int64(len(suffixAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, letters)
		if err != nil {
			return "", fmt.Errorf("generate random suffix: %w", err)
		}
		buf[i] = suffixAlphabet[n.Int64()]
	}
	return string(buf), nil
}
