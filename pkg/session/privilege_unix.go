//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd || solaris

package session

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// EffectiveUID switches the process effective uid. The real and saved uids
// are left alone so the previous identity can be restored.
type EffectiveUID struct{}

// Assume implements PrivilegeSwitch. Switching to the current effective uid
// is a no-op, which lets unprivileged callers run for themselves.
func (EffectiveUID) Assume(uid int) (Impersonation, error) {
	prev := unix.Geteuid()
	if prev == uid {
		return noopImpersonation{}, nil
	}
	if err := setEffectiveUID(uid); err != nil {
		return nil, fmt.Errorf("%w: set euid %d: %v", ErrPrivilege, uid, err)
	}
	return &euidImpersonation{prev: prev}, nil
}

type euidImpersonation struct {
	prev     int
	restored bool
}

func (e *euidImpersonation) Restore() error {
	if e.restored {
		return nil
	}
	e.restored = true
	if err := setEffectiveUID(e.prev); err != nil {
		return fmt.Errorf("%w: set euid %d: %v", ErrPrivilege, e.prev, err)
	}
	return nil
}

type noopImpersonation struct{}

func (noopImpersonation) Restore() error { return nil }
