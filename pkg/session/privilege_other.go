//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd && !solaris

package session

import "fmt"

// EffectiveUID is unavailable on this platform.
type EffectiveUID struct{}

// Assume implements PrivilegeSwitch.
func (EffectiveUID) Assume(uid int) (Impersonation, error) {
	return nil, fmt.Errorf("%w: not supported on this platform", ErrPrivilege)
}
