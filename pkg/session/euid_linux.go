package session

import "golang.org/x/sys/unix"

// setEffectiveUID changes only the effective uid. On Linux the credentials
// are per thread; setresuid goes through the runtime, which applies it to
// every thread of the process.
func setEffectiveUID(uid int) error {
	return unix.Setresuid(-1, uid, -1)
}
