//go:build darwin || dragonfly || freebsd || netbsd || openbsd || solaris

package session

import "golang.org/x/sys/unix"

func setEffectiveUID(uid int) error {
	return unix.Seteuid(uid)
}
