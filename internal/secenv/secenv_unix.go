//go:build unix

package secenv

import "golang.org/x/sys/unix"

func processSetid() bool {
	return unix.Getuid() != unix.Geteuid() || unix.Getgid() != unix.Getegid()
}
