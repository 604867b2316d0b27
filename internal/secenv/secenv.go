// Package secenv reads environment variables the way secure_getenv(3) does.
//
// A PAM module runs inside programs such as su or sudo whose environment was
// set by the unprivileged caller. When the real and effective ids of the
// process differ, every lookup returns "" and the caller falls back to its
// built-in paths.
package secenv

import "os"

// setid is replaced in tests.
var setid = processSetid

// Setid reports whether the process runs with a real uid or gid that differs
// from the effective one.
func Setid() bool {
	return setid()
}

// Getenv returns the value of name, or "" when the process is set-id.
func Getenv(name string) string {
	if setid() {
		return ""
	}
	return os.Getenv(name)
}

// LookupEnv is Getenv with os.LookupEnv semantics.
func LookupEnv(name string) (string, bool) {
	if setid() {
		return "", false
	}
	return os.LookupEnv(name)
}
