// Package session runs the cache consolidation for one login.
//
// A run resolves the login user's uid, composes the fixed target cache name
// from the configured suffix, assumes the user's effective uid for the whole
// scan and consolidation, restores the original uid, and on success publishes
// KRB5CCNAME=<target> to the caller's environment.
//
// Every failure is reported as an error the caller is expected to ignore:
// consolidation only improves ticket placement and never decides whether a
// login may proceed.
package session
