package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently so that syslog lines can be grepped and
// aggregated by field.
const (
	// ========================================================================
	// Session
	// ========================================================================
	KeyService = "service" // PAM service name (sshd, login, ...)
	KeyHook    = "hook"    // PAM hook: open_session, setcred
	KeyUser    = "user"    // Login user name
	KeyUID     = "uid"     // Numeric uid of the login user

	// ========================================================================
	// Credential caches
	// ========================================================================
	KeyBackend   = "backend"   // Cache collection namespace: KCM, DIR, MEMORY
	KeyCache     = "cache"     // Full name of an inspected cache
	KeyTarget    = "target"    // Full name of the fixed target cache
	KeySource    = "source"    // Full name of the winning source cache
	KeyPrincipal = "principal" // Unparsed principal name
	KeyVerdict   = "verdict"   // Ranking verdict for a cache

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code (KCM status, errno)
	KeyPath       = "path"        // File system path
)

// ============================================================================
// Typed attribute constructors
// ============================================================================

// User returns the login user attribute.
func User(name string) slog.Attr {
	return slog.String(KeyUser, name)
}

// UID returns the uid attribute.
func UID(uid int) slog.Attr {
	return slog.Int(KeyUID, uid)
}

// Cache returns the cache name attribute.
func Cache(name string) slog.Attr {
	return slog.String(KeyCache, name)
}

// Target returns the target cache attribute.
func Target(name string) slog.Attr {
	return slog.String(KeyTarget, name)
}

// Principal returns the principal attribute.
func Principal(name string) slog.Attr {
	return slog.String(KeyPrincipal, name)
}

// DurationMs returns the duration attribute.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns an error attribute, or an empty attr for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a numeric error code attribute.
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Hex renders a byte slice as a hex attribute, truncated to 32 bytes.
func Hex(key string, b []byte) slog.Attr {
	if len(b) > 32 {
		return slog.String(key, fmt.Sprintf("%x...", b[:32]))
	}
	return slog.String(key, fmt.Sprintf("%x", b))
}
