package ccache

import "context"

// Collection is the set of credential caches reachable under one backend
// namespace.
//
// Caches enumerates every cache of the collection, not only the caller's
// default one. Resolve opens (without initializing) the cache with the given
// full name.
type Collection interface {
	// Namespace is the cache type prefix, e.g. "KCM".
	Namespace() string

	// Caches opens a cursor over all caches of the collection.
	Caches(ctx context.Context) (CacheCursor, error)

	// Resolve returns a handle for the named cache. The cache need not exist.
	Resolve(ctx context.Context, name string) (Cache, error)

	// TargetName composes the fixed cache name for a uid and suffix.
	TargetName(uid int, suffix string) string

	// Close releases the collection's own resources (connections, etc.).
	Close() error
}

// CacheCursor iterates the caches of a collection. Next returns io.EOF once
// the collection is exhausted; any other error means iteration cannot go on.
type CacheCursor interface {
	Next(ctx context.Context) (Cache, error)
	Close() error
}

// Cache is an open handle on one credential cache.
type Cache interface {
	// FullName is the "TYPE:residual" name of the cache.
	FullName() string

	// Principal returns the default principal, or ErrNotInitialized.
	Principal(ctx context.Context) (Principal, error)

	// Credentials opens a cursor over the stored credentials.
	Credentials(ctx context.Context) (CredentialCursor, error)

	// Initialize discards any content and sets the default principal.
	Initialize(ctx context.Context, p Principal) error

	// Store appends a credential.
	Store(ctx context.Context, c *Credential) error

	// Close releases the handle. It must be called exactly once.
	Close() error
}

// CredentialCursor iterates the credentials of one cache. Next returns
// io.EOF at the end.
type CredentialCursor interface {
	Next(ctx context.Context) (*Credential, error)
	Close() error
}
