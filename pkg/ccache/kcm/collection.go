// Package kcm implements the credential cache collection of a KCM daemon
// (SSSD's sssd-kcm or Heimdal's kcm) by speaking its unix socket protocol.
//
// Caches are named "KCM:<residual>". The daemon scopes the collection to the
// uid of the connecting process, so listing returns every cache of that user,
// not only the default one.
package kcm

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

// Namespace is the cache type prefix of this backend.
const Namespace = "KCM"

const namePrefix = Namespace + ":"

// Collection is the KCM collection reachable through one client.
type Collection struct {
	client *Client
}

// New returns a collection backed by a fresh client for cfg.
func New(cfg ClientConfig) *Collection {
	return &Collection{client: NewClient(cfg)}
}

// NewWithClient wraps an existing client. Close closes the client.
func NewWithClient(c *Client) *Collection {
	return &Collection{client: c}
}

// Client returns the underlying client.
func (c *Collection) Client() *Client {
	return c.client
}

// Namespace implements ccache.Collection.
func (c *Collection) Namespace() string {
	return Namespace
}

// TargetName returns KCM:<uid>:<suffix>.
func (c *Collection) TargetName(uid int, suffix string) string {
	return namePrefix + strconv.Itoa(uid) + ":" + suffix
}

// Caches implements ccache.Collection.
func (c *Collection) Caches(ctx context.Context) (ccache.CacheCursor, error) {
	ids, err := c.client.CacheUUIDs(ctx)
	if err != nil {
		return nil, err
	}
	return &cacheCursor{coll: c, ids: ids}, nil
}

// Resolve implements ccache.Collection.
func (c *Collection) Resolve(ctx context.Context, name string) (ccache.Cache, error) {
	residual, ok := strings.CutPrefix(name, namePrefix)
	if !ok || residual == "" || strings.IndexByte(residual, 0) >= 0 {
		return nil, fmt.Errorf("%w: %q", ccache.ErrInvalidName, name)
	}
	return &cache{client: c.client, residual: residual}, nil
}

// DefaultCache returns the full name of the caller's default cache.
func (c *Collection) DefaultCache(ctx context.Context) (string, error) {
	residual, err := c.client.DefaultCache(ctx)
	if err != nil {
		return "", err
	}
	return namePrefix + residual, nil
}

// Close implements ccache.Collection.
func (c *Collection) Close() error {
	return c.client.Close()
}

// ============================================================================
// Cursors and handles
// ============================================================================

type cacheCursor struct {
	coll   *Collection
	ids    []uuid.UUID
	closed bool
}

// Next fetches the name of the next cache. Caches deleted since the UUID
// list was taken are skipped.
func (cc *cacheCursor) Next(ctx context.Context) (ccache.Cache, error) {
	if cc.closed {
		return nil, ccache.ErrClosed
	}
	for len(cc.ids) > 0 {
		id := cc.ids[0]
		cc.ids = cc.ids[1:]

		residual, err := cc.coll.client.CacheByUUID(ctx, id)
		if IsNotFound(err) {
			logger.Debug("KCM cache vanished during listing", "uuid", id.String())
			continue
		}
		if err != nil {
			return nil, err
		}
		return &cache{client: cc.coll.client, residual: residual}, nil
	}
	return nil, io.EOF
}

func (cc *cacheCursor) Close() error {
	if cc.closed {
		return ccache.ErrClosed
	}
	cc.closed = true
	cc.ids = nil
	return nil
}

type cache struct {
	client   *Client
	residual string
	closed   bool
}

func (h *cache) FullName() string {
	return namePrefix + h.residual
}

func (h *cache) Principal(ctx context.Context) (ccache.Principal, error) {
	if h.closed {
		return ccache.Principal{}, ccache.ErrClosed
	}
	return h.client.Principal(ctx, h.residual)
}

func (h *cache) Credentials(ctx context.Context) (ccache.CredentialCursor, error) {
	if h.closed {
		return nil, ccache.ErrClosed
	}
	ids, err := h.client.CredentialUUIDs(ctx, h.residual)
	if err != nil {
		return nil, err
	}
	return &credCursor{client: h.client, residual: h.residual, ids: ids}, nil
}

func (h *cache) Initialize(ctx context.Context, p ccache.Principal) error {
	if h.closed {
		return ccache.ErrClosed
	}
	return h.client.Initialize(ctx, h.residual, p)
}

func (h *cache) Store(ctx context.Context, c *ccache.Credential) error {
	if h.closed {
		return ccache.ErrClosed
	}
	return h.client.Store(ctx, h.residual, c)
}

func (h *cache) Close() error {
	if h.closed {
		return ccache.ErrClosed
	}
	h.closed = true
	return nil
}

type credCursor struct {
	client   *Client
	residual string
	ids      []uuid.UUID
	closed   bool
}

// Next fetches the next credential, skipping ones removed concurrently.
func (cc *credCursor) Next(ctx context.Context) (*ccache.Credential, error) {
	if cc.closed {
		return nil, ccache.ErrClosed
	}
	for len(cc.ids) > 0 {
		id := cc.ids[0]
		cc.ids = cc.ids[1:]

		cred, err := cc.client.CredentialByUUID(ctx, cc.residual, id)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return cred, nil
	}
	return nil, io.EOF
}

func (cc *credCursor) Close() error {
	if cc.closed {
		return ccache.ErrClosed
	}
	cc.closed = true
	cc.ids = nil
	return nil
}
