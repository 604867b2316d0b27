// Package memory implements an in-process credential cache collection.
//
// It is used by tests and by library callers that want to run the selection
// logic without a KCM daemon. Every handle it gives out is counted, and faults
// can be injected per operation, which makes it suitable for checking that
// callers release what they open.
package memory

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

// Namespace is the cache type prefix of this backend.
const Namespace = "MEMORY"

type entry struct {
	principal ccache.Principal
	creds     []*ccache.Credential
}

// Collection is a thread-safe in-memory set of caches, iterated in creation
// order.
type Collection struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*entry
	open    int
	closed  bool

	listErr      error
	nextErr      error
	nextErrAfter int
	principalErr map[string]error
	initErr      map[string]error
	storeErr     map[string]error
	credsErr     map[string]error
}

// New returns an empty collection.
func New() *Collection {
	return &Collection{
		entries:      make(map[string]*entry),
		principalErr: make(map[string]error),
		initErr:      make(map[string]error),
		storeErr:     make(map[string]error),
		credsErr:     make(map[string]error),
	}
}

// Name returns the full name for a residual.
func Name(residual string) string {
	return Namespace + ":" + residual
}

// ============================================================================
// Test and setup helpers
// ============================================================================

// Add creates or replaces an initialized cache and returns its full name.
// The credentials are copied.
func (c *Collection) Add(residual string, p ccache.Principal, creds ...*ccache.Credential) string {
	name := Name(residual)

	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{principal: p}
	for _, cr := range creds {
		e.creds = append(e.creds, cr.Clone())
	}
	c.put(name, e)
	return name
}

// AddUninitialized registers a cache that exists but has no principal.
func (c *Collection) AddUninitialized(residual string) string {
	name := Name(residual)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.put(name, &entry{})
	return name
}

// Remove deletes a cache. Cursors opened earlier skip it.
func (c *Collection) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Snapshot returns a copy of a cache's principal and credentials.
func (c *Collection) Snapshot(name string) (ccache.Principal, []*ccache.Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return ccache.Principal{}, nil, false
	}
	out := make([]*ccache.Credential, 0, len(e.creds))
	for _, cr := range e.creds {
		out = append(out, cr.Clone())
	}
	return e.principal, out, true
}

// Names returns the cache names in iteration order.
func (c *Collection) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// OpenHandles returns how many cache handles and cursors are currently open.
func (c *Collection) OpenHandles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// FailList makes Caches fail with err.
func (c *Collection) FailList(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
}

// FailNext makes the cache cursor fail with err after yielding n caches.
func (c *Collection) FailNext(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextErr, c.nextErrAfter = err, n
}

// FailPrincipal makes Principal fail for the named cache.
func (c *Collection) FailPrincipal(name string, err error) {
	c.setFault(c.principalErr, name, err)
}

// FailCredentials makes Credentials fail for the named cache.
func (c *Collection) FailCredentials(name string, err error) {
	c.setFault(c.credsErr, name, err)
}

// FailInitialize makes Initialize fail for the named cache.
func (c *Collection) FailInitialize(name string, err error) {
	c.setFault(c.initErr, name, err)
}

// FailStore makes Store fail for the named cache.
func (c *Collection) FailStore(name string, err error) {
	c.setFault(c.storeErr, name, err)
}

func (c *Collection) setFault(m map[string]error, name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(m, name)
		return
	}
	m[name] = err
}

func (c *Collection) put(name string, e *entry) {
	if _, ok := c.entries[name]; !ok {
		c.order = append(c.order, name)
	}
	c.entries[name] = e
}

// ============================================================================
// ccache.Collection
// ============================================================================

// Namespace implements ccache.Collection.
func (c *Collection) Namespace() string {
	return Namespace
}

// TargetName returns MEMORY:<uid>:<suffix>.
func (c *Collection) TargetName(uid int, suffix string) string {
	return Name(strconv.Itoa(uid) + ":" + suffix)
}

// Caches implements ccache.Collection.
func (c *Collection) Caches(ctx context.Context) (ccache.CacheCursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ccache.ErrClosed
	}
	if c.listErr != nil {
		return nil, c.listErr
	}
	c.open++
	return &cacheCursor{coll: c, names: append([]string(nil), c.order...)}, nil
}

// Resolve implements ccache.Collection. The cache is created on Initialize.
func (c *Collection) Resolve(ctx context.Context, name string) (ccache.Cache, error) {
	if !strings.HasPrefix(name, Namespace+":") || len(name) == len(Namespace)+1 {
		return nil, fmt.Errorf("%w: %q", ccache.ErrInvalidName, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ccache.ErrClosed
	}
	c.open++
	return &cache{coll: c, name: name}, nil
}

// Close implements ccache.Collection.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ccache.ErrClosed
	}
	c.closed = true
	return nil
}

func (c *Collection) release() {
	c.mu.Lock()
	c.open--
	c.mu.Unlock()
}

// ============================================================================
// Cursors and handles
// ============================================================================

type cacheCursor struct {
	coll    *Collection
	names   []string
	yielded int
	closed  bool
}

func (cc *cacheCursor) Next(ctx context.Context) (ccache.Cache, error) {
	if cc.closed {
		return nil, ccache.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := cc.coll
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nextErr != nil && cc.yielded >= c.nextErrAfter {
		return nil, c.nextErr
	}
	for len(cc.names) > 0 {
		name := cc.names[0]
		cc.names = cc.names[1:]
		if _, ok := c.entries[name]; !ok {
			continue
		}
		cc.yielded++
		c.open++
		return &cache{coll: c, name: name}, nil
	}
	return nil, io.EOF
}

func (cc *cacheCursor) Close() error {
	if cc.closed {
		return ccache.ErrClosed
	}
	cc.closed = true
	cc.coll.release()
	return nil
}

type cache struct {
	coll   *Collection
	name   string
	closed bool
}

func (h *cache) FullName() string {
	return h.name
}

func (h *cache) Principal(ctx context.Context) (ccache.Principal, error) {
	if h.closed {
		return ccache.Principal{}, ccache.ErrClosed
	}

	c := h.coll
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.principalErr[h.name]; err != nil {
		return ccache.Principal{}, err
	}
	e, ok := c.entries[h.name]
	if !ok || e.principal.IsZero() {
		return ccache.Principal{}, ccache.ErrNotInitialized
	}
	return e.principal, nil
}

func (h *cache) Credentials(ctx context.Context) (ccache.CredentialCursor, error) {
	if h.closed {
		return nil, ccache.ErrClosed
	}

	c := h.coll
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.credsErr[h.name]; err != nil {
		return nil, err
	}
	e, ok := c.entries[h.name]
	if !ok || e.principal.IsZero() {
		return nil, ccache.ErrNotInitialized
	}
	creds := make([]*ccache.Credential, 0, len(e.creds))
	for _, cr := range e.creds {
		creds = append(creds, cr.Clone())
	}
	c.open++
	return &credCursor{coll: c, creds: creds}, nil
}

func (h *cache) Initialize(ctx context.Context, p ccache.Principal) error {
	if h.closed {
		return ccache.ErrClosed
	}

	c := h.coll
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initErr[h.name]; err != nil {
		return err
	}
	c.put(h.name, &entry{principal: p})
	return nil
}

func (h *cache) Store(ctx context.Context, cr *ccache.Credential) error {
	if h.closed {
		return ccache.ErrClosed
	}

	c := h.coll
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.storeErr[h.name]; err != nil {
		return err
	}
	e, ok := c.entries[h.name]
	if !ok || e.principal.IsZero() {
		return ccache.ErrNotInitialized
	}
	e.creds = append(e.creds, cr.Clone())
	return nil
}

func (h *cache) Close() error {
	if h.closed {
		return ccache.ErrClosed
	}
	h.closed = true
	h.coll.release()
	return nil
}

type credCursor struct {
	coll   *Collection
	creds  []*ccache.Credential
	closed bool
}

func (cc *credCursor) Next(ctx context.Context) (*ccache.Credential, error) {
	if cc.closed {
		return nil, ccache.ErrClosed
	}
	if len(cc.creds) == 0 {
		return nil, io.EOF
	}
	cr := cc.creds[0]
	cc.creds = cc.creds[1:]
	return cr, nil
}

func (cc *credCursor) Close() error {
	if cc.closed {
		return ccache.ErrClosed
	}
	cc.closed = true
	for _, cr := range cc.creds {
		cr.Wipe()
	}
	cc.creds = nil
	cc.coll.release()
	return nil
}
