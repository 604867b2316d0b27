// Package dir provides a directory-backed credential cache collection.
//
// It follows MIT's DIR cache type: a collection is a directory, and every
// cache in it is a version 4 ccache file whose name starts with "tkt". Cache
// names have the form "DIR::<path>". Files are read with gokrb5's ccache
// parser and written atomically (temporary file, then rename).
package dir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/wire"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

const (
	// Namespace is the cache type prefix of this backend.
	Namespace = "DIR"

	// FilePrefix starts the name of every cache file in the directory.
	FilePrefix = "tkt"

	namePrefix     = Namespace + "::"
	fileNamePrefix = "FILE:"
	tmpSuffix      = ".tmp"
)

// ErrInsecureDir is returned by New when the collection directory is a
// symbolic link, is writable by group or others, or is owned by another user.
var ErrInsecureDir = errors.New("insecure collection directory")

// Config holds configuration for the directory collection.
type Config struct {
	// Path is the collection directory.
	Path string

	// CreateDir creates the directory if it doesn't exist.
	// Default: true
	CreateDir bool

	// DirMode is the permission mode for a created directory.
	// Default: 0700
	DirMode os.FileMode

	// FileMode is the permission mode for written cache files.
	// Default: 0600
	FileMode os.FileMode
}

// DefaultConfig returns the default configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:      path,
		CreateDir: true,
		DirMode:   0700,
		FileMode:  0600,
	}
}

// Collection is a directory of ccache files.
type Collection struct {
	mu       sync.Mutex
	path     string
	fileMode os.FileMode
	closed   bool
}

// New opens the collection directory described by cfg.
func New(cfg Config) (*Collection, error) {
	if cfg.Path == "" {
		return nil, errors.New("collection path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0700
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0600
	}

	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, err
	}

	if cfg.CreateDir {
		if err := os.MkdirAll(path, cfg.DirMode); err != nil {
			return nil, err
		}
	}

	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if err := checkDir(path, info); err != nil {
		return nil, err
	}

	return &Collection{path: path, fileMode: cfg.FileMode}, nil
}

// checkDir rejects a collection directory that someone other than the
// current effective user could have planted caches in. Its parent is often a
// world-writable directory such as /tmp.
func checkDir(path string, info fs.FileInfo) error {
	if info.Mode()&fs.ModeSymlink != 0 {
		return fmt.Errorf("%w: %s is a symbolic link", ErrInsecureDir, path)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	if perm := info.Mode().Perm(); perm&0022 != 0 {
		return fmt.Errorf("%w: %s has mode %04o, writable by group or others", ErrInsecureDir, path, perm)
	}
	return checkOwner(path, info)
}

// NewWithPath opens a collection directory with the default configuration.
func NewWithPath(path string) (*Collection, error) {
	return New(DefaultConfig(path))
}

// Path returns the collection directory.
func (c *Collection) Path() string {
	return c.path
}

// Namespace implements ccache.Collection.
func (c *Collection) Namespace() string {
	return Namespace
}

// TargetName returns DIR::<dir>/tkt<uid>_<suffix>.
func (c *Collection) TargetName(uid int, suffix string) string {
	return namePrefix + filepath.Join(c.path, fmt.Sprintf("%s%d_%s", FilePrefix, uid, suffix))
}

// Caches lists the cache files in name order.
func (c *Collection) Caches(ctx context.Context) (ccache.CacheCursor, error) {
	if c.isClosed() {
		return nil, ccache.ErrClosed
	}

	entries, err := os.ReadDir(c.path)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, FilePrefix) || strings.HasSuffix(name, tmpSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(c.path, name))
	}
	return &cacheCursor{coll: c, paths: paths}, nil
}

// Resolve accepts "DIR::<path>" and "FILE:<path>" names of files inside the
// collection directory. The file need not exist.
func (c *Collection) Resolve(ctx context.Context, name string) (ccache.Cache, error) {
	if c.isClosed() {
		return nil, ccache.ErrClosed
	}

	var path string
	switch {
	case strings.HasPrefix(name, namePrefix):
		path = strings.TrimPrefix(name, namePrefix)
	case strings.HasPrefix(name, fileNamePrefix):
		path = strings.TrimPrefix(name, fileNamePrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ccache.ErrInvalidName, name)
	}

	if !filepath.IsAbs(path) || filepath.Dir(filepath.Clean(path)) != c.path ||
		!strings.HasPrefix(filepath.Base(path), FilePrefix) {
		return nil, fmt.Errorf("%w: %q is not a cache file in %s", ccache.ErrInvalidName, name, c.path)
	}
	return &cache{coll: c, path: filepath.Clean(path)}, nil
}

// Close implements ccache.Collection.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Collection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// writeFile replaces path atomically.
func (c *Collection) writeFile(path string, data []byte) error {
	f, err := os.CreateTemp(c.path, "."+filepath.Base(path)+"-*"+tmpSuffix)
	if err != nil {
		return err
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Chmod(c.fileMode); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// ============================================================================
// Cursors and handles
// ============================================================================

type cacheCursor struct {
	coll   *Collection
	paths  []string
	closed bool
}

func (cc *cacheCursor) Next(ctx context.Context) (ccache.Cache, error) {
	if cc.closed {
		return nil, ccache.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(cc.paths) == 0 {
		return nil, io.EOF
	}
	path := cc.paths[0]
	cc.paths = cc.paths[1:]
	return &cache{coll: cc.coll, path: path}, nil
}

func (cc *cacheCursor) Close() error {
	if cc.closed {
		return ccache.ErrClosed
	}
	cc.closed = true
	return nil
}

type cache struct {
	coll   *Collection
	path   string
	closed bool
}

func (h *cache) FullName() string {
	return namePrefix + h.path
}

func (h *cache) load() (*file, error) {
	if h.closed {
		return nil, ccache.ErrClosed
	}
	data, err := os.ReadFile(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ccache.ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ccache.ErrNotInitialized
	}
	return parseFile(data)
}

func (h *cache) Principal(ctx context.Context) (ccache.Principal, error) {
	f, err := h.load()
	if err != nil {
		return ccache.Principal{}, err
	}
	f.wipe()
	return f.principal, nil
}

func (h *cache) Credentials(ctx context.Context) (ccache.CredentialCursor, error) {
	f, err := h.load()
	if err != nil {
		return nil, err
	}
	return &credCursor{creds: f.creds}, nil
}

func (h *cache) Initialize(ctx context.Context, p ccache.Principal) error {
	if h.closed {
		return ccache.ErrClosed
	}
	data, err := wire.MarshalFile(p)
	if err != nil {
		return err
	}
	if err := h.coll.writeFile(h.path, data); err != nil {
		return fmt.Errorf("write %s: %w", h.path, err)
	}
	logger.Debug("Initialized cache file", logger.KeyPath, h.path)
	return nil
}

func (h *cache) Store(ctx context.Context, c *ccache.Credential) error {
	if h.closed {
		return ccache.ErrClosed
	}
	data, err := os.ReadFile(h.path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return ccache.ErrNotInitialized
	}
	if err != nil {
		return err
	}

	// Refuse to append to something that is not a ccache.
	f, err := parseFile(data)
	if err != nil {
		return err
	}
	f.wipe()

	data, err = wire.AppendCredential(data, c)
	if err != nil {
		return err
	}
	if err := h.coll.writeFile(h.path, data); err != nil {
		return fmt.Errorf("write %s: %w", h.path, err)
	}
	return nil
}

func (h *cache) Close() error {
	if h.closed {
		return ccache.ErrClosed
	}
	h.closed = true
	return nil
}

type credCursor struct {
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
	c := cc.creds[0]
	cc.creds = cc.creds[1:]
	return c, nil
}

func (cc *credCursor) Close() error {
	if cc.closed {
		return ccache.ErrClosed
	}
	cc.closed = true
	for _, c := range cc.creds {
		c.Wipe()
	}
	cc.creds = nil
	return nil
}
