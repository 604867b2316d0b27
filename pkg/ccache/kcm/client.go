package kcm

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/wire"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

// DefaultTimeout bounds one request/reply round trip when the caller's
// context carries no deadline.
const DefaultTimeout = 5 * time.Second

// ClientConfig configures a KCM client.
type ClientConfig struct {
	// SocketPath is the daemon's unix socket.
	// Default: DefaultSocketPath
	SocketPath string

	// Timeout bounds a round trip without a context deadline.
	// Default: DefaultTimeout
	Timeout time.Duration
}

// Client talks to a KCM daemon over its unix socket. One connection is
// opened lazily and reused; requests are serialized on it. The daemon
// authorizes every request by the peer credentials of that connection, so
// the client must be created after any privilege change.
type Client struct {
	mu         sync.Mutex
	socketPath string
	timeout    time.Duration
	conn       net.Conn
	closed     bool
}

// NewClient returns a client for cfg. No connection is made yet.
func NewClient(cfg ClientConfig) *Client {
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{socketPath: cfg.SocketPath, timeout: cfg.Timeout}
}

// SocketPath returns the daemon socket the client connects to.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Close closes the connection. Further calls fail with ccache.ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ccache.ErrClosed
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call performs one round trip and returns the reply payload after the
// status word.
func (c *Client) call(ctx context.Context, op Opcode, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ccache.ErrClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.conn == nil {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
		if err != nil {
			return nil, fmt.Errorf("dial kcm socket %s: %w", c.socketPath, err)
		}
		c.conn = conn
	}

	reply, err := c.roundTrip(ctx, op, payload)
	if err != nil {
		// The stream may be out of sync now; start over on the next call.
		_ = c.conn.Close()
		c.conn = nil
		return nil, err
	}

	if len(reply) < 4 {
		return nil, fmt.Errorf("kcm %s: short reply (%d bytes)", op, len(reply))
	}
	if status := int32(binary.BigEndian.Uint32(reply)); status != 0 {
		return nil, &StatusError{Op: op, Code: status}
	}
	return reply[4:], nil
}

func (c *Client) roundTrip(ctx context.Context, op Opcode, payload []byte) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	msg := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(msg[0:4], uint32(4+len(payload)))
	msg[4] = protocolMajor
	msg[5] = protocolMinor
	binary.BigEndian.PutUint16(msg[6:8], uint16(op))
	copy(msg[8:], payload)

	if _, err := c.conn.Write(msg); err != nil {
		return nil, fmt.Errorf("kcm %s: write request: %w", op, err)
	}

	var hdr [4]byte
	if _, err := io.ReadFull(c.conn, hdr[:]); err != nil {
		return nil, fmt.Errorf("kcm %s: read reply length: %w", op, err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxReplySize {
		return nil, fmt.Errorf("kcm %s: reply length %d exceeds maximum %d", op, n, MaxReplySize)
	}
	reply := make([]byte, n)
	if _, err := io.ReadFull(c.conn, reply); err != nil {
		return nil, fmt.Errorf("kcm %s: read reply: %w", op, err)
	}

	logger.Debug("KCM round trip", "op", op.String(), "request_bytes", len(payload), "reply_bytes", n)
	return reply, nil
}

// ============================================================================
// Operations
// ============================================================================

// CacheUUIDs lists the UUIDs of all caches visible to the caller.
func (c *Client) CacheUUIDs(ctx context.Context) ([]uuid.UUID, error) {
	reply, err := c.call(ctx, OpGetCacheUUIDList, nil)
	if isEnd(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return readUUIDs(reply)
}

// CacheByUUID returns the residual name of a cache.
func (c *Client) CacheByUUID(ctx context.Context, id uuid.UUID) (string, error) {
	reply, err := c.call(ctx, OpGetCacheByUUID, id[:])
	if err != nil {
		return "", err
	}
	return readName(reply)
}

// DefaultCache returns the residual name of the caller's default cache.
func (c *Client) DefaultCache(ctx context.Context) (string, error) {
	reply, err := c.call(ctx, OpGetDefaultCache, nil)
	if err != nil {
		return "", err
	}
	return readName(reply)
}

// Principal returns the default principal of a cache, or
// ccache.ErrNotInitialized.
func (c *Client) Principal(ctx context.Context, name string) (ccache.Principal, error) {
	var buf bytes.Buffer
	if err := writeName(&buf, name); err != nil {
		return ccache.Principal{}, err
	}

	reply, err := c.call(ctx, OpGetPrincipal, buf.Bytes())
	if IsNotFound(err) {
		return ccache.Principal{}, fmt.Errorf("%w: %v", ccache.ErrNotInitialized, err)
	}
	if err != nil {
		return ccache.Principal{}, err
	}
	if len(reply) == 0 {
		return ccache.Principal{}, ccache.ErrNotInitialized
	}
	return wire.ReadPrincipal(bytes.NewReader(reply))
}

// CredentialUUIDs lists the credentials of a cache.
func (c *Client) CredentialUUIDs(ctx context.Context, name string) ([]uuid.UUID, error) {
	var buf bytes.Buffer
	if err := writeName(&buf, name); err != nil {
		return nil, err
	}

	reply, err := c.call(ctx, OpGetCredUUIDList, buf.Bytes())
	if isEnd(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return readUUIDs(reply)
}

// CredentialByUUID fetches one credential of a cache.
func (c *Client) CredentialByUUID(ctx context.Context, name string, id uuid.UUID) (*ccache.Credential, error) {
	var buf bytes.Buffer
	if err := writeName(&buf, name); err != nil {
		return nil, err
	}
	buf.Write(id[:])

	reply, err := c.call(ctx, OpGetCredByUUID, buf.Bytes())
	if err != nil {
		return nil, err
	}
	return wire.ReadCredential(bytes.NewReader(reply))
}

// Initialize creates or empties a cache and sets its default principal.
func (c *Client) Initialize(ctx context.Context, name string, p ccache.Principal) error {
	var buf bytes.Buffer
	if err := writeName(&buf, name); err != nil {
		return err
	}
	if err := wire.WritePrincipal(&buf, p); err != nil {
		return err
	}
	_, err := c.call(ctx, OpInitialize, buf.Bytes())
	return err
}

// Store adds a credential to a cache.
func (c *Client) Store(ctx context.Context, name string, cred *ccache.Credential) error {
	var buf bytes.Buffer
	if err := writeName(&buf, name); err != nil {
		return err
	}
	if err := wire.WriteCredential(&buf, cred); err != nil {
		return err
	}
	_, err := c.call(ctx, OpStore, buf.Bytes())
	return err
}

func isEnd(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == CodeCCEnd
}
