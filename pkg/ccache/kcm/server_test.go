package kcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/wire"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

// ============================================================================
// Fake KCM daemon
// ============================================================================

type fakeCred struct {
	id  uuid.UUID
	raw []byte
}

type fakeCache struct {
	id    uuid.UUID
	name  string
	princ *ccache.Principal
	creds []fakeCred
}

// fakeServer is an in-process KCM daemon on a unix socket.
type fakeServer struct {
	path string
	ln   net.Listener

	mu       sync.Mutex
	caches   []*fakeCache
	ops      []Opcode
	fail     map[Opcode]int32
	vanished map[uuid.UUID]bool
	conns    int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	// Unix socket paths are limited to ~100 bytes; t.TempDir can exceed that.
	dir, err := os.MkdirTemp("", "kcm")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, "kcm.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	s := &fakeServer{
		path:     path,
		ln:       ln,
		fail:     make(map[Opcode]int32),
		vanished: make(map[uuid.UUID]bool),
	}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeServer) client() *Client {
	return NewClient(ClientConfig{SocketPath: s.path})
}

// addCache registers an initialized cache holding creds.
func (s *fakeServer) addCache(t *testing.T, name string, p ccache.Principal, creds ...*ccache.Credential) *fakeCache {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	fc := &fakeCache{id: uuid.New(), name: name, princ: &p}
	for _, c := range creds {
		var buf bytes.Buffer
		require.NoError(t, wire.WriteCredential(&buf, c))
		fc.creds = append(fc.creds, fakeCred{id: uuid.New(), raw: buf.Bytes()})
	}
	s.caches = append(s.caches, fc)
	return fc
}

func (s *fakeServer) failOp(op Opcode, code int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = code
}

func (s *fakeServer) vanish(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vanished[id] = true
}

func (s *fakeServer) lookup(name string) *fakeCache {
	for _, c := range s.caches {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (s *fakeServer) snapshot(name string) (*ccache.Principal, [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.lookup(name)
	if c == nil {
		return nil, nil
	}
	var raws [][]byte
	for _, cr := range c.creds {
		raws = append(raws, cr.raw)
	}
	return c.princ, raws
}

func (s *fakeServer) opCount(op Opcode) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.ops {
		if o == op {
			n++
		}
	}
	return n
}

func (s *fakeServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	for {
		var hdr [4]byte
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			return
		}
		req := make([]byte, binary.BigEndian.Uint32(hdr[:]))
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}

		status, payload := s.dispatch(req)

		reply := make([]byte, 8+len(payload))
		binary.BigEndian.PutUint32(reply[0:4], uint32(4+len(payload)))
		binary.BigEndian.PutUint32(reply[4:8], uint32(status))
		copy(reply[8:], payload)
		if _, err := conn.Write(reply); err != nil {
			return
		}
	}
}

func (s *fakeServer) dispatch(req []byte) (int32, []byte) {
	if len(req) < 4 || req[0] != protocolMajor {
		return -1, nil
	}
	op := Opcode(binary.BigEndian.Uint16(req[2:4]))
	body := req[4:]

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ops = append(s.ops, op)
	if code, ok := s.fail[op]; ok {
		return code, nil
	}

	var out bytes.Buffer
	switch op {
	case OpGetCacheUUIDList:
		for _, c := range s.caches {
			out.Write(c.id[:])
		}

	case OpGetCacheByUUID:
		id, err := uuid.FromBytes(body)
		if err != nil {
			return -1, nil
		}
		for _, c := range s.caches {
			if c.id == id && !s.vanished[id] {
				out.WriteString(c.name)
				out.WriteByte(0)
				return 0, out.Bytes()
			}
		}
		return CodeCCNotFound, nil

	case OpGetDefaultCache:
		if len(s.caches) == 0 {
			return CodeFCCNoFile, nil
		}
		out.WriteString(s.caches[0].name)
		out.WriteByte(0)

	case OpGetPrincipal:
		name, _, err := splitName(body)
		if err != nil {
			return -1, nil
		}
		c := s.lookup(name)
		if c == nil {
			return CodeFCCNoFile, nil
		}
		if c.princ != nil {
			if err := wire.WritePrincipal(&out, *c.princ); err != nil {
				return -1, nil
			}
		}

	case OpGetCredUUIDList:
		name, _, err := splitName(body)
		if err != nil {
			return -1, nil
		}
		c := s.lookup(name)
		if c == nil {
			return CodeFCCNoFile, nil
		}
		for _, cr := range c.creds {
			out.Write(cr.id[:])
		}

	case OpGetCredByUUID:
		name, rest, err := splitName(body)
		if err != nil {
			return -1, nil
		}
		c := s.lookup(name)
		if c == nil {
			return CodeFCCNoFile, nil
		}
		id, err := uuid.FromBytes(rest)
		if err != nil {
			return -1, nil
		}
		for _, cr := range c.creds {
			if cr.id == id && !s.vanished[id] {
				return 0, cr.raw
			}
		}
		return CodeCCNotFound, nil

	case OpInitialize:
		name, rest, err := splitName(body)
		if err != nil {
			return -1, nil
		}
		p, err := wire.ReadPrincipal(bytes.NewReader(rest))
		if err != nil {
			return -1, nil
		}
		if c := s.lookup(name); c != nil {
			c.princ, c.creds = &p, nil
		} else {
			s.caches = append(s.caches, &fakeCache{id: uuid.New(), name: name, princ: &p})
		}

	case OpStore:
		name, rest, err := splitName(body)
		if err != nil {
			return -1, nil
		}
		c := s.lookup(name)
		if c == nil || c.princ == nil {
			return CodeFCCNoFile, nil
		}
		if _, err := wire.ReadCredential(bytes.NewReader(rest)); err != nil {
			return -1, nil
		}
		c.creds = append(c.creds, fakeCred{id: uuid.New(), raw: append([]byte(nil), rest...)})

	default:
		return -1, nil
	}
	return 0, out.Bytes()
}

func splitName(b []byte) (string, []byte, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, errors.New("unterminated name")
	}
	return string(b[:i]), b[i+1:], nil
}
