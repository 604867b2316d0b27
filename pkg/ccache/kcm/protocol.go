package kcm

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ============================================================================
// KCM Wire Protocol
// ============================================================================
//
// Every request on the socket is framed as:
//
//	[length:uint32][major:uint8][minor:uint8][opcode:uint16][payload]
//
// and every reply as:
//
//	[length:uint32][status:int32][payload]
//
// Cache names in payloads are NUL-terminated strings. Principals and
// credentials use the version 4 ccache encoding.

// DefaultSocketPath is where MIT krb5 and SSSD expect the KCM daemon.
const DefaultSocketPath = "/var/run/.heim_org.h5l.kcm-socket"

const (
	protocolMajor = 2
	protocolMinor = 0

	// MaxReplySize bounds a single reply. Credential listings of a busy
	// cache stay well below this.
	MaxReplySize = 10 * 1024 * 1024 // 10 MB
)

// Opcode identifies a KCM operation.
type Opcode uint16

// Operations used by this package. Numbering follows Heimdal's kcm.h, which
// MIT and SSSD share.
const (
	OpInitialize       Opcode = 4
	OpStore            Opcode = 6
	OpGetPrincipal     Opcode = 8
	OpGetCredUUIDList  Opcode = 9
	OpGetCredByUUID    Opcode = 10
	OpGetCacheUUIDList Opcode = 18
	OpGetCacheByUUID   Opcode = 19
	OpGetDefaultCache  Opcode = 20
)

var opcodeNames = map[Opcode]string{
	OpInitialize:       "INITIALIZE",
	OpStore:            "STORE",
	OpGetPrincipal:     "GET_PRINCIPAL",
	OpGetCredUUIDList:  "GET_CRED_UUID_LIST",
	OpGetCredByUUID:    "GET_CRED_BY_UUID",
	OpGetCacheUUIDList: "GET_CACHE_UUID_LIST",
	OpGetCacheByUUID:   "GET_CACHE_BY_UUID",
	OpGetDefaultCache:  "GET_DEFAULT_CACHE",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("OP_%d", uint16(o))
}

// Kerberos status codes returned by KCM daemons.
const (
	CodeCCEnd      int32 = -1765328242 // KRB5_CC_END
	CodeCCNotFound int32 = -1765328243 // KRB5_CC_NOTFOUND
	CodeFCCNoFile  int32 = -1765328189 // KRB5_FCC_NOFILE
)

// StatusError is a non-zero status returned by the daemon.
type StatusError struct {
	Op   Opcode
	Code int32
}

func (e *StatusError) Error() string {
	switch e.Code {
	case CodeCCEnd:
		return fmt.Sprintf("kcm %s: end of credential cache reached", e.Op)
	case CodeCCNotFound:
		return fmt.Sprintf("kcm %s: matching credential not found", e.Op)
	case CodeFCCNoFile:
		return fmt.Sprintf("kcm %s: no credentials cache found", e.Op)
	default:
		return fmt.Sprintf("kcm %s: status %d", e.Op, e.Code)
	}
}

// IsNotFound reports whether err is a daemon status meaning the requested
// cache or credential does not exist (any more).
func IsNotFound(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == CodeCCNotFound || se.Code == CodeFCCNoFile || se.Code == CodeCCEnd
}

// writeName appends a NUL-terminated cache name.
func writeName(buf *bytes.Buffer, name string) error {
	if name == "" || bytes.IndexByte([]byte(name), 0) >= 0 {
		return fmt.Errorf("invalid cache name %q", name)
	}
	buf.WriteString(name)
	buf.WriteByte(0)
	return nil
}

// readName parses a NUL-terminated name at the start of b.
func readName(b []byte) (string, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", fmt.Errorf("cache name not terminated")
	}
	return string(b[:i]), nil
}

// readUUIDs splits a reply into 16-byte UUIDs.
func readUUIDs(b []byte) ([]uuid.UUID, error) {
	if len(b)%16 != 0 {
		return nil, fmt.Errorf("uuid list length %d not a multiple of 16", len(b))
	}
	ids := make([]uuid.UUID, 0, len(b)/16)
	for ; len(b) > 0; b = b[16:] {
		id, err := uuid.FromBytes(b[:16])
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
