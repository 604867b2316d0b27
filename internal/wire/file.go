package wire

import (
	"bytes"
	"fmt"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

// MarshalFile encodes a complete version 4 ccache file: the header with a zero
// KDC time offset, the default principal and the credentials in order.
func MarshalFile(p ccache.Principal, creds ...*ccache.Credential) ([]byte, error) {
	var buf bytes.Buffer

	WriteUint16(&buf, Version4)
	// Header: one KDC offset field, tag + length + 8 zero bytes.
	WriteUint16(&buf, 12)
	WriteUint16(&buf, headerTagKDCOffset)
	WriteUint16(&buf, 8)
	buf.Write(make([]byte, 8))

	if err := WritePrincipal(&buf, p); err != nil {
		return nil, fmt.Errorf("write default principal: %w", err)
	}
	for i, c := range creds {
		if err := WriteCredential(&buf, c); err != nil {
			return nil, fmt.Errorf("write credential %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// AppendCredential appends one encoded credential to an existing ccache file
// image.
func AppendCredential(file []byte, c *ccache.Credential) ([]byte, error) {
	buf := bytes.NewBuffer(file)
	if err := WriteCredential(buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
