package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jcmturner/gokrb5/v8/types"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

// ============================================================================
// Decoding Helpers - Wire Format → Go Types
// ============================================================================

// ReadUint16 reads a big-endian uint16.
func ReadUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read uint16: %w", err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// ReadUint32 reads a big-endian uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read uint32: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReadData reads counted data: [length:uint32][data:length bytes].
func ReadData(r io.Reader) ([]byte, error) {
	length, err := ReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}
	if length > MaxDataLength {
		return nil, fmt.Errorf("data length %d exceeds maximum %d", length, MaxDataLength)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	return data, nil
}

func readCount(r io.Reader, what string) (uint32, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return 0, fmt.Errorf("read %s count: %w", what, err)
	}
	if n > MaxCount {
		return 0, fmt.Errorf("%s count %d exceeds maximum %d", what, n, MaxCount)
	}
	return n, nil
}

// ReadPrincipal decodes a principal written by WritePrincipal.
func ReadPrincipal(r io.Reader) (ccache.Principal, error) {
	nameType, err := ReadUint32(r)
	if err != nil {
		return ccache.Principal{}, fmt.Errorf("read name type: %w", err)
	}
	count, err := readCount(r, "component")
	if err != nil {
		return ccache.Principal{}, err
	}
	realm, err := ReadData(r)
	if err != nil {
		return ccache.Principal{}, fmt.Errorf("read realm: %w", err)
	}

	comps := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		c, err := ReadData(r)
		if err != nil {
			return ccache.Principal{}, fmt.Errorf("read component %d: %w", i, err)
		}
		comps = append(comps, string(c))
	}

	p := ccache.NewPrincipal(string(realm), comps...)
	p.Name.NameType = int32(nameType)
	return p, nil
}

// ReadCredential decodes a credential written by WriteCredential.
func ReadCredential(r io.Reader) (*ccache.Credential, error) {
	var (
		c   ccache.Credential
		err error
	)

	if c.Client, err = ReadPrincipal(r); err != nil {
		return nil, fmt.Errorf("read client: %w", err)
	}
	if c.Server, err = ReadPrincipal(r); err != nil {
		return nil, fmt.Errorf("read server: %w", err)
	}

	keyType, err := ReadUint16(r)
	if err != nil {
		return nil, fmt.Errorf("read key type: %w", err)
	}
	c.Key.KeyType = int32(keyType)
	if c.Key.KeyValue, err = ReadData(r); err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	for _, ts := range []*ccache.Timestamp{&c.AuthTime, &c.StartTime, &c.EndTime, &c.RenewTill} {
		v, err := ReadUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read times: %w", err)
		}
		*ts = ccache.Timestamp(v)
	}

	var skey [1]byte
	if _, err := io.ReadFull(r, skey[:]); err != nil {
		return nil, fmt.Errorf("read is_skey: %w", err)
	}
	c.IsSKey = skey[0] != 0

	fl, err := ReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read ticket flags: %w", err)
	}
	c.TicketFlags = ccache.FlagsFromUint32(fl)

	n, err := readCount(r, "address")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		t, err := ReadUint16(r)
		if err != nil {
			return nil, fmt.Errorf("read address %d type: %w", i, err)
		}
		addr, err := ReadData(r)
		if err != nil {
			return nil, fmt.Errorf("read address %d: %w", i, err)
		}
		c.Addresses = append(c.Addresses, types.HostAddress{AddrType: int32(t), Address: addr})
	}

	n, err = readCount(r, "authdata")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		t, err := ReadUint16(r)
		if err != nil {
			return nil, fmt.Errorf("read authdata %d type: %w", i, err)
		}
		ad, err := ReadData(r)
		if err != nil {
			return nil, fmt.Errorf("read authdata %d: %w", i, err)
		}
		c.AuthData = append(c.AuthData, types.AuthorizationDataEntry{ADType: int32(t), ADData: ad})
	}

	if c.Ticket, err = ReadData(r); err != nil {
		return nil, fmt.Errorf("read ticket: %w", err)
	}
	if c.SecondTicket, err = ReadData(r); err != nil {
		return nil, fmt.Errorf("read second ticket: %w", err)
	}
	return &c, nil
}
