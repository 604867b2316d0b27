package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

// ============================================================================
// Encoding Helpers - Go Types → Wire Format
// ============================================================================

// WriteUint16 appends a big-endian uint16.
func WriteUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

// WriteUint32 appends a big-endian uint32.
func WriteUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// WriteData encodes counted data: [length:uint32][data:length bytes].
func WriteData(buf *bytes.Buffer, data []byte) error {
	if len(data) > MaxDataLength {
		return fmt.Errorf("data length %d exceeds maximum %d", len(data), MaxDataLength)
	}
	WriteUint32(buf, uint32(len(data)))
	buf.Write(data)
	return nil
}

// WritePrincipal encodes a principal:
//
//	[name_type:uint32][count:uint32][realm:data][component:data]...
func WritePrincipal(buf *bytes.Buffer, p ccache.Principal) error {
	comps := p.Components()
	if len(comps) > MaxCount {
		return fmt.Errorf("principal has %d components, maximum %d", len(comps), MaxCount)
	}

	WriteUint32(buf, uint32(p.Name.NameType))
	WriteUint32(buf, uint32(len(comps)))
	if err := WriteData(buf, []byte(p.Realm)); err != nil {
		return fmt.Errorf("write realm: %w", err)
	}
	for i, c := range comps {
		if err := WriteData(buf, []byte(c)); err != nil {
			return fmt.Errorf("write component %d: %w", i, err)
		}
	}
	return nil
}

// WriteCredential encodes one credential in version 4 layout:
//
//	client, server, keyblock, authtime, starttime, endtime, renew_till,
//	is_skey, ticket_flags, addresses, authdata, ticket, second_ticket
func WriteCredential(buf *bytes.Buffer, c *ccache.Credential) error {
	if err := WritePrincipal(buf, c.Client); err != nil {
		return fmt.Errorf("write client: %w", err)
	}
	if err := WritePrincipal(buf, c.Server); err != nil {
		return fmt.Errorf("write server: %w", err)
	}

	WriteUint16(buf, uint16(c.Key.KeyType))
	if err := WriteData(buf, c.Key.KeyValue); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	WriteUint32(buf, uint32(c.AuthTime))
	WriteUint32(buf, uint32(c.StartTime))
	WriteUint32(buf, uint32(c.EndTime))
	WriteUint32(buf, uint32(c.RenewTill))

	if c.IsSKey {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	WriteUint32(buf, ccache.FlagsToUint32(c.TicketFlags))

	if len(c.Addresses) > MaxCount {
		return fmt.Errorf("credential has %d addresses, maximum %d", len(c.Addresses), MaxCount)
	}
	WriteUint32(buf, uint32(len(c.Addresses)))
	for i, a := range c.Addresses {
		WriteUint16(buf, uint16(a.AddrType))
		if err := WriteData(buf, a.Address); err != nil {
			return fmt.Errorf("write address %d: %w", i, err)
		}
	}

	if len(c.AuthData) > MaxCount {
		return fmt.Errorf("credential has %d authdata entries, maximum %d", len(c.AuthData), MaxCount)
	}
	WriteUint32(buf, uint32(len(c.AuthData)))
	for i, a := range c.AuthData {
		WriteUint16(buf, uint16(a.ADType))
		if err := WriteData(buf, a.ADData); err != nil {
			return fmt.Errorf("write authdata %d: %w", i, err)
		}
	}

	if err := WriteData(buf, c.Ticket); err != nil {
		return fmt.Errorf("write ticket: %w", err)
	}
	if err := WriteData(buf, c.SecondTicket); err != nil {
		return fmt.Errorf("write second ticket: %w", err)
	}
	return nil
}
