package ccache

import (
	"bytes"
	"strings"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/jcmturner/gokrb5/v8/types"
)

// Credential is one ticket as stored in a credential cache.
//
// The ticket payload is opaque: it is copied verbatim between caches and never
// decoded.
type Credential struct {
	Client       Principal
	Server       Principal
	Key          types.EncryptionKey
	AuthTime     Timestamp
	StartTime    Timestamp
	EndTime      Timestamp
	RenewTill    Timestamp
	IsSKey       bool
	TicketFlags  asn1.BitString
	Addresses    []types.HostAddress
	AuthData     []types.AuthorizationDataEntry
	Ticket       []byte
	SecondTicket []byte
}

// Freshness is the effective issue time used for ranking: the start time when
// set, otherwise the auth time.
func (c *Credential) Freshness() Timestamp {
	if !c.StartTime.IsZero() {
		return c.StartTime
	}
	return c.AuthTime
}

// SameTicket reports whether o holds the same ticket for the same client and
// server as c.
func (c *Credential) SameTicket(o *Credential) bool {
	if c == nil || o == nil {
		return false
	}
	return c.Client.Equal(o.Client) &&
		c.Server.Equal(o.Server) &&
		bytes.Equal(c.Ticket, o.Ticket)
}

// Wipe zeroes the session key. It is the release step for a credential that
// is no longer needed. Safe on nil.
func (c *Credential) Wipe() {
	if c == nil {
		return
	}
	for i := range c.Key.KeyValue {
		c.Key.KeyValue[i] = 0
	}
	c.Key.KeyValue = nil
}

// Clone returns a deep copy of c.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.Client = clonePrincipal(c.Client)
	out.Server = clonePrincipal(c.Server)
	out.Key.KeyValue = bytes.Clone(c.Key.KeyValue)
	out.TicketFlags = asn1.BitString{
		Bytes:     bytes.Clone(c.TicketFlags.Bytes),
		BitLength: c.TicketFlags.BitLength,
	}
	if c.Addresses != nil {
		out.Addresses = make([]types.HostAddress, len(c.Addresses))
		for i, a := range c.Addresses {
			out.Addresses[i] = types.HostAddress{AddrType: a.AddrType, Address: bytes.Clone(a.Address)}
		}
	}
	if c.AuthData != nil {
		out.AuthData = make([]types.AuthorizationDataEntry, len(c.AuthData))
		for i, a := range c.AuthData {
			out.AuthData[i] = types.AuthorizationDataEntry{ADType: a.ADType, ADData: bytes.Clone(a.ADData)}
		}
	}
	out.Ticket = bytes.Clone(c.Ticket)
	out.SecondTicket = bytes.Clone(c.SecondTicket)
	return &out
}

func clonePrincipal(p Principal) Principal {
	p.Name.NameString = append([]string(nil), p.Name.NameString...)
	return p
}

// flagLetters follows klist's single-letter notation.
var flagLetters = []struct {
	bit    int
	letter byte
}{
	{flags.Forwardable, 'F'},
	{flags.Forwarded, 'f'},
	{flags.Proxiable, 'P'},
	{flags.Proxy, 'p'},
	{flags.MayPostDate, 'D'},
	{flags.PostDated, 'd'},
	{flags.Invalid, 'i'},
	{flags.Renewable, 'R'},
	{flags.Initial, 'I'},
	{flags.PreAuthent, 'A'},
	{flags.HWAuthent, 'H'},
	{flags.TransitedPolicyChecked, 'T'},
	{flags.OKAsDelegate, 'O'},
}

// FlagString renders the ticket flags in klist notation, e.g. "FfRIA".
func (c *Credential) FlagString() string {
	if len(c.TicketFlags.Bytes) < 4 {
		return ""
	}
	var b strings.Builder
	for _, f := range flagLetters {
		if types.IsFlagSet(&c.TicketFlags, f.bit) {
			b.WriteByte(f.letter)
		}
	}
	return b.String()
}

// FlagsFromUint32 converts the 32-bit on-disk flag word to a BitString.
func FlagsFromUint32(v uint32) asn1.BitString {
	bs := types.NewKrbFlags()
	bs.Bytes[0] = byte(v >> 24)
	bs.Bytes[1] = byte(v >> 16)
	bs.Bytes[2] = byte(v >> 8)
	bs.Bytes[3] = byte(v)
	return bs
}

// FlagsToUint32 is the inverse of FlagsFromUint32.
func FlagsToUint32(bs asn1.BitString) uint32 {
	var v uint32
	for i := 0; i < 4 && i < len(bs.Bytes); i++ {
		v |= uint32(bs.Bytes[i]) << (24 - 8*uint(i))
	}
	return v
}
