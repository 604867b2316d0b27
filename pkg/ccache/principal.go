package ccache

import (
	"fmt"
	"strings"

	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/types"
)

// TGSName is the first component of every ticket-granting service principal.
const TGSName = "krbtgt"

// Principal is a Kerberos identity: a realm plus one or more name components.
//
// The name components and their name type are kept in gokrb5's PrincipalName
// so that values can be handed to gokrb5 APIs without conversion.
type Principal struct {
	Realm string
	Name  types.PrincipalName
}

// NewPrincipal builds a KRB_NT_PRINCIPAL principal from its components.
func NewPrincipal(realm string, components ...string) Principal {
	return Principal{
		Realm: realm,
		Name: types.PrincipalName{
			NameType:   nametype.KRB_NT_PRINCIPAL,
			NameString: append([]string(nil), components...),
		},
	}
}

// TGSPrincipal returns krbtgt/<realm>@<realm>.
func TGSPrincipal(realm string) Principal {
	p := NewPrincipal(realm, TGSName, realm)
	p.Name.NameType = nametype.KRB_NT_SRV_INST
	return p
}

// Components returns the name components.
func (p Principal) Components() []string {
	return p.Name.NameString
}

// IsZero reports whether the principal carries no realm and no components.
func (p Principal) IsZero() bool {
	return p.Realm == "" && len(p.Name.NameString) == 0
}

// Equal reports whether p and o name the same identity. The realm and every
// component must match byte for byte; the name type is not compared.
func (p Principal) Equal(o Principal) bool {
	if len(p.Realm) != len(o.Realm) || p.Realm != o.Realm {
		return false
	}
	if len(p.Name.NameString) != len(o.Name.NameString) {
		return false
	}
	for i, c := range p.Name.NameString {
		oc := o.Name.NameString[i]
		if len(c) != len(oc) || c != oc {
			return false
		}
	}
	return true
}

// String renders the principal in "comp1/comp2@REALM" form. Separators and
// control characters inside components are backslash-escaped so that the
// result parses back to the same principal.
func (p Principal) String() string {
	var b strings.Builder
	for i, c := range p.Name.NameString {
		if i > 0 {
			b.WriteByte('/')
		}
		writeQuoted(&b, c, true)
	}
	b.WriteByte('@')
	writeQuoted(&b, p.Realm, false)
	return b.String()
}

func writeQuoted(b *strings.Builder, s string, component bool) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '@':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '/':
			if component {
				b.WriteByte('\\')
			}
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case 0:
			b.WriteString(`\0`)
		default:
			b.WriteByte(c)
		}
	}
}

// ParsePrincipal parses "comp1/comp2@REALM". When the realm is omitted,
// defaultRealm is used; if that is empty too, ErrNoDefaultRealm is returned.
func ParsePrincipal(s, defaultRealm string) (Principal, error) {
	if s == "" {
		return Principal{}, fmt.Errorf("%w: empty name", ErrMalformedPrincipal)
	}

	var (
		components []string
		cur        strings.Builder
		realm      strings.Builder
		inRealm    bool
	)

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			i++
			if i == len(s) {
				return Principal{}, fmt.Errorf("%w: trailing backslash in %q", ErrMalformedPrincipal, s)
			}
			c = unescape(s[i])
		} else if c == '@' {
			if inRealm {
				return Principal{}, fmt.Errorf("%w: multiple realm separators in %q", ErrMalformedPrincipal, s)
			}
			components = append(components, cur.String())
			cur.Reset()
			inRealm = true
			continue
		} else if c == '/' && !inRealm {
			components = append(components, cur.String())
			cur.Reset()
			continue
		}

		if inRealm {
			realm.WriteByte(c)
		} else {
			cur.WriteByte(c)
		}
	}

	if !inRealm {
		components = append(components, cur.String())
		if defaultRealm == "" {
			return Principal{}, fmt.Errorf("%w: %q has no realm", ErrNoDefaultRealm, s)
		}
		realm.WriteString(defaultRealm)
	} else if realm.Len() == 0 {
		return Principal{}, fmt.Errorf("%w: empty realm in %q", ErrMalformedPrincipal, s)
	}

	return NewPrincipal(realm.String(), components...), nil
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case '0':
		return 0
	default:
		return c
	}
}
