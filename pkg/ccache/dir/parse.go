package dir

import (
	"errors"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/credentials"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

// ErrCorrupt is returned for files that cannot be parsed as a ccache.
var ErrCorrupt = errors.New("corrupt credential cache file")

type file struct {
	principal ccache.Principal
	creds     []*ccache.Credential
}

func (f *file) wipe() {
	for _, c := range f.creds {
		c.Wipe()
	}
}

// parseFile decodes a ccache file image. gokrb5 indexes the input without
// bounds checks, so a truncated file panics inside Unmarshal; that is turned
// into ErrCorrupt.
func parseFile(data []byte) (f *file, err error) {
	// Cap the slice so reads past the end panic instead of seeing spare capacity.
	data = data[:len(data):len(data)]

	var cc credentials.CCache
	defer func() {
		if r := recover(); r != nil {
			f, err = nil, fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	if err := cc.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	f = &file{
		principal: ccache.Principal{
			Realm: cc.DefaultPrincipal.Realm,
			Name:  cc.DefaultPrincipal.PrincipalName,
		},
	}
	for _, c := range cc.Credentials {
		f.creds = append(f.creds, fromKrb5(c))
	}
	return f, nil
}

func fromKrb5(c *credentials.Credential) *ccache.Credential {
	return &ccache.Credential{
		Client:       ccache.Principal{Realm: c.Client.Realm, Name: c.Client.PrincipalName},
		Server:       ccache.Principal{Realm: c.Server.Realm, Name: c.Server.PrincipalName},
		Key:          c.Key,
		AuthTime:     ccache.TimestampOf(c.AuthTime),
		StartTime:    ccache.TimestampOf(c.StartTime),
		EndTime:      ccache.TimestampOf(c.EndTime),
		RenewTill:    ccache.TimestampOf(c.RenewTill),
		IsSKey:       c.IsSKey,
		TicketFlags:  c.TicketFlags,
		Addresses:    c.Addresses,
		AuthData:     c.AuthData,
		Ticket:       c.Ticket,
		SecondTicket: c.SecondTicket,
	}
}
