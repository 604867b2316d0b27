package ccache_test

import (
	"time"

	"github.com/jcmturner/gokrb5/v8/types"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
)

const realm = "EXAMPLE.COM"

// scanStart is a fixed clock for ranking tests.
var scanStart = time.Unix(1_700_000_000, 0)

func at(offset int) ccache.Timestamp {
	return ccache.TimestampOf(scanStart).Add(time.Duration(offset) * time.Second)
}

// tgtFor returns a TGT for user whose start time is now+issued and whose end
// time is now+expires.
func tgtFor(user string, issued, expires int) *ccache.Credential {
	return &ccache.Credential{
		Client:    ccache.NewPrincipal(realm, user),
		Server:    ccache.TGSPrincipal(realm),
		Key:       types.EncryptionKey{KeyType: 18, KeyValue: []byte{1, 2, 3, 4}},
		AuthTime:  at(issued),
		StartTime: at(issued),
		EndTime:   at(expires),
		Ticket:    []byte(user + "-" + at(issued).String()),
	}
}

func serviceTicket(user, host string) *ccache.Credential {
	return &ccache.Credential{
		Client:    ccache.NewPrincipal(realm, user),
		Server:    ccache.NewPrincipal(realm, "host", host),
		AuthTime:  at(-1),
		StartTime: at(-1),
		EndTime:   at(3600),
		Ticket:    []byte("service-" + host),
	}
}

func newRanker() *ccache.Ranker {
	r := ccache.NewRanker()
	r.Now = func() time.Time { return scanStart }
	return r
}
