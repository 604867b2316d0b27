package ccache

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
)

// IsLocalTGT reports whether server is krbtgt/<realm>@<realm>.
func IsLocalTGT(server Principal, realm string) bool {
	comps := server.Name.NameString
	return len(comps) == 2 &&
		server.Realm == realm &&
		comps[0] == TGSName &&
		comps[1] == realm
}

// ExtractTGT returns the local TGT of cache, i.e. the first credential whose
// server is the ticket-granting service of the cache's own realm.
//
// A nil credential with a nil error means the cache holds no TGT. Errors
// reading the principal or opening the credential cursor are returned so
// callers can log them; callers should treat them like "no TGT".
func ExtractTGT(ctx context.Context, cache Cache) (*Credential, error) {
	princ, err := cache.Principal(ctx)
	if err != nil {
		return nil, fmt.Errorf("read principal: %w", err)
	}

	cursor, err := cache.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("open credential cursor: %w", err)
	}
	defer func() {
		if err := cursor.Close(); err != nil {
			logger.Debug("Credential cursor close failed",
				logger.KeyCache, cache.FullName(), logger.KeyError, err)
		}
	}()

	for {
		cred, err := cursor.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read credential: %w", err)
		}
		if IsLocalTGT(cred.Server, princ.Realm) {
			return cred, nil
		}
		cred.Wipe()
	}
}
