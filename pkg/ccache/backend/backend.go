// Package backend opens the credential cache collection selected by the
// configuration.
package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/logger"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache/dir"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/ccache/kcm"
	"github.com/paulscherrerinstitute/pam-single-kcm-cache/pkg/config"
)

// UIDPlaceholder is replaced with the numeric uid in CacheConfig.DirPath.
const UIDPlaceholder = "%{uid}"

// ExpandPath substitutes the uid placeholder in a configured path.
func ExpandPath(path string, uid int) string {
	return strings.ReplaceAll(path, UIDPlaceholder, strconv.Itoa(uid))
}

// Open returns the collection for uid described by cfg. It must be called
// with the target user's privilege: the KCM daemon authorizes by peer
// credentials of the connection, and the dir backend creates files owned by
// the caller.
//
// The KCM connection is dialed lazily on first use.
func Open(_ context.Context, cfg config.CacheConfig, uid int) (ccache.Collection, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendKCM, "":
		logger.Debug("Using KCM cache collection", logger.KeyPath, cfg.KCMSocket)
		return kcm.New(kcm.ClientConfig{
			SocketPath: cfg.KCMSocket,
			Timeout:    cfg.KCMTimeout,
		}), nil

	case config.BackendDir:
		path := ExpandPath(cfg.DirPath, uid)
		logger.Debug("Using DIR cache collection", logger.KeyPath, path)
		coll, err := dir.NewWithPath(path)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", ccache.ErrCollection, path, err)
		}
		return coll, nil

	default:
		return nil, fmt.Errorf("unknown cache backend %q (valid: kcm, dir)", cfg.Backend)
	}
}
