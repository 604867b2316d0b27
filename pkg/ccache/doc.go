// Package ccache selects the most trustworthy ticket-granting ticket among the
// credential caches of a user and consolidates it into one stable cache.
//
// The package is split along the same lines as the flow it implements:
//   - Identity matching of a cache's default principal against a user name
//   - Extraction of the local TGT from a single cache
//   - Ranking every cache of a collection and keeping the youngest valid TGT
//   - Consolidation of the winner into a fixed-name target cache
//
// Storage is abstracted behind the Collection and Cache interfaces. Concrete
// backends live in the memory, dir and kcm subpackages.
//
// Resource discipline: every Cache handle and CredentialCursor obtained from a
// backend must be closed exactly once. The Ranker holds at most one winner at
// any time and releases every other handle on the same iteration step that
// rejected it.
package ccache
