// Package kerberos locates and reads the Kerberos configuration (krb5.conf)
// for the cache consolidator.
//
// The only setting the consolidator needs is the default realm, which
// completes a bare login name ("alice") into a principal ("alice@EXAMPLE.COM")
// when a fresh target cache has to be initialized without a winning TGT.
//
// The configuration path is resolved the way the MIT library does it:
//   - KRB5_CONFIG overrides the configured path (first entry of the list)
//   - the configured path (cache.krb5_conf)
//   - /etc/krb5.conf
//
// A missing krb5.conf is not an error: the realm is simply unknown, and
// principal parsing reports ccache.ErrNoDefaultRealm when it needs one.
package kerberos
