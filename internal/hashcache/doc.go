// Package hashcache maps filesystem paths, and members of zip archives, to
// content digests. It backs rule-key computation so that repeated builds do
// not re-hash files that have not changed.
//
// Entries stay valid until explicitly invalidated. The cache is safe for
// concurrent use: lookups for distinct paths never block each other, and
// concurrent lookups for the same path serialize on a per-path lock so the
// content is hashed once.
package hashcache
