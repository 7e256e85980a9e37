// Package artifactcache stores and retrieves build outputs keyed by rule
// fingerprint. A fetch either materializes byte-identical content to what
// was stored under that fingerprint or reports a clean miss; I/O failures
// surface as a distinct ERROR outcome so callers can tell "not cached"
// apart from "cache unreachable".
//
// Tiers form a small closed set behind one interface: a local directory
// tier, an HTTP tier spread over redundant replicas picked by live health,
// an S3-compatible object-store tier, and a composite tier that consults an
// ordered list and write-through-populates earlier tiers on a remote hit.
//
// Any tier can be opened read-only; read-only tiers reject Store with
// ErrReadOnly without touching their backing state.
package artifactcache
