// Package rulekey computes deterministic content fingerprints ("rule keys")
// for build rules. A rule key digests a rule's leaf file contents, the rule
// keys of its dependencies, and its own declared fields into a single
// fixed-size value that is stable across runs and across machines.
//
// Hashing is scoped: a key, wrapper, or container contributes its tag to the
// digest only if at least one value was actually hashed inside it. Absent
// optional fields and empty collections therefore leave no trace, so adding
// a new, usually-empty field to a rule schema does not invalidate every
// cached artifact.
//
// The builder does not sort inputs. Fields are hashed in presentation order;
// callers canonicalize element order where it is not semantically
// significant.
package rulekey
