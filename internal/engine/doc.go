// Package engine orchestrates an incremental build: it traverses the rule
// graph into dependency order, fingerprints each rule, consults the
// artifact cache, and executes only the rules whose artifacts could not be
// fetched, under the resource scheduler's admission control.
//
// The engine never constructs rules and never interprets their commands; it
// sees the graph through the BuildRule interface and runs commands through
// the CommandRunner capability. A rule failure skips its dependents and
// nothing else: independent subgraphs build to completion and the report
// carries a per-rule verdict.
package engine
