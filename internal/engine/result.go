package engine

import (
	"github.com/vk/buildgridgo/internal/rulekey"
)

// Status is the final verdict for one rule in a build.
type Status int

const (
	// StatusCached means the rule's artifacts were fetched from the cache.
	StatusCached Status = iota
	// StatusBuilt means the rule's command ran and succeeded.
	StatusBuilt
	// StatusFailed means the rule's command failed or could not run.
	StatusFailed
	// StatusSkipped means the rule was not attempted because a dependency
	// did not succeed, or the build was cancelled first.
	StatusSkipped
)

// String implements fmt.Stringer; the values double as metric labels.
func (s Status) String() string {
	switch s {
	case StatusCached:
		return "cached"
	case StatusBuilt:
		return "built"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// ok reports whether a dependent may build on top of this status.
func (s Status) ok() bool {
	return s == StatusCached || s == StatusBuilt
}

// RuleResult is the outcome of one rule.
type RuleResult struct {
	Rule        BuildRule
	Status      Status
	Fingerprint rulekey.Fingerprint
	ExitCode    int
	Stdout      []byte
	Stderr      []byte
	Err         error
}

// Report is the outcome of a whole build: one RuleResult per reachable rule.
type Report struct {
	// Order lists every processed rule ID in dependency order.
	Order []string

	results map[string]RuleResult
}

// Result returns the outcome for a rule ID.
func (r *Report) Result(id string) (RuleResult, bool) {
	res, ok := r.results[id]
	return res, ok
}

// Results returns all outcomes in dependency order.
func (r *Report) Results() []RuleResult {
	out := make([]RuleResult, 0, len(r.Order))
	for _, id := range r.Order {
		out = append(out, r.results[id])
	}
	return out
}

// Counts tallies outcomes by status.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, res := range r.results {
		counts[res.Status]++
	}
	return counts
}

// OK reports whether every rule ended cached or built.
func (r *Report) OK() bool {
	for _, res := range r.results {
		if !res.Status.ok() {
			return false
		}
	}
	return true
}
