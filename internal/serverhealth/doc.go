// Package serverhealth keeps rolling latency and error-rate statistics for
// remote cache replicas. Each replica gets a tracker holding bounded rings
// of timestamped samples; consumers query error rate and average ping
// latency over a recent window and rank replicas with Pick.
//
// The trackers only supply raw statistics. Which replica to talk to, and
// what to do when all of them look unhealthy, is the caller's policy.
package serverhealth
