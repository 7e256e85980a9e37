// Package app wires the build engine together from loaded configuration:
// the file hash cache, the artifact cache tiers, the resource scheduler,
// and the local command runner. It owns the application lifecycle from
// startup through the build run to shutdown.
package app
