// Package config loads the workspace configuration from HCL files: the
// resource budget, the artifact cache tiers, and the build rule graph.
// Attribute expressions can reference process environment variables through
// the `env` object, so credentials never have to be written into the files.
package config
