package engine

import (
	"context"

	"github.com/vk/buildgridgo/internal/resources"
)

// BuildRule is one unit of build work, supplied by the (external) rule
// layer. Implementations must be immutable for the duration of a build and
// usable as map keys through their ID.
type BuildRule interface {
	// ID is a stable, unique identity for the rule.
	ID() string
	// Deps lists the rules this rule depends on, in declared order.
	Deps() []BuildRule
	// Inputs lists workspace-relative input files, in declared order.
	Inputs() []string
	// Flags lists rule-local configuration strings that affect the output.
	Flags() []string
	// Command is the command line that produces the outputs.
	Command() []string
	// Env lists extra environment entries for the command, KEY=VALUE form.
	Env() []string
	// Outputs lists the workspace-relative files the command produces.
	Outputs() []string
	// Cost declares the resources the command consumes while running.
	Cost() resources.Amounts
}

// CommandSpec describes one command invocation.
type CommandSpec struct {
	Args []string
	Env  []string
	Dir  string
}

// CommandResult is the outcome of a completed command.
type CommandResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// CommandRunner is the external command-execution capability. The engine
// decides whether and under what budget to invoke it; how the process is
// launched, streamed, and timed out is the implementation's business.
type CommandRunner interface {
	Run(ctx context.Context, spec CommandSpec) (CommandResult, error)
}
