package config

import (
	"fmt"

	"github.com/vk/buildgridgo/internal/engine"
	"github.com/vk/buildgridgo/internal/resources"
)

// staticRule adapts a decoded rule block to the engine's rule interface.
type staticRule struct {
	block *RuleBlock
	deps  []engine.BuildRule
}

func (r *staticRule) ID() string               { return r.block.Name }
func (r *staticRule) Deps() []engine.BuildRule { return r.deps }
func (r *staticRule) Inputs() []string         { return r.block.Inputs }
func (r *staticRule) Flags() []string          { return r.block.Flags }
func (r *staticRule) Command() []string        { return r.block.Command }
func (r *staticRule) Env() []string            { return r.block.Env }
func (r *staticRule) Outputs() []string        { return r.block.Outputs }

func (r *staticRule) Cost() resources.Amounts {
	cost := r.block.Cost
	if cost == nil {
		return resources.Amounts{CPU: 1}
	}
	return resources.Amounts{
		CPU:       cost.CPU,
		MemoryMB:  cost.MemoryMB,
		DiskIO:    cost.DiskIO,
		NetworkIO: cost.NetworkIO,
	}
}

// BuildRules materializes every rule block as an engine rule, with
// dependency references resolved by name. Cyclic references are legal here;
// the engine reports them with the full chain when it plans the build.
func (c *Config) BuildRules() []engine.BuildRule {
	rules := make(map[string]*staticRule, len(c.Rules))
	for _, block := range c.Rules {
		rules[block.Name] = &staticRule{block: block}
	}
	for _, rule := range rules {
		for _, dep := range rule.block.Deps {
			rule.deps = append(rule.deps, rules[dep])
		}
	}

	out := make([]engine.BuildRule, 0, len(c.Rules))
	for _, block := range c.Rules {
		out = append(out, rules[block.Name])
	}
	return out
}

// Targets returns the engine rules for the named rule blocks, or every rule
// in declaration order when no names are given.
func (c *Config) Targets(names ...string) ([]engine.BuildRule, error) {
	all := c.BuildRules()
	if len(names) == 0 {
		return all, nil
	}

	byID := make(map[string]engine.BuildRule, len(all))
	for _, rule := range all {
		byID[rule.ID()] = rule
	}
	targets := make([]engine.BuildRule, 0, len(names))
	for _, name := range names {
		rule, ok := byID[name]
		if !ok {
			return nil, fmt.Errorf("unknown target %q", name)
		}
		targets = append(targets, rule)
	}
	return targets, nil
}
