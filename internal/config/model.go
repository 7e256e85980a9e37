package config

import (
	"fmt"
	"time"
)

// Cache block kinds.
const (
	CacheKindDir  = "dir"
	CacheKindHTTP = "http"
	CacheKindS3   = "s3"
)

// Cache modes as written in configuration.
const (
	ModeReadWrite = "read-write"
	ModeReadOnly  = "read-only"
)

// fileRoot decodes the top-level blocks of one configuration file.
type fileRoot struct {
	Workspace    *WorkspaceBlock    `hcl:"workspace,block"`
	Budget       *BudgetBlock       `hcl:"budget,block"`
	Caches       []*CacheBlock      `hcl:"cache,block"`
	ServerHealth *ServerHealthBlock `hcl:"server_health,block"`
	Rules        []*RuleBlock       `hcl:"rule,block"`
}

// WorkspaceBlock configures the build root and engine-wide knobs.
type WorkspaceBlock struct {
	Root             string `hcl:"root,optional"`
	Workers          int    `hcl:"workers,optional"`
	HashCacheEntries int    `hcl:"hash_cache_entries,optional"`
}

// BudgetBlock declares the machine's total resource budget. Omitted
// dimensions are unconstrained only in the sense that no rule declares a
// cost against them.
type BudgetBlock struct {
	CPU       uint64 `hcl:"cpu,optional"`
	MemoryMB  uint64 `hcl:"memory_mb,optional"`
	DiskIO    uint64 `hcl:"disk_io,optional"`
	NetworkIO uint64 `hcl:"network_io,optional"`
}

// CacheBlock declares one artifact cache tier. Tiers are consulted in
// declaration order. Which attributes apply depends on the kind label.
type CacheBlock struct {
	Kind string `hcl:"kind,label"`
	Name string `hcl:"name,label"`
	Mode string `hcl:"mode,optional"`

	// dir
	Path string `hcl:"path,optional"`

	// http
	Servers []string `hcl:"servers,optional"`

	// s3
	Endpoint  string `hcl:"endpoint,optional"`
	Bucket    string `hcl:"bucket,optional"`
	Region    string `hcl:"region,optional"`
	AccessKey string `hcl:"access_key,optional"`
	SecretKey string `hcl:"secret_key,optional"`
	UseTLS    *bool  `hcl:"use_tls,optional"`
}

// ServerHealthBlock tunes remote cache server health tracking.
type ServerHealthBlock struct {
	SampleCapacity int   `hcl:"sample_capacity,optional"`
	WindowSeconds  int64 `hcl:"window_seconds,optional"`
}

// Window returns the configured health window, or zero when unset.
func (s *ServerHealthBlock) Window() time.Duration {
	if s == nil || s.WindowSeconds <= 0 {
		return 0
	}
	return time.Duration(s.WindowSeconds) * time.Second
}

// RuleBlock declares one build rule.
type RuleBlock struct {
	Name    string     `hcl:"name,label"`
	Deps    []string   `hcl:"deps,optional"`
	Inputs  []string   `hcl:"inputs,optional"`
	Flags   []string   `hcl:"flags,optional"`
	Command []string   `hcl:"command,optional"`
	Env     []string   `hcl:"env,optional"`
	Outputs []string   `hcl:"outputs,optional"`
	Cost    *CostBlock `hcl:"cost,block"`
}

// CostBlock declares the resources one rule's command consumes.
type CostBlock struct {
	CPU       uint64 `hcl:"cpu,optional"`
	MemoryMB  uint64 `hcl:"memory_mb,optional"`
	DiskIO    uint64 `hcl:"disk_io,optional"`
	NetworkIO uint64 `hcl:"network_io,optional"`
}

// Config is the merged result of loading every configuration file.
type Config struct {
	Workspace    WorkspaceBlock
	Budget       *BudgetBlock
	Caches       []*CacheBlock
	ServerHealth ServerHealthBlock
	Rules        []*RuleBlock

	rulesByName map[string]*RuleBlock
}

// Rule returns a rule block by name.
func (c *Config) Rule(name string) (*RuleBlock, bool) {
	r, ok := c.rulesByName[name]
	return r, ok
}

// validate enforces the structural invariants the loader cannot express in
// the schema alone.
func (c *Config) validate() error {
	for _, cache := range c.Caches {
		switch cache.Kind {
		case CacheKindDir:
			if cache.Path == "" {
				return fmt.Errorf("cache %q: dir caches require a path", cache.Name)
			}
		case CacheKindHTTP:
			if len(cache.Servers) == 0 {
				return fmt.Errorf("cache %q: http caches require at least one server", cache.Name)
			}
		case CacheKindS3:
			if cache.Endpoint == "" || cache.Bucket == "" {
				return fmt.Errorf("cache %q: s3 caches require an endpoint and a bucket", cache.Name)
			}
		default:
			return fmt.Errorf("cache %q: unknown kind %q", cache.Name, cache.Kind)
		}
		switch cache.Mode {
		case "", ModeReadWrite, ModeReadOnly:
		default:
			return fmt.Errorf("cache %q: invalid mode %q", cache.Name, cache.Mode)
		}
	}

	for _, rule := range c.Rules {
		for _, dep := range rule.Deps {
			if _, ok := c.rulesByName[dep]; !ok {
				return fmt.Errorf("rule %q: unknown dependency %q", rule.Name, dep)
			}
		}
		if len(rule.Command) == 0 && len(rule.Outputs) > 0 {
			return fmt.Errorf("rule %q: outputs without a command to produce them", rule.Name)
		}
	}
	return nil
}
