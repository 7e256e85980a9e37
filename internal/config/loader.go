package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/fsutil"
)

// Load parses every .hcl file reachable from the given paths and merges the
// decoded blocks into one Config. A path may be a single file or a
// directory; directories are walked recursively. Singleton blocks
// (workspace, budget, server_health) may appear at most once across all
// files, and rule and cache names must be unique.
func Load(ctx context.Context, paths ...string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findConfigFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl configuration found under %v", paths)
	}
	logger.Debug("Discovered configuration files.", "count", len(files))

	cfg := &Config{rulesByName: make(map[string]*RuleBlock)}
	cacheNames := make(map[string]string)
	parser := hclparse.NewParser()
	evalCtx := newEvalContext()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", file, diags)
		}

		if root.Workspace != nil {
			if cfg.Workspace != (WorkspaceBlock{}) {
				return nil, fmt.Errorf("%s: duplicate workspace block", file)
			}
			cfg.Workspace = *root.Workspace
		}
		if root.Budget != nil {
			if cfg.Budget != nil {
				return nil, fmt.Errorf("%s: duplicate budget block", file)
			}
			cfg.Budget = root.Budget
		}
		if root.ServerHealth != nil {
			if cfg.ServerHealth != (ServerHealthBlock{}) {
				return nil, fmt.Errorf("%s: duplicate server_health block", file)
			}
			cfg.ServerHealth = *root.ServerHealth
		}
		for _, cache := range root.Caches {
			if prev, ok := cacheNames[cache.Name]; ok {
				return nil, fmt.Errorf("%s: cache %q already declared in %s", file, cache.Name, prev)
			}
			cacheNames[cache.Name] = file
			cfg.Caches = append(cfg.Caches, cache)
		}
		for _, rule := range root.Rules {
			if _, ok := cfg.rulesByName[rule.Name]; ok {
				return nil, fmt.Errorf("%s: rule %q declared more than once", file, rule.Name)
			}
			cfg.rulesByName[rule.Name] = rule
			cfg.Rules = append(cfg.Rules, rule)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded.",
		"rules", len(cfg.Rules), "caches", len(cfg.Caches))
	return cfg, nil
}

// findConfigFiles resolves each path to the .hcl files beneath it,
// preserving order and dropping duplicates.
func findConfigFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("accessing %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", path, err)
		}
		for _, f := range found {
			add(f)
		}
	}
	return files, nil
}

// newEvalContext exposes the process environment to attribute expressions
// as the `env` object, e.g. `access_key = env.AWS_ACCESS_KEY_ID`.
func newEvalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = cty.StringVal(value)
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}

// ResolveRoot returns the workspace root as an absolute path, defaulting to
// the directory the configuration itself was loaded from.
func (c *Config) ResolveRoot(configPath string) (string, error) {
	root := c.Workspace.Root
	if root == "" {
		root = configPath
	}
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		root = filepath.Dir(root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root %s: %w", root, err)
	}
	return abs, nil
}
