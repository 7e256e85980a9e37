package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/vk/buildgridgo/internal/artifactcache"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/graph"
	"github.com/vk/buildgridgo/internal/hashcache"
	"github.com/vk/buildgridgo/internal/metrics"
	"github.com/vk/buildgridgo/internal/resources"
	"github.com/vk/buildgridgo/internal/rulekey"
)

// Engine runs incremental builds. Zero-value fields degrade gracefully:
// a nil Cache disables artifact caching and a nil Scheduler disables
// admission control. Files and Runner are required.
type Engine struct {
	// Files memoizes input-file digests across rules and across builds.
	Files *hashcache.Cache
	// Cache is the artifact cache tier (possibly a composite). Optional.
	Cache artifactcache.Cache
	// Scheduler admits commands against the machine's resource budget.
	// Optional.
	Scheduler *resources.Scheduler
	// Runner executes rule commands.
	Runner CommandRunner
	// Workers caps concurrent rule processing; non-positive means one
	// worker per available CPU.
	Workers int
	// Root is the workspace directory all rule paths are relative to.
	Root string
}

// run is the mutable state of one Build call.
type run struct {
	engine  *Engine
	index   map[string]BuildRule
	mu      sync.Mutex
	results map[string]RuleResult
}

// Build processes every rule reachable from roots, in dependency order,
// with up to Workers rules in flight at once. A rule whose dependency
// failed or was skipped is skipped in turn; independent subgraphs are
// unaffected and build to completion.
//
// Build returns an error only when no build could be attempted at all: a
// dependency cycle, or cancellation. Per-rule failures are reported in the
// Report, not as an error.
func (e *Engine) Build(ctx context.Context, roots []BuildRule) (*Report, error) {
	logger := ctxlog.FromContext(ctx)

	r := &run{
		engine:  e,
		index:   make(map[string]BuildRule),
		results: make(map[string]RuleResult),
	}
	rootIDs := make([]string, len(roots))
	for i, root := range roots {
		r.index[root.ID()] = root
		rootIDs[i] = root.ID()
	}

	// Traversal works on IDs; rules are registered in the index as their
	// parents' edges are enumerated, before their own edges are asked for.
	children := func(id string) []string {
		deps := r.index[id].Deps()
		ids := make([]string, len(deps))
		for i, dep := range deps {
			if _, ok := r.index[dep.ID()]; !ok {
				r.index[dep.ID()] = dep
			}
			ids[i] = dep.ID()
		}
		return ids
	}
	order, err := graph.Traverse(rootIDs, children)
	if err != nil {
		return nil, fmt.Errorf("planning build: %w", err)
	}
	logger.Info("Build plan ready.", "rules", len(order), "roots", len(roots))

	// pending counts unfinished dependencies per rule; dependents is the
	// reverse adjacency used to decrement them as rules finish.
	pending := make(map[string]int, len(order))
	dependents := make(map[string][]string, len(order))
	for _, id := range order {
		for _, dep := range uniqueDepIDs(r.index[id]) {
			pending[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	readyCh := make(chan string, len(order))
	doneCh := make(chan string, len(order))
	for _, id := range order {
		if pending[id] == 0 {
			readyCh <- id
		}
	}

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range readyCh {
				res := r.process(ctx, r.index[id])
				r.mu.Lock()
				r.results[id] = res
				r.mu.Unlock()
				metrics.RulesBuilt.WithLabelValues(res.Status.String()).Inc()
				doneCh <- id
			}
		}()
	}

	// Every rule finishes with some status, including skipped ones, so the
	// countdown always reaches zero.
	for remaining := len(order); remaining > 0; remaining-- {
		id := <-doneCh
		for _, dependent := range dependents[id] {
			pending[dependent]--
			if pending[dependent] == 0 {
				readyCh <- dependent
			}
		}
	}
	close(readyCh)
	wg.Wait()

	report := &Report{Order: order, results: r.results}
	counts := report.Counts()
	logger.Info("Build finished.",
		"cached", counts[StatusCached],
		"built", counts[StatusBuilt],
		"failed", counts[StatusFailed],
		"skipped", counts[StatusSkipped])
	return report, ctx.Err()
}

// result returns a finished rule's outcome.
func (r *run) result(id string) (RuleResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[id]
	return res, ok
}

// process takes one rule from ready to finished. Its dependencies are
// guaranteed to have results by the time it is called.
func (r *run) process(ctx context.Context, rule BuildRule) RuleResult {
	logger := ctxlog.FromContext(ctx).With("rule", rule.ID())
	e := r.engine

	if err := ctx.Err(); err != nil {
		return RuleResult{Rule: rule, Status: StatusSkipped, Err: err}
	}

	depFingerprints := make([]rulekey.Fingerprint, 0, len(rule.Deps()))
	for _, dep := range rule.Deps() {
		depRes, ok := r.result(dep.ID())
		if !ok || !depRes.Status.ok() {
			logger.Info("Skipping rule.", "blocked_on", dep.ID())
			return RuleResult{
				Rule:   rule,
				Status: StatusSkipped,
				Err:    fmt.Errorf("dependency %s %s", dep.ID(), depRes.Status),
			}
		}
		depFingerprints = append(depFingerprints, depRes.Fingerprint)
	}

	fp, err := e.fingerprint(rule, depFingerprints)
	if err != nil {
		return RuleResult{Rule: rule, Status: StatusFailed, Err: fmt.Errorf("fingerprinting: %w", err)}
	}
	res := RuleResult{Rule: rule, Fingerprint: fp}

	if e.Cache != nil && len(rule.Outputs()) > 0 {
		fetched, fetchErr := e.Cache.Fetch(ctx, fp, e.Root)
		switch fetched.Outcome {
		case artifactcache.Hit:
			e.invalidateOutputs(rule)
			logger.Info("Rule satisfied from cache.", "fingerprint", fp)
			res.Status = StatusCached
			return res
		case artifactcache.Error:
			logger.Warn("Cache fetch failed; building locally.", "error", fetchErr)
		}
	}

	// Rules without a command only aggregate their dependencies.
	if len(rule.Command()) == 0 {
		res.Status = StatusBuilt
		return res
	}

	if e.Scheduler != nil {
		release, acquireErr := e.Scheduler.Acquire(ctx, rule.Cost())
		if acquireErr != nil {
			res.Status = StatusSkipped
			res.Err = acquireErr
			return res
		}
		defer release()
	}

	logger.Info("Building rule.", "fingerprint", fp)
	out, runErr := e.Runner.Run(ctx, CommandSpec{Args: rule.Command(), Env: rule.Env(), Dir: e.Root})
	res.ExitCode = out.ExitCode
	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	if runErr != nil {
		res.Status = StatusFailed
		res.Err = runErr
		return res
	}
	if out.ExitCode != 0 {
		logger.Warn("Rule command failed.", "exit_code", out.ExitCode)
		res.Status = StatusFailed
		res.Err = fmt.Errorf("command exited with code %d", out.ExitCode)
		return res
	}

	e.invalidateOutputs(rule)
	if e.Cache != nil && e.Cache.Mode() == artifactcache.ReadWrite && len(rule.Outputs()) > 0 {
		if storeErr := e.Cache.Store(ctx, fp, e.Root, rule.Outputs()); storeErr != nil {
			logger.Warn("Cache store failed; continuing.", "error", storeErr)
		}
	}
	res.Status = StatusBuilt
	return res
}

// fingerprint computes a rule's content key from its identity, its
// dependencies' fingerprints, and every field that influences its outputs.
func (e *Engine) fingerprint(rule BuildRule, deps []rulekey.Fingerprint) (rulekey.Fingerprint, error) {
	b := rulekey.NewBuilder(e.Files, e.Root)

	idScope := b.Key("id")
	b.AddString(rule.ID())
	idScope.Close()

	depsScope := b.Key("deps")
	depList := b.Container(rulekey.ContainerList)
	for _, fp := range deps {
		elem := depList.Element()
		b.AddFingerprint(fp)
		elem.Close()
	}
	depList.Close()
	depsScope.Close()

	inputsScope := b.Key("inputs")
	inputList := b.Container(rulekey.ContainerList)
	for _, input := range rule.Inputs() {
		elem := inputList.Element()
		if err := b.AddFile(input); err != nil {
			return rulekey.Fingerprint{}, fmt.Errorf("hashing input %s: %w", input, err)
		}
		elem.Close()
	}
	inputList.Close()
	inputsScope.Close()

	hashStringList(b, "flags", rule.Flags())
	hashStringList(b, "command", rule.Command())
	hashStringList(b, "env", rule.Env())
	hashStringList(b, "outputs", rule.Outputs())

	metrics.FingerprintsComputed.Inc()
	return b.Finalize(), nil
}

// hashStringList hashes a named ordered list of strings. Empty lists leave
// no trace, matching the scoping rules.
func hashStringList(b *rulekey.Builder, key string, values []string) {
	scope := b.Key(key)
	defer scope.Close()
	list := b.Container(rulekey.ContainerList)
	defer list.Close()
	for _, v := range values {
		elem := list.Element()
		b.AddString(v)
		elem.Close()
	}
}

// invalidateOutputs drops stale digests for files a rule is about to
// replace, or has just replaced.
func (e *Engine) invalidateOutputs(rule BuildRule) {
	for _, out := range rule.Outputs() {
		e.Files.Invalidate(filepath.Join(e.Root, out))
	}
}

// uniqueDepIDs returns a rule's dependency IDs with duplicates removed,
// preserving first-occurrence order.
func uniqueDepIDs(rule BuildRule) []string {
	deps := rule.Deps()
	seen := make(map[string]struct{}, len(deps))
	ids := make([]string, 0, len(deps))
	for _, dep := range deps {
		if _, ok := seen[dep.ID()]; ok {
			continue
		}
		seen[dep.ID()] = struct{}{}
		ids = append(ids, dep.ID())
	}
	return ids
}
