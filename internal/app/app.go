package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/buildgridgo/internal/artifactcache"
	"github.com/vk/buildgridgo/internal/config"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/engine"
	"github.com/vk/buildgridgo/internal/hashcache"
	"github.com/vk/buildgridgo/internal/localexecutor"
	"github.com/vk/buildgridgo/internal/resources"
	"github.com/vk/buildgridgo/internal/serverhealth"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	appConfig *Config
	workspace *config.Config
	engine    *engine.Engine
	closers   []func() error
}

// NewApp constructs a fully wired application: configuration is loaded,
// cache tiers are connected, and the engine is ready to build.
func NewApp(outW io.Writer, appConfig *Config) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	workspace, err := config.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	root, err := workspace.ResolveRoot(appConfig.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded.", "root", root, "rules", len(workspace.Rules))

	a := &App{outW: outW, logger: logger, appConfig: appConfig, workspace: workspace}

	files, err := hashcache.New(workspace.Workspace.HashCacheEntries)
	if err != nil {
		return nil, err
	}

	var scheduler *resources.Scheduler
	if b := workspace.Budget; b != nil {
		scheduler = resources.NewScheduler(resources.Amounts{
			CPU:       b.CPU,
			MemoryMB:  b.MemoryMB,
			DiskIO:    b.DiskIO,
			NetworkIO: b.NetworkIO,
		})
		logger.Debug("Resource scheduler configured.", "budget", scheduler.Budget())
	}

	health := serverhealth.NewRegistry(workspace.ServerHealth.SampleCapacity)
	cache, err := a.buildCaches(health)
	if err != nil {
		a.Close()
		return nil, err
	}

	workers := appConfig.Workers
	if workers <= 0 {
		workers = workspace.Workspace.Workers
	}

	a.engine = &engine.Engine{
		Files:     files,
		Cache:     cache,
		Scheduler: scheduler,
		Runner:    localexecutor.New(),
		Workers:   workers,
		Root:      root,
	}
	return a, nil
}

// buildCaches connects every configured cache tier, in declaration order,
// and composes them when there is more than one.
func (a *App) buildCaches(health *serverhealth.Registry) (artifactcache.Cache, error) {
	var tiers []artifactcache.Cache
	for _, block := range a.workspace.Caches {
		tier, err := a.buildCacheTier(block, health)
		if err != nil {
			return nil, fmt.Errorf("cache %q: %w", block.Name, err)
		}
		a.logger.Debug("Cache tier connected.", "name", block.Name, "kind", block.Kind)
		tiers = append(tiers, tier)
	}

	switch len(tiers) {
	case 0:
		return nil, nil
	case 1:
		return tiers[0], nil
	default:
		return artifactcache.NewMultiCache(tiers...), nil
	}
}

func (a *App) buildCacheTier(block *config.CacheBlock, health *serverhealth.Registry) (artifactcache.Cache, error) {
	mode := cacheMode(block.Mode)
	switch block.Kind {
	case config.CacheKindDir:
		return artifactcache.NewDirCache(block.Path, mode)
	case config.CacheKindHTTP:
		tier, err := artifactcache.NewHTTPCache(block.Servers, mode, health)
		if err != nil {
			return nil, err
		}
		tier.SetHealthWindow(a.workspace.ServerHealth.Window())
		a.closers = append(a.closers, tier.Close)
		return tier, nil
	case config.CacheKindS3:
		return artifactcache.NewS3Cache(artifactcache.S3Config{
			Endpoint:  block.Endpoint,
			Region:    block.Region,
			AccessKey: block.AccessKey,
			SecretKey: block.SecretKey,
			Bucket:    block.Bucket,
			UseSSL:    block.UseTLS == nil || *block.UseTLS,
			Mode:      mode,
		})
	}
	return nil, fmt.Errorf("unknown cache kind %q", block.Kind)
}

func cacheMode(mode string) artifactcache.Mode {
	if mode == config.ModeReadOnly {
		return artifactcache.ReadOnly
	}
	return artifactcache.ReadWrite
}

// Engine returns the wired build engine. This is primarily for testing.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Close releases every connected cache tier.
func (a *App) Close() error {
	var firstErr error
	for _, closer := range a.closers {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
