/*
auto-vk is a small command line front end to the avk packages: it plans
render passes described in TOML and keeps a shader directory loaded,
optionally reloading modules as they are recompiled.
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"

	"github.com/cg-tuwien/auto-vk/avk/assets"
	"github.com/cg-tuwien/auto-vk/avk/core"
	"github.com/cg-tuwien/auto-vk/avk/lifetime"
	"github.com/cg-tuwien/auto-vk/avk/renderplan"
)

func init() {
	flag.StringVar(&args.config, "config", "", "TOML configuration file")
	flag.StringVar(&args.plan, "plan", "", "TOML render pass description to plan")
	flag.StringVar(&args.shaders, "shaders", "", "directory of compiled SPIR-V shaders (overrides the config)")
	flag.BoolVar(&args.watch, "watch", false, "keep reloading shaders as they change (overrides the config)")
}

var args struct {
	config  string
	plan    string
	shaders string
	watch   bool
}

func loadConfig() (core.Config, error) {
	cfg := core.DefaultConfig()
	if args.config != "" {
		var err error
		if cfg, err = core.LoadConfig(args.config); err != nil {
			return cfg, err
		}
	}
	if args.shaders != "" {
		cfg.Shaders.Dir = args.shaders
	}
	if args.watch {
		cfg.Shaders.Watch = true
	}
	return cfg, cfg.Validate()
}

func planRenderpass(path string) error {
	file, err := renderplan.Load(path)
	if err != nil {
		return err
	}
	plan, err := file.Plan()
	if err != nil {
		return err
	}
	core.LogInfo("Render pass %s: %d attachments, %d subpasses, %d dependencies",
		path, len(plan.Attachments), len(plan.Subpasses), len(plan.Dependencies))
	for _, line := range renderplan.Describe(plan, file.Names()) {
		core.LogInfo("  %s", line)
	}
	return nil
}

// serveShaders loads the shader directory and, when watching, reloads
// modules until ctx is cancelled. Replaced modules are kept alive for
// MaxFramesInFlight reloads like GPU objects still referenced by frames.
func serveShaders(ctx context.Context, cfg core.Config) error {
	if _, err := os.Stat(cfg.Shaders.Dir); err != nil {
		core.LogDebug("No shader directory at %s", cfg.Shaders.Dir)
		return nil
	}
	lib := assets.NewShaderLibrary(cfg.Shaders.Dir)
	if _, err := lib.LoadDir(ctx); err != nil {
		return err
	}
	for _, name := range lib.Names() {
		s, _ := lib.Get(name)
		major, minor := s.Version()
		core.LogDebug("  %s: SPIR-V %d.%d, %d bytes", name, major, minor, s.SizeInBytes())
	}
	if !cfg.Shaders.Watch {
		return nil
	}

	watcher, err := assets.NewShaderWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.AddRecursive(cfg.Shaders.Dir); err != nil {
		return err
	}

	retired := lifetime.NewDeferredReleaser(cfg.MaxFramesInFlight)
	defer retired.ReleaseAll()
	var generation uint64
	current := make(map[string]*lifetime.Owned[*assets.Shader])
	defer func() {
		for _, o := range current {
			o.Release()
		}
	}()

	core.LogInfo("Watching %s, press Ctrl+C to stop", cfg.Shaders.Dir)
	err = lib.Watch(ctx, watcher, func(s *assets.Shader) {
		generation++
		if previous, ok := current[s.Name]; ok {
			retired.Defer(generation, previous)
		}
		current[s.Name] = lifetime.Own(s, func(old *assets.Shader) {
			core.LogDebug("Dropping shader %s loaded at %s", old.Name, old.LoadedAt.Format("15:04:05"))
		})
		retired.Advance(generation)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		core.LogFatal("Invalid configuration: %s", err)
	}
	if err := core.SetLogLevel(cfg.LogLevel); err != nil {
		core.LogFatal("%s", err)
	}

	if args.plan != "" {
		if err := planRenderpass(args.plan); err != nil {
			core.LogFatal("Planning %s: %s", args.plan, err)
		}
	}

	// signal channel to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	if err := serveShaders(ctx, cfg); err != nil {
		core.LogFatal("Shaders: %s", err)
	}
}
