// Command loaderdemo wires a Manager, a Job, and a filesystem-backed
// AssetLocator together and runs a short tick loop against the game root
// given by -root (the current directory by default), the way a real editor's boot/init/run/shutdown sequence
// would drive this subsystem. This module owns no window or render
// loop, so the lifecycle here is just the parts that matter: build,
// tick, shut down.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/cinderload/loader/config"
	"github.com/spaghettifunk/cinderload/loader/core"
	"github.com/spaghettifunk/cinderload/loader/database"
	"github.com/spaghettifunk/cinderload/loader/job"
	"github.com/spaghettifunk/cinderload/loader/locator"
	"github.com/spaghettifunk/cinderload/loader/manager"
	"github.com/spaghettifunk/cinderload/loader/model"
)

func loadConfig(path string) config.Config {
	cfg := config.Default()
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		core.LogWarn("could not read config %s, using defaults: %v", path, err)
		return cfg
	}
	var fileCfg config.Config
	if err := toml.Unmarshal(data, &fileCfg); err != nil {
		core.LogWarn("could not parse config %s, using defaults: %v", path, err)
		return cfg
	}
	return fileCfg.WithDefaults()
}

// demoObserver logs load/unload events to the console; stands in for a
// UI resource list.
type demoObserver struct{}

func (demoObserver) OnLoaded(h *database.Handle, tag string) {
	core.LogInfo("loaded %s (%s) tag=%s", h.VirtualPath(), h.Kind(), tag)
}

func (demoObserver) OnUnloaded(h *database.Handle, tag string) {
	core.LogInfo("unloaded %s tag=%s", h.VirtualPath(), tag)
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	gameRoot := flag.String("root", ".", "game root directory to scan")
	flag.Parse()

	cfg := loadConfig(*configPath)

	loc, err := locator.New(*gameRoot, model.EldenRing)
	if err != nil {
		core.LogFatal("failed to start locator: %v", err)
	}
	defer loc.Close()

	mgr := manager.New(cfg, nil)

	j := job.New(job.Config{
		Name:            "demo-boot",
		Decoders:        demoDecoders(),
		Locator:         loc,
		BinderFactory:   demoBinderFactory{},
		TextureReader:   demoTextureReader{},
		Pool2D:          newDemoTexturePool(64),
		PoolCube:        newDemoTexturePool(8),
		UploadQueue:     &demoUploadQueue{},
		PortParallelism: cfg.PipelinePortParallelism,
		TexturesEnabled: cfg.TexturesEnabled,
		StrictChecking:  cfg.StrictResourceChecking,
	})
	builder := job.NewBuilder(j, mgr.InFlightSet(), loc, mgr.Database())

	refreshJob := job.New(job.Config{
		Name:            "refresh",
		TextureReader:   demoTextureReader{},
		Pool2D:          newDemoTexturePool(64),
		PoolCube:        newDemoTexturePool(8),
		UploadQueue:     &demoUploadQueue{},
		PortParallelism: cfg.PipelinePortParallelism,
		TexturesEnabled: cfg.TexturesEnabled,
		StrictChecking:  cfg.StrictResourceChecking,
	})
	mgr.SetRefreshBuilder(job.NewBuilder(refreshJob, mgr.InFlightSet(), loc, mgr.Database()))

	mgr.Observe(manager.ObserveRequest{
		Kind:           model.Flver,
		Path:           model.VirtualPath("c0000.flver"),
		Observer:       demoObserver{},
		RequiredAccess: model.EditOnly,
		Tag:            "demo",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	builder.LoadArchive(ctx, model.VirtualPath(""), model.EditOnly, false, model.FilterAll, nil)
	mgr.RegisterJob(ctx, builder)

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mgr.Tick(ctx)
			snap := mgr.Snapshot()
			if len(snap.Jobs) == 0 {
				core.LogInfo("all jobs finished; %d handles resident", mgr.Database().Len())
				return
			}
		case <-ctx.Done():
			core.LogWarn("demo timed out waiting for jobs to finish")
			return
		}
	}
}
