package job

import (
	"context"
	"strings"

	"github.com/spaghettifunk/cinderload/loader/containers"
	"github.com/spaghettifunk/cinderload/loader/database"
	"github.com/spaghettifunk/cinderload/loader/external"
	"github.com/spaghettifunk/cinderload/loader/model"
	"github.com/spaghettifunk/cinderload/loader/pipeline"
	"github.com/spaghettifunk/cinderload/loader/texture"
)

// Builder is a narrow façade over a Job that adds load tasks,
// deduplicating archive loads by virtual path against the Manager's
// shared in-flight set.
type Builder struct {
	job      *Job
	inFlight *containers.SyncSet[model.VirtualPath]
	locator  external.AssetLocator
	db       *database.Database
}

// NewBuilder wraps job with the Manager's shared in-flight set and
// database, so its scans (load_udsfm_textures, load_unloaded_textures)
// can read the handle table.
func NewBuilder(j *Job, inFlight *containers.SyncSet[model.VirtualPath], locator external.AssetLocator, db *database.Database) *Builder {
	return &Builder{job: j, inFlight: inFlight, locator: locator, db: db}
}

func (b *Builder) Job() *Job { return b.job }

// LoadArchive guards against re-entry via the in-flight set: if vp is
// already present, no-op; otherwise inserts it and posts an
// archive-expansion request.
func (b *Builder) LoadArchive(ctx context.Context, vp model.VirtualPath, access model.AccessLevel, populateOnly bool, filter model.KindFilter, whitelist map[string]struct{}) bool {
	if !b.inFlight.Insert(vp.Canonical()) {
		return false
	}
	if filter == 0 {
		filter = model.FilterAll
	}
	return b.job.PostArchive(ctx, ArchiveRequest{
		VirtualPath:  vp,
		Access:       access,
		PopulateOnly: populateOnly,
		KindFilter:   filter,
		Whitelist:    whitelist,
		Game:         b.locator.GameType(),
	})
}

// LoadFile resolves vp through the AssetLocator and dispatches to the
// correct pipeline by extension.
func (b *Builder) LoadFile(ctx context.Context, vp model.VirtualPath, access model.AccessLevel) bool {
	return b.job.PostFile(ctx, vp, access, b.locator.GameType())
}

// udsfmPrefix is the database-key prefix load_udsfm_textures scans:
// handles for map textures that might have a loose UDSFM replacement on
// disk.
const udsfmPrefix = "map/tex"

// LoadUDSFMTextures scans the database for unloaded handles under
// map/tex and, for each, looks for a loose .tpf replacement under
// <game_root>/map/tx/<basename>.tpf, queuing a container expansion if
// present.
func (b *Builder) LoadUDSFMTextures(ctx context.Context) int {
	queued := 0
	for _, h := range b.db.ScanPrefix(udsfmPrefix) {
		if h.AccessLevel() != model.Unloaded {
			continue
		}
		basename := basenameOf(h.VirtualPath().String())
		realPath, _, err := b.locator.VirtualToReal(model.VirtualPath(b.locator.GameRoot() + "/map/tx/" + basename + ".tpf"))
		if err != nil || realPath == "" {
			continue
		}
		if b.job.PostContainer(ctx, texture.ExpandRequest{
			PathBase: h.VirtualPath(),
			File:     realPath,
			Access:   model.GpuOptimizedOnly,
			Game:     b.locator.GameType(),
		}) {
			queued++
		}
	}
	return queued
}

// aetPrefix is the database-key prefix load_unloaded_textures scans.
const aetPrefix = "aet/"

// LoadUnloadedTextures scans the database for unloaded handles under
// aet/, extracts each asset id, asks the AssetLocator for its texture
// path, de-duplicates per id, and queues a container expansion for each.
func (b *Builder) LoadUnloadedTextures(ctx context.Context) int {
	seen := make(map[string]struct{})
	queued := 0
	for _, h := range b.db.ScanPrefix(aetPrefix) {
		if h.AccessLevel() != model.Unloaded {
			continue
		}
		aetID := aetIDOf(h.VirtualPath().String())
		if aetID == "" {
			continue
		}
		if _, dup := seen[aetID]; dup {
			continue
		}
		seen[aetID] = struct{}{}

		texturePath, ok := b.locator.GetAETTexture(aetID)
		if !ok {
			continue
		}
		realPath, _, err := b.locator.VirtualToReal(texturePath)
		if err != nil || realPath == "" {
			continue
		}
		if b.job.PostContainer(ctx, texture.ExpandRequest{
			PathBase: texturePath,
			File:     realPath,
			Access:   model.GpuOptimizedOnly,
			Game:     b.locator.GameType(),
		}) {
			queued++
		}
	}
	return queued
}

// Complete returns the Job's completion future by running Complete in a
// goroutine and handing back a pipeline.Future, so callers can await it
// alongside other futures.
func (b *Builder) Complete(ctx context.Context) *pipeline.Future {
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		err = b.job.Complete(ctx)
	}()
	return pipeline.NewFutureFromResult(done, &err)
}

func basenameOf(vp string) string {
	s := vp
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return s
}

// aetIDOf extracts the asset id segment from an "aet/<id>/..." virtual
// path.
func aetIDOf(vp string) string {
	trimmed := strings.TrimPrefix(vp, aetPrefix)
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}
