// Package job implements the Job: a named batch owning one instance of
// each kind pipeline, the texture pipeline, an archive expansion stage,
// and the shared reply buffer every pipeline publishes into.
//
// Built on a worker-pool-plus-shutdown-by-close-and-wait shape,
// generalized here into a multi-stage shutdown sequence with a strict
// ordering a single-queue pool wouldn't need. Job identity uses
// github.com/google/uuid, tagging each long-lived work item with a UUID
// rather than a counter.
package job

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/spaghettifunk/cinderload/loader/core"
	"github.com/spaghettifunk/cinderload/loader/external"
	"github.com/spaghettifunk/cinderload/loader/model"
	"github.com/spaghettifunk/cinderload/loader/pipeline"
	"github.com/spaghettifunk/cinderload/loader/texture"
)

// replyBufferSize is the shared reply channel's buffer: a single
// multi-producer, single-consumer channel, buffered so pipeline workers
// rarely block behind a slow-draining tick.
const replyBufferSize = 256

// Config bundles everything a Job needs to construct its owned pipelines.
type Config struct {
	Name            string
	Decoders        map[model.ResourceKind]external.Decoder
	Locator         external.AssetLocator
	BinderFactory   external.BinderReaderFactory
	TextureReader   external.TextureContainerReader
	Pool2D          external.TexturePool
	PoolCube        external.TexturePool
	UploadQueue     external.GPUUploadQueue
	PortParallelism int
	TexturesEnabled bool
	StrictChecking  bool
}

// Job is a named batch of load work with a single completion event and
// progress counter.
type Job struct {
	name string
	id   uuid.UUID

	locator       external.AssetLocator
	binderFactory external.BinderReaderFactory

	replyCh chan model.LoadReply

	pipelines map[model.ResourceKind]*pipeline.Pipeline
	texturePl *texture.Pipeline
	archive   *archiveStage

	estimate       atomic.Int64
	courseEstimate atomic.Int64
	progress       atomic.Int64

	finishedMu sync.Mutex
	finished   bool
}

// New builds a Job with one pipeline per decoder entry in cfg.Decoders,
// a texture pipeline, and an archive-expansion stage.
func New(cfg Config) *Job {
	j := &Job{
		name:          cfg.Name,
		id:            uuid.New(),
		locator:       cfg.Locator,
		binderFactory: cfg.BinderFactory,
		replyCh:       make(chan model.LoadReply, replyBufferSize),
		pipelines:     make(map[model.ResourceKind]*pipeline.Pipeline, len(cfg.Decoders)),
	}
	for kind, decoder := range cfg.Decoders {
		j.pipelines[kind] = pipeline.New(kind, decoder, j.replyCh, cfg.PortParallelism)
	}
	j.texturePl = texture.New(texture.Config{
		Reader:          cfg.TextureReader,
		Pool2D:          cfg.Pool2D,
		PoolCube:        cfg.PoolCube,
		UploadQueue:     cfg.UploadQueue,
		ReplyCh:         j.replyCh,
		BumpEstimate:    j.BumpEstimate,
		TexturesEnabled: cfg.TexturesEnabled,
		StrictChecking:  cfg.StrictChecking,
		SlotParallelism: cfg.PortParallelism,
	})
	j.archive = newArchiveStage(j, cfg.Locator, cfg.BinderFactory)
	return j
}

func (j *Job) Name() string                      { return j.name }
func (j *Job) ID() uuid.UUID                      { return j.id }
func (j *Job) ReplyChan() <-chan model.LoadReply { return j.replyCh }

// BumpEstimate adds n to the fine-grained estimate counter.
func (j *Job) BumpEstimate(n int) {
	if n != 0 {
		j.estimate.Add(int64(n))
	}
}

// BumpCourseEstimate adds n to the coarse estimate counter.
func (j *Job) BumpCourseEstimate(n int) {
	if n != 0 {
		j.courseEstimate.Add(int64(n))
	}
}

// EstimatedSize returns max(estimate, course_estimate).
func (j *Job) EstimatedSize() int {
	return int(model.Max(j.estimate.Load(), j.courseEstimate.Load()))
}

// Progress returns the number of replies the Manager has processed for
// this Job so far.
func (j *Job) Progress() int {
	return int(j.progress.Load())
}

// RecordProgress is called by the Manager's tick once per successfully
// installed reply belonging to this Job.
func (j *Job) RecordProgress() {
	j.progress.Add(1)
}

// Finished reports whether Complete has fully resolved.
func (j *Job) Finished() bool {
	j.finishedMu.Lock()
	defer j.finishedMu.Unlock()
	return j.finished
}

// FatalErr returns the Texture Pipeline's strict-mode fatal error, if
// any, so the Manager can stop installing this Job's replies into the
// database once it has already gone fatal rather than leaving partial
// texture handles resident ahead of Complete's own FatalErr check.
func (j *Job) FatalErr() error {
	return j.texturePl.FatalErr()
}

// PostArchive forwards to the archive-expansion stage.
func (j *Job) PostArchive(ctx context.Context, req ArchiveRequest) bool {
	return j.archive.post(ctx, req)
}

// PostFile routes a single-file request to the pipeline matching its
// extension, applying the same map-texture normalisation archive
// expansion uses when the target is a texture container.
func (j *Job) PostFile(ctx context.Context, path model.VirtualPath, access model.AccessLevel, game model.GameFamily) bool {
	realPath, _, err := j.locator.VirtualToReal(path)
	if err != nil || realPath == "" {
		core.LogDropped(core.NewLoadError(core.NotFound, path.String(), err))
		return false
	}
	if model.IsTextureContainer(string(path)) {
		j.BumpCourseEstimate(0)
		return j.texturePl.ExpandContainer(ctx, texture.ExpandRequest{
			PathBase: path,
			File:     realPath,
			Access:   access,
			Game:     game,
		})
	}
	kind, ok := model.RouteByExtension(string(path), model.FilterAll)
	if !ok {
		return false
	}
	pl, ok := j.pipelines[kind]
	if !ok {
		return false
	}
	j.BumpEstimate(1)
	return pl.PostFile(ctx, &model.FileRequest{Path: path, File: realPath, Access: access, Game: game, JobName: j.name})
}

// PostContainer forwards a texture-container expansion request directly
// (used by the Job Builder's udsfm/aet refresh scans).
func (j *Job) PostContainer(ctx context.Context, req texture.ExpandRequest) bool {
	return j.texturePl.ExpandContainer(ctx, req)
}

// Complete runs the mandatory ordered shutdown:
// (a) close archive expansion and await drain;
// (b) close each pipeline's bytes/file ports;
// (c) close container expansion and await drain;
// (d) close the texture slot loader;
// (e) await all pipeline ports' completion.
// The ordering matters: archive expansion is the only stage that can
// still post new work into the pipelines or the texture pipeline, so it
// must drain first; closing container expansion before the slot loader
// lets every already-admitted container finish fanning out before the
// slot loader itself stops accepting work.
// Blocks the calling goroutine until every stage has drained or ctx is
// done; callers that want a non-blocking future should run this in a
// goroutine (the Manager's Job scheduler pool does exactly that).
func (j *Job) Complete(ctx context.Context) error {
	// (a)
	if err := j.archive.close().Await(ctx); err != nil {
		return err
	}
	// (b)
	pipelineFutures := make([]*pipeline.Future, 0, len(j.pipelines))
	for _, pl := range j.pipelines {
		pipelineFutures = append(pipelineFutures, pl.Complete())
	}
	// (c)
	if err := j.texturePl.CloseExpansion().Await(ctx); err != nil {
		return err
	}
	// (d)
	slotsFuture := j.texturePl.CloseSlots()
	// (e)
	if err := pipeline.Join(ctx, pipelineFutures...); err != nil {
		return err
	}
	if err := slotsFuture.Await(ctx); err != nil {
		return err
	}

	if err := j.texturePl.FatalErr(); err != nil {
		j.markFinished()
		return err
	}
	j.markFinished()
	return nil
}

func (j *Job) markFinished() {
	j.finishedMu.Lock()
	j.finished = true
	j.finishedMu.Unlock()
}
