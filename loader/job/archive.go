package job

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/cinderload/loader/core"
	"github.com/spaghettifunk/cinderload/loader/dcx"
	"github.com/spaghettifunk/cinderload/loader/external"
	"github.com/spaghettifunk/cinderload/loader/model"
	"github.com/spaghettifunk/cinderload/loader/pipeline"
	"github.com/spaghettifunk/cinderload/loader/texture"
)

// ArchiveRequest carries the parameters of one archive-expansion task.
type ArchiveRequest struct {
	VirtualPath  model.VirtualPath
	Access       model.AccessLevel
	PopulateOnly bool
	KindFilter   model.KindFilter
	// Whitelist, if non-nil, restricts expansion to entry names present
	// in the set. A nil whitelist admits every entry.
	Whitelist map[string]struct{}
	Game      model.GameFamily
}

// archiveStage is the archive-expansion stage: an unbounded worker pool,
// one goroutine per posted archive. Built on golang.org/x/sync/errgroup
// rather than a fixed-size goroutine pool reading off a channel, since
// this stage's parallelism is explicitly unbounded.
type archiveStage struct {
	job           *Job
	locator       external.AssetLocator
	binderFactory external.BinderReaderFactory

	mu     sync.Mutex
	closed bool
	group  errgroup.Group
}

func newArchiveStage(j *Job, locator external.AssetLocator, binderFactory external.BinderReaderFactory) *archiveStage {
	return &archiveStage{job: j, locator: locator, binderFactory: binderFactory}
}

func (s *archiveStage) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// post submits one archive for expansion. Returns false if the stage is
// already closed.
func (s *archiveStage) post(ctx context.Context, req ArchiveRequest) bool {
	if s.isClosed() {
		return false
	}
	s.group.Go(func() error {
		return s.expand(ctx, req)
	})
	return true
}

// close closes the stage to further posts and returns a future that
// fires once every already-admitted expansion has finished, carrying
// whatever error the first failing expand() returned. errgroup.Group
// already cancels no sibling work on its own, but it does collect the
// first non-nil error from Wait — this future is what actually surfaces
// it to Job.Complete instead of discarding it.
func (s *archiveStage) close() *pipeline.Future {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = s.group.Wait()
		close(done)
	}()
	return pipeline.NewFutureFromResult(done, &waitErr)
}

// expand opens req's archive, routes each entry to the matching pipeline
// or the texture pipeline, and decompresses DCX-wrapped entries first.
// Its error return only ever carries a fatal invariant violation — a
// missing archive or an unreadable binder is logged and dropped, not
// propagated, since those are recoverable per-request failures.
func (s *archiveStage) expand(ctx context.Context, req ArchiveRequest) error {
	realPath, _, err := s.locator.VirtualToReal(req.VirtualPath)
	if err != nil || realPath == "" {
		core.LogDropped(core.NewLoadError(core.NotFound, req.VirtualPath.String(), err))
		return nil
	}

	reader, err := s.binderFactory.Open(realPath, req.Game)
	if err != nil {
		core.LogDropped(core.NewLoadError(core.ContainerError, req.VirtualPath.String(), err))
		return nil
	}
	defer reader.Close()

	filter := req.KindFilter
	if filter == 0 {
		filter = model.FilterAll
	}

	for _, entry := range reader.Entries() {
		if req.Whitelist != nil {
			if _, ok := req.Whitelist[entry.Name]; !ok {
				continue
			}
		}
		childVP := s.locator.JoinBinder(req.VirtualPath, entry.Name)

		if model.IsTextureContainer(entry.Name) {
			if req.PopulateOnly {
				continue
			}
			base := model.NormalizeMapTexturePath(childVP)
			s.job.texturePl.ExpandContainer(ctx, texture.ExpandRequest{
				PathBase:   base,
				Bytes:      entry.Data,
				Compressed: model.IsDCXCompressed(entry.Name),
				Access:     req.Access,
				Game:       req.Game,
			})
			continue
		}

		kind, ok := model.RouteByExtension(entry.Name, filter)
		if !ok {
			continue
		}
		if req.PopulateOnly {
			continue
		}
		pl, ok := s.job.pipelines[kind]
		if !ok {
			continue
		}

		buf := entry.Data
		if model.IsDCXCompressed(entry.Name) {
			decompressed, derr := dcx.Decompress(buf)
			if derr != nil {
				core.LogDropped(core.NewLoadError(core.FormatError, childVP.String(), derr))
				continue
			}
			buf = decompressed
		}

		s.job.BumpEstimate(1)
		pl.PostBytes(ctx, &model.BytesRequest{Path: childVP, Buffer: buf, Access: req.Access, Game: req.Game, JobName: s.job.name})
	}
	return nil
}
