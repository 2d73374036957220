// Package pipeline implements the generic per-kind Load Pipeline: two
// independent bounded worker pools (a bytes port and a file port)
// sitting in front of a stateless Decoder, publishing replies into a
// Job's shared reply buffer.
//
// Bounded parallelism is implemented with
// golang.org/x/sync/semaphore.Weighted rather than a fixed goroutine pool
// reading off a channel, which generalizes more cleanly to "two
// independently-bounded ports sharing one decoder".
package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/spaghettifunk/cinderload/loader/core"
	"github.com/spaghettifunk/cinderload/loader/external"
	"github.com/spaghettifunk/cinderload/loader/model"
)

// DefaultPortParallelism is the default worker count per port when the
// caller does not specify one.
const DefaultPortParallelism = 6

// Pipeline decodes Bytes/File load requests for one ResourceKind and
// emits LoadReply values into the shared reply channel it was built with.
type Pipeline struct {
	kind    model.ResourceKind
	decoder external.Decoder
	replyCh chan<- model.LoadReply

	bytesSem *semaphore.Weighted
	fileSem  *semaphore.Weighted

	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New builds a Pipeline for kind, decoding with decoder, bounded to
// portParallelism workers per port (<=0 uses the default), posting
// replies into replyCh.
func New(kind model.ResourceKind, decoder external.Decoder, replyCh chan<- model.LoadReply, portParallelism int) *Pipeline {
	if portParallelism <= 0 {
		portParallelism = DefaultPortParallelism
	}
	return &Pipeline{
		kind:     kind,
		decoder:  decoder,
		replyCh:  replyCh,
		bytesSem: semaphore.NewWeighted(int64(portParallelism)),
		fileSem:  semaphore.NewWeighted(int64(portParallelism)),
	}
}

// PostBytes submits a bytes-port request. Blocks until a worker slot is
// free. Returns false if the port is already closed.
func (p *Pipeline) PostBytes(ctx context.Context, req *model.BytesRequest) bool {
	if p.isClosed() {
		return false
	}
	if err := p.bytesSem.Acquire(ctx, 1); err != nil {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.bytesSem.Release(1)
		defer p.wg.Done()
		res, err := p.decoder.DecodeBytes(req.Buffer, req.Access, req.Game)
		p.deliver(req.Path, req.Access, res, err)
	}()
	return true
}

// PostFile submits a file-port request. Same blocking/closed semantics
// as PostBytes.
func (p *Pipeline) PostFile(ctx context.Context, req *model.FileRequest) bool {
	if p.isClosed() {
		return false
	}
	if err := p.fileSem.Acquire(ctx, 1); err != nil {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.fileSem.Release(1)
		defer p.wg.Done()
		res, err := p.decoder.DecodeFile(req.File, req.Access, req.Game)
		p.deliver(req.Path, req.Access, res, err)
	}()
	return true
}

func (p *Pipeline) deliver(path model.VirtualPath, access model.AccessLevel, res model.Resource, err error) {
	if err != nil {
		core.LogDropped(core.NewLoadError(core.FormatError, path.String(), err))
		return
	}
	p.replyCh <- model.LoadReply{Path: path, Access: access, Resource: res, Kind: p.kind}
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Complete closes both ports (no further posts accepted) and returns a
// Future that fires once every in-flight request has drained.
func (p *Pipeline) Complete() *Future {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return newFuture(&p.wg)
}
