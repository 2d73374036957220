// Package texture implements the Texture Pipeline: a container-expansion
// stage with unbounded parallelism feeding a bounded slot-loader stage,
// distinct from the generic Load Pipeline because a container fans out
// to many subresources and installation needs a GPU descriptor.
package texture

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/spaghettifunk/cinderload/loader/core"
	"github.com/spaghettifunk/cinderload/loader/dcx"
	"github.com/spaghettifunk/cinderload/loader/external"
	"github.com/spaghettifunk/cinderload/loader/model"
	"github.com/spaghettifunk/cinderload/loader/pipeline"
)

// DefaultSlotParallelism is the default worker count for the slot-loader
// stage when the caller does not specify one.
const DefaultSlotParallelism = 6

// ExpandRequest carries the parameters of one container-expansion
// request. Exactly one of File/Bytes should be set.
type ExpandRequest struct {
	PathBase model.VirtualPath
	File     string
	Bytes    []byte
	// Compressed marks Bytes as DCX-compressed; ignored when File is set,
	// since a file is opened and decompressed by the container reader
	// itself.
	Compressed bool
	Access     model.AccessLevel
	Game       model.GameFamily
}

// Pipeline is the Texture Pipeline owned by exactly one Job.
type Pipeline struct {
	reader          external.TextureContainerReader
	pool2D          external.TexturePool
	poolCube        external.TexturePool
	uploadQueue     external.GPUUploadQueue
	replyCh         chan<- model.LoadReply
	bumpEstimate    func(n int)
	texturesEnabled bool
	strict          bool

	slotSem *semaphore.Weighted

	expandWG sync.WaitGroup
	slotWG   sync.WaitGroup

	mu           sync.Mutex
	expandClosed bool
	slotsClosed  bool
	fatalOnce    sync.Once
	fatalErr     error

	// abortCtx is cancelled the moment setFatal fires. Sibling slot
	// workers check it before doing any work a fatal strict-mode failure
	// should have pre-empted, so one exhausted descriptor pool doesn't
	// let the rest of the container's slots quietly finish and leave
	// partial texture handles resident.
	abortCtx context.Context
	abortFn  context.CancelFunc
}

// Config bundles the Texture Pipeline's construction dependencies.
type Config struct {
	Reader          external.TextureContainerReader
	Pool2D          external.TexturePool
	PoolCube        external.TexturePool
	UploadQueue     external.GPUUploadQueue
	ReplyCh         chan<- model.LoadReply
	BumpEstimate    func(n int)
	TexturesEnabled bool
	StrictChecking  bool
	SlotParallelism int
}

func New(cfg Config) *Pipeline {
	n := cfg.SlotParallelism
	if n <= 0 {
		n = DefaultSlotParallelism
	}
	abortCtx, abortFn := context.WithCancel(context.Background())
	return &Pipeline{
		reader:          cfg.Reader,
		pool2D:          cfg.Pool2D,
		poolCube:        cfg.PoolCube,
		uploadQueue:     cfg.UploadQueue,
		replyCh:         cfg.ReplyCh,
		bumpEstimate:    cfg.BumpEstimate,
		texturesEnabled: cfg.TexturesEnabled,
		strict:          cfg.StrictChecking,
		slotSem:         semaphore.NewWeighted(int64(n)),
		abortCtx:        abortCtx,
		abortFn:         abortFn,
	}
}

// FatalErr returns the fatal ResourceExhausted error raised under strict
// mode, if any. Once set it never clears: a strict failure aborts the
// owning Job.
func (p *Pipeline) FatalErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatalErr
}

func (p *Pipeline) setFatal(err error) {
	p.fatalOnce.Do(func() {
		p.mu.Lock()
		p.fatalErr = err
		p.mu.Unlock()
		p.abortFn()
	})
}

// isAborted reports whether a strict-mode fatal error has already fired,
// so sibling slot workers can bail instead of pushing a reply for a
// container the Job is already set to fail.
func (p *Pipeline) isAborted() bool {
	select {
	case <-p.abortCtx.Done():
		return true
	default:
		return false
	}
}

func (p *Pipeline) isExpandClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expandClosed
}

func (p *Pipeline) isSlotsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slotsClosed
}

// ExpandContainer runs the container-expansion stage for one request:
// unbounded parallelism, one goroutine per request.
func (p *Pipeline) ExpandContainer(ctx context.Context, req ExpandRequest) bool {
	if p.isExpandClosed() {
		return false
	}
	p.expandWG.Add(1)
	go func() {
		defer p.expandWG.Done()
		p.expand(ctx, req)
	}()
	return true
}

func (p *Pipeline) expand(ctx context.Context, req ExpandRequest) {
	if !p.texturesEnabled {
		// Discarded silently, no emissions.
		return
	}

	var (
		container external.TextureContainer
		err       error
	)
	if req.File != "" {
		container, err = p.reader.Read(req.File)
	} else {
		buf := req.Bytes
		if req.Compressed {
			if buf, err = dcx.Decompress(buf); err != nil {
				core.LogDropped(core.NewLoadError(core.ContainerError, req.PathBase.String(), err))
				return
			}
		}
		container, err = p.reader.ReadBytes(buf)
	}
	if err != nil {
		core.LogDropped(core.NewLoadError(core.ContainerError, req.PathBase.String(), err))
		return
	}

	base := model.NormalizeMapTexturePath(req.PathBase)
	n := container.SlotCount()
	if p.bumpEstimate != nil {
		p.bumpEstimate(n)
	}
	for i := 0; i < n; i++ {
		if p.isAborted() {
			return
		}
		slotPath := model.JoinSlot(base, container.SlotName(i))
		p.postSlot(ctx, slotPath, container, i, req.Access, req.Game)
	}
}

// postSlot runs the bounded slot-loader stage for one subresource.
func (p *Pipeline) postSlot(ctx context.Context, slotPath model.VirtualPath, container external.TextureContainer, index int, access model.AccessLevel, game model.GameFamily) {
	if p.isSlotsClosed() || p.isAborted() {
		return
	}
	if err := p.slotSem.Acquire(ctx, 1); err != nil {
		return
	}
	if p.isAborted() {
		p.slotSem.Release(1)
		return
	}
	p.slotWG.Add(1)
	go func() {
		defer p.slotSem.Release(1)
		defer p.slotWG.Done()

		meta, err := container.SlotMetadata(index)
		if err != nil {
			core.LogDropped(core.NewLoadError(core.FormatError, slotPath.String(), err))
			return
		}

		pool := p.pool2D
		if meta.IsCubemap {
			pool = p.poolCube
		}
		descriptor, ok := pool.Allocate()
		if !ok {
			loadErr := core.NewLoadError(core.ResourceExhausted, slotPath.String(), errDescriptorExhausted)
			if p.strict {
				core.LogError("fatal: %s", loadErr.Error())
				p.setFatal(loadErr)
				return
			}
			core.LogDropped(loadErr)
			return
		}

		// A sibling slot may have gone fatal while this one was
		// allocating; don't let a handle for a container the Job is
		// about to fail reach the reply buffer.
		if p.isAborted() {
			pool.Release(descriptor)
			return
		}

		res := &Resource{Descriptor: descriptor, Width: meta.Width, Height: meta.Height, IsCubemap: meta.IsCubemap}
		p.replyCh <- model.LoadReply{Path: slotPath, Access: access, Resource: res, Kind: model.Texture}

		if p.uploadQueue != nil {
			p.uploadQueue.EnqueueLowPriorityUpload(fillDescriptor, descriptor, meta.CPUData)
		}
	}()
}

// fillDescriptor is the default upload task body: it is the GPU backend's
// job to actually fill the descriptor, so this only documents the
// contract the enqueued task fulfils — hosts supply their own
// implementation through external.GPUUploadQueue.
func fillDescriptor(ctx context.Context, descriptor external.TextureDescriptor, cpuData []byte) error {
	return nil
}

// CloseExpansion closes the container-expansion port and returns a future
// that fires once every already-admitted ExpandContainer call has
// finished fanning out to postSlot. The Job awaits this future before
// closing the slot loader.
func (p *Pipeline) CloseExpansion() *pipeline.Future {
	p.mu.Lock()
	p.expandClosed = true
	p.mu.Unlock()
	return pipeline.JoinWaitGroups(&p.expandWG)
}

// CloseSlots closes the slot-loader port and returns a future that fires
// once every in-flight slot load has drained. The Job does not await
// this future immediately — it joins it with the other pipelines'
// futures at the final completion step.
func (p *Pipeline) CloseSlots() *pipeline.Future {
	p.mu.Lock()
	p.slotsClosed = true
	p.mu.Unlock()
	return pipeline.JoinWaitGroups(&p.slotWG)
}

var errDescriptorExhausted = descriptorExhaustedError{}

type descriptorExhaustedError struct{}

func (descriptorExhaustedError) Error() string { return "descriptor pool exhausted" }
