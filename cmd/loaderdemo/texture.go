package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/cinderload/loader/external"
)

// demoTextureContainer treats the whole supplied buffer/file as a single
// texture slot named "tex0" — there is no real TPF parser in this
// subsystem; format libraries live outside it.
type demoTextureContainer struct {
	size int
}

func (c *demoTextureContainer) SlotCount() int     { return 1 }
func (c *demoTextureContainer) SlotName(i int) string { return "tex0" }
func (c *demoTextureContainer) SlotMetadata(i int) (external.TextureSlotMetadata, error) {
	return external.TextureSlotMetadata{Width: 1, Height: 1, MipCount: 1, CPUData: make([]byte, c.size)}, nil
}

type demoTextureReader struct{}

func (demoTextureReader) Read(path string) (external.TextureContainer, error) {
	return &demoTextureContainer{size: 4}, nil
}

func (demoTextureReader) ReadBytes(buf []byte) (external.TextureContainer, error) {
	return &demoTextureContainer{size: len(buf)}, nil
}

// demoDescriptor is a fixed-size opaque GPU handle; Release does nothing,
// and the demo pool never hands a released descriptor back out.
type demoDescriptor struct {
	id int
}

func (d *demoDescriptor) Release() {}

// demoTexturePool is a fixed-capacity pool with an allocate-or-null
// contract, standing in for a real GPU descriptor pool.
type demoTexturePool struct {
	mu       sync.Mutex
	capacity int
	next     int
}

func newDemoTexturePool(capacity int) *demoTexturePool {
	return &demoTexturePool{capacity: capacity}
}

func (p *demoTexturePool) Allocate() (external.TextureDescriptor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= p.capacity {
		return nil, false
	}
	d := &demoDescriptor{id: p.next}
	p.next++
	return d, true
}

func (p *demoTexturePool) Release(external.TextureDescriptor) {
	// Demo pool never reclaims slots; good enough to exercise the
	// ResourceExhausted path once capacity is set low.
}

// demoUploadQueue runs upload tasks inline on a background goroutine,
// standing in for the GPU backend's uploader thread.
type demoUploadQueue struct {
	pending atomic.Int64
}

func (q *demoUploadQueue) EnqueueLowPriorityUpload(task external.UploadTask, descriptor external.TextureDescriptor, cpuData []byte) {
	q.pending.Add(1)
	go func() {
		defer q.pending.Add(-1)
		if err := task(context.Background(), descriptor, cpuData); err != nil {
			fmt.Printf("upload failed: %v\n", err)
		}
	}()
}
