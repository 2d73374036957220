package texture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/cinderload/loader/external"
	"github.com/spaghettifunk/cinderload/loader/model"
)

type fakeContainer struct {
	slots   []external.TextureSlotMetadata
	failAt  int
	failErr error
}

func (c *fakeContainer) SlotCount() int        { return len(c.slots) }
func (c *fakeContainer) SlotName(i int) string { return "tex" + string(rune('0'+i)) }
func (c *fakeContainer) SlotMetadata(i int) (external.TextureSlotMetadata, error) {
	if c.failErr != nil && i == c.failAt {
		return external.TextureSlotMetadata{}, c.failErr
	}
	return c.slots[i], nil
}

type fakeReader struct {
	container external.TextureContainer
	err       error
}

func (r *fakeReader) Read(path string) (external.TextureContainer, error)      { return r.container, r.err }
func (r *fakeReader) ReadBytes(buf []byte) (external.TextureContainer, error) { return r.container, r.err }

type fakeDescriptor struct{ released bool }

func (d *fakeDescriptor) Release() { d.released = true }

type fakePool struct {
	capacity  int
	allocated int
}

func (p *fakePool) Allocate() (external.TextureDescriptor, bool) {
	if p.allocated >= p.capacity {
		return nil, false
	}
	p.allocated++
	return &fakeDescriptor{}, true
}
func (p *fakePool) Release(external.TextureDescriptor) {}

type fakeUploadQueue struct{ count int }

func (q *fakeUploadQueue) EnqueueLowPriorityUpload(task external.UploadTask, descriptor external.TextureDescriptor, cpuData []byte) {
	q.count++
}

func newTestPipeline(reader external.TextureContainerReader, pool2D, poolCube external.TexturePool, replyCh chan model.LoadReply, strict bool) *Pipeline {
	return New(Config{
		Reader:          reader,
		Pool2D:          pool2D,
		PoolCube:        poolCube,
		UploadQueue:     &fakeUploadQueue{},
		ReplyCh:         replyCh,
		TexturesEnabled: true,
		StrictChecking:  strict,
		SlotParallelism: 4,
	})
}

func TestPipeline_ExpandContainerDeliversOneReplyPerSlot(t *testing.T) {
	container := &fakeContainer{slots: []external.TextureSlotMetadata{
		{Width: 4, Height: 4},
		{Width: 8, Height: 8},
	}}
	replyCh := make(chan model.LoadReply, 4)
	p := newTestPipeline(&fakeReader{container: container}, &fakePool{capacity: 4}, &fakePool{capacity: 4}, replyCh, false)

	ok := p.ExpandContainer(context.Background(), ExpandRequest{PathBase: "map/tex/m10_0000", File: "whatever.tpf"})
	require.True(t, ok)
	require.NoError(t, p.CloseExpansion().Await(context.Background()))
	require.NoError(t, p.CloseSlots().Await(context.Background()))

	assert.Len(t, replyCh, 2)
}

func TestPipeline_TexturesDisabledDropsSilently(t *testing.T) {
	container := &fakeContainer{slots: []external.TextureSlotMetadata{{Width: 4, Height: 4}}}
	replyCh := make(chan model.LoadReply, 4)
	p := New(Config{
		Reader:          &fakeReader{container: container},
		Pool2D:          &fakePool{capacity: 4},
		PoolCube:        &fakePool{capacity: 4},
		ReplyCh:         replyCh,
		TexturesEnabled: false,
	})

	p.ExpandContainer(context.Background(), ExpandRequest{PathBase: "map/tex/m10_0000", File: "whatever.tpf"})
	require.NoError(t, p.CloseExpansion().Await(context.Background()))
	require.NoError(t, p.CloseSlots().Await(context.Background()))
	assert.Empty(t, replyCh)
}

func TestPipeline_PoolExhaustedNonStrictDropsSlot(t *testing.T) {
	container := &fakeContainer{slots: []external.TextureSlotMetadata{{Width: 4, Height: 4}}}
	replyCh := make(chan model.LoadReply, 4)
	p := newTestPipeline(&fakeReader{container: container}, &fakePool{capacity: 0}, &fakePool{capacity: 0}, replyCh, false)

	p.ExpandContainer(context.Background(), ExpandRequest{PathBase: "c0000.tpf", File: "whatever.tpf"})
	require.NoError(t, p.CloseExpansion().Await(context.Background()))
	require.NoError(t, p.CloseSlots().Await(context.Background()))

	assert.Empty(t, replyCh)
	assert.NoError(t, p.FatalErr())
}

func TestPipeline_PoolExhaustedStrictSetsFatal(t *testing.T) {
	container := &fakeContainer{slots: []external.TextureSlotMetadata{{Width: 4, Height: 4}}}
	replyCh := make(chan model.LoadReply, 4)
	p := newTestPipeline(&fakeReader{container: container}, &fakePool{capacity: 0}, &fakePool{capacity: 0}, replyCh, true)

	p.ExpandContainer(context.Background(), ExpandRequest{PathBase: "c0000.tpf", File: "whatever.tpf"})
	require.NoError(t, p.CloseExpansion().Await(context.Background()))
	require.NoError(t, p.CloseSlots().Await(context.Background()))

	assert.Error(t, p.FatalErr())
}

// gatingPool blocks Allocate until gate is closed, letting a test hold a
// slot mid-allocation while a sibling slot fails and goes fatal.
type gatingPool struct {
	capacity int
	gate     <-chan struct{}

	mu        sync.Mutex
	allocated int
}

func (p *gatingPool) Allocate() (external.TextureDescriptor, bool) {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allocated >= p.capacity {
		return nil, false
	}
	p.allocated++
	return &fakeDescriptor{}, true
}
func (p *gatingPool) Release(external.TextureDescriptor) {}

func TestPipeline_StrictFatalAbortsSiblingSlotBeforeReply(t *testing.T) {
	// Slot 0 is a flat texture whose pool is already exhausted, so it
	// sets the pipeline fatal under strict mode. Slot 1 is a cubemap
	// routed through a separate, gated pool that would otherwise succeed
	// — the gate only opens once slot 0 has already gone fatal, proving
	// that a sibling slot admitted before the abort still gets cut off
	// before it reaches the reply buffer.
	container := &fakeContainer{slots: []external.TextureSlotMetadata{
		{Width: 4, Height: 4, IsCubemap: false},
		{Width: 8, Height: 8, IsCubemap: true},
	}}
	replyCh := make(chan model.LoadReply, 4)
	gate := make(chan struct{})
	exhausted := &fakePool{capacity: 0}
	gated := &gatingPool{capacity: 1, gate: gate}

	p := newTestPipeline(&fakeReader{container: container}, exhausted, gated, replyCh, true)

	ok := p.ExpandContainer(context.Background(), ExpandRequest{PathBase: "c0000.tpf", File: "whatever.tpf"})
	require.True(t, ok)

	deadline := time.Now().Add(2 * time.Second)
	for p.FatalErr() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Error(t, p.FatalErr(), "slot 0's exhaustion should have set the pipeline fatal")

	close(gate)

	require.NoError(t, p.CloseExpansion().Await(context.Background()))
	require.NoError(t, p.CloseSlots().Await(context.Background()))

	assert.Empty(t, replyCh, "slot 1 must not deliver a reply once a sibling has already gone fatal")
}

func TestPipeline_ContainerReadErrorDropsSilently(t *testing.T) {
	replyCh := make(chan model.LoadReply, 4)
	p := newTestPipeline(&fakeReader{err: errors.New("bad container")}, &fakePool{capacity: 4}, &fakePool{capacity: 4}, replyCh, false)

	p.ExpandContainer(context.Background(), ExpandRequest{PathBase: "c0000.tpf", File: "whatever.tpf"})
	require.NoError(t, p.CloseExpansion().Await(context.Background()))
	assert.Empty(t, replyCh)
}

func TestPipeline_ExpandAfterCloseExpansionReturnsFalse(t *testing.T) {
	replyCh := make(chan model.LoadReply, 1)
	p := newTestPipeline(&fakeReader{}, &fakePool{capacity: 1}, &fakePool{capacity: 1}, replyCh, false)

	require.NoError(t, p.CloseExpansion().Await(context.Background()))
	assert.False(t, p.ExpandContainer(context.Background(), ExpandRequest{PathBase: "c0000.tpf", File: "whatever.tpf"}))
}

func TestPipeline_CubemapSlotUsesCubePool(t *testing.T) {
	container := &fakeContainer{slots: []external.TextureSlotMetadata{{Width: 4, Height: 4, IsCubemap: true}}}
	replyCh := make(chan model.LoadReply, 4)
	cube := &fakePool{capacity: 4}
	flat := &fakePool{capacity: 4}
	p := newTestPipeline(&fakeReader{container: container}, flat, cube, replyCh, false)

	p.ExpandContainer(context.Background(), ExpandRequest{PathBase: "c0000.tpf", File: "whatever.tpf"})
	require.NoError(t, p.CloseExpansion().Await(context.Background()))
	require.NoError(t, p.CloseSlots().Await(context.Background()))

	assert.Equal(t, 1, cube.allocated)
	assert.Equal(t, 0, flat.allocated)

	select {
	case reply := <-replyCh:
		res, ok := reply.Resource.(*Resource)
		require.True(t, ok)
		assert.True(t, res.IsCubemap)
	case <-time.After(time.Second):
		t.Fatal("expected a reply")
	}
}
