package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/cinderload/loader/model"
)

func TestJob_PostFileRoutesByExtension(t *testing.T) {
	locator := newFakeLocator(model.EldenRing)
	j := newTestJob("t", locator, &fakeBinderFactory{})

	ok := j.PostFile(context.Background(), "chr/c0000.flver", model.EditOnly, model.EldenRing)
	require.True(t, ok)

	select {
	case reply := <-j.ReplyChan():
		assert.Equal(t, model.Flver, reply.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a reply")
	}
}

func TestJob_PostFileRoutesTextureContainers(t *testing.T) {
	locator := newFakeLocator(model.EldenRing)
	j := newTestJob("t", locator, &fakeBinderFactory{})

	ok := j.PostFile(context.Background(), "chr/c0000.tpf", model.EditOnly, model.EldenRing)
	require.True(t, ok)

	ctx := context.Background()
	require.NoError(t, j.texturePl.CloseExpansion().Await(ctx))
	require.NoError(t, j.texturePl.CloseSlots().Await(ctx))

	select {
	case reply := <-j.ReplyChan():
		assert.Equal(t, model.Texture, reply.Kind)
	default:
		t.Fatal("expected a texture reply")
	}
}

func TestJob_PostFileUnresolvablePathReturnsFalse(t *testing.T) {
	locator := newFakeLocator(model.EldenRing)
	locator.missing["chr/c0000.flver"] = true
	j := newTestJob("t", locator, &fakeBinderFactory{})

	ok := j.PostFile(context.Background(), "chr/c0000.flver", model.EditOnly, model.EldenRing)
	assert.False(t, ok)
}

func TestJob_CompleteDrainsAllStages(t *testing.T) {
	locator := newFakeLocator(model.EldenRing)
	j := newTestJob("t", locator, &fakeBinderFactory{})

	require.True(t, j.PostFile(context.Background(), "chr/c0000.flver", model.EditOnly, model.EldenRing))
	require.True(t, j.PostFile(context.Background(), "chr/c0000.tpf", model.EditOnly, model.EldenRing))

	// Drain the two expected replies concurrently with Complete, the way
	// the Manager's tick would.
	go func() {
		<-j.ReplyChan()
		<-j.ReplyChan()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := j.Complete(ctx)
	require.NoError(t, err)
	assert.True(t, j.Finished())
}

func TestJob_FatalErrForwardsFromTexturePipeline(t *testing.T) {
	locator := newFakeLocator(model.EldenRing)
	j := New(Config{
		Name:            "t",
		Locator:         locator,
		BinderFactory:   &fakeBinderFactory{},
		TextureReader:   fakeTextureReader{},
		Pool2D:          &fakeTexturePool{capacity: 0},
		PoolCube:        &fakeTexturePool{capacity: 0},
		UploadQueue:     fakeUploadQueue{},
		PortParallelism: 4,
		TexturesEnabled: true,
		StrictChecking:  true,
	})

	require.NoError(t, j.FatalErr())
	require.True(t, j.PostFile(context.Background(), "chr/c0000.tpf", model.EditOnly, model.EldenRing))

	ctx := context.Background()
	require.NoError(t, j.texturePl.CloseExpansion().Await(ctx))
	require.NoError(t, j.texturePl.CloseSlots().Await(ctx))

	assert.Error(t, j.FatalErr())
}

func TestJob_EstimatedSizeTakesMax(t *testing.T) {
	locator := newFakeLocator(model.EldenRing)
	j := newTestJob("t", locator, &fakeBinderFactory{})

	j.BumpEstimate(5)
	j.BumpCourseEstimate(9)
	assert.Equal(t, 9, j.EstimatedSize())
}
