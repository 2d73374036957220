package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/cinderload/loader/core"
	"github.com/spaghettifunk/cinderload/loader/model"
)

type fakeResource struct {
	kind     model.ResourceKind
	released bool
}

func (r *fakeResource) Kind() model.ResourceKind { return r.kind }
func (r *fakeResource) Release()                 { r.released = true }

type recordingObserver struct {
	loaded   []string
	unloaded []string
}

func (o *recordingObserver) OnLoaded(h *Handle, tag string)   { o.loaded = append(o.loaded, tag) }
func (o *recordingObserver) OnUnloaded(h *Handle, tag string) { o.unloaded = append(o.unloaded, tag) }

func TestHandle_InitiallyUnloaded(t *testing.T) {
	h := newHandle(model.Flver, "chr/c0000.flver", nil)
	assert.Equal(t, model.Unloaded, h.AccessLevel())
	assert.Nil(t, h.Payload())
}

func TestHandle_InstallNotifiesSatisfiedObservers(t *testing.T) {
	h := newHandle(model.Flver, "chr/c0000.flver", nil)
	obs := &recordingObserver{}
	h.AddObserver(obs, model.EditOnly, "ui", nil)

	h.Install(&fakeResource{kind: model.Flver}, model.EditOnly)

	assert.Equal(t, []string{"ui"}, obs.loaded)
	assert.Equal(t, model.EditOnly, h.AccessLevel())
}

func TestHandle_ObserveAfterLoadDeliversImmediately(t *testing.T) {
	h := newHandle(model.Flver, "chr/c0000.flver", nil)
	h.Install(&fakeResource{kind: model.Flver}, model.Full)

	obs := &recordingObserver{}
	h.AddObserver(obs, model.EditOnly, "late", nil)

	assert.Equal(t, []string{"late"}, obs.loaded)
}

func TestHandle_ReloadUnloadsBeforeInstalling(t *testing.T) {
	h := newHandle(model.Flver, "chr/c0000.flver", nil)
	obs := &recordingObserver{}
	h.AddObserver(obs, model.EditOnly, "ui", nil)

	first := &fakeResource{kind: model.Flver}
	h.Install(first, model.EditOnly)
	h.Install(&fakeResource{kind: model.Flver}, model.Full)

	require.Len(t, obs.unloaded, 1)
	require.Len(t, obs.loaded, 2)
	assert.True(t, first.released)
	assert.Equal(t, model.Full, h.AccessLevel())
}

func TestHandle_DeadObserverPurged(t *testing.T) {
	h := newHandle(model.Flver, "chr/c0000.flver", nil)
	obs := &recordingObserver{}
	dead := false
	h.AddObserver(obs, model.EditOnly, "ui", func() bool { return !dead })

	dead = true
	h.Install(&fakeResource{kind: model.Flver}, model.EditOnly)
	assert.Empty(t, obs.loaded)
}

func TestHandle_ReleaseUnderflowIsFatal(t *testing.T) {
	h := newHandle(model.Flver, "chr/c0000.flver", nil)
	err := h.Release()
	assert.ErrorIs(t, err, core.ErrRefCountUnderflow)
}

func TestHandle_ReleaseToZeroInvokesCallback(t *testing.T) {
	var notified *Handle
	h := newHandle(model.Flver, "chr/c0000.flver", func(hh *Handle) { notified = hh })
	h.Install(&fakeResource{kind: model.Flver}, model.EditOnly)
	h.Acquire()

	require.NoError(t, h.Release())
	assert.Equal(t, h, notified)
}

func TestHandle_UnloadSetsUnloadedAndReleasesPayload(t *testing.T) {
	h := newHandle(model.Flver, "chr/c0000.flver", nil)
	res := &fakeResource{kind: model.Flver}
	h.Install(res, model.EditOnly)

	h.Unload()
	assert.Equal(t, model.Unloaded, h.AccessLevel())
	assert.Nil(t, h.Payload())
	assert.True(t, res.released)
}
