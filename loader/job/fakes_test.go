package job

import (
	"errors"

	"github.com/spaghettifunk/cinderload/loader/external"
	"github.com/spaghettifunk/cinderload/loader/model"
)

type fakeResource struct{ kind model.ResourceKind }

func (r *fakeResource) Kind() model.ResourceKind { return r.kind }
func (r *fakeResource) Release()                 {}

type echoDecoder struct{ kind model.ResourceKind }

func (d *echoDecoder) DecodeBytes(buf []byte, access model.AccessLevel, game model.GameFamily) (model.Resource, error) {
	return &fakeResource{kind: d.kind}, nil
}

func (d *echoDecoder) DecodeFile(path string, access model.AccessLevel, game model.GameFamily) (model.Resource, error) {
	return &fakeResource{kind: d.kind}, nil
}

func demoDecoders() map[model.ResourceKind]external.Decoder {
	return map[model.ResourceKind]external.Decoder{
		model.Flver:        &echoDecoder{kind: model.Flver},
		model.CollisionHkx: &echoDecoder{kind: model.CollisionHkx},
		model.Navmesh:      &echoDecoder{kind: model.Navmesh},
		model.NavmeshHkx:   &echoDecoder{kind: model.NavmeshHkx},
	}
}

// fakeLocator resolves every virtual path to itself under a fixed root,
// and answers a single AET lookup for tests that exercise the refresh
// scans.
type fakeLocator struct {
	root     string
	game     model.GameFamily
	missing  map[string]bool
	aetIndex map[string]model.VirtualPath
	fullMap  []string
}

func newFakeLocator(game model.GameFamily) *fakeLocator {
	return &fakeLocator{root: "/game", game: game, missing: map[string]bool{}, aetIndex: map[string]model.VirtualPath{}}
}

func (l *fakeLocator) VirtualToReal(vp model.VirtualPath) (string, string, error) {
	if l.missing[string(vp)] {
		return "", "", errors.New("not found")
	}
	return l.root + "/" + string(vp), "", nil
}

func (l *fakeLocator) JoinBinder(parentVP model.VirtualPath, entryName string) model.VirtualPath {
	return model.VirtualPath(string(parentVP) + "/" + entryName)
}

func (l *fakeLocator) GameType() model.GameFamily { return l.game }
func (l *fakeLocator) GameRoot() string           { return l.root }

func (l *fakeLocator) GetAETTexture(aetID string) (model.VirtualPath, bool) {
	vp, ok := l.aetIndex[aetID]
	return vp, ok
}

func (l *fakeLocator) FullMapList() []string { return l.fullMap }

// fakeBinderReader/fakeBinderFactory let archive-expansion tests control
// exactly which entries a virtual archive exposes.
type fakeBinderReader struct {
	entries []external.BinderEntry
	closed  bool
}

func (r *fakeBinderReader) Entries() []external.BinderEntry { return r.entries }
func (r *fakeBinderReader) Close() error                    { r.closed = true; return nil }

type fakeBinderFactory struct {
	readers map[string]*fakeBinderReader
	err     error
}

func (f *fakeBinderFactory) Open(realPath string, game model.GameFamily) (external.BinderReader, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.readers[realPath]
	if !ok {
		return nil, errors.New("no such archive")
	}
	return r, nil
}

type fakeTextureReader struct{}

func (fakeTextureReader) Read(path string) (external.TextureContainer, error) {
	return &fakeTextureContainer{}, nil
}

func (fakeTextureReader) ReadBytes(buf []byte) (external.TextureContainer, error) {
	return &fakeTextureContainer{}, nil
}

type fakeTextureContainer struct{}

func (fakeTextureContainer) SlotCount() int        { return 1 }
func (fakeTextureContainer) SlotName(i int) string { return "tex0" }
func (fakeTextureContainer) SlotMetadata(i int) (external.TextureSlotMetadata, error) {
	return external.TextureSlotMetadata{Width: 4, Height: 4}, nil
}

type fakeTexturePool struct{ capacity, allocated int }

func (p *fakeTexturePool) Allocate() (external.TextureDescriptor, bool) {
	if p.allocated >= p.capacity {
		return nil, false
	}
	p.allocated++
	return fakeDescriptor{}, true
}
func (p *fakeTexturePool) Release(external.TextureDescriptor) {}

type fakeDescriptor struct{}

func (fakeDescriptor) Release() {}

type fakeUploadQueue struct{}

func (fakeUploadQueue) EnqueueLowPriorityUpload(task external.UploadTask, descriptor external.TextureDescriptor, cpuData []byte) {
}

func newTestJob(name string, locator external.AssetLocator, binderFactory external.BinderReaderFactory) *Job {
	return New(Config{
		Name:            name,
		Decoders:        demoDecoders(),
		Locator:         locator,
		BinderFactory:   binderFactory,
		TextureReader:   fakeTextureReader{},
		Pool2D:          &fakeTexturePool{capacity: 64},
		PoolCube:        &fakeTexturePool{capacity: 64},
		UploadQueue:     fakeUploadQueue{},
		PortParallelism: 4,
		TexturesEnabled: true,
	})
}
