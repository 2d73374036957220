// Package external defines the surfaces this subsystem consumes but does
// not implement: AssetLocator, decoders, a binder-reader factory, and the
// GPU backend's descriptor pools and upload queue. The core module never
// implements these; loader/locator ships one concrete AssetLocator for
// tests and the demo binary.
package external

import (
	"context"

	"github.com/spaghettifunk/cinderload/loader/model"
)

// AssetLocator translates virtual asset paths into concrete filesystem
// paths.
type AssetLocator interface {
	// VirtualToReal resolves vp to a real filesystem path and, if the
	// asset is nested inside a binder, a hint naming that binder.
	VirtualToReal(vp model.VirtualPath) (realPath string, nestedBinderHint string, err error)
	// JoinBinder forms a child virtual path for an entry inside a
	// container opened from parentVP.
	JoinBinder(parentVP model.VirtualPath, entryName string) model.VirtualPath
	GameType() model.GameFamily
	GameRoot() string
	// GetAETTexture resolves an aet asset id to its texture container
	// virtual path, used by the unloaded-textures refresh.
	GetAETTexture(aetID string) (texturePath model.VirtualPath, ok bool)
	// FullMapList is consumed by tests only.
	FullMapList() []string
}

// Decoder decodes a single resource kind's payload from either a raw byte
// buffer or a file on disk. One Decoder is registered per ResourceKind;
// it is stateless.
type Decoder interface {
	DecodeBytes(buf []byte, access model.AccessLevel, game model.GameFamily) (model.Resource, error)
	DecodeFile(path string, access model.AccessLevel, game model.GameFamily) (model.Resource, error)
}

// TextureContainerReader reads a texture container's subresource slots,
// either from a file path or from an in-memory buffer.
type TextureContainerReader interface {
	Read(path string) (TextureContainer, error)
	ReadBytes(buf []byte) (TextureContainer, error)
}

// TextureContainer exposes the subresource slots of an opened TPF-style
// container.
type TextureContainer interface {
	SlotCount() int
	SlotName(i int) string
	SlotMetadata(i int) (TextureSlotMetadata, error)
}

// TextureSlotMetadata is the decoded header of one texture slot, enough to
// allocate a GPU descriptor without the full pixel payload.
type TextureSlotMetadata struct {
	Width, Height uint32
	MipCount      uint32
	IsCubemap     bool
	CPUData       []byte
}

// BinderEntry is one file inside an opened binder/container.
type BinderEntry struct {
	Name string
	Data []byte
}

// BinderReader exposes the entries of an opened container.
type BinderReader interface {
	Entries() []BinderEntry
	Close() error
}

// BinderReaderFactory opens a container, selecting the binder dialect by
// game family and by whether the real path is a split header+data pair
// (".bhd"/".bdt") or a single file.
type BinderReaderFactory interface {
	Open(realPath string, game model.GameFamily) (BinderReader, error)
}

// TexturePool allocates and releases GPU texture descriptors. Two pools
// exist: one for 2D textures, one for cubemaps.
type TexturePool interface {
	Allocate() (TextureDescriptor, bool)
	Release(TextureDescriptor)
}

// TextureDescriptor is an opaque GPU-side handle for an allocated texture
// slot.
type TextureDescriptor interface {
	Release()
}

// UploadTask fills a previously-allocated descriptor with the decoded
// CPU-side texture data, invoked on the uploader thread.
type UploadTask func(ctx context.Context, descriptor TextureDescriptor, cpuData []byte) error

// GPUUploadQueue enqueues a low-priority upload task to run asynchronously
// on the uploader thread.
type GPUUploadQueue interface {
	EnqueueLowPriorityUpload(task UploadTask, descriptor TextureDescriptor, cpuData []byte)
}
