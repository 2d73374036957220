package texture

import (
	"github.com/spaghettifunk/cinderload/loader/external"
	"github.com/spaghettifunk/cinderload/loader/model"
)

// Resource is a loaded texture slot's payload: a GPU descriptor. Once the
// asynchronous upload task has run, the descriptor is the only thing this
// value owns — the CPU-side pixel data is not retained.
type Resource struct {
	Descriptor external.TextureDescriptor
	Width      uint32
	Height     uint32
	IsCubemap  bool
}

func (r *Resource) Kind() model.ResourceKind { return model.Texture }

// Release frees the GPU descriptor this slot owns.
func (r *Resource) Release() {
	if r.Descriptor != nil {
		r.Descriptor.Release()
	}
}
