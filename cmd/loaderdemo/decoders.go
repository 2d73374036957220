package main

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/cinderload/loader/external"
	"github.com/spaghettifunk/cinderload/loader/model"
)

// passthroughResource is the demo's stand-in decoded payload: it never
// allocates anything native, so Release is a no-op. Real decoders (FLVER,
// HKX, NVM) live outside this subsystem.
type passthroughResource struct {
	kind model.ResourceKind
	size int
}

func (r *passthroughResource) Kind() model.ResourceKind { return r.kind }
func (r *passthroughResource) Release()                 {}

// passthroughDecoder accepts any buffer or file as a successfully
// decoded resource of a fixed kind, recording only its byte size. Good
// enough to drive the pipeline end-to-end without a real format parser.
type passthroughDecoder struct {
	kind model.ResourceKind
}

func (d *passthroughDecoder) DecodeBytes(buf []byte, access model.AccessLevel, game model.GameFamily) (model.Resource, error) {
	return &passthroughResource{kind: d.kind, size: len(buf)}, nil
}

func (d *passthroughDecoder) DecodeFile(path string, access model.AccessLevel, game model.GameFamily) (model.Resource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &passthroughResource{kind: d.kind, size: int(info.Size())}, nil
}

func demoDecoders() map[model.ResourceKind]external.Decoder {
	return map[model.ResourceKind]external.Decoder{
		model.Flver:        &passthroughDecoder{kind: model.Flver},
		model.CollisionHkx: &passthroughDecoder{kind: model.CollisionHkx},
		model.Navmesh:      &passthroughDecoder{kind: model.Navmesh},
		model.NavmeshHkx:   &passthroughDecoder{kind: model.NavmeshHkx},
	}
}
