// Package dcx unwraps the zlib-style compression envelope this subsystem
// applies to most FromSoftware container entries before their bytes reach
// a Decoder.
package dcx

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Decompress unwraps a DCX-compressed buffer. Callers should only invoke
// this when model.IsDCXCompressed(entryName) is true.
func Decompress(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
