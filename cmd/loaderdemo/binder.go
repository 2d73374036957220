package main

import (
	"os"
	"path/filepath"

	"github.com/spaghettifunk/cinderload/loader/external"
	"github.com/spaghettifunk/cinderload/loader/model"
)

// demoBinderReader treats a directory as a "binder": every regular file
// directly inside it becomes one entry. Good enough to exercise archive
// expansion without a real BND/BHD parser.
type demoBinderReader struct {
	entries []external.BinderEntry
}

func (r *demoBinderReader) Entries() []external.BinderEntry { return r.entries }
func (r *demoBinderReader) Close() error                    { return nil }

// demoBinderFactory opens a directory as a binder; dialect selection is
// a real binder parser's concern, out of scope here.
type demoBinderFactory struct{}

func (demoBinderFactory) Open(realPath string, game model.GameFamily) (external.BinderReader, error) {
	dirEntries, err := os.ReadDir(realPath)
	if err != nil {
		return nil, err
	}
	entries := make([]external.BinderEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(realPath, de.Name()))
		if err != nil {
			continue
		}
		entries = append(entries, external.BinderEntry{Name: de.Name(), Data: data})
	}
	return &demoBinderReader{entries: entries}, nil
}
