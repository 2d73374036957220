// Package database holds the shared map from a lowercased virtual path to
// a ResourceHandle, and the operations this subsystem defines over it:
// lookup, get-or-create, observe, install, unload, and reference
// accounting.
//
// Grounded on a mutex-guarded map keyed by path plus a
// reference-counted acquire/release bookkeeping shape.
package database

import (
	"sync"

	"github.com/spaghettifunk/cinderload/loader/core"
	"github.com/spaghettifunk/cinderload/loader/model"
)

// Database is the process-wide handle table. Concurrent reads (Lookup,
// Observe) are allowed; concurrent mutating inserts are serialized by
// the RWMutex's write lock. Install/Unload/removal only ever run from
// the Manager's tick goroutine; everything else may run concurrently.
type Database struct {
	mu      sync.RWMutex
	handles map[model.VirtualPath]*Handle

	// onZeroRefLoaded is wired to every handle this Database creates, so
	// a Release that drops a loaded handle to zero references can be
	// forwarded to the Manager's unload queue.
	onZeroRefLoaded func(*Handle)
}

func New(onZeroRefLoaded func(*Handle)) *Database {
	return &Database{
		handles:         make(map[model.VirtualPath]*Handle),
		onZeroRefLoaded: onZeroRefLoaded,
	}
}

// Lookup returns the handle for path, if one exists. No mutation.
func (d *Database) Lookup(path model.VirtualPath) (*Handle, bool) {
	key := path.Canonical()
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handles[key]
	return h, ok
}

// GetOrCreate returns the existing handle for path, creating an Unloaded
// one of the given kind if absent. If a handle already exists under a
// different kind, this is a programming error: it returns
// core.ErrKindMismatch rather than panicking itself, so callers (the
// Manager/Job orchestration) can treat it as the fatal invariant
// violation it is at the point the error surfaces, while still keeping
// this method testable in isolation.
func (d *Database) GetOrCreate(kind model.ResourceKind, path model.VirtualPath) (*Handle, error) {
	key := path.Canonical()

	d.mu.RLock()
	if h, ok := d.handles[key]; ok {
		d.mu.RUnlock()
		if h.Kind() != kind {
			return nil, core.ErrKindMismatch
		}
		return h, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if h, ok := d.handles[key]; ok {
		if h.Kind() != kind {
			return nil, core.ErrKindMismatch
		}
		return h, nil
	}
	h := newHandle(kind, key, d.onZeroRefLoaded)
	d.handles[key] = h
	return h, nil
}

// Observe creates the handle if absent, then registers obs as a weak
// observer. isLive may be nil for an observer that never dies.
func (d *Database) Observe(kind model.ResourceKind, path model.VirtualPath, obs Observer, requiredAccess model.AccessLevel, tag string, isLive func() bool) (*Handle, error) {
	h, err := d.GetOrCreate(kind, path)
	if err != nil {
		return nil, err
	}
	h.AddObserver(obs, requiredAccess, tag, isLive)
	return h, nil
}

// Install installs resource onto the handle for path (creating it if
// absent, under kind); this is the tick step that resolves a pipeline
// reply into the database.
func (d *Database) Install(kind model.ResourceKind, path model.VirtualPath, resource model.Resource, access model.AccessLevel) error {
	h, err := d.GetOrCreate(kind, path)
	if err != nil {
		return err
	}
	h.Install(resource, access)
	return nil
}

// ProcessUnload implements one unload-queue entry: if unconditional or
// the handle's ref count is zero, unload it, and if the ref count is
// still zero afterward, remove it from the database. No-op if the path
// has no handle.
func (d *Database) ProcessUnload(path model.VirtualPath, unconditional bool) {
	key := path.Canonical()

	d.mu.RLock()
	h, ok := d.handles[key]
	d.mu.RUnlock()
	if !ok {
		return
	}

	if unconditional || h.RefCount() == 0 {
		h.Unload()
	}
	if h.RefCount() == 0 {
		d.removeIfUnused(key, h)
	}
}

// SweepUnusedAndRemove runs when the previous tick had active jobs and
// this one doesn't: every entry with a zero ref count is unloaded (if
// loaded) and removed from the database. This only ever runs from the
// tick, never concurrently with Observe — a deliberate choice to avoid
// racing a removal against a concurrent Observe creating the same handle.
func (d *Database) SweepUnusedAndRemove() {
	d.mu.RLock()
	candidates := make([]*Handle, 0, len(d.handles))
	for _, h := range d.handles {
		if h.RefCount() == 0 {
			candidates = append(candidates, h)
		}
	}
	d.mu.RUnlock()

	for _, h := range candidates {
		if h.AccessLevel() != model.Unloaded {
			h.Unload()
		}
		if h.RefCount() == 0 {
			d.removeIfUnused(h.VirtualPath(), h)
		}
	}
}

// removeIfUnused deletes the handle from the map if it is still unused
// (ref_count == 0 and payload absent) at the moment of removal.
func (d *Database) removeIfUnused(key model.VirtualPath, h *Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.handles[key]; ok && cur == h {
		if h.RefCount() == 0 && h.AccessLevel() == model.Unloaded {
			delete(d.handles, key)
		}
	}
}

// ScanPrefix returns every handle whose canonical path begins with
// prefix (already lowercased), used by the Job Builder's udsfm/aet
// refresh scans.
func (d *Database) ScanPrefix(prefix string) []*Handle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*Handle
	for k, h := range d.handles {
		if k.HasPrefix(prefix) {
			out = append(out, h)
		}
	}
	return out
}

// Len reports the number of handles currently tracked.
func (d *Database) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handles)
}
