package database

import (
	"sync"

	"github.com/spaghettifunk/cinderload/loader/core"
	"github.com/spaghettifunk/cinderload/loader/model"
)

// Observer receives load/unload notifications for a handle it registered
// against. Held weakly: IsLive (supplied at registration) is consulted
// before every dispatch, and a dead entry is purged rather than notified.
type Observer interface {
	OnLoaded(h *Handle, tag string)
	OnUnloaded(h *Handle, tag string)
}

type observerEntry struct {
	observer       Observer
	requiredAccess model.AccessLevel
	tag            string
	// isLive approximates a weak reference's liveness check. Go has no
	// exported weak-pointer API on this module's language version, so
	// callers that want true weak semantics supply a closure backed by
	// their own liveness tracking (e.g. a flag cleared on GC/dispose).
	// A nil isLive means "always live" — the common case of an observer
	// that outlives the handles it watches.
	isLive func() bool
}

func (e *observerEntry) live() bool {
	return e.isLive == nil || e.isLive()
}

// Handle is one reference-counted, observer-bearing entry in the
// Database, keyed by its (immutable) virtual path. Once created under a
// path its identity is stable until the Database forgets it.
type Handle struct {
	mu sync.Mutex

	virtualPath model.VirtualPath
	kind        model.ResourceKind
	accessLevel model.AccessLevel
	payload     model.Resource
	refCount    int
	observers   []*observerEntry

	// onZeroRefLoaded is invoked (outside the lock) when a Release brings
	// refCount to zero on a still-loaded handle, so the Database can
	// schedule the conditional unload. nil for a handle not wired into a
	// Database (e.g. in unit tests of Handle alone).
	onZeroRefLoaded func(*Handle)
}

// newHandle constructs an Unloaded handle for the given path and kind.
// Handles are otherwise only ever constructed by a Database, so that a
// handle's identity stays stable for as long as it lives in the table.
func newHandle(kind model.ResourceKind, path model.VirtualPath, onZeroRefLoaded func(*Handle)) *Handle {
	return &Handle{
		virtualPath:     path,
		kind:            kind,
		accessLevel:     model.Unloaded,
		onZeroRefLoaded: onZeroRefLoaded,
	}
}

func (h *Handle) VirtualPath() model.VirtualPath { return h.virtualPath }
func (h *Handle) Kind() model.ResourceKind       { return h.kind }

// AccessLevel returns the handle's current access level.
func (h *Handle) AccessLevel() model.AccessLevel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.accessLevel
}

// Payload returns the current payload, or nil if Unloaded.
func (h *Handle) Payload() model.Resource {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.payload
}

// RefCount returns the current reference count.
func (h *Handle) RefCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refCount
}

// Acquire increments the reference count.
func (h *Handle) Acquire() {
	h.mu.Lock()
	h.refCount++
	h.mu.Unlock()
}

// Release decrements the reference count. Returns core.ErrRefCountUnderflow
// if it would go negative — callers must treat a non-nil error here as a
// process-aborting invariant violation, not a recoverable condition. If
// the release brings the count to zero on a loaded handle, the Database's
// conditional-unload scheduling callback is invoked after the lock is
// released.
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.refCount == 0 {
		h.mu.Unlock()
		return core.ErrRefCountUnderflow
	}
	h.refCount--
	zero := h.refCount == 0
	loaded := h.accessLevel != model.Unloaded
	h.mu.Unlock()

	if zero && loaded && h.onZeroRefLoaded != nil {
		h.onZeroRefLoaded(h)
	}
	return nil
}

// AddObserver appends a weak observer registration and, if the handle is
// already loaded at a level satisfying requiredAccess, immediately
// delivers OnLoaded to this observer only.
func (h *Handle) AddObserver(obs Observer, requiredAccess model.AccessLevel, tag string, isLive func() bool) {
	entry := &observerEntry{observer: obs, requiredAccess: requiredAccess, tag: tag, isLive: isLive}

	h.mu.Lock()
	h.observers = append(h.observers, entry)
	satisfied := model.Satisfies(requiredAccess, h.accessLevel)
	h.mu.Unlock()

	if satisfied && entry.live() {
		obs.OnLoaded(h, tag)
	}
}

// Install adopts a new payload at the given access level. If the handle
// was already loaded, the previous payload is unloaded first — observers
// see OnUnloaded strictly before OnLoaded for the new install. Install
// and Unload are only ever called from the Manager's tick goroutine, so
// no caller-side locking is required around the unload-then-install
// sequence itself; the handle's mutex still guards the fields individual
// Observe/Acquire/Release calls touch concurrently.
func (h *Handle) Install(resource model.Resource, access model.AccessLevel) {
	h.unloadLocked()
	h.mu.Lock()
	h.payload = resource
	h.accessLevel = access
	live := h.liveObserversSatisfying(access)
	h.mu.Unlock()

	for _, entry := range live {
		entry.observer.OnLoaded(h, entry.tag)
	}
}

// Unload notifies observers OnUnloaded, releases the payload, and resets
// the access level to Unloaded.
func (h *Handle) Unload() {
	h.unloadLocked()
}

// unloadLocked is the shared body of Install's pre-unload step and the
// standalone Unload operation.
func (h *Handle) unloadLocked() {
	h.mu.Lock()
	if h.accessLevel == model.Unloaded {
		h.mu.Unlock()
		return
	}
	old := h.payload
	observers := h.snapshotObservers()
	h.payload = nil
	h.accessLevel = model.Unloaded
	h.mu.Unlock()

	for _, entry := range observers {
		if entry.live() {
			entry.observer.OnUnloaded(h, entry.tag)
		}
	}
	if old != nil {
		old.Release()
	}
}

// snapshotObservers copies the observer slice and purges dead entries —
// if the underlying object has been discarded, the entry is purged on
// the next notification walk rather than notified. Must be called with
// h.mu held.
func (h *Handle) snapshotObservers() []*observerEntry {
	live := make([]*observerEntry, 0, len(h.observers))
	for _, e := range h.observers {
		if e.live() {
			live = append(live, e)
		}
	}
	h.observers = live
	out := make([]*observerEntry, len(live))
	copy(out, live)
	return out
}

// liveObserversSatisfying purges dead observers and returns the live ones
// whose required access is satisfied by access. Must be called with h.mu
// held.
func (h *Handle) liveObserversSatisfying(access model.AccessLevel) []*observerEntry {
	live := h.snapshotObservers()
	out := make([]*observerEntry, 0, len(live))
	for _, e := range live {
		if model.Satisfies(e.requiredAccess, access) {
			out = append(out, e)
		}
	}
	return out
}
