// Package locator ships one concrete external.AssetLocator: a
// filesystem-backed locator that resolves virtual paths directly under a
// game root directory, watching that directory with fsnotify so a
// test/demo harness can react to files appearing on disk.
//
// Built around an fsnotify.Watcher with events/errors/done channels and a
// recursive directory walk, generalized from an asset-loader registry
// into a virtual-path resolver.
package locator

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/cinderload/loader/core"
	"github.com/spaghettifunk/cinderload/loader/model"
)

// DirLocator resolves virtual paths to real files rooted at a single
// game directory, with no binder nesting: every virtual path maps to
// <root>/<virtual path> verbatim. Intended for tests and the demo
// binary, not for a real game's split-binder layout.
type DirLocator struct {
	root string
	game model.GameFamily

	mu         sync.RWMutex
	aetIndex   map[string]model.VirtualPath
	fullMap    []string

	watcher  *fsnotify.Watcher
	done     chan struct{}
	isClosed bool
}

// New builds a DirLocator rooted at root for the given game family. The
// returned locator watches root recursively until Close is called.
func New(root string, game model.GameFamily) (*DirLocator, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	l := &DirLocator{
		root:     root,
		game:     game,
		aetIndex: make(map[string]model.VirtualPath),
		watcher:  watcher,
		done:     make(chan struct{}),
	}
	if err := l.watchRecursive(root); err != nil {
		watcher.Close()
		return nil, err
	}
	go l.run()
	return l, nil
}

// VirtualToReal resolves vp to a real filesystem path under root. This
// locator never nests binders, so the hint is always empty.
func (l *DirLocator) VirtualToReal(vp model.VirtualPath) (string, string, error) {
	real := filepath.Join(l.root, filepath.FromSlash(vp.String()))
	if _, err := os.Stat(real); err != nil {
		return "", "", err
	}
	return real, "", nil
}

// JoinBinder forms a child virtual path for an entry inside a container
// opened from parentVP: the parent's last extension is trimmed and the
// entry name is slash-joined onto what remains.
func (l *DirLocator) JoinBinder(parentVP model.VirtualPath, entryName string) model.VirtualPath {
	base := strings.TrimSuffix(parentVP.String(), filepath.Ext(parentVP.String()))
	return model.VirtualPath(base + "/" + entryName)
}

func (l *DirLocator) GameType() model.GameFamily { return l.game }
func (l *DirLocator) GameRoot() string            { return l.root }

// GetAETTexture resolves an aet asset id to its texture container
// virtual path, from an index built by IndexAET.
func (l *DirLocator) GetAETTexture(aetID string) (model.VirtualPath, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	vp, ok := l.aetIndex[aetID]
	return vp, ok
}

// IndexAET registers aetID's texture container virtual path for later
// GetAETTexture lookups. Not part of external.AssetLocator; a real
// locator would build this from the game's AET param tables, which are
// out of scope here.
func (l *DirLocator) IndexAET(aetID string, texturePath model.VirtualPath) {
	l.mu.Lock()
	l.aetIndex[aetID] = texturePath
	l.mu.Unlock()
}

// FullMapList returns the root-relative, slash-separated paths of the
// files this locator has observed under root/map. Intended for tests.
func (l *DirLocator) FullMapList() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.fullMap))
	copy(out, l.fullMap)
	return out
}

// Close stops the background watcher.
func (l *DirLocator) Close() error {
	l.mu.Lock()
	if l.isClosed {
		l.mu.Unlock()
		return nil
	}
	l.isClosed = true
	l.mu.Unlock()
	close(l.done)
	return nil
}

func (l *DirLocator) run() {
	for {
		select {
		case e, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(e)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			core.LogWarn("locator watch error: %v", err)
		case <-l.done:
			l.watcher.Close()
			return
		}
	}
}

func (l *DirLocator) handleEvent(e fsnotify.Event) {
	if e.Op&fsnotify.Create == 0 {
		return
	}
	info, err := os.Stat(e.Name)
	if err == nil && info.IsDir() {
		l.watchRecursive(e.Name)
		return
	}
	l.recordMapEntry(e.Name)
}

// watchRecursive adds every directory under root (inclusive) to the
// watch list.
func (l *DirLocator) watchRecursive(root string) error {
	return filepath.Walk(root, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return l.watcher.Add(walkPath)
		}
		l.recordMapEntry(walkPath)
		return nil
	})
}

func (l *DirLocator) recordMapEntry(path string) {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "map/") {
		return
	}
	l.mu.Lock()
	l.fullMap = append(l.fullMap, rel)
	l.mu.Unlock()
}
