// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"gviegas/rend3/driver"
)

// Watcher watches a shader directory on disk and reports
// changed sources.
// When a file changes, the compiler's results that read it
// are dropped and onChange is called with the path of
// every top-level source affected, so that pipelines built
// from them can be invalidated.
type Watcher struct {
	w        *fsnotify.Watcher
	root     string
	comp     *Compiler
	onChange func(path string)
	log      *slog.Logger
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewWatcher creates a Watcher for root and every
// directory below it.
// comp must read sources from the same directory (e.g.,
// os.DirFS(root)).
func NewWatcher(root string, comp *Compiler, onChange func(path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	})
	if err != nil {
		fw.Close()
		return nil, err
	}
	log := driver.Logger()
	if comp != nil {
		log = comp.log
	}
	w := &Watcher{
		w:        fw,
		root:     root,
		comp:     comp,
		onChange: onChange,
		log:      log,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	log.Info("shader: watching", "root", root)
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".wgsl") {
				continue
			}
			rel, err := filepath.Rel(w.root, ev.Name)
			if err != nil {
				continue
			}
			w.changed(filepath.ToSlash(rel))
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.log.Warn("shader: watcher error", "err", err)
		}
	}
}

// changed handles a change to the file at path.
func (w *Watcher) changed(path string) {
	var paths []string
	if w.comp != nil {
		paths = w.comp.Dependents(path)
		w.comp.Invalidate(path)
	}
	if !slices.Contains(paths, path) {
		paths = append(paths, path)
	}
	w.log.Info("shader: source changed", "path", path, "affected", len(paths))
	if w.onChange != nil {
		for _, p := range paths {
			w.onChange(p)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.w.Close()
		w.wg.Wait()
	})
	return err
}
