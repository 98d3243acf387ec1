// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"sync"

	"github.com/gogpu/naga"

	"gviegas/rend3/driver"
)

// ErrCompile means that WGSL could not be translated.
var ErrCompile = errors.New("shader: compilation failed")

type cacheKey struct {
	src    Source
	format driver.ShaderFormat
}

type cacheEntry struct {
	code []byte
	// Every file read to produce code.
	files []string
}

// Compiler compiles shader sources read from a file
// system and memoizes the results.
// It is safe for concurrent use.
type Compiler struct {
	fsys fs.FS
	log  *slog.Logger

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// NewCompiler creates a new Compiler that reads sources
// from fsys.
// If log is nil, driver.Logger() is used.
func NewCompiler(fsys fs.FS, log *slog.Logger) *Compiler {
	if log == nil {
		log = driver.Logger()
	}
	return &Compiler{fsys: fsys, log: log, cache: make(map[cacheKey]cacheEntry)}
}

// Compile returns the code of src in the given format.
// WGSL is returned as preprocessed text; SPIR-V is
// produced by naga.
func (c *Compiler) Compile(src Source, format driver.ShaderFormat) ([]byte, error) {
	key := cacheKey{src, format}
	c.mu.Lock()
	e, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return e.code, nil
	}
	if EntryPoint(src.Stage) == "" {
		return nil, fmt.Errorf("%w: %s: invalid stage", ErrCompile, src)
	}
	text, files, err := Preprocess(c.fsys, src.Path, src.DefineList())
	if err != nil {
		return nil, err
	}
	var code []byte
	switch format {
	case driver.WGSL:
		code = []byte(text)
	case driver.SPIRV:
		if code, err = naga.Compile(text); err != nil {
			c.log.Warn("shader: naga failed", "src", src.String(), "err", err)
			return nil, fmt.Errorf("%w: %s: %w", ErrCompile, src, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s: unknown shader format %d", ErrCompile, src, format)
	}
	c.mu.Lock()
	c.cache[key] = cacheEntry{code, files}
	c.mu.Unlock()
	c.log.Debug("shader: compiled", "src", src.String(), "bytes", len(code))
	return code, nil
}

// Invalidate drops every cached result that read the
// file at path, either directly or through #include.
func (c *Compiler) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.cache {
		if slices.Contains(e.files, path) {
			delete(c.cache, k)
		}
	}
}

// Dependents returns the top-level paths of cached
// results that read the file at path.
// A path that is only ever included has no pipelines of
// its own, so watchers use this to find the sources that
// must be invalidated.
func (c *Compiler) Dependents(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s []string
	for k, e := range c.cache {
		if slices.Contains(e.files, path) && !slices.Contains(s, k.src.Path) {
			s = append(s, k.src.Path)
		}
	}
	slices.Sort(s)
	return s
}
