// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gviegas/rend3/driver"
)

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	write := func(name, data string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}
	write("common.wgsl", "const X: f32 = 1.0;\n")
	write("quad.wgsl", "#include \"common.wgsl\"\n")
	write("notes.txt", "")

	comp := NewCompiler(os.DirFS(dir), nil)
	_, err := comp.Compile(NewSource("quad.wgsl", driver.SFragment), driver.WGSL)
	require.NoError(t, err)

	var mu sync.Mutex
	var changed []string
	w, err := NewWatcher(dir, comp, func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if !slices.Contains(changed, path) {
			changed = append(changed, path)
		}
	})
	require.NoError(t, err)
	defer w.Close()

	write("notes.txt", "ignored")
	write("common.wgsl", "const X: f32 = 2.0;\n")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return slices.Contains(changed, "quad.wgsl") && slices.Contains(changed, "common.wgsl")
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.NotContains(t, changed, "notes.txt")
	mu.Unlock()
	assert.Empty(t, comp.Dependents("common.wgsl"), "cached results were not dropped")

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestWatcherMissingRoot(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), nil, nil)
	assert.Error(t, err)
}
