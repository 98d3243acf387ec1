// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"embed"
	"io/fs"
)

//go:embed wgsl
var wgslFS embed.FS

// FS returns the built-in shader sources.
// Paths are relative to the shader directory (e.g.,
// "quad.wgsl").
func FS() fs.FS {
	sub, err := fs.Sub(wgslFS, "wgsl")
	if err != nil {
		panic(err)
	}
	return sub
}
