// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package shader compiles the engine's shaders.
//
// Shaders are written in WGSL extended with a small line
// preprocessor (#define, #ifdef, #ifndef, #else, #endif and
// #include). A Source names a file, the stage whose entry
// point is used and the set of defines that select a
// permutation. Compiler resolves sources through an fs.FS and
// produces WGSL text or SPIR-V, depending on what the backend
// consumes.
package shader

import (
	"fmt"
	"slices"
	"strings"

	"gviegas/rend3/driver"
)

// Source identifies a shader permutation.
// It is comparable: equal sources always produce the
// same code.
type Source struct {
	// Path is the slash-separated path of the file
	// within the compiler's file system.
	Path  string
	Stage driver.Stage
	// Defines is the canonical, comma-separated list
	// of defines. Use NewSource or Define to build it.
	Defines string
}

// NewSource creates a Source.
// The order of defines is not significant.
func NewSource(path string, stage driver.Stage, defines ...string) Source {
	return Source{Path: path, Stage: stage, Defines: canonical(defines)}
}

// Define returns a copy of s with additional defines.
func (s Source) Define(defines ...string) Source {
	s.Defines = canonical(append(s.DefineList(), defines...))
	return s
}

// DefineList returns the defines as a slice.
func (s Source) DefineList() []string {
	if s.Defines == "" {
		return nil
	}
	return strings.Split(s.Defines, ",")
}

// Has returns whether name is defined.
func (s Source) Has(name string) bool { return slices.Contains(s.DefineList(), name) }

// Entry returns the name of the entry point for the
// source's stage.
func (s Source) Entry() string { return EntryPoint(s.Stage) }

func (s Source) String() string {
	if s.Path == "" {
		return "<none>"
	}
	var st string
	switch s.Stage {
	case driver.SVertex:
		st = "vert"
	case driver.SFragment:
		st = "frag"
	case driver.SCompute:
		st = "comp"
	default:
		st = fmt.Sprintf("stage(%d)", s.Stage)
	}
	if s.Defines == "" {
		return s.Path + ":" + st
	}
	return s.Path + ":" + st + "[" + s.Defines + "]"
}

// EntryPoint returns the entry point name used by every
// shader file for stage.
func EntryPoint(stage driver.Stage) string {
	switch stage {
	case driver.SVertex:
		return "vs_main"
	case driver.SFragment:
		return "fs_main"
	case driver.SCompute:
		return "cs_main"
	}
	return ""
}

func canonical(defines []string) string {
	d := make([]string, 0, len(defines))
	for _, x := range defines {
		if x = strings.TrimSpace(x); x != "" {
			d = append(d, x)
		}
	}
	slices.Sort(d)
	return strings.Join(slices.Compact(d), ",")
}
