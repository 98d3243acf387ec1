// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lines returns the non-empty lines of s, trimmed.
func lines(s string) []string {
	var l []string
	for _, x := range strings.Split(s, "\n") {
		if x = strings.TrimSpace(x); x != "" {
			l = append(l, x)
		}
	}
	return l
}

func TestPreprocess(t *testing.T) {
	fsys := fstest.MapFS{
		"main.wgsl": {Data: []byte(`#include "inc/common.wgsl"
a
#ifdef A
b
#ifndef B
c
#else
d
#endif
#else
e
#endif
#define B
#ifdef B
f
#endif
`)},
		"inc/common.wgsl": {Data: []byte("common\n#include \"more.wgsl\"\n")},
		"inc/more.wgsl":   {Data: []byte("more\n")},
	}

	for _, x := range []struct {
		defines []string
		want    []string
	}{
		{nil, []string{"common", "more", "a", "e", "f"}},
		{[]string{"A"}, []string{"common", "more", "a", "b", "c", "f"}},
		{[]string{"A", "B"}, []string{"common", "more", "a", "b", "d", "f"}},
		{[]string{"B"}, []string{"common", "more", "a", "e", "f"}},
	} {
		s, files, err := Preprocess(fsys, "main.wgsl", x.defines)
		require.NoError(t, err)
		assert.Equal(t, x.want, lines(s), "defines %v", x.defines)
		assert.Equal(t, []string{"main.wgsl", "inc/common.wgsl", "inc/more.wgsl"}, files)
	}
}

func TestPreprocessLines(t *testing.T) {
	// Line numbers of the top-level file are preserved
	// when nothing is included.
	fsys := fstest.MapFS{"x.wgsl": {Data: []byte("#ifdef X\nx\n#endif\ny\n")}}
	s, _, err := Preprocess(fsys, "x.wgsl", nil)
	require.NoError(t, err)
	assert.Equal(t, "\n\n\ny\n", s)

	// Source without directives is left as is.
	for _, src := range []string{
		"",
		"x",
		"x\n",
		"x\ny\n\n",
	} {
		fsys["x.wgsl"] = &fstest.MapFile{Data: []byte(src)}
		s, _, err := Preprocess(fsys, "x.wgsl", nil)
		require.NoError(t, err)
		assert.Equal(t, src, s)
	}
}

func TestPreprocessErrors(t *testing.T) {
	for _, src := range []string{
		"#ifdef A\n",
		"#endif\n",
		"#else\n",
		"#ifdef A\n#else\n#else\n#endif\n",
		"#ifdef\n#endif\n",
		"#define\n",
		"#include\n",
		"#pragma once\n",
		"#include \"self.wgsl\"\n",
	} {
		fsys := fstest.MapFS{"self.wgsl": {Data: []byte(src)}}
		_, _, err := Preprocess(fsys, "self.wgsl", nil)
		assert.ErrorIs(t, err, ErrPreprocess, "%q", src)
	}

	_, _, err := Preprocess(fstest.MapFS{}, "missing.wgsl", nil)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestBuiltinSources(t *testing.T) {
	fsys := FS()
	for _, x := range []struct {
		path    string
		defines []string
	}{
		{"gbuffer.wgsl", nil},
		{"shadow.wgsl", nil},
		{"forward.wgsl", nil},
		{"line.wgsl", nil},
		{"brdf.wgsl", nil},
		{"composition.wgsl", nil},
		{"light.wgsl", []string{"DIRECTIONAL"}},
		{"light.wgsl", []string{"POINT"}},
		{"light.wgsl", []string{"SPOT"}},
		{"ssao.wgsl", []string{"SSAO_GENERATE"}},
		{"ssao.wgsl", []string{"SSAO_BLUR"}},
		{"ssao.wgsl", []string{"SSAO_UPSAMPLE"}},
		{"ssr.wgsl", []string{"SSR_TRACE"}},
		{"ssr.wgsl", []string{"SSR_RESOLVE"}},
		{"quad.wgsl", []string{"PASS_TAA_RESOLVE"}},
		{"quad.wgsl", []string{"PASS_BLOOM_DOWNSAMPLE_LUMINANCE"}},
		{"quad.wgsl", []string{"PASS_BLOOM_DOWNSAMPLE"}},
		{"quad.wgsl", []string{"PASS_BLOOM_UPSAMPLE_BLEND"}},
		{"quad.wgsl", []string{"PASS_TONEMAPPING", "PASS_GAMMA_CORRECTION"}},
		{"quad.wgsl", []string{"PASS_FXAA"}},
		{"quad.wgsl", []string{"PASS_LUMA_SHARPEN"}},
		{"quad.wgsl", []string{"PASS_CHROMATIC_ABERRATION"}},
		{"quad.wgsl", []string{"PASS_TEXTURE"}},
		{"quad.wgsl", []string{"PASS_TEXTURE", "VIS_DEPTH"}},
	} {
		s, files, err := Preprocess(fsys, x.path, x.defines)
		require.NoError(t, err, "%s %v", x.path, x.defines)
		assert.Contains(t, files, "common.wgsl")
		// A single permutation defines each entry point once.
		assert.Equal(t, 1, strings.Count(s, "fn vs_main("), "%s %v", x.path, x.defines)
		if x.path != "shadow.wgsl" {
			assert.Equal(t, 1, strings.Count(s, "fn fs_main("), "%s %v", x.path, x.defines)
		}
		assert.NotContains(t, s, "#")
	}
}
