// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"encoding/binary"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gviegas/rend3/driver"
)

const minimalVS = `@vertex
fn vs_main() -> @builtin(position) vec4<f32> {
#ifdef HALF
    return vec4<f32>(0.5, 0.5, 0.0, 1.0);
#else
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
#endif
}
`

func TestCompileWGSL(t *testing.T) {
	fsys := fstest.MapFS{"vs.wgsl": {Data: []byte(minimalVS)}}
	c := NewCompiler(fsys, nil)

	src := NewSource("vs.wgsl", driver.SVertex, "HALF")
	code, err := c.Compile(src, driver.WGSL)
	require.NoError(t, err)
	assert.Contains(t, string(code), "0.5, 0.5")
	assert.NotContains(t, string(code), "#")

	// Results are memoized: changing the file has no
	// effect until invalidated.
	fsys["vs.wgsl"] = &fstest.MapFile{Data: []byte("@vertex\nfn vs_main() {}\n")}
	again, err := c.Compile(src, driver.WGSL)
	require.NoError(t, err)
	assert.Equal(t, code, again)

	c.Invalidate("vs.wgsl")
	again, err = c.Compile(src, driver.WGSL)
	require.NoError(t, err)
	assert.Equal(t, "@vertex\nfn vs_main() {}\n", string(again))
}

func TestCompileSPIRV(t *testing.T) {
	fsys := fstest.MapFS{"vs.wgsl": {Data: []byte(minimalVS)}}
	c := NewCompiler(fsys, nil)
	code, err := c.Compile(NewSource("vs.wgsl", driver.SVertex), driver.SPIRV)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(code), 20)
	assert.Equal(t, uint32(0x07230203), binary.LittleEndian.Uint32(code))
}

func TestCompileErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"bad.wgsl":   {Data: []byte("@vertex\nfn vs_main( -> @builtin(position) vec4<f32> {\n}\n")},
		"badpp.wgsl": {Data: []byte("#ifdef X\n")},
	}
	c := NewCompiler(fsys, nil)

	_, err := c.Compile(NewSource("bad.wgsl", driver.SVertex), driver.SPIRV)
	assert.ErrorIs(t, err, ErrCompile)
	_, err = c.Compile(NewSource("badpp.wgsl", driver.SVertex), driver.WGSL)
	assert.ErrorIs(t, err, ErrPreprocess)
	_, err = c.Compile(NewSource("bad.wgsl", driver.SVertex|driver.SFragment), driver.WGSL)
	assert.ErrorIs(t, err, ErrCompile)
	_, err = c.Compile(NewSource("bad.wgsl", driver.SVertex), driver.ShaderFormat(99))
	assert.ErrorIs(t, err, ErrCompile)
	_, err = c.Compile(NewSource("missing.wgsl", driver.SVertex), driver.WGSL)
	assert.Error(t, err)
}

func TestDependents(t *testing.T) {
	fsys := fstest.MapFS{
		"common.wgsl": {Data: []byte("const X: f32 = 1.0;\n")},
		"a.wgsl":      {Data: []byte("#include \"common.wgsl\"\n")},
		"b.wgsl":      {Data: []byte("#include \"common.wgsl\"\n")},
		"c.wgsl":      {Data: []byte("const Y: f32 = 2.0;\n")},
	}
	c := NewCompiler(fsys, nil)
	for _, p := range []string{"b.wgsl", "a.wgsl", "c.wgsl"} {
		_, err := c.Compile(NewSource(p, driver.SFragment), driver.WGSL)
		require.NoError(t, err)
		_, err = c.Compile(NewSource(p, driver.SVertex), driver.WGSL)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a.wgsl", "b.wgsl"}, c.Dependents("common.wgsl"))
	assert.Equal(t, []string{"c.wgsl"}, c.Dependents("c.wgsl"))
	assert.Empty(t, c.Dependents("d.wgsl"))

	c.Invalidate("common.wgsl")
	assert.Empty(t, c.Dependents("common.wgsl"))
	assert.Equal(t, []string{"c.wgsl"}, c.Dependents("c.wgsl"))
}
