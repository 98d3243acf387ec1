// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gviegas/rend3/driver"
	"gviegas/rend3/driver/drivertest"
	"gviegas/rend3/linear"
	"gviegas/rend3/node"
	"gviegas/rend3/rhi"
)

var ndrv atomic.Int32

// openTest opens a Device on a new drivertest driver.
// win may be nil.
func openTest(t *testing.T, win driver.Window) (*rhi.Device, *drivertest.Driver) {
	t.Helper()
	name := fmt.Sprintf("enginetest%03d", ndrv.Add(1))
	drv := drivertest.NewDriver(name)
	driver.Register(drv)
	dev, err := rhi.Open(&rhi.Config{Backend: name, Window: win})
	require.NoError(t, err)
	t.Cleanup(dev.Destroy)
	return dev, drv
}

// testConfig returns a small configuration with the
// given flags.
func testConfig(flags Flags) *Config {
	cfg := DefaultConfig()
	cfg.BackBufferWidth, cfg.BackBufferHeight = 320, 180
	cfg.ShadowMapSize = 256
	cfg.MaxDraw = 64
	cfg.Flags = flags
	return &cfg
}

// newTest creates a Renderer on a new device.
func newTest(t *testing.T, win driver.Window, cfg *Config) (*Renderer, *rhi.Device, *drivertest.Driver) {
	t.Helper()
	dev, drv := openTest(t, win)
	r, err := New(dev, cfg)
	require.NoError(t, err)
	t.Cleanup(r.Destroy)
	return r, dev, drv
}

// warmUp compiles the pipelines of r's current flags.
func warmUp(t *testing.T, r *Renderer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, r.WarmUp(ctx))
}

// testScene creates a scene with a ground plane, a cube,
// a shadow-casting sun and a camera at (0, 2, 6) looking
// at the origin.
func testScene(t *testing.T, dev *rhi.Device) *Scene {
	t.Helper()
	sc := NewScene()

	plane, err := NewPlane(dev, 10)
	require.NoError(t, err)
	t.Cleanup(plane.Destroy)
	cube, err := NewCube(dev, 1)
	require.NoError(t, err)
	t.Cleanup(cube.Destroy)

	ground := DefaultMaterial()
	addNode(sc.Root, &Model{Mesh: plane, Material: &ground}, 0, 0, 0)
	addNode(sc.Root, &Model{Mesh: cube}, 0, 0.5, 0)

	sun := (&DistantLight{Direction: linear.V3{-1, -2, -1}, Intensity: 2, R: 1, G: 1, B: 1, Shadow: true}).Light()
	addNode(sc.Root, &sun, 0, 0, 0)

	cam := DefaultCamera()
	n := addNode(sc.Root, &cam, 0, 0, 0)
	var v linear.M4
	v.LookAt(&linear.V3{0, 2, 6}, &linear.V3{}, &linear.V3{0, 1, 0})
	n.Local.Invert(&v)
	sc.Camera = n
	return sc
}

func addNode(parent *node.Node, value any, x, y, z float32) *node.Node {
	n := node.New()
	n.Value = value
	n.Local.Translate(x, y, z)
	parent.Insert(n)
	return n
}

// testWindow is a driver.Window of fixed size.
type testWindow struct{ w, h int }

func (w *testWindow) Size() (int, int)     { return w.w, w.h }
func (w *testWindow) ScaleFactor() float64 { return 1 }
func (w *testWindow) RequestRedraw()       {}
