// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"slices"

	"gviegas/rend3/linear"
	"gviegas/rend3/node"
)

// Scene is what a Renderer draws.
//
// Renderable objects are node.Node values in the graph
// rooted at Root: *Model, *Light and *Camera. Nodes with
// other values (or none) only contribute transforms.
type Scene struct {
	Root *node.Node
	// Camera is the node whose *Camera value views the
	// scene. If nil, the first camera found is used.
	Camera *node.Node
	Sky    Skybox
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	return &Scene{
		Root: node.New(),
		Sky:  DefaultSkybox(),
	}
}

// Model is a drawable Mesh with a Material.
type Model struct {
	Mesh     *Mesh
	Material *Material
	Hidden   bool

	// World transform of the previous frame.
	prevWorld linear.M4
	hasPrev   bool
}

// Camera defines a perspective projection.
// The view transform is the inverse of the world
// transform of the camera's node; the camera looks
// down its local -Z axis.
type Camera struct {
	// Vertical field of view in radians.
	FovY float32
	Near float32
	Far  float32
}

// DefaultCamera returns a camera with a 60° field of
// view and a [0.1, 1000] depth range.
func DefaultCamera() Camera { return Camera{FovY: dflFOV, Near: 0.1, Far: 1000} }

// Skybox describes the background and the ambient
// light.
type Skybox struct {
	Zenith  linear.V4
	Horizon linear.V4
	Ambient linear.V3
}

// DefaultSkybox returns a blue sky.
func DefaultSkybox() Skybox {
	return Skybox{
		Zenith:  linear.V4{0.15, 0.35, 0.75, 1},
		Horizon: linear.V4{0.65, 0.75, 0.85, 1},
		Ambient: linear.V3{0.05, 0.05, 0.06},
	}
}

// view holds the camera state of a frame.
type view struct {
	pos       linear.V3
	v, p      linear.M4
	vp        linear.M4
	invVP     linear.M4
	prevVP    linear.M4
	near, far float32
	frustum   linear.Frustum
}

// setCamera computes the view for cam, placed at world,
// with the given aspect ratio.
func (v *view) setCamera(cam *Camera, world *linear.M4, aspect float32, reverse bool) {
	c := *cam
	if c.FovY <= 0 {
		c.FovY = dflFOV
	}
	if c.Near <= 0 {
		c.Near = 0.1
	}
	if c.Far <= c.Near {
		c.Far = c.Near * 1e4
	}
	v.pos = linear.V3{world[3][0], world[3][1], world[3][2]}
	v.v.Invert(world)
	v.p.Perspective(c.FovY, aspect, c.Near, c.Far, reverse)
	v.vp.Mul(&v.p, &v.v)
	v.invVP.Invert(&v.vp)
	v.near, v.far = c.Near, c.Far
	v.frustum.SetViewProj(&v.vp)
}

// drawItem is a visible model.
type drawItem struct {
	model *Model
	world *linear.M4
	// World-space bounds.
	bounds linear.AABB
	// Squared distance from the camera.
	dist float32
	// Constant block, or 0 if the table was full.
	blk int
}

// lightItem is a light and its transform.
type lightItem struct {
	light *Light
	world *linear.M4
}

// renderables is the result of traversing a Scene.
type renderables struct {
	opaque      []drawItem
	transparent []drawItem
	lights      []lightItem
	// First shadow-casting distant light, if any.
	sun    *lightItem
	camera *node.Node
	culled int
}

// reset clears r, keeping its allocations.
func (r *renderables) reset() {
	r.opaque = r.opaque[:0]
	r.transparent = r.transparent[:0]
	r.lights = r.lights[:0]
	r.sun = nil
	r.camera = nil
	r.culled = 0
}

// findCamera updates the world transforms of sc and
// returns the camera node.
func (r *renderables) findCamera(sc *Scene) *node.Node {
	sc.Root.Update()
	isCamera := func(n *node.Node) bool {
		_, ok := n.Value.(*Camera)
		return ok
	}
	if sc.Camera != nil {
		if isCamera(sc.Camera) {
			return sc.Camera
		}
	}
	if isCamera(sc.Root) {
		return sc.Root
	}
	var cam *node.Node
	sc.Root.Until(func(n *node.Node) bool {
		if isCamera(n) {
			cam = n
			return false
		}
		return true
	})
	return cam
}

// gather collects the models and lights of sc.
// Models outside of the view frustum are culled.
// Opaque models are sorted front to back and transparent
// models, back to front.
func (r *renderables) gather(sc *Scene, v *view) {
	visit := func(n *node.Node) {
		switch x := n.Value.(type) {
		case *Model:
			if x.Hidden || !x.Mesh.IsValid() {
				return
			}
			local := x.Mesh.Bounds()
			it := drawItem{model: x, world: n.World()}
			it.bounds.Transform(it.world, &local)
			if !v.frustum.Intersects(&it.bounds) {
				r.culled++
				return
			}
			c := it.bounds.Center()
			c.Sub(&c, &v.pos)
			it.dist = c.Dot(&c)
			if x.Material != nil && x.Material.Transparent {
				r.transparent = append(r.transparent, it)
			} else {
				r.opaque = append(r.opaque, it)
			}
		case *Light:
			r.lights = append(r.lights, lightItem{x, n.World()})
		}
	}
	visit(sc.Root)
	sc.Root.ForEach(visit)
	for i := range r.lights {
		if l := &r.lights[i]; l.light.typ == LDistant && l.light.shadow {
			r.sun = l
			break
		}
	}
	slices.SortStableFunc(r.opaque, func(a, b drawItem) int { return cmpFloat(a.dist, b.dist) })
	slices.SortStableFunc(r.transparent, func(a, b drawItem) int { return cmpFloat(b.dist, a.dist) })
}

func cmpFloat(a, b float32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// endFrame records the current world transforms as the
// previous ones of the next frame.
func (r *renderables) endFrame() {
	for _, s := range [][]drawItem{r.opaque, r.transparent} {
		for i := range s {
			s[i].model.prevWorld = *s[i].world
			s[i].model.hasPrev = true
		}
	}
}

// prevWorld returns the world transform of the previous
// frame, or the current one if the model was not drawn
// then.
func (it *drawItem) prevWorld() *linear.M4 {
	if it.model.hasPrev {
		return &it.model.prevWorld
	}
	return it.world
}
