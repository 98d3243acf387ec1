// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"errors"
	"image"
	"image/color"

	"github.com/chewxy/math32"

	"gviegas/rend3/engine"
	"gviegas/rend3/linear"
	"gviegas/rend3/node"
	"gviegas/rend3/rhi"
)

// demo is the procedural scene shown by the viewer.
type demo struct {
	scene  *engine.Scene
	camera *node.Node
	spin   []*node.Node

	meshes []*engine.Mesh
	checks *rhi.Texture
}

func newDemo(dev *rhi.Device) (*demo, error) {
	d := &demo{scene: engine.NewScene()}
	if err := d.build(dev); err != nil {
		d.destroy()
		return nil, err
	}
	return d, nil
}

func (d *demo) build(dev *rhi.Device) error {
	cube, err := engine.NewCube(dev, 1)
	if err != nil {
		return err
	}
	d.meshes = append(d.meshes, cube)
	plane, err := engine.NewPlane(dev, 24)
	if err != nil {
		return err
	}
	d.meshes = append(d.meshes, plane)

	d.checks = engine.NewImageTexture(dev, "checks", checkerboard(256, 32))
	if !d.checks.IsValid() {
		return errors.Join(errors.New("rend3: checkerboard texture"), d.checks.Err())
	}

	ground := engine.DefaultMaterial()
	ground.Name = "ground"
	ground.Roughness = 0.9
	ground.AlbedoTex = d.checks
	d.add(d.scene.Root, &engine.Model{Mesh: plane, Material: &ground}, 0, 0, 0)

	for i := range 5 {
		mat := engine.DefaultMaterial()
		t := float32(i) / 4
		mat.Albedo = linear.V4{1 - t, 0.4, t, 1}
		mat.Roughness = 0.15 + 0.7*t
		mat.Metallic = 1 - t
		angle := float32(i) * 2 * math32.Pi / 5
		n := d.add(d.scene.Root, &engine.Model{Mesh: cube, Material: &mat}, 4*math32.Cos(angle), 0.5, 4*math32.Sin(angle))
		d.spin = append(d.spin, n)
	}

	glow := engine.DefaultMaterial()
	glow.Albedo = linear.V4{1, 0.6, 0.2, 1}
	glow.Emissive = 4
	d.add(d.scene.Root, &engine.Model{Mesh: cube, Material: &glow}, 0, 0.5, 0)

	glass := engine.DefaultMaterial()
	glass.Albedo = linear.V4{0.3, 0.6, 1, 0.35}
	glass.Roughness = 0.05
	glass.Transparent = true
	d.add(d.scene.Root, &engine.Model{Mesh: cube, Material: &glass}, 0, 2, 0)

	sun := (&engine.DistantLight{
		Direction: linear.V3{-0.4, -1, -0.3},
		Intensity: 3,
		R:         1, G: 0.95, B: 0.85,
		Shadow: true,
	}).Light()
	d.add(d.scene.Root, &sun, 0, 0, 0)

	point := (&engine.PointLight{Range: 8, Intensity: 30, R: 1, G: 0.5, B: 0.2}).Light()
	d.add(d.scene.Root, &point, -3, 2, 3)

	spot := (&engine.SpotLight{
		Direction:  linear.V3{0, -1, 0},
		InnerAngle: 0.3,
		OuterAngle: 0.5,
		Range:      10,
		Intensity:  60,
		R:          0.3, G: 0.5, B: 1,
	}).Light()
	d.add(d.scene.Root, &spot, 3, 5, -3)

	cam := engine.DefaultCamera()
	d.camera = d.add(d.scene.Root, &cam, 0, 0, 0)
	d.scene.Camera = d.camera
	d.orbit(0)
	return nil
}

func (d *demo) add(parent *node.Node, value any, x, y, z float32) *node.Node {
	n := node.New()
	n.Value = value
	n.Local.Translate(x, y, z)
	parent.Insert(n)
	return n
}

// orbit places the camera on a circle around the origin.
func (d *demo) orbit(angle float32) {
	eye := linear.V3{9 * math32.Sin(angle), 4, 9 * math32.Cos(angle)}
	var v linear.M4
	v.LookAt(&eye, &linear.V3{0, 0.5, 0}, &linear.V3{0, 1, 0})
	d.camera.Local.Invert(&v)
}

// update animates the scene to time t, in seconds.
func (d *demo) update(t float32) {
	d.orbit(t * 0.1)
	var q linear.Q
	for i, n := range d.spin {
		pos := n.Local[3]
		q.Rotate(t*(0.5+0.2*float32(i)), &linear.V3{0, 1, 0})
		n.Local.TRS(&linear.V3{pos[0], pos[1], pos[2]}, &q, &linear.V3{1, 1, 1})
	}
}

func (d *demo) destroy() {
	for _, m := range d.meshes {
		m.Destroy()
	}
	if d.checks != nil {
		d.checks.Destroy()
	}
}

func checkerboard(size, cell int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	dark := color.RGBA{90, 90, 96, 255}
	light := color.RGBA{200, 200, 205, 255}
	for y := range size {
		for x := range size {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, light)
			} else {
				img.SetRGBA(x, y, dark)
			}
		}
	}
	return img
}
