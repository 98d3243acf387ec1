// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"
	"image"
	"image/color"
	"time"
	"unsafe"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"gviegas/rend3/driver"
	"gviegas/rend3/linear"
	"gviegas/rend3/rhi"
)

// lineVertex is the vertex of a debug line.
type lineVertex struct {
	pos   linear.V3
	color linear.V4
}

const lineStride = int(unsafe.Sizeof(lineVertex{}))

// Size of the performance text image.
const (
	textWidth    = 288
	textHeight   = 68
	textInterval = 500 * time.Millisecond
)

// Overlay colors.
var (
	aabbColor  = linear.V4{1, 0.85, 0, 1}
	lightColor = linear.V4{1, 1, 0.6, 1}
	gridColor  = linear.V4{0.5, 0.5, 0.5, 0.6}
	axisColor  = [3]linear.V4{{0.9, 0.2, 0.2, 1}, {0.2, 0.9, 0.2, 1}, {0.2, 0.4, 0.9, 1}}
	rayColor   = linear.V4{1, 0.2, 1, 1}
)

// overlay holds the performance text.
type overlay struct {
	img     *image.RGBA
	tex     *rhi.Texture
	updated time.Time
}

func newOverlay(dev *rhi.Device) (*overlay, error) {
	img := image.NewRGBA(image.Rect(0, 0, textWidth, textHeight))
	tex := rhi.NewTexture(dev, &rhi.TextureDesc{
		Name:   "overlay.text",
		Format: driver.RGBA8un,
		Width:  textWidth,
		Height: textHeight,
		Data:   img.Pix,
	})
	if !tex.IsValid() {
		err := tex.Err()
		tex.Destroy()
		return nil, err
	}
	return &overlay{img: img, tex: tex}, nil
}

// update redraws the text if textInterval has elapsed
// since the last update.
func (o *overlay) update(now time.Time, lines []string) bool {
	if now.Sub(o.updated) < textInterval {
		return true
	}
	o.updated = now
	draw.Draw(o.img, o.img.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 160}), image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  o.img,
		Src:  image.White,
		Face: basicfont.Face7x13,
	}
	for i, s := range lines {
		d.Dot = fixed.P(6, 14+i*15)
		d.DrawString(s)
	}
	return o.tex.Update(o.img.Pix)
}

func (o *overlay) destroy() { o.tex.Destroy() }

// perfText returns the lines of the performance text.
func (r *Renderer) perfText() []string {
	s := &r.stats
	ms := float64(s.FrameTime.Microseconds()) / 1000
	var fps float64
	if ms > 0 {
		fps = 1000 / ms
	}
	return []string{
		fmt.Sprintf("%s  %.2f ms  %.0f fps", r.dev.Backend(), ms, fps),
		fmt.Sprintf("passes %d  skipped %d", len(s.Passes), len(s.PassesSkip)),
		fmt.Sprintf("draws %d  culled %d", s.Draws, s.Culled),
		fmt.Sprintf("pipelines %d  compiles %d  failures %d", s.Cache.Entries, s.Cache.Compiles, s.Cache.Failures),
	}
}

// AddLine adds a line to be drawn in the next frame.
// The color is interpolated from colorFrom to colorTo.
func (r *Renderer) AddLine(from, to linear.V3, colorFrom, colorTo linear.V4) {
	r.lines = append(r.lines, lineVertex{from, colorFrom}, lineVertex{to, colorTo})
}

// AddBoundingBox adds the edges of box to be drawn in
// the next frame.
func (r *Renderer) AddBoundingBox(box linear.AABB, color linear.V4) {
	r.lines = appendBox(r.lines, &box, &color)
}

// boxEdges are pairs of corner indices.
// Corners are numbered as the bits of (x, y, z).
var boxEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7},
	{0, 2}, {1, 3}, {4, 6}, {5, 7},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

func appendBox(dst []lineVertex, box *linear.AABB, color *linear.V4) []lineVertex {
	if box.IsEmpty() {
		return dst
	}
	var c [8]linear.V3
	for i := range c {
		c[i] = box.Min
		if i&4 != 0 {
			c[i][0] = box.Max[0]
		}
		if i&2 != 0 {
			c[i][1] = box.Max[1]
		}
		if i&1 != 0 {
			c[i][2] = box.Max[2]
		}
	}
	for _, e := range boxEdges {
		dst = append(dst, lineVertex{c[e[0]], *color}, lineVertex{c[e[1]], *color})
	}
	return dst
}

func appendLine(dst []lineVertex, from, to *linear.V3, color *linear.V4) []lineVertex {
	return append(dst, lineVertex{*from, *color}, lineVertex{*to, *color})
}

// appendLight adds a gizmo for l.
func appendLight(dst []lineVertex, l *lightItem) []lineVertex {
	pos := l.light.worldPosition(l.world)
	dir := l.light.worldDirection(l.world)
	if l.light.typ == LDistant {
		// Distant lights have no position; the gizmo is
		// placed at the node's origin.
		pos = linear.V3{l.world[3][0], l.world[3][1], l.world[3][2]}
	}
	const size = 0.25
	for i := range 3 {
		a, b := pos, pos
		a[i] -= size
		b[i] += size
		dst = appendLine(dst, &a, &b, &lightColor)
	}
	if l.light.typ != LPoint {
		var end linear.V3
		end.Scale(1, &dir)
		end.Add(&end, &pos)
		dst = appendLine(dst, &pos, &end, &lightColor)
	}
	return dst
}

// appendGrid adds a grid on the XZ plane centered at
// the origin, with the axes highlighted.
func appendGrid(dst []lineVertex) []lineVertex {
	const n = 10
	for i := -n; i <= n; i++ {
		if i == 0 {
			continue
		}
		x := float32(i)
		dst = appendLine(dst, &linear.V3{x, 0, -n}, &linear.V3{x, 0, n}, &gridColor)
		dst = appendLine(dst, &linear.V3{-n, 0, x}, &linear.V3{n, 0, x}, &gridColor)
	}
	for i := range 3 {
		var to linear.V3
		to[i] = n
		dst = appendLine(dst, &linear.V3{}, &to, &axisColor[i])
	}
	return dst
}

// pickRay is a ray in world space.
type pickRay struct{ from, to linear.V3 }

// Pick returns the world-space ray through the back
// buffer position (x, y), in pixels, as seen by the
// camera of the last frame.
// The ray goes from the near plane to the far plane and
// is drawn when PickingRay is set.
func (r *Renderer) Pick(x, y float32) (origin, dir linear.V3) {
	w, h := r.BackBufferSize()
	u := x/float32(max(w, 1))*2 - 1
	v := 1 - y/float32(max(h, 1))*2
	zn, zf := float32(0), float32(1)
	if r.reverseZ {
		zn, zf = 1, 0
	}
	unproject := func(z float32) linear.V3 {
		var p linear.V4
		p.Mul(&r.lastView.invVP, &linear.V4{u, v, z, 1})
		if p[3] != 0 {
			p.Scale(1/p[3], &p)
		}
		return p.XYZ()
	}
	ray := pickRay{unproject(zn), unproject(zf)}
	r.pick = &ray
	dir.Sub(&ray.to, &ray.from)
	dir.Norm(&dir)
	return ray.from, dir
}

// overlayLines returns the lines to draw in frame f.
func (r *Renderer) overlayLines(f *frame) []lineVertex {
	lines := r.lines
	if f.flags.IsSet(AABB) {
		for _, s := range [][]drawItem{f.rend.opaque, f.rend.transparent} {
			for i := range s {
				lines = appendBox(lines, &s[i].bounds, &aabbColor)
			}
		}
	}
	if f.flags.IsSet(LightGizmos) {
		for i := range f.rend.lights {
			lines = appendLight(lines, &f.rend.lights[i])
		}
	}
	if f.flags.IsSet(SceneGrid) {
		lines = appendGrid(lines)
	}
	if f.flags.IsSet(PickingRay) && r.pick != nil {
		lines = appendLine(lines, &r.pick.from, &r.pick.to, &rayColor)
	}
	return lines
}

// overlayPass draws debug lines and the performance text
// over the output.
func (r *Renderer) overlayPass(f *frame, _ *PassDesc) error {
	lines := r.overlayLines(f)
	r.lines = lines[:len(r.lines)]
	text := f.flags.IsSet(PerformanceMetrics)

	var descs []rhi.PipelineDesc
	if len(lines) > 0 {
		descs = append(descs, r.lineDesc(f.outFmt))
	}
	if text {
		descs = append(descs, r.textDesc(f.outFmt))
	}
	pls, err := r.pipelines(descs...)
	if err != nil {
		return err
	}
	var blk int
	if text {
		if !r.overlay.update(time.Now(), r.perfText()) {
			return fmt.Errorf("cannot update text: %w", r.overlay.tex.Err())
		}
		blk = f.passConst(textWidth, textHeight, 0, 0, 0, 0)
	}
	if len(lines) > 0 {
		data := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(lines))), len(lines)*lineStride)
		if !f.lineBuf.Update(data) {
			return fmt.Errorf("cannot update lines: %w", f.lineBuf.Err())
		}
	}

	cb := f.cb
	cb.BeginPass(&driver.PassDesc{Color: []driver.ColorTarget{{View: f.out, Load: driver.LLoad, Store: driver.SStore}}})
	f.tab.BindGlobal(cb)
	if len(lines) > 0 {
		cb.SetPipeline(pls[0])
		setViewport(cb, f.outW, f.outH)
		cb.SetVertexBuf(f.lineBuf.Buffer(), 0)
		cb.Draw(len(lines), 1, 0, 0)
		pls = pls[1:]
	}
	if text {
		w, h := min(textWidth, f.outW), min(textHeight, f.outH)
		cb.SetPipeline(pls[0])
		cb.SetViewport(driver.Viewport{X: 8, Y: 8, Width: float32(w), Height: float32(h), Zfar: 1})
		cb.SetScissor(driver.Scissor{X: 8, Y: 8, Width: max(min(w, f.outW-8), 0), Height: max(min(h, f.outH-8), 0)})
		f.tab.BindGlobal(cb)
		f.tab.Bind(cb, blk)
		cb.SetTexture(0, r.overlay.tex.View())
		cb.SetSampler(0, r.res.splr[ssPointClamp].Sampler())
		r.res.drawQuad(cb)
	}
	cb.EndPass()
	return nil
}
