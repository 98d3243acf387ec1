// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"
	"fmt"

	"gviegas/rend3/driver"
)

// TextureDesc describes a Texture.
type TextureDesc struct {
	Name   string
	Format driver.PixelFmt
	Width  int
	Height int
	// Levels defaults to 1.
	Levels int
	// Usage is added to driver.UShaderSample.
	Usage driver.Usage
	// Data, if not nil, is the tightly packed content of
	// the first mip level. It is retained so that the
	// texture can be recreated.
	Data []byte
}

// Texture is a 2D image and a view of all of its levels.
type Texture struct {
	base
	desc   TextureDesc
	img    Handle[driver.Image]
	view   Handle[driver.ImageView]
	layout driver.Layout
}

// NewTexture creates a new texture.
// It never returns nil. On failure the texture is left
// in the failed state and the error is logged.
func NewTexture(dev *Device, desc *TextureDesc) *Texture {
	t := &Texture{desc: *desc}
	if t.desc.Levels <= 0 {
		t.desc.Levels = 1
	}
	t.desc.Usage |= driver.UShaderSample
	if desc.Data != nil {
		t.desc.Data = append([]byte(nil), desc.Data...)
		t.desc.Usage |= driver.UCopyDst
	}
	t.init(dev, nameOr(desc.Name, "texture"), t)
	if t.err == nil {
		t.create()
	}
	return t
}

func (t *Texture) create() error {
	const op = "NewTexture"
	g, err := t.gpu(op)
	if err != nil {
		return t.fail(op, err)
	}
	d := &t.desc
	if d.Format == driver.FNone || d.Width <= 0 || d.Height <= 0 {
		return t.fail(op, fmt.Errorf("%w: invalid texture %dx%d (format %d)", driver.ErrResource, d.Width, d.Height, d.Format))
	}
	if mx := t.dev.Limits().MaxImage2D; d.Width > mx || d.Height > mx {
		return t.fail(op, fmt.Errorf("%w: texture size %dx%d exceeds %d", driver.ErrResource, d.Width, d.Height, mx))
	}
	if d.Data != nil && len(d.Data) != d.Width*d.Height*d.Format.Size() {
		return t.fail(op, fmt.Errorf("%w: texture data is %d bytes, want %d", driver.ErrResource, len(d.Data), d.Width*d.Height*d.Format.Size()))
	}
	img, err := g.NewImage(&driver.ImageParam{
		Format: d.Format,
		Width:  d.Width,
		Height: d.Height,
		Levels: d.Levels,
		Usage:  d.Usage,
	})
	if err != nil {
		return t.fail(op, err)
	}
	view, err := img.NewView(0, d.Levels)
	if err != nil {
		img.Destroy()
		return t.fail(op, err)
	}
	t.img = newHandle(t.dev, img)
	t.view = newHandle(t.dev, view)
	t.layout = driver.LUndefined
	t.err = nil
	if d.Data != nil {
		if err := t.dev.upload(img, d.Width, d.Height, d.Format, d.Data); err != nil {
			t.release()
			return t.fail(op, err)
		}
		t.layout = driver.LShaderRead
	}
	t.dev.log.Debug("rhi: texture created", "obj", t.name, "width", d.Width, "height", d.Height, "format", d.Format)
	return nil
}

// Update replaces the content of the first mip level.
// data must be tightly packed and have the texture's
// size.
func (t *Texture) Update(data []byte) bool {
	img, err := t.native("Update")
	if err != nil {
		return false
	}
	d := &t.desc
	if d.Usage&driver.UCopyDst == 0 {
		t.misuse("Update", fmt.Errorf("%w: texture was not created with data", driver.ErrResource))
		return false
	}
	if len(data) != d.Width*d.Height*d.Format.Size() {
		t.misuse("Update", fmt.Errorf("%w: texture data is %d bytes, want %d", driver.ErrResource, len(data), d.Width*d.Height*d.Format.Size()))
		return false
	}
	if err := t.dev.upload(img, d.Width, d.Height, d.Format, data); err != nil {
		t.misuse("Update", err)
		return false
	}
	d.Data = append(d.Data[:0], data...)
	t.layout = driver.LShaderRead
	return true
}

func (t *Texture) native(op string) (driver.Image, error) {
	if !t.IsValid() {
		return nil, t.refuse(op)
	}
	img, ok := t.img.Get(t.dev)
	if !ok {
		return nil, t.refuse(op)
	}
	return img, nil
}

// Image returns the driver image.
// It returns nil if the texture is not valid.
func (t *Texture) Image() driver.Image {
	img, err := t.native("Image")
	if err != nil {
		return nil
	}
	return img
}

// View returns the driver image view.
// It returns nil if the texture is not valid.
func (t *Texture) View() driver.ImageView {
	if _, err := t.native("View"); err != nil {
		return nil
	}
	view, _ := t.view.Get(t.dev)
	return view
}

// Desc returns the texture's descriptor.
func (t *Texture) Desc() TextureDesc { return t.desc }

// Size returns the size of the texture.
func (t *Texture) Size() (width, height int) { return t.desc.Width, t.desc.Height }

// Format returns the texture's pixel format.
func (t *Texture) Format() driver.PixelFmt { return t.desc.Format }

// Layout returns the layout that the texture will be in
// once previously recorded commands execute.
func (t *Texture) Layout() driver.Layout { return t.layout }

// Transition records a layout transition in cb if the
// texture is not in the given layout already.
func (t *Texture) Transition(cb driver.CmdBuffer, layout driver.Layout) {
	img, err := t.native("Transition")
	if err != nil || t.layout == layout {
		return
	}
	cb.Transition([]driver.Transition{{Img: img, LayoutBefore: t.layout, LayoutAfter: layout}})
	t.layout = layout
}

func (t *Texture) release() {
	if v := t.view.take(); v != nil {
		v.Destroy()
	}
	if img := t.img.take(); img != nil {
		img.Destroy()
	}
	t.layout = driver.LUndefined
}

func (t *Texture) rebuild() error { return t.create() }

// IsValid returns whether the texture was successfully
// created and not yet destroyed.
// A nil texture is invalid.
func (t *Texture) IsValid() bool { return t != nil && t.base.IsValid() }

// Destroy destroys the texture.
func (t *Texture) Destroy() { t.destroy(t.release) }

// Row pitch alignment of buffer-to-image copies.
const rowAlign = 256

// uploader copies data into images through a staging
// buffer and blocks until the copy completes.
type uploader struct {
	pool  driver.CmdPool
	cb    driver.CmdBuffer
	fence driver.Fence
	buf   driver.Buffer
}

// upload copies the tightly packed data into the first
// mip level of img, leaving it in LShaderRead.
func (d *Device) upload(img driver.Image, width, height int, pf driver.PixelFmt, data []byte) (err error) {
	g, err := d.gpuFor("upload")
	if err != nil {
		return err
	}
	d.upmu.Lock()
	defer d.upmu.Unlock()
	if d.up == nil {
		up := &uploader{}
		if up.pool, err = g.NewCmdPool(driver.QGraphics, driver.CPrimary); err != nil {
			return d.check(err)
		}
		if up.cb, err = up.pool.NewCmdBuffer(); err != nil {
			up.pool.Destroy()
			return d.check(err)
		}
		if up.fence, err = g.NewFence(false); err != nil {
			up.pool.Destroy()
			return d.check(err)
		}
		d.up = up
	}
	up := d.up

	px := pf.Size()
	pitch := (width*px + rowAlign - 1) &^ (rowAlign - 1)
	size := int64(pitch * height)
	if up.buf == nil || up.buf.Cap() < size {
		if up.buf != nil {
			up.buf.Destroy()
			up.buf = nil
		}
		if up.buf, err = g.NewBuffer(size, true, driver.UCopySrc); err != nil {
			return d.check(err)
		}
	}
	p, err := up.buf.Map()
	if err != nil {
		return d.check(err)
	}
	row := width * px
	for y := range height {
		copy(p[y*pitch:y*pitch+row], data[y*row:])
	}
	if err = up.buf.Unmap(); err != nil {
		return d.check(err)
	}

	cb := up.cb
	if err = cb.Begin(); err != nil {
		return d.check(err)
	}
	cb.Transition([]driver.Transition{{Img: img, LayoutBefore: driver.LUndefined, LayoutAfter: driver.LCopyDst}})
	cb.CopyBufToImg(&driver.BufImgCopy{
		Buf:    up.buf,
		Stride: pitch / px,
		Img:    img,
		Width:  width,
		Height: height,
	})
	cb.Transition([]driver.Transition{{Img: img, LayoutBefore: driver.LCopyDst, LayoutAfter: driver.LShaderRead}})
	if err = cb.End(); err != nil {
		return d.check(err)
	}
	if err = g.Submit(&driver.Submission{Cmd: []driver.CmdBuffer{cb}, Fence: up.fence}); err != nil {
		cb.Reset()
		return d.check(err)
	}
	ok, err := up.fence.Wait(driver.Forever)
	switch {
	case err != nil:
		return d.check(err)
	case !ok:
		return errors.New("rhi: upload fence not signaled")
	}
	if err = up.fence.Reset(); err != nil {
		return d.check(err)
	}
	return d.check(cb.Reset())
}

// closeUp destroys the uploader.
func (d *Device) closeUp() {
	d.upmu.Lock()
	defer d.upmu.Unlock()
	if d.up == nil {
		return
	}
	if d.up.buf != nil {
		d.up.buf.Destroy()
	}
	d.up.fence.Destroy()
	d.up.pool.Destroy()
	d.up = nil
}
