// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"gviegas/rend3/driver"
	"gviegas/rend3/rhi"
)

// NewImageTexture creates an RGBA8 texture from img.
// Images of other color models are converted.
func NewImageTexture(dev *rhi.Device, name string, img image.Image) *rhi.Texture {
	rgba := toRGBA(img)
	b := rgba.Bounds()
	return rhi.NewTexture(dev, &rhi.TextureDesc{
		Name:   name,
		Format: driver.RGBA8un,
		Width:  b.Dx(),
		Height: b.Dy(),
		Data:   rgba.Pix,
	})
}

// LoadTexture decodes an image from r and creates a
// texture from it.
// PNG, JPEG and BMP are supported.
func LoadTexture(dev *rhi.Device, name string, r io.Reader) (*rhi.Texture, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("engine: texture %q: %w", name, err)
	}
	t := NewImageTexture(dev, name, img)
	if !t.IsValid() {
		err := t.Err()
		t.Destroy()
		return nil, fmt.Errorf("engine: texture %q (%s): %w", name, format, err)
	}
	return t, nil
}

// toRGBA returns img as a tightly packed *image.RGBA
// whose bounds start at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if m, ok := img.(*image.RGBA); ok && m.Rect.Min == (image.Point{}) && m.Stride == 4*m.Rect.Dx() {
		return m
	}
	b := img.Bounds()
	m := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(m, image.Point{}, img, b, draw.Src, nil)
	return m
}

// solidTexture creates a 1x1 texture of the given color.
func solidTexture(dev *rhi.Device, name string, format driver.PixelFmt, texel []byte) *rhi.Texture {
	return rhi.NewTexture(dev, &rhi.TextureDesc{
		Name:   name,
		Format: format,
		Width:  1,
		Height: 1,
		Data:   texel,
	})
}
