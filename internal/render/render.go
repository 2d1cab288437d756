// Package render rasterizes and vectorizes PDF pages.
package render

import (
	"context"
	"image"

	"golang.org/x/image/draw"
)

// NativeDPI is the page coordinate resolution: one PDF point per pixel.
const NativeDPI = 72

// Region is a rectangle in page coordinate space.
type Region struct {
	X, Y, Width, Height float64
}

// Renderer produces page previews and region rasters for a PDF file.
type Renderer interface {
	// RenderPage returns page (1-based) as an SVG document.
	RenderPage(ctx context.Context, path string, page int) ([]byte, error)
	// RenderRegion returns the raster of a page-space rectangle at NativeDPI.
	RenderRegion(ctx context.Context, path string, page int, r Region) (image.Image, error)
}

// Upscale enlarges img by an integer factor with Catmull-Rom resampling.
// A factor below 2 returns img unchanged.
func Upscale(img image.Image, factor int) image.Image {
	if factor < 2 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
