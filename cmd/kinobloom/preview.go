package main

import (
	"image"
	stdcolor "image/color"
	"image/png"
	"os"

	"github.com/nfnt/resize"

	"github.com/gogpu/bloom/internal/color"
)

// display8 converts one color component of pic to an 8-bit display value,
// tone mapping HDR radiance.
func display8(pic *picture, v float32) uint8 {
	if pic.ldr {
		return unorm8(v)
	}
	return color.ToneMap8(v)
}

// displayImage converts pic to 8-bit sRGB, tone mapping HDR values.
func displayImage(pic *picture) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, pic.width, pic.height))
	for y := range pic.height {
		for x := range pic.width {
			r, g, b, _ := pic.at(x, y)
			img.SetNRGBA(x, y, stdcolor.NRGBA{R: display8(pic, r), G: display8(pic, g), B: display8(pic, b), A: 255})
		}
	}
	return img
}

// writePreview writes a PNG of pic scaled to width, keeping the aspect
// ratio. Pictures narrower than width are not enlarged.
func writePreview(path string, pic *picture, width int) error {
	var img image.Image = displayImage(pic)
	if width > 0 && width < pic.width {
		img = resize.Resize(uint(width), 0, img, resize.Lanczos3) //nolint:gosec // width is positive
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
