package software

import (
	"fmt"
	"math"

	"github.com/mrjoshuak/go-openexr/half"

	"github.com/gogpu/bloom/internal/color"
	"github.com/gogpu/bloom/kernel"
)

// Image is a texture stored in host memory.
//
// Exactly one of the storage slices is populated, chosen by the format:
// float32 components, binary16 components or RGBM bytes. Pixels are stored
// row-major with four components each.
type Image struct {
	width  int
	height int
	format kernel.Format

	f32  []float32
	f16  []half.Half
	rgbm []uint8
}

// NewImage creates a zeroed image.
func NewImage(width, height int, format kernel.Format) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("software: %dx%d: %w", width, height, kernel.ErrDimensions)
	}
	img := &Image{width: width, height: height, format: format}
	n := width * height * 4
	switch format {
	case kernel.FormatRGBA32F:
		img.f32 = make([]float32, n)
	case kernel.FormatRGBA16F:
		img.f16 = make([]half.Half, n)
	case kernel.FormatRGBM8:
		img.rgbm = make([]uint8, n)
	default:
		return nil, fmt.Errorf("software: %v: %w", format, kernel.ErrFormat)
	}
	return img, nil
}

// Width returns the image width in pixels.
func (m *Image) Width() int { return m.width }

// Height returns the image height in pixels.
func (m *Image) Height() int { return m.height }

// Format returns the storage format.
func (m *Image) Format() kernel.Format { return m.format }

// Bytes returns the storage size of the pixel data.
func (m *Image) Bytes() int {
	return m.width * m.height * m.format.BytesPerPixel()
}

// RGBA returns the decoded pixel at (x, y). Out-of-range coordinates
// return zero.
func (m *Image) RGBA(x, y int) (r, g, b, a float32) {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return 0, 0, 0, 0
	}
	c := m.pixel(x, y)
	return c.R, c.G, c.B, c.A
}

// SetRGBA stores a pixel, encoding it in the image format. Out-of-range
// coordinates are ignored.
func (m *Image) SetRGBA(x, y int, r, g, b, a float32) {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return
	}
	m.setPixel(x, y, color.RGBA{R: r, G: g, B: b, A: a})
}

// Fill sets every pixel to the same value.
func (m *Image) Fill(r, g, b, a float32) {
	c := color.RGBA{R: r, G: g, B: b, A: a}
	for y := range m.height {
		for x := range m.width {
			m.setPixel(x, y, c)
		}
	}
}

func (m *Image) pixel(x, y int) color.RGBA {
	i := (y*m.width + x) * 4
	switch m.format {
	case kernel.FormatRGBA16F:
		p := m.f16[i : i+4 : i+4]
		return color.RGBA{R: p[0].Float32(), G: p[1].Float32(), B: p[2].Float32(), A: p[3].Float32()}
	case kernel.FormatRGBM8:
		return color.DecodeRGBM([4]uint8(m.rgbm[i : i+4]))
	default:
		p := m.f32[i : i+4 : i+4]
		return color.RGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
	}
}

func (m *Image) setPixel(x, y int, c color.RGBA) {
	i := (y*m.width + x) * 4
	switch m.format {
	case kernel.FormatRGBA16F:
		m.f16[i+0] = half.FromFloat32(c.R)
		m.f16[i+1] = half.FromFloat32(c.G)
		m.f16[i+2] = half.FromFloat32(c.B)
		m.f16[i+3] = half.FromFloat32(c.A)
	case kernel.FormatRGBM8:
		p := color.EncodeRGBM(c)
		copy(m.rgbm[i:i+4], p[:])
	default:
		m.f32[i+0] = c.R
		m.f32[i+1] = c.G
		m.f32[i+2] = c.B
		m.f32[i+3] = c.A
	}
}

// fetch reads a pixel with clamp-to-edge addressing.
func (m *Image) fetch(x, y int) color.RGBA {
	x = min(max(x, 0), m.width-1)
	y = min(max(y, 0), m.height-1)
	return m.pixel(x, y)
}

// sample reads the image at normalized coordinates with bilinear
// filtering and clamp-to-edge addressing. Pixel centers sit at
// ((x+0.5)/width, (y+0.5)/height).
func (m *Image) sample(u, v float32) color.RGBA {
	px := u*float32(m.width) - 0.5
	py := v*float32(m.height) - 0.5
	fx0 := float32(math.Floor(float64(px)))
	fy0 := float32(math.Floor(float64(py)))
	tx := px - fx0
	ty := py - fy0
	x0, y0 := int(fx0), int(fy0)

	c00 := m.fetch(x0, y0)
	c10 := m.fetch(x0+1, y0)
	c01 := m.fetch(x0, y0+1)
	c11 := m.fetch(x0+1, y0+1)
	return c00.Lerp(c10, tx).Lerp(c01.Lerp(c11, tx), ty)
}

// copyFrom transfers src into m converting formats when they differ.
// The sizes must match.
func (m *Image) copyFrom(src *Image) {
	if m.format == src.format {
		switch m.format {
		case kernel.FormatRGBA32F:
			copy(m.f32, src.f32)
		case kernel.FormatRGBA16F:
			copy(m.f16, src.f16)
		case kernel.FormatRGBM8:
			copy(m.rgbm, src.rgbm)
		}
		return
	}
	for y := range m.height {
		for x := range m.width {
			m.setPixel(x, y, src.pixel(x, y))
		}
	}
}
