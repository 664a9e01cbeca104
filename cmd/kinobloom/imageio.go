package main

import (
	"errors"
	"fmt"
	"image"
	stdcolor "image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mrjoshuak/go-openexr/exr"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

var errUnknownFormat = errors.New("unknown image format")

// picture is an RGBA float32 image. LDR pictures hold sRGB encoded values
// in [0, 1]; HDR pictures hold linear radiance.
type picture struct {
	width, height int
	pix           []float32
	ldr           bool
}

func newPicture(width, height int, ldr bool) *picture {
	return &picture{width: width, height: height, pix: make([]float32, width*height*4), ldr: ldr}
}

func (p *picture) at(x, y int) (r, g, b, a float32) {
	i := (y*p.width + x) * 4
	return p.pix[i], p.pix[i+1], p.pix[i+2], p.pix[i+3]
}

func (p *picture) set(x, y int, r, g, b, a float32) {
	i := (y*p.width + x) * 4
	p.pix[i], p.pix[i+1], p.pix[i+2], p.pix[i+3] = r, g, b, a
}

func extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func isHDR(path string) bool {
	switch extension(path) {
	case ".exr", ".hdr", ".pic":
		return true
	}
	return false
}

// load decodes an image by file extension.
func load(path string) (*picture, error) {
	var (
		pic *picture
		err error
	)
	switch extension(path) {
	case ".exr":
		pic, err = loadEXR(path)
	case ".hdr", ".pic":
		pic, err = loadRGBE(path)
	default:
		pic, err = loadLDR(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", path, err)
	}
	return pic, nil
}

// save encodes pic by file extension. LDR targets clamp the values.
func save(path string, pic *picture) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch extension(path) {
	case ".exr":
		err = saveEXR(f, pic)
	case ".hdr", ".pic":
		err = saveRGBE(f, pic)
	default:
		err = saveLDR(f, extension(path), pic)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("save %q: %w", path, err)
	}
	return nil
}

func loadEXR(path string) (*picture, error) {
	img, err := exr.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	r := img.Bounds()
	pic := newPicture(r.Dx(), r.Dy(), false)
	for y := range pic.height {
		for x := range pic.width {
			cr, cg, cb, ca := img.RGBA(r.Min.X+x, r.Min.Y+y)
			pic.set(x, y, cr, cg, cb, ca)
		}
	}
	return pic, nil
}

func saveEXR(w io.WriteSeeker, pic *picture) error {
	img := exr.NewRGBAImage(image.Rect(0, 0, pic.width, pic.height))
	copy(img.Pix, pic.pix)
	return exr.Encode(w, img)
}

func loadRGBE(path string) (*picture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := rgbe.Decode(f)
	if err != nil {
		return nil, err
	}
	img, ok := m.(hdr.Image)
	if !ok {
		return nil, fmt.Errorf("%T is not an HDR image", m)
	}
	r := img.Bounds()
	pic := newPicture(r.Dx(), r.Dy(), false)
	for y := range pic.height {
		for x := range pic.width {
			cr, cg, cb, _ := img.HDRAt(r.Min.X+x, r.Min.Y+y).HDRRGBA()
			pic.set(x, y, float32(cr), float32(cg), float32(cb), 1)
		}
	}
	return pic, nil
}

// saveRGBE writes Radiance RGBE. Alpha is dropped.
func saveRGBE(w io.Writer, pic *picture) error {
	img := hdr.NewRGB(image.Rect(0, 0, pic.width, pic.height))
	for y := range pic.height {
		for x := range pic.width {
			r, g, b, _ := pic.at(x, y)
			img.Set(x, y, hdrcolor.RGB{R: float64(r), G: float64(g), B: float64(b)})
		}
	}
	return rgbe.Encode(w, img)
}

func loadLDR(path string) (*picture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, _, err := image.Decode(f)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%s: %w", extension(path), errUnknownFormat)
		}
		return nil, err
	}
	r := m.Bounds()
	pic := newPicture(r.Dx(), r.Dy(), true)
	for y := range pic.height {
		for x := range pic.width {
			c := stdcolor.NRGBAModel.Convert(m.At(r.Min.X+x, r.Min.Y+y)).(stdcolor.NRGBA)
			pic.set(x, y, float32(c.R)/255, float32(c.G)/255, float32(c.B)/255, float32(c.A)/255)
		}
	}
	return pic, nil
}

func saveLDR(w io.Writer, ext string, pic *picture) error {
	img := image.NewNRGBA(image.Rect(0, 0, pic.width, pic.height))
	for y := range pic.height {
		for x := range pic.width {
			r, g, b, a := pic.at(x, y)
			img.SetNRGBA(x, y, stdcolor.NRGBA{R: display8(pic, r), G: display8(pic, g), B: display8(pic, b), A: unorm8(a)})
		}
	}
	switch ext {
	case ".png":
		return png.Encode(w, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case ".bmp":
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("%s: %w", ext, errUnknownFormat)
	}
}

func unorm8(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
