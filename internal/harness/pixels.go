package harness

import (
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/roach88/framestack/internal/frame"
)

// pixelSource turns fills and image references into patch payloads.
type pixelSource struct {
	dir    string
	format frame.PixelFormat
	images map[string]image.Image
}

func newPixelSource(dir string, format frame.PixelFormat) *pixelSource {
	return &pixelSource{dir: dir, format: format, images: map[string]image.Image{}}
}

// patch builds a w x h patch at (x, y).
func (px *pixelSource) patch(x, y, w, h int, fill []int, imagePath string) (frame.RectPatch, error) {
	if imagePath == "" {
		return frame.SolidPatch(x, y, w, h, px.format, encodePixel(fillColor(fill), px.format))
	}

	img, err := px.load(imagePath)
	if err != nil {
		return frame.RectPatch{}, err
	}
	b := img.Bounds()
	if w <= 0 || h <= 0 || b.Dx() < w || b.Dy() < h {
		return frame.RectPatch{}, fmt.Errorf("image %s is %dx%d, patch needs %dx%d", imagePath, b.Dx(), b.Dy(), w, h)
	}
	bpp := px.format.BytesPerPixel()
	pixels := make([]byte, 0, w*h*bpp)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+col, b.Min.Y+row)).(color.NRGBA)
			pixels = append(pixels, encodePixel(c, px.format)...)
		}
	}
	return frame.NewRectPatch(x, y, w, h, px.format, pixels)
}

func (px *pixelSource) load(path string) (image.Image, error) {
	if !filepath.IsAbs(path) && px.dir != "" {
		path = filepath.Join(px.dir, path)
	}
	if img, ok := px.images[path]; ok {
		return img, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	px.images[path] = img
	return img, nil
}

func fillColor(fill []int) color.NRGBA {
	c := color.NRGBA{A: 255}
	if len(fill) >= 3 {
		c.R, c.G, c.B = uint8(fill[0]), uint8(fill[1]), uint8(fill[2])
	}
	if len(fill) == 4 {
		c.A = uint8(fill[3])
	}
	return c
}

// encodePixel lays c out in format's byte order.
func encodePixel(c color.NRGBA, format frame.PixelFormat) []byte {
	switch format {
	case frame.RGBA32:
		return []byte{c.R, c.G, c.B, c.A}
	case frame.BGRA32:
		return []byte{c.B, c.G, c.R, c.A}
	default:
		return []byte{c.R, c.G, c.B}
	}
}
