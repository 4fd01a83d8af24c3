// Package colorspace converts packed RGB frames to planar YCbCr 4:2:0.
//
// One coefficient set is used everywhere: BT.601 full range as implemented by
// image/color.RGBToYCbCr. Chroma for each 2x2 block is taken from its top-left
// pixel.
package colorspace

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/roach88/framestack/internal/frame"
)

// ErrMalformedInput indicates a pixel buffer whose length does not match the
// declared geometry.
var ErrMalformedInput = errors.New("malformed pixel buffer")

// PlaneSizes returns the byte sizes of the Y, Cb and Cr planes of a
// width x height I420 image. Odd dimensions round the chroma planes up.
func PlaneSizes(width, height int) (y, cb, cr int) {
	cw, ch := (width+1)/2, (height+1)/2
	return width * height, cw * ch, cw * ch
}

// FrameSize returns the total I420 byte size of a width x height image.
func FrameSize(width, height int) int {
	y, cb, cr := PlaneSizes(width, height)
	return y + cb + cr
}

// Convert returns the I420 planes (Y, then Cb, then Cr) for a packed frame.
func Convert(pixels []byte, format frame.PixelFormat, width, height int) ([]byte, error) {
	out := make([]byte, FrameSize(width, height))
	if err := ConvertInto(out, pixels, format, width, height); err != nil {
		return nil, err
	}
	return out, nil
}

// ConvertInto is Convert writing into a caller-owned buffer of FrameSize bytes.
func ConvertInto(dst, pixels []byte, format frame.PixelFormat, width, height int) error {
	if err := format.Validate(); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrMalformedInput, width, height)
	}
	bpp := format.BytesPerPixel()
	if len(pixels) != width*height*bpp {
		return fmt.Errorf("%w: %d bytes for %dx%d %s, want %d",
			ErrMalformedInput, len(pixels), width, height, format, width*height*bpp)
	}
	if len(dst) != FrameSize(width, height) {
		return fmt.Errorf("%w: destination is %d bytes, want %d", ErrMalformedInput, len(dst), FrameSize(width, height))
	}

	ySize, cSize, _ := PlaneSizes(width, height)
	yPlane := dst[:ySize]
	cbPlane := dst[ySize : ySize+cSize]
	crPlane := dst[ySize+cSize:]
	cw := (width + 1) / 2

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			r, g, b := rgbAt(pixels, format, (row*width+col)*bpp)
			y, cb, cr := color.RGBToYCbCr(r, g, b)
			yPlane[row*width+col] = y
			if row%2 == 0 && col%2 == 0 {
				ci := (row/2)*cw + col/2
				cbPlane[ci] = cb
				crPlane[ci] = cr
			}
		}
	}
	return nil
}

func rgbAt(pixels []byte, format frame.PixelFormat, off int) (r, g, b uint8) {
	if format == frame.BGRA32 {
		return pixels[off+2], pixels[off+1], pixels[off]
	}
	return pixels[off], pixels[off+1], pixels[off+2]
}
