// Raster buffer: the pixel currency passed between pipeline stages
package raster

import (
	"fmt"
	"image"
	"image/color"
)

// Channel counts supported by the pipeline.
const (
	RGB  = 3
	RGBA = 4
)

// maxDimension guards against pathological allocations.
const maxDimension = 16384

// Buffer is a decoded pixel grid with 8-bit samples stored row-major,
// channel-interleaved. Buffers are treated as immutable once handed to
// another stage; stages that change pixels work on a Clone.
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// New allocates a zeroed buffer.
func New(width, height, channels int) (*Buffer, error) {
	if err := validateShape(width, height, channels); err != nil {
		return nil, err
	}
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}, nil
}

// FromPix wraps an existing sample slice. The slice is not copied.
func FromPix(width, height, channels int, pix []uint8) (*Buffer, error) {
	if err := validateShape(width, height, channels); err != nil {
		return nil, err
	}
	if len(pix) != width*height*channels {
		return nil, fmt.Errorf("sample count %d does not match %dx%dx%d",
			len(pix), width, height, channels)
	}
	return &Buffer{Width: width, Height: height, Channels: channels, Pix: pix}, nil
}

func validateShape(width, height, channels int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}
	if width > maxDimension || height > maxDimension {
		return fmt.Errorf("image too large: %dx%d (max: %d)", width, height, maxDimension)
	}
	if channels != RGB && channels != RGBA {
		return fmt.Errorf("unsupported channel count: %d", channels)
	}
	return nil
}

// Validate checks the buffer invariant: width*height*channels == len(Pix).
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("nil buffer")
	}
	if err := validateShape(b.Width, b.Height, b.Channels); err != nil {
		return err
	}
	if len(b.Pix) != b.Width*b.Height*b.Channels {
		return fmt.Errorf("sample count %d does not match %dx%dx%d",
			len(b.Pix), b.Width, b.Height, b.Channels)
	}
	return nil
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Channels: b.Channels, Pix: pix}
}

// Offset returns the index of the first sample of pixel (x, y).
func (b *Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * b.Channels
}

// FromImage decodes a Go image into an RGB or RGBA buffer. Images without
// an alpha channel become 3-channel buffers.
func FromImage(img image.Image) (*Buffer, error) {
	bounds := img.Bounds()
	channels := RGB
	if hasAlpha(img) {
		channels = RGBA
	}
	out, err := New(bounds.Dx(), bounds.Dy(), channels)
	if err != nil {
		return nil, err
	}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.Pix[i+0] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			if channels == RGBA {
				out.Pix[i+3] = c.A
			}
			i += channels
		}
	}
	return out, nil
}

// ToImage converts the buffer to a Go image for encoding or display.
func (b *Buffer) ToImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	src := 0
	for y := 0; y < b.Height; y++ {
		dst := img.PixOffset(0, y)
		for x := 0; x < b.Width; x++ {
			img.Pix[dst+0] = b.Pix[src+0]
			img.Pix[dst+1] = b.Pix[src+1]
			img.Pix[dst+2] = b.Pix[src+2]
			if b.Channels == RGBA {
				img.Pix[dst+3] = b.Pix[src+3]
			} else {
				img.Pix[dst+3] = 0xff
			}
			src += b.Channels
			dst += 4
		}
	}
	return img
}

func hasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64:
	default:
		return false
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// Equal reports whether two buffers have identical shape and samples.
func Equal(a, b *Buffer) bool {
	if a.Width != b.Width || a.Height != b.Height || a.Channels != b.Channels {
		return false
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			return false
		}
	}
	return true
}
