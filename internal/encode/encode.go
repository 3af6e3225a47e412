// Export encoding for final pipeline output
package encode

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/bmp"

	"artify/internal/raster"
)

// Format is an export target format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
)

// DefaultJPEGQuality is used when Options.Quality is zero.
const DefaultJPEGQuality = 90

// UnsupportedFormatError reports an export format outside the supported set.
type UnsupportedFormatError struct {
	Format Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format: %q", string(e.Format))
}

// Options carries format-specific encoding parameters.
type Options struct {
	Quality int // JPEG only, 1-100; 0 = DefaultJPEGQuality
}

// ParseFormat normalises a user-supplied format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "bmp":
		return FormatBMP, nil
	default:
		return "", &UnsupportedFormatError{Format: Format(name)}
	}
}

// Encode serialises buf to the requested format. PNG and BMP are lossless:
// pixel samples survive a round trip byte-exact. JPEG is lossy within the
// bounds of the quality setting.
func Encode(buf *raster.Buffer, format Format, opts Options) ([]byte, error) {
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	var out bytes.Buffer
	img := buf.ToImage()
	switch format {
	case FormatJPEG:
		quality := opts.Quality
		if quality == 0 {
			quality = DefaultJPEGQuality
		}
		if quality < 1 || quality > 100 {
			return nil, fmt.Errorf("jpeg quality=%d out of range [1, 100]", quality)
		}
		if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
	case FormatPNG:
		if err := png.Encode(&out, img); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
	case FormatBMP:
		if err := bmp.Encode(&out, img); err != nil {
			return nil, fmt.Errorf("bmp encode: %w", err)
		}
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
	return out.Bytes(), nil
}
