// Categorical color filters applied after adjustments, before overlays
package filter

import (
	"fmt"

	"artify/internal/raster"
)

// Kind identifies a categorical filter. At most one filter is active per
// edit; KindNone is the identity.
type Kind int

const (
	KindNone Kind = iota
	KindSepia
	KindGrayscale
	KindColorize
	KindInvert
	KindSolarize
	KindPosterize
)

var kindNames = map[Kind]string{
	KindNone:      "none",
	KindSepia:     "sepia",
	KindGrayscale: "grayscale",
	KindColorize:  "colorize",
	KindInvert:    "invert",
	KindSolarize:  "solarize",
	KindPosterize: "posterize",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("filter(%d)", int(k))
}

// Tint is the hue color for KindColorize.
type Tint struct {
	R, G, B uint8
}

// Selection describes the single active filter and its parameters.
type Selection struct {
	Kind Kind

	// Colorize only: tint color and blend strength in [0, 1].
	Tint     Tint
	Strength float64

	// Solarize only: inversion threshold in [0, 255].
	Threshold int

	// Posterize only: bits kept per channel in [1, 8].
	Bits int
}

// Validate rejects out-of-range filter parameters.
func (s Selection) Validate() error {
	if _, ok := kindNames[s.Kind]; !ok {
		return fmt.Errorf("unknown filter kind %d", int(s.Kind))
	}
	switch s.Kind {
	case KindColorize:
		if s.Strength < 0 || s.Strength > 1 {
			return fmt.Errorf("colorize strength=%g out of range [0, 1]", s.Strength)
		}
	case KindSolarize:
		if s.Threshold < 0 || s.Threshold > 255 {
			return fmt.Errorf("solarize threshold=%d out of range [0, 255]", s.Threshold)
		}
	case KindPosterize:
		if s.Bits < 1 || s.Bits > 8 {
			return fmt.Errorf("posterize bits=%d out of range [1, 8]", s.Bits)
		}
	}
	return nil
}

// Apply runs the selected filter on buf. KindNone returns buf unchanged;
// otherwise the result is a new buffer of the same shape.
func Apply(buf *raster.Buffer, sel Selection) (*raster.Buffer, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if sel.Kind == KindNone {
		return buf, nil
	}

	out := buf.Clone()
	switch sel.Kind {
	case KindSepia:
		applySepia(out)
	case KindGrayscale:
		applyGrayscale(out)
	case KindColorize:
		applyColorize(out, sel.Tint, sel.Strength)
	case KindInvert:
		applyInvert(out)
	case KindSolarize:
		applySolarize(out, sel.Threshold)
	case KindPosterize:
		applyPosterize(out, sel.Bits)
	}
	return out, nil
}

func clamp(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// applySepia uses the conventional sepia color matrix.
func applySepia(buf *raster.Buffer) {
	n := len(buf.Pix)
	for i := 0; i < n; i += buf.Channels {
		r := float64(buf.Pix[i+0])
		g := float64(buf.Pix[i+1])
		b := float64(buf.Pix[i+2])
		buf.Pix[i+0] = clamp(0.393*r + 0.769*g + 0.189*b)
		buf.Pix[i+1] = clamp(0.349*r + 0.686*g + 0.168*b)
		buf.Pix[i+2] = clamp(0.272*r + 0.534*g + 0.131*b)
	}
}

// applyGrayscale collapses channels with Rec. 601 luminance weights.
func applyGrayscale(buf *raster.Buffer) {
	n := len(buf.Pix)
	for i := 0; i < n; i += buf.Channels {
		lum := clamp(0.299*float64(buf.Pix[i+0]) +
			0.587*float64(buf.Pix[i+1]) +
			0.114*float64(buf.Pix[i+2]))
		buf.Pix[i+0] = lum
		buf.Pix[i+1] = lum
		buf.Pix[i+2] = lum
	}
}

// applyColorize blends a solid tint over the image at the given strength.
func applyColorize(buf *raster.Buffer, tint Tint, strength float64) {
	n := len(buf.Pix)
	for i := 0; i < n; i += buf.Channels {
		buf.Pix[i+0] = clamp(float64(buf.Pix[i+0])*(1-strength) + float64(tint.R)*strength)
		buf.Pix[i+1] = clamp(float64(buf.Pix[i+1])*(1-strength) + float64(tint.G)*strength)
		buf.Pix[i+2] = clamp(float64(buf.Pix[i+2])*(1-strength) + float64(tint.B)*strength)
	}
}

func applyInvert(buf *raster.Buffer) {
	n := len(buf.Pix)
	for i := 0; i < n; i += buf.Channels {
		buf.Pix[i+0] = 255 - buf.Pix[i+0]
		buf.Pix[i+1] = 255 - buf.Pix[i+1]
		buf.Pix[i+2] = 255 - buf.Pix[i+2]
	}
}

// applySolarize inverts every sample at or above the threshold.
func applySolarize(buf *raster.Buffer, threshold int) {
	t := uint8(threshold)
	n := len(buf.Pix)
	for i := 0; i < n; i += buf.Channels {
		for c := 0; c < 3; c++ {
			if buf.Pix[i+c] >= t {
				buf.Pix[i+c] = 255 - buf.Pix[i+c]
			}
		}
	}
}

// applyPosterize keeps the top bits of each channel.
func applyPosterize(buf *raster.Buffer, bits int) {
	mask := uint8(0xff << (8 - bits))
	n := len(buf.Pix)
	for i := 0; i < n; i += buf.Channels {
		buf.Pix[i+0] &= mask
		buf.Pix[i+1] &= mask
		buf.Pix[i+2] &= mask
	}
}
