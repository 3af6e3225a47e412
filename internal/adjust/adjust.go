// Continuous image adjustments applied between style transfer and filters
package adjust

import (
	"fmt"
	"math"

	"artify/internal/raster"
)

// Params holds the continuous adjustment controls. The zero value of every
// field is neutral, so an empty Params is the identity transform.
//
// Adjustments do not commute; Apply runs them in a fixed order:
// exposure, gamma, brightness, contrast, saturation, hue, temperature,
// sharpness.
type Params struct {
	Exposure    float64 // [-100, 100]
	Gamma       float64 // [-100, 100]
	Brightness  float64 // [-100, 100]
	Contrast    float64 // [-100, 100]
	Saturation  float64 // [-100, 100]
	Hue         float64 // [-180, 180] degrees
	Temperature float64 // [-100, 100]
	Sharpness   float64 // [0, 200]
}

type bound struct {
	name     string
	value    float64
	min, max float64
}

// Validate rejects out-of-range values before any stage runs.
func (p Params) Validate() error {
	for _, b := range []bound{
		{"exposure", p.Exposure, -100, 100},
		{"gamma", p.Gamma, -100, 100},
		{"brightness", p.Brightness, -100, 100},
		{"contrast", p.Contrast, -100, 100},
		{"saturation", p.Saturation, -100, 100},
		{"hue", p.Hue, -180, 180},
		{"temperature", p.Temperature, -100, 100},
		{"sharpness", p.Sharpness, 0, 200},
	} {
		if b.value < b.min || b.value > b.max {
			return fmt.Errorf("%s=%g out of range [%g, %g]", b.name, b.value, b.min, b.max)
		}
	}
	return nil
}

// IsNeutral reports whether Apply would be the identity.
func (p Params) IsNeutral() bool {
	return p == Params{}
}

// Apply runs the adjustment chain on buf. A neutral Params returns buf
// unchanged; otherwise the result is a new buffer.
func Apply(buf *raster.Buffer, p Params) (*raster.Buffer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.IsNeutral() {
		return buf, nil
	}

	out := buf.Clone()
	if p.Exposure != 0 {
		scaleChannels(out, 1+p.Exposure/100)
	}
	if p.Gamma != 0 {
		applyGamma(out, 1+p.Gamma/100)
	}
	if p.Brightness != 0 {
		scaleChannels(out, 1+p.Brightness/100)
	}
	if p.Contrast != 0 {
		applyContrast(out, 1+p.Contrast/100)
	}
	if p.Saturation != 0 {
		applySaturation(out, 1+p.Saturation/100)
	}
	if p.Hue != 0 {
		applyHueShift(out, p.Hue)
	}
	if p.Temperature != 0 {
		applyTemperature(out, p.Temperature)
	}
	if p.Sharpness != 0 {
		out = applySharpness(out, p.Sharpness/100)
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

// forEachPixel visits the color samples of every pixel, skipping alpha.
func forEachPixel(buf *raster.Buffer, fn func(r, g, b float64) (float64, float64, float64)) {
	n := len(buf.Pix)
	for i := 0; i < n; i += buf.Channels {
		r, g, b := fn(float64(buf.Pix[i]), float64(buf.Pix[i+1]), float64(buf.Pix[i+2]))
		buf.Pix[i+0] = clamp(r)
		buf.Pix[i+1] = clamp(g)
		buf.Pix[i+2] = clamp(b)
	}
}

// scaleChannels multiplies every color sample by factor. Used by both
// exposure and brightness, which differ only in their position in the chain.
func scaleChannels(buf *raster.Buffer, factor float64) {
	forEachPixel(buf, func(r, g, b float64) (float64, float64, float64) {
		return r * factor, g * factor, b * factor
	})
}

func applyGamma(buf *raster.Buffer, gamma float64) {
	if gamma < 0.1 {
		gamma = 0.1
	}
	inv := 1 / gamma
	var lut [256]uint8
	for i := range lut {
		lut[i] = clamp(255 * math.Pow(float64(i)/255, inv))
	}
	n := len(buf.Pix)
	for i := 0; i < n; i += buf.Channels {
		buf.Pix[i+0] = lut[buf.Pix[i+0]]
		buf.Pix[i+1] = lut[buf.Pix[i+1]]
		buf.Pix[i+2] = lut[buf.Pix[i+2]]
	}
}

func applyContrast(buf *raster.Buffer, factor float64) {
	forEachPixel(buf, func(r, g, b float64) (float64, float64, float64) {
		return (r-128)*factor + 128, (g-128)*factor + 128, (b-128)*factor + 128
	})
}

// applySaturation blends each pixel with its luminance (Rec. 601 weights).
func applySaturation(buf *raster.Buffer, factor float64) {
	forEachPixel(buf, func(r, g, b float64) (float64, float64, float64) {
		lum := 0.299*r + 0.587*g + 0.114*b
		return lum + (r-lum)*factor, lum + (g-lum)*factor, lum + (b-lum)*factor
	})
}

func applyHueShift(buf *raster.Buffer, degrees float64) {
	forEachPixel(buf, func(r, g, b float64) (float64, float64, float64) {
		h, s, v := rgbToHSV(r, g, b)
		h = math.Mod(h+degrees+360, 360)
		return hsvToRGB(h, s, v)
	})
}

// applyTemperature warms (positive) or cools (negative) by shifting the red
// and blue channels in opposite directions.
func applyTemperature(buf *raster.Buffer, shift float64) {
	forEachPixel(buf, func(r, g, b float64) (float64, float64, float64) {
		return r + shift, g, b - shift
	})
}

// applySharpness is an unsharp mask: out = src + amount*(src - box3(src)).
// amount 0 is identity; 2 (sharpness=200) doubles the high-frequency band.
func applySharpness(buf *raster.Buffer, amount float64) *raster.Buffer {
	blurred := box3(buf)
	out := buf.Clone()
	n := len(buf.Pix)
	for i := 0; i < n; i += buf.Channels {
		for c := 0; c < 3; c++ {
			src := float64(buf.Pix[i+c])
			out.Pix[i+c] = clamp(src + amount*(src-float64(blurred.Pix[i+c])))
		}
	}
	return out
}

// box3 is a 3x3 box blur with edge replication.
func box3(buf *raster.Buffer) *raster.Buffer {
	out := buf.Clone()
	w, h := buf.Width, buf.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				var sum float64
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						sx, sy := clampInt(x+dx, 0, w-1), clampInt(y+dy, 0, h-1)
						sum += float64(buf.Pix[buf.Offset(sx, sy)+c])
					}
				}
				out.Pix[out.Offset(x, y)+c] = clamp(sum / 9)
			}
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func rgbToHSV(r, g, b float64) (h, s, v float64) {
	r, g, b = r/255, g/255, b/255
	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	v = max
	d := max - min
	if max > 0 {
		s = d / max
	}
	if d == 0 {
		return 0, s, v
	}
	switch max {
	case r:
		h = 60 * math.Mod((g-b)/d, 6)
	case g:
		h = 60 * ((b-r)/d + 2)
	default:
		h = 60 * ((r-g)/d + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

func hsvToRGB(h, s, v float64) (r, g, b float64) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	var rp, gp, bp float64
	switch {
	case h < 60:
		rp, gp, bp = c, x, 0
	case h < 120:
		rp, gp, bp = x, c, 0
	case h < 180:
		rp, gp, bp = 0, c, x
	case h < 240:
		rp, gp, bp = 0, x, c
	case h < 300:
		rp, gp, bp = x, 0, c
	default:
		rp, gp, bp = c, 0, x
	}
	return (rp + m) * 255, (gp + m) * 255, (bp + m) * 255
}
