// Overlay compositing: frames and textures layered over the filtered image
package overlay

import (
	"strings"

	"github.com/nfnt/resize"
	"github.com/sirupsen/logrus"

	"artify/internal/raster"
)

// Layer references one overlay asset and how to place it. Layers composite
// in sequence order, later layers on top.
type Layer struct {
	AssetID string
	Opacity float64 // [0, 1]; 0 skips the layer
	X, Y    int     // top-left placement offset in pixels
	Scale   float64 // 0 or 1 keeps asset size; frames ignore placement/scale
}

// framePrefix selects a built-in solid frame instead of a library asset,
// e.g. "frame:gold".
const framePrefix = "frame:"

var frameColors = map[string][3]uint8{
	"black":    {0x00, 0x00, 0x00},
	"white":    {0xff, 0xff, 0xff},
	"gold":     {0xff, 0xd7, 0x00},
	"metallic": {0xc0, 0xc0, 0xc0},
}

// Apply composites each layer over buf in order. A layer whose opacity is 0
// or whose asset cannot be found is logged and skipped rather than failing
// the edit. The output always keeps buf's dimensions.
func Apply(buf *raster.Buffer, layers []Layer, assets *Library, logger logrus.FieldLogger) *raster.Buffer {
	if len(layers) == 0 {
		return buf
	}
	out := buf.Clone()
	for i, layer := range layers {
		if layer.Opacity <= 0 {
			logger.WithFields(logrus.Fields{"layer": i, "asset": layer.AssetID}).
				Debug("Skipping overlay with zero opacity")
			continue
		}
		opacity := layer.Opacity
		if opacity > 1 {
			opacity = 1
		}
		if strings.HasPrefix(layer.AssetID, framePrefix) {
			name := strings.TrimPrefix(layer.AssetID, framePrefix)
			color, ok := frameColors[name]
			if !ok {
				logger.WithFields(logrus.Fields{"layer": i, "asset": layer.AssetID}).
					Warn("Unknown frame style, skipping overlay")
				continue
			}
			drawFrame(out, color, opacity)
			continue
		}

		asset, ok := assets.Get(layer.AssetID)
		if !ok {
			logger.WithFields(logrus.Fields{"layer": i, "asset": layer.AssetID}).
				Warn("Overlay asset missing, skipping layer")
			continue
		}
		if layer.Scale > 0 && layer.Scale != 1 {
			asset = rescale(asset, layer.Scale)
		}
		compositeOver(out, asset, layer.X, layer.Y, opacity)
	}
	return out
}

// drawFrame paints a solid border sized at 2.5% of the short edge,
// matching the proportions of the original frame presets.
func drawFrame(dst *raster.Buffer, color [3]uint8, opacity float64) {
	width := dst.Width / 40
	if dst.Height/40 < width {
		width = dst.Height / 40
	}
	if width < 1 {
		width = 1
	}
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			if x >= width && x < dst.Width-width && y >= width && y < dst.Height-width {
				continue
			}
			blendPixel(dst, x, y, color[0], color[1], color[2], opacity)
		}
	}
}

// compositeOver alpha-blends src onto dst at (ox, oy), clipping to dst.
func compositeOver(dst, src *raster.Buffer, ox, oy int, opacity float64) {
	for sy := 0; sy < src.Height; sy++ {
		dy := oy + sy
		if dy < 0 || dy >= dst.Height {
			continue
		}
		for sx := 0; sx < src.Width; sx++ {
			dx := ox + sx
			if dx < 0 || dx >= dst.Width {
				continue
			}
			si := src.Offset(sx, sy)
			alpha := opacity
			if src.Channels == raster.RGBA {
				alpha *= float64(src.Pix[si+3]) / 255
			}
			if alpha <= 0 {
				continue
			}
			blendPixel(dst, dx, dy, src.Pix[si+0], src.Pix[si+1], src.Pix[si+2], alpha)
		}
	}
}

func blendPixel(dst *raster.Buffer, x, y int, r, g, b uint8, alpha float64) {
	di := dst.Offset(x, y)
	inv := 1 - alpha
	dst.Pix[di+0] = uint8(float64(r)*alpha + float64(dst.Pix[di+0])*inv + 0.5)
	dst.Pix[di+1] = uint8(float64(g)*alpha + float64(dst.Pix[di+1])*inv + 0.5)
	dst.Pix[di+2] = uint8(float64(b)*alpha + float64(dst.Pix[di+2])*inv + 0.5)
}

func rescale(src *raster.Buffer, scale float64) *raster.Buffer {
	w := int(float64(src.Width)*scale + 0.5)
	h := int(float64(src.Height)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	img := resize.Resize(uint(w), uint(h), src.ToImage(), resize.Bilinear)
	out, err := raster.FromImage(img)
	if err != nil {
		return src
	}
	return out
}
