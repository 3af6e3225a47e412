package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artify/internal/raster"
)

func testBuffer(t *testing.T) *raster.Buffer {
	t.Helper()
	buf, err := raster.New(8, 8, raster.RGB)
	require.NoError(t, err)
	for i := range buf.Pix {
		buf.Pix[i] = uint8((i * 13) % 256)
	}
	return buf
}

func TestApply_NoneIsIdentity(t *testing.T) {
	buf := testBuffer(t)
	out, err := Apply(buf, Selection{Kind: KindNone})
	require.NoError(t, err)
	assert.True(t, raster.Equal(buf, out))
}

func TestApply_GrayscaleCollapsesChannels(t *testing.T) {
	buf := testBuffer(t)
	out, err := Apply(buf, Selection{Kind: KindGrayscale})
	require.NoError(t, err)
	for i := 0; i < len(out.Pix); i += out.Channels {
		assert.Equal(t, out.Pix[i], out.Pix[i+1])
		assert.Equal(t, out.Pix[i+1], out.Pix[i+2])
	}
}

// Sepia then grayscale must differ from grayscale then sepia: the stage
// order is fixed precisely because filters do not commute.
func TestApply_SepiaGrayscaleDoNotCommute(t *testing.T) {
	buf := testBuffer(t)

	sepiaFirst, err := Apply(buf, Selection{Kind: KindSepia})
	require.NoError(t, err)
	sepiaFirst, err = Apply(sepiaFirst, Selection{Kind: KindGrayscale})
	require.NoError(t, err)

	grayFirst, err := Apply(buf, Selection{Kind: KindGrayscale})
	require.NoError(t, err)
	grayFirst, err = Apply(grayFirst, Selection{Kind: KindSepia})
	require.NoError(t, err)

	assert.False(t, raster.Equal(sepiaFirst, grayFirst))
}

// Filter quantization rounds to nearest, the same way the adjustment
// stage does, so chaining the two never drifts by a truncation bias.
func TestApply_SepiaRoundsToNearest(t *testing.T) {
	buf, err := raster.New(1, 1, raster.RGB)
	require.NoError(t, err)
	buf.Pix = []uint8{10, 20, 30}

	out, err := Apply(buf, Selection{Kind: KindSepia})
	require.NoError(t, err)
	// 0.393*10 + 0.769*20 + 0.189*30 = 24.98: nearest is 25, not 24.
	assert.Equal(t, uint8(25), out.Pix[0])
	assert.Equal(t, uint8(22), out.Pix[1])
	assert.Equal(t, uint8(17), out.Pix[2])
}

func TestApply_InvertIsInvolution(t *testing.T) {
	buf := testBuffer(t)
	once, err := Apply(buf, Selection{Kind: KindInvert})
	require.NoError(t, err)
	assert.False(t, raster.Equal(buf, once))

	twice, err := Apply(once, Selection{Kind: KindInvert})
	require.NoError(t, err)
	assert.True(t, raster.Equal(buf, twice))
}

func TestApply_ColorizeStrength(t *testing.T) {
	buf := testBuffer(t)
	tint := Tint{R: 255, G: 0, B: 0}

	full, err := Apply(buf, Selection{Kind: KindColorize, Tint: tint, Strength: 1})
	require.NoError(t, err)
	for i := 0; i < len(full.Pix); i += full.Channels {
		assert.Equal(t, uint8(255), full.Pix[i])
		assert.Equal(t, uint8(0), full.Pix[i+1])
	}

	none, err := Apply(buf, Selection{Kind: KindColorize, Tint: tint, Strength: 0})
	require.NoError(t, err)
	assert.True(t, raster.Equal(buf, none))
}

func TestApply_SolarizeThreshold(t *testing.T) {
	buf, err := raster.New(2, 1, raster.RGB)
	require.NoError(t, err)
	buf.Pix = []uint8{100, 100, 100, 200, 200, 200}

	out, err := Apply(buf, Selection{Kind: KindSolarize, Threshold: 128})
	require.NoError(t, err)
	assert.Equal(t, uint8(100), out.Pix[0], "below threshold untouched")
	assert.Equal(t, uint8(55), out.Pix[3], "at or above threshold inverted")
}

func TestApply_PosterizeReducesLevels(t *testing.T) {
	buf := testBuffer(t)
	out, err := Apply(buf, Selection{Kind: KindPosterize, Bits: 2})
	require.NoError(t, err)
	for _, s := range out.Pix {
		assert.Zero(t, s&0x3f, "only the top 2 bits may survive")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sel     Selection
		wantErr bool
	}{
		{"none", Selection{}, false},
		{"colorize ok", Selection{Kind: KindColorize, Strength: 0.5}, false},
		{"colorize strength over", Selection{Kind: KindColorize, Strength: 1.5}, true},
		{"solarize threshold over", Selection{Kind: KindSolarize, Threshold: 300}, true},
		{"posterize zero bits", Selection{Kind: KindPosterize, Bits: 0}, true},
		{"unknown kind", Selection{Kind: Kind(99)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sel.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	buf := testBuffer(t)
	original := buf.Clone()
	_, err := Apply(buf, Selection{Kind: KindSepia})
	require.NoError(t, err)
	assert.True(t, raster.Equal(original, buf))
}
