package adjust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artify/internal/raster"
)

func gradientBuffer(t *testing.T, w, h int) *raster.Buffer {
	t.Helper()
	buf, err := raster.New(w, h, raster.RGB)
	require.NoError(t, err)
	for i := range buf.Pix {
		buf.Pix[i] = uint8((i * 7) % 256)
	}
	return buf
}

func TestApply_NeutralIsIdentity(t *testing.T) {
	buf := gradientBuffer(t, 16, 16)
	out, err := Apply(buf, Params{})
	require.NoError(t, err)
	assert.True(t, raster.Equal(buf, out), "neutral params must not change any sample")
}

func TestValidate_Bounds(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"neutral", Params{}, false},
		{"at extremes", Params{Brightness: 100, Contrast: -100, Sharpness: 200, Hue: -180}, false},
		{"brightness over", Params{Brightness: 101}, true},
		{"contrast under", Params{Contrast: -101}, true},
		{"sharpness negative", Params{Sharpness: -1}, true},
		{"hue over", Params{Hue: 181}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApply_RejectsOutOfRange(t *testing.T) {
	buf := gradientBuffer(t, 4, 4)
	_, err := Apply(buf, Params{Exposure: 500})
	require.Error(t, err)
}

// Extreme parameters must clamp, never wrap.
func TestApply_ClampsAtExtremes(t *testing.T) {
	extremes := []Params{
		{Brightness: 100},
		{Brightness: -100},
		{Contrast: 100},
		{Contrast: -100},
		{Exposure: 100, Brightness: 100},
		{Sharpness: 200},
		{Temperature: 100},
		{Temperature: -100},
		{Gamma: -100},
	}
	buf := gradientBuffer(t, 12, 12)
	for _, p := range extremes {
		out, err := Apply(buf, p)
		require.NoError(t, err)
		require.Equal(t, len(buf.Pix), len(out.Pix))
	}

	// Brightness at +100 doubles samples; a bright pixel must pin at 255.
	bright, err := raster.New(2, 2, raster.RGB)
	require.NoError(t, err)
	for i := range bright.Pix {
		bright.Pix[i] = 200
	}
	out, err := Apply(bright, Params{Brightness: 100})
	require.NoError(t, err)
	for _, s := range out.Pix {
		assert.Equal(t, uint8(255), s)
	}

	dark := bright.Clone()
	out, err = Apply(dark, Params{Brightness: -100})
	require.NoError(t, err)
	for _, s := range out.Pix {
		assert.Equal(t, uint8(0), s)
	}
}

func TestApply_BrightnessDirection(t *testing.T) {
	buf, err := raster.New(1, 1, raster.RGB)
	require.NoError(t, err)
	buf.Pix[0], buf.Pix[1], buf.Pix[2] = 100, 100, 100

	brighter, err := Apply(buf, Params{Brightness: 50})
	require.NoError(t, err)
	assert.Equal(t, uint8(150), brighter.Pix[0])

	darker, err := Apply(buf, Params{Brightness: -50})
	require.NoError(t, err)
	assert.Equal(t, uint8(50), darker.Pix[0])
}

func TestApply_ContrastPivotsAtMidGray(t *testing.T) {
	buf, err := raster.New(1, 1, raster.RGB)
	require.NoError(t, err)
	buf.Pix[0], buf.Pix[1], buf.Pix[2] = 128, 128, 128

	out, err := Apply(buf, Params{Contrast: 100})
	require.NoError(t, err)
	assert.Equal(t, uint8(128), out.Pix[0], "mid gray is the contrast pivot")
}

func TestApply_SaturationToGray(t *testing.T) {
	buf, err := raster.New(1, 1, raster.RGB)
	require.NoError(t, err)
	buf.Pix[0], buf.Pix[1], buf.Pix[2] = 250, 10, 10

	out, err := Apply(buf, Params{Saturation: -100})
	require.NoError(t, err)
	assert.Equal(t, out.Pix[0], out.Pix[1], "fully desaturated pixel must be gray")
	assert.Equal(t, out.Pix[1], out.Pix[2])
}

func TestApply_SharpnessIncreasesEdgeContrast(t *testing.T) {
	// Vertical edge: left half dark, right half bright.
	buf, err := raster.New(8, 8, raster.RGB)
	require.NoError(t, err)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			v := uint8(60)
			if x >= 4 {
				v = 190
			}
			i := buf.Offset(x, y)
			buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2] = v, v, v
		}
	}

	out, err := Apply(buf, Params{Sharpness: 200})
	require.NoError(t, err)
	// The sample just left of the edge darkens, just right brightens.
	left := out.Pix[out.Offset(3, 4)]
	right := out.Pix[out.Offset(4, 4)]
	assert.Less(t, left, uint8(60))
	assert.Greater(t, right, uint8(190))
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	buf := gradientBuffer(t, 8, 8)
	original := buf.Clone()
	_, err := Apply(buf, Params{Brightness: 40, Contrast: 20, Sharpness: 100})
	require.NoError(t, err)
	assert.True(t, raster.Equal(original, buf))
}
