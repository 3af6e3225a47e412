package style

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, id := range All() {
		got, err := Parse(string(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
	_, err := Parse("picasso")
	assert.Error(t, err)
}

func TestLetterbox_Square(t *testing.T) {
	box := Letterbox(512, 512, 256)
	assert.Equal(t, Box{FitW: 256, FitH: 256}, box)
}

func TestLetterbox_Landscape(t *testing.T) {
	box := Letterbox(512, 256, 256)
	assert.Equal(t, 256, box.FitW)
	assert.Equal(t, 128, box.FitH)
	assert.Equal(t, 64, box.PadTop)
	assert.Equal(t, 64, box.PadBottom)
	assert.Zero(t, box.PadLeft)
	assert.Equal(t, 256, box.FitH+box.PadTop+box.PadBottom)
}

func TestLetterbox_Portrait(t *testing.T) {
	box := Letterbox(300, 900, 256)
	assert.Equal(t, 256, box.FitH)
	assert.Equal(t, 85, box.FitW)
	assert.Equal(t, 256, box.FitW+box.PadLeft+box.PadRight)
	// Uneven padding splits with the extra pixel on the trailing edge.
	assert.Equal(t, box.PadRight, box.PadLeft+1)
}

func TestLetterbox_ExtremeAspect(t *testing.T) {
	box := Letterbox(10000, 10, 256)
	assert.GreaterOrEqual(t, box.FitH, 1, "fit height never collapses to zero")
	assert.Equal(t, 256, box.FitH+box.PadTop+box.PadBottom)
}

func TestErrors_Unwrap(t *testing.T) {
	inner := assert.AnError
	mu := &ModelUnavailableError{Style: Monet, Path: "models/monet.onnx", Err: inner}
	assert.ErrorIs(t, mu, inner)
	assert.Contains(t, mu.Error(), "monet")

	inf := &InferenceError{Style: Ukiyoe, Err: inner}
	assert.ErrorIs(t, inf, inner)
	assert.Contains(t, inf.Error(), "ukiyoe")
}
