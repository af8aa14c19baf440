package imageprocessor

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func onePixelPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 200, G: 30, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSimulatorEnhanceReencodesAsJPEG(t *testing.T) {
	sim := NewSimulator(0, zap.NewNop())

	result, err := sim.Enhance(context.Background(), onePixelPNG(t))
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 0.94, result.Confidence)
	assert.GreaterOrEqual(t, result.ProcessingTime, 0.0)

	raw, err := base64.StdEncoding.DecodeString(result.EnhancedImage)
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(raw))
	assert.NoError(t, err)
}

func TestSimulatorEnhanceWaitsForDelay(t *testing.T) {
	sim := NewSimulator(30*time.Millisecond, zap.NewNop())

	result, err := sim.Enhance(context.Background(), onePixelPNG(t))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.ProcessingTime, 0.03)
}

func TestSimulatorRejectsUndecodableBytes(t *testing.T) {
	sim := NewSimulator(0, zap.NewNop())

	_, err := sim.Enhance(context.Background(), []byte("not an image"))
	assert.Error(t, err)

	_, err = sim.GenerateContent(context.Background(), nil)
	assert.Error(t, err)
}

func TestSimulatorGenerateContentIsFixed(t *testing.T) {
	sim := NewSimulator(0, zap.NewNop())

	content, err := sim.GenerateContent(context.Background(), onePixelPNG(t))
	require.NoError(t, err)

	assert.Equal(t, "Premium Cotton Kurta Set - Traditional Ethnic Wear", content.Title)
	assert.Equal(t, "Women's Ethnic Wear", content.Category)
	assert.Equal(t, "₹1,299", content.SuggestedPrice)

	content.Title = "mutated"
	assert.NotEqual(t, "mutated", SampleContent.Title)
}

func TestSimulatorStopsWaitingWhenContextEnds(t *testing.T) {
	sim := NewSimulator(time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.GenerateContent(ctx, onePixelPNG(t))
	assert.ErrorIs(t, err, context.Canceled)
}
