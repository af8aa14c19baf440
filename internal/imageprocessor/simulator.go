package imageprocessor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultDelay is the simulated inference latency.
	DefaultDelay = 2 * time.Second

	simulatedConfidence = 0.94
	statusSuccess       = "success"
	jpegQuality         = 90
)

// SampleContent is the listing copy returned for every image.
var SampleContent = GeneratedContent{
	Title:          "Premium Cotton Kurta Set - Traditional Ethnic Wear",
	Description:    "Elegant and comfortable cotton kurta set perfect for festive occasions. Features intricate embroidery work, premium quality fabric, and traditional design. Available in multiple sizes with matching dupatta. Ideal for festivals, parties, and cultural events.",
	Keywords:       "cotton kurta, ethnic wear, traditional dress, festival wear, embroidered kurta, Indian clothing",
	Category:       "Women's Ethnic Wear",
	SuggestedPrice: "₹1,299",
}

// Simulator stands in for a real inference backend. It decodes the image,
// waits for a fixed delay and returns canned results.
type Simulator struct {
	delay  time.Duration
	logger *zap.Logger
}

// NewSimulator builds a Simulator that pauses for delay on every call.
func NewSimulator(delay time.Duration, logger *zap.Logger) *Simulator {
	if delay < 0 {
		delay = 0
	}
	return &Simulator{delay: delay, logger: logger.Named("simulator")}
}

// Enhance re-encodes the image as base64 JPEG. No pixels are changed.
func (s *Simulator) Enhance(ctx context.Context, imageBytes []byte) (*EnhancementResult, error) {
	start := time.Now()

	img, format, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	s.logger.Debug("image enhanced",
		zap.String("format", format),
		zap.Int("input_bytes", len(imageBytes)),
		zap.Int("output_bytes", buf.Len()),
		zap.Duration("elapsed", elapsed))

	return &EnhancementResult{
		EnhancedImage:  encoded,
		ProcessingTime: elapsed.Seconds(),
		Confidence:     simulatedConfidence,
		Status:         statusSuccess,
	}, nil
}

// GenerateContent returns SampleContent for any decodable image.
func (s *Simulator) GenerateContent(ctx context.Context, imageBytes []byte) (*GeneratedContent, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(imageBytes)); err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	content := SampleContent
	return &content, nil
}

func (s *Simulator) wait(ctx context.Context) error {
	if s.delay == 0 {
		return nil
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
