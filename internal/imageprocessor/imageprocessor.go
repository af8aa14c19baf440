package imageprocessor

import "context"

// EnhancementResult is the outcome of a background-removal pass.
type EnhancementResult struct {
	EnhancedImage  string  `json:"enhanced_image"`
	ProcessingTime float64 `json:"processing_time"`
	Confidence     float64 `json:"confidence"`
	Status         string  `json:"status"`
}

// GeneratedContent is the product listing copy produced for an image.
type GeneratedContent struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Keywords       string `json:"keywords"`
	Category       string `json:"category"`
	SuggestedPrice string `json:"suggested_price"`
}

// Enhancer removes the background from product photos.
type Enhancer interface {
	Enhance(ctx context.Context, imageBytes []byte) (*EnhancementResult, error)
}

// ContentGenerator writes listing copy for product photos.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, imageBytes []byte) (*GeneratedContent, error)
}
