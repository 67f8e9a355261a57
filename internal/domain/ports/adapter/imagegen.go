package adapter

import "context"

// ImageRequest asks for one illustration. ReferenceImages carries the raw
// bytes of character reference images that should influence the result.
type ImageRequest struct {
	Prompt          string
	Style           string
	ReferenceImages [][]byte
}

// ImageResult is a produced image plus provider provenance.
type ImageResult struct {
	Data          []byte
	RevisedPrompt string
	GenerationID  string
}

// ImageGenerator is the port for the illustration service.
type ImageGenerator interface {
	// Generate returns a nil result with a nil error when the provider
	// answered but produced no image. That soft failure is what the retry
	// policy retries; a non-nil error is not retried here.
	Generate(ctx context.Context, req ImageRequest) (*ImageResult, error)
}
