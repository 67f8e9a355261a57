package ai

import (
	"context"

	"storybook-pipeline/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ImageGenerator = (*limitedImageGen)(nil)

type limitedImageGen struct {
	inner adapter.ImageGenerator
	sem   chan struct{}
}

// NewLimitedImageGenerator caps in-flight provider calls. Page images fan out
// per run, so without a cap a handful of concurrent runs can blow through the
// provider's rate limit.
func NewLimitedImageGenerator(inner adapter.ImageGenerator, maxConcurrent int) adapter.ImageGenerator {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedImageGen{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedImageGen) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Generate(ctx, req)
}
