package adapter

import (
	"context"

	"storybook-pipeline/internal/domain/model"
)

// Usage for a single generation call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// TextGenerator is the port for the story text service.
type TextGenerator interface {
	// GenerateStory produces the raw story JSON for the request, with the
	// supplied character map substituted into the prompt. The output is
	// untrusted: callers must run it through the content contract before
	// using it.
	GenerateStory(ctx context.Context, req model.StoryRequest, characters map[string]model.CharacterDetail) ([]byte, Usage, error)
}
