package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/domain/ports/adapter"
)

var _ adapter.TextGenerator = (*NoopTextGenerator)(nil)
var _ adapter.ImageGenerator = (*NoopImageGenerator)(nil)

// NoopTextGenerator produces a deterministic placeholder story for local/dev
// runs without an API key. The output passes the content contract for the
// requested ratio.
type NoopTextGenerator struct{}

func NewNoopTextGenerator() *NoopTextGenerator { return &NoopTextGenerator{} }

func (a *NoopTextGenerator) GenerateStory(ctx context.Context, req model.StoryRequest, characters map[string]model.CharacterDetail) ([]byte, adapter.Usage, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return nil, adapter.Usage{}, ctx.Err()
	}

	var cast []string
	for name := range characters {
		cast = append(cast, name)
	}
	if cast == nil {
		cast = []string{}
	}

	type page struct {
		PageNumber        interface{} `json:"Page_number"`
		Text              string      `json:"Text"`
		ImageDescription  interface{} `json:"Image_description"`
		CharactersInScene []string    `json:"Characters_in_scene"`
	}

	title := "A Placeholder Story"
	pages := []page{{
		PageNumber:        "Title",
		Text:              title,
		ImageDescription:  "a plain cover",
		CharactersInScene: cast,
	}}
	n := req.NumPages
	if n < 1 {
		n = 2
	}
	for i := 1; i <= n; i++ {
		p := page{
			PageNumber:        i,
			Text:              fmt.Sprintf("Placeholder page %d.", i),
			CharactersInScene: cast,
		}
		if req.Ratio.WantsImage(i) {
			p.ImageDescription = fmt.Sprintf("a plain illustration for page %d", i)
		}
		pages = append(pages, p)
	}

	raw, err := json.Marshal(struct {
		Title string `json:"Title"`
		Pages []page `json:"Pages"`
	}{Title: title, Pages: pages})
	return raw, adapter.Usage{}, err
}

// NoopImageGenerator returns a tiny constant PNG-ish payload, or soft-fails
// every call when FailAll is set so degradation paths can be exercised.
type NoopImageGenerator struct {
	FailAll bool
}

func NewNoopImageGenerator() *NoopImageGenerator { return &NoopImageGenerator{} }

func (a *NoopImageGenerator) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if a.FailAll {
		return nil, nil
	}
	return &adapter.ImageResult{
		Data:          []byte("\x89PNG\r\n\x1a\nnoop"),
		RevisedPrompt: req.Prompt,
		GenerationID:  "noop",
	}, nil
}
