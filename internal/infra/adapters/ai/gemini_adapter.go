package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"storybook-pipeline/internal/domain/ports/adapter"
	"storybook-pipeline/internal/infra/metrics"
)

var _ adapter.ImageGenerator = (*GeminiAdapter)(nil)

// GeminiAdapter implements adapter.ImageGenerator using the official SDK.
// Reference images ride along as inline parts so the model keeps characters
// visually consistent across pages.
type GeminiAdapter struct {
	client *genai.Client
	model  string
}

func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, model string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if model == "" {
		model = "gemini-2.0-flash-preview-image-generation"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, model: model}, nil
}

func (g *GeminiAdapter) Generate(ctx context.Context, req adapter.ImageRequest) (*adapter.ImageResult, error) {
	prompt := req.Prompt
	if req.Style != "" {
		prompt = fmt.Sprintf("%s\n\nStyle: %s", prompt, req.Style)
	}

	parts := []*genai.Part{{Text: prompt}}
	for _, ref := range req.ReferenceImages {
		if len(ref) == 0 {
			continue
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "image/png", Data: ref},
		})
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveGenerationCall("gemini", g.model, 0, 0, 0, latency, false)
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	in, out, total := usageCounts(resp)
	metrics.ObserveGenerationCall("gemini", g.model, in, out, total, latency, true)

	// The model may answer with text only (a refusal or a clarification).
	// That is a soft failure: no image, no error, caller may retry.
	result := &adapter.ImageResult{GenerationID: resp.ResponseID}
	var commentary []string
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				result.Data = p.InlineData.Data
			} else if p.Text != "" {
				commentary = append(commentary, p.Text)
			}
		}
	}
	if len(result.Data) == 0 {
		return nil, nil
	}
	result.RevisedPrompt = strings.TrimSpace(strings.Join(commentary, " "))
	return result, nil
}

func usageCounts(resp *genai.GenerateContentResponse) (in, out, total int) {
	if resp == nil || resp.UsageMetadata == nil {
		return 0, 0, 0
	}
	u := resp.UsageMetadata
	return int(u.PromptTokenCount), int(u.CandidatesTokenCount), int(u.TotalTokenCount)
}
