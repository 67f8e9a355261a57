package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"storybook-pipeline/internal/domain/model"
	"storybook-pipeline/internal/domain/ports/adapter"
	"storybook-pipeline/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.TextGenerator = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.TextGenerator using Chat Completions with a
// JSON response format, so the raw output is always a single JSON document.
type OpenAIAdapter struct {
	client openai.Client
	model  string
	enc    *tiktoken.Tiktoken
}

func NewOpenAIAdapter(apiKey, model string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	// Token counts in the API response are authoritative; the local encoder
	// only pre-estimates prompt size for logging before the call goes out.
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("tiktoken: %w", err)
	}
	return &OpenAIAdapter{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		enc:    enc,
	}, nil
}

func (o *OpenAIAdapter) GenerateStory(ctx context.Context, req model.StoryRequest, characters map[string]model.CharacterDetail) ([]byte, adapter.Usage, error) {
	system := storySystemPrompt(req.Ratio)
	user := storyUserPrompt(req, characters)

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveGenerationCall("openai", o.model, o.EstimateTokens(system+user), 0, 0, latency, false)
		return nil, adapter.Usage{}, fmt.Errorf("openai chat: %w", err)
	}

	usage := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	metrics.ObserveGenerationCall("openai", o.model,
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, latency, true)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, usage, errors.New("openai chat: no choice content")
	}
	return []byte(resp.Choices[0].Message.Content), usage, nil
}

// EstimateTokens counts tokens the way cl100k-family models tokenize.
func (o *OpenAIAdapter) EstimateTokens(text string) int {
	return len(o.enc.Encode(text, nil, nil))
}

func storySystemPrompt(ratio model.WordToPictureRatio) string {
	var b strings.Builder
	b.WriteString(`You are a children's storybook author. Respond with a single JSON object:
{
  "Title": "<story title>",
  "Pages": [
    {"Page_number": "Title", "Text": "<story title>", "Image_description": "<cover illustration>", "Characters_in_scene": ["<name>", ...]},
    {"Page_number": 1, "Text": "<page text>", "Image_description": "<illustration>" or null, "Characters_in_scene": ["<name>", ...]},
    ...
  ]
}
The first page is always the cover with Page_number "Title". Content pages are numbered from 1.
`)
	if ratio == model.RatioPerTwoPages {
		b.WriteString("Only even-numbered content pages get an Image_description; odd-numbered pages must have Image_description null.\n")
	} else {
		b.WriteString("Every content page gets an Image_description.\n")
	}
	return b.String()
}

func storyUserPrompt(req model.StoryRequest, characters map[string]model.CharacterDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a story of %d content pages about: %s\n", req.NumPages, req.Prompt)
	if req.Style != "" {
		fmt.Fprintf(&b, "Illustration style: %s\n", req.Style)
	}
	if req.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.Language)
	}
	if len(characters) > 0 {
		b.WriteString("Characters to feature:\n")
		for _, c := range characters {
			fmt.Fprintf(&b, "- %s", c.Name)
			var traits []string
			if c.Age != "" {
				traits = append(traits, "age "+c.Age)
			}
			if c.Gender != "" {
				traits = append(traits, c.Gender)
			}
			if c.PhysicalDescription != "" {
				traits = append(traits, c.PhysicalDescription)
			}
			if c.Clothing != "" {
				traits = append(traits, "wearing "+c.Clothing)
			}
			if c.KeyTraits != "" {
				traits = append(traits, c.KeyTraits)
			}
			if c.Background != "" {
				traits = append(traits, c.Background)
			}
			if len(traits) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(traits, "; "))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
