package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI calls any OpenAI-compatible chat completions endpoint.
// Groq is served through this client with its own base URL.
type OpenAI struct {
	name   string
	model  string
	client openai.Client
}

// NewOpenAI creates a chat completions client. An empty baseURL uses OpenAI.
func NewOpenAI(name, apiKey, baseURL, model string) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		name:   name,
		model:  model,
		client: openai.NewClient(opts...),
	}
}

// Complete sends the prompt as a single user message.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (*Response, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("%s api: %w", o.name, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s api: empty choices", o.name)
	}

	return &Response{
		Content:    strings.TrimSpace(completion.Choices[0].Message.Content),
		Provider:   o.name,
		TokensUsed: int(completion.Usage.TotalTokens),
	}, nil
}
