package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// AnthropicClient implements Client using the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates a client that reads ANTHROPIC_API_KEY from
// the environment.
func NewAnthropicClient() *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(),
	}
}

// NewAnthropicClientWithKey creates a client with an explicit API key.
func NewAnthropicClientWithKey(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Invoke sends a text or multimodal completion request.
func (c *AnthropicClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewTextBlock(req.Prompt),
	}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		encoded := base64.StdEncoding.EncodeToString(req.Image)
		blocks = append(blocks, anthropic.NewImageBlockBase64(mime, encoded))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &ProviderError{Provider: "anthropic", Err: err}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, &ProviderError{Provider: "anthropic", Err: fmt.Errorf("empty response")}
	}
	return &Response{Text: text}, nil
}
