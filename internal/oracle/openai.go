package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/anime-shed/palm-oracle-go/internal/errors"
	"github.com/anime-shed/palm-oracle-go/internal/imagedata"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures a provider for any OpenAI-compatible chat endpoint
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type openAIOracle struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a provider that sends the image as a data URL part
func NewOpenAI(cfg OpenAIConfig) (Oracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &openAIOracle{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

func (o *openAIOracle) Name() string {
	return "openai"
}

func (o *openAIOracle) Divine(ctx context.Context, req Request) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	message := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: imagedata.Encode(req.Data, req.MediaType),
				},
			},
			{
				Type: openai.ChatMessagePartTypeText,
				Text: req.Prompt,
			},
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: []openai.ChatCompletionMessage{message},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.HTTPStatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return "", apperrors.NewUnauthorizedError("openai credentials rejected", err)
			}
		}
		return "", classify(o.Name(), err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
