package oracle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini API provider
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // overrides the public endpoint, used by tests and proxies
	Timeout time.Duration
}

type geminiOracle struct {
	client *genai.Client
	model  string
}

// NewGemini creates a provider backed by the Gemini API SDK
func NewGemini(ctx context.Context, cfg GeminiConfig) (Oracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	return &geminiOracle{client: client, model: cfg.Model}, nil
}

func (g *geminiOracle) Name() string {
	return "gemini"
}

func (g *geminiOracle) Divine(ctx context.Context, req Request) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Data, req.MediaType),
		genai.NewPartFromText(req.Prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", classify(g.Name(), err)
	}
	return resp.Text(), nil
}
