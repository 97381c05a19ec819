package classify

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// Request is one model call.
type Request struct {
	SystemPrompt string
	UserMessage  string
	Schema       map[string]any
}

// Generator sends a request to a language model and returns its raw text.
// It enables test doubles for the model.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeminiGenerator implements Generator with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini client for model.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("NewGeminiGenerator: GEMINI_API_KEY não configurada")
	}
	if model == "" {
		model = DefaultModelName
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate asks for a JSON response constrained by req.Schema.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: req.Schema,
		Temperature:        genai.Ptr[float32](0),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.UserMessage), cfg)
	if err != nil {
		return "", fmt.Errorf("GeminiGenerator.Generate: generate content: %w", err)
	}
	return resp.Text(), nil
}
