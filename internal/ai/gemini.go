package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient calls the Gemini API with an API key.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}
	return &GeminiClient{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	return geminiText(resp, err)
}

// geminiText treats a blocked prompt or candidate like an empty answer.
func geminiText(resp *genai.GenerateContentResponse, err error) (string, error) {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return "", fmt.Errorf("%w: %v", ErrNoCompletion, blocked)
	}
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoCompletion
	}

	var out strings.Builder
	found := false
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
			found = true
		}
	}
	if !found {
		return "", ErrNoCompletion
	}
	return out.String(), nil
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}
