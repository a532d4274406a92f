package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexClient calls Gemini models through Vertex AI using application default credentials.
type VertexClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex project and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("create vertex client failed: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.2),
	}
	return &VertexClient{client: client, model: model}, nil
}

func (v *VertexClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	return vertexText(resp, err)
}

func vertexText(resp *genai.GenerateContentResponse, err error) (string, error) {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return "", fmt.Errorf("%w: %v", ErrNoCompletion, blocked)
	}
	if err != nil {
		return "", fmt.Errorf("vertex generate content failed: %w", err)
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

func (v *VertexClient) Close() error {
	return v.client.Close()
}
