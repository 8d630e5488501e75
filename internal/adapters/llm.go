package adapters

import (
	"context"

	genai "google.golang.org/genai"
)

// LlmAdapter owns the Gemini client. The API key is read from the
// environment by the genai client itself (GEMINI_API_KEY).
type LlmAdapter struct {
	Client *genai.Client
	Model  string
}

func NewLlmAdapter(ctx context.Context, model string) (*LlmAdapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &LlmAdapter{Client: client, Model: model}, nil
}
