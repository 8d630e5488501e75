package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	genai "google.golang.org/genai"

	"chess_review/internal/adapters"
	"chess_review/internal/errors"
)

// LlmRepo issues text-generation calls with a per-call timeout. Output is
// always treated as untrusted input by callers.
type LlmRepo struct {
	adapter *adapters.LlmAdapter
	log     *zap.SugaredLogger
	timeout time.Duration
}

func NewLlmRepository(adapter *adapters.LlmAdapter, log *zap.SugaredLogger, timeout time.Duration) *LlmRepo {
	return &LlmRepo{adapter: adapter, log: log, timeout: timeout}
}

func (l *LlmRepo) GenerateText(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	resp, err := l.adapter.Client.Models.GenerateContent(ctx, l.adapter.Model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		l.log.Errorw("text generation call failed", "error", err)
		return "", fmt.Errorf("%w: %v", errors.ErrGeneration, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response", errors.ErrGeneration)
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// GenerateJSON asks the model for application/json and returns the raw
// message for the caller to parse and validate.
func (l *LlmRepo) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	full := prompt
	if input != nil {
		in, _ := json.MarshalIndent(input, "", "  ")
		full = prompt + "\n\n[INPUT JSON]\n" + string(in)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	resp, err := l.adapter.Client.Models.GenerateContent(ctx, l.adapter.Model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		l.log.Errorw("structured generation call failed", "error", err)
		return nil, fmt.Errorf("%w: %v", errors.ErrGeneration, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response", errors.ErrGeneration)
	}
	return json.RawMessage(resp.Candidates[0].Content.Parts[0].Text), nil
}
