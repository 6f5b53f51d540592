package grader

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured for Google.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini evaluates submissions with Google's Gemini API.
type Gemini struct {
	client             *genai.Client
	model              string
	systemInstructions string
	temperature        float32
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	return &Gemini{
		client:             client,
		model:              model,
		systemInstructions: cfg.SystemInstructions,
		temperature:        cfg.Temperature,
	}, nil
}

func (g *Gemini) Evaluate(ctx context.Context, studentInput string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if g.systemInstructions != "" {
		config.SystemInstruction = genai.NewContentFromText(g.systemInstructions, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(studentTextPrefix+studentInput), config)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
