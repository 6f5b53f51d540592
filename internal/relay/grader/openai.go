package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultOpenAIURL is used when no API URL is configured.
const DefaultOpenAIURL = "https://api.openai.com"

const chatCompletionsPath = "/chat/completions"

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 4 << 20

// OpenAI evaluates submissions through a chat completions endpoint.
type OpenAI struct {
	Client             *http.Client
	Endpoint           string
	APIKey             string
	Model              string
	SystemInstructions string
	Temperature        float32
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAI resolves the endpoint from cfg.APIURL. A URL that does not
// already name the chat completions path gets /v1/chat/completions appended.
func NewOpenAI(cfg Config) *OpenAI {
	return &OpenAI{
		Client:             &http.Client{},
		Endpoint:           ChatCompletionsURL(cfg.APIURL),
		APIKey:             cfg.APIKey,
		Model:              cfg.Model,
		SystemInstructions: cfg.SystemInstructions,
		Temperature:        cfg.Temperature,
	}
}

// ChatCompletionsURL normalises a configured base URL into the endpoint.
func ChatCompletionsURL(apiURL string) string {
	u := strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if u == "" {
		u = DefaultOpenAIURL
	}
	if !strings.Contains(u, chatCompletionsPath) {
		u += "/v1" + chatCompletionsPath
	}
	return u
}

func (o *OpenAI) Evaluate(ctx context.Context, studentInput string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: o.Model,
		Messages: []chatMessage{
			{Role: "system", Content: o.SystemInstructions},
			{Role: "user", Content: studentTextPrefix + studentInput},
		},
		Temperature: o.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var out chatResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("chat request: status %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("chat request: status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode chat response: %w", decodeErr)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}
