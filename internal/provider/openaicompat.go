package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sanhub/backend/internal/config"
)

// credentials picks one upstream's key and base URL out of the system
// configuration.
type credentials func(cfg *config.System) (apiKey, baseURL string)

func geminiSettings(cfg *config.System) (string, string) {
	return cfg.GeminiAPIKey, cfg.GeminiBaseURL
}

func zimageSettings(cfg *config.System) (string, string) {
	return cfg.ZImageAPIKey, cfg.ZImageBaseURL
}

// OpenAIImage generates images against an OpenAI-style images endpoint. The
// gemini and zimage upstreams share the wire format and differ only in
// credentials and model names.
type OpenAIImage struct {
	settings Settings
	creds    credentials
}

func NewOpenAIImage(settings Settings, creds credentials) *OpenAIImage {
	return &OpenAIImage{settings: settings, creds: creds}
}

var _ Provider = (*OpenAIImage)(nil)

func (p *OpenAIImage) Generate(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	cfg, err := p.settings(ctx)
	if err != nil {
		return nil, err
	}
	apiKey, baseURL := p.creds(cfg)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	return generateImage(ctx, apiKey, baseURL, req, onProgress)
}

// ChatMessage is one turn of a chat completion conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// ChatClient runs chat completions against OpenAI-compatible endpoints.
// Unlike the image providers, credentials come per call: each configured
// chat model carries its own endpoint and key.
type ChatClient struct{}

func NewChatClient() *ChatClient {
	return &ChatClient{}
}

// Complete sends the conversation and returns the assistant's reply.
func (c *ChatClient) Complete(ctx context.Context, baseURL, apiKey, model string, messages []ChatMessage) (string, error) {
	if apiKey == "" {
		return "", ErrNotConfigured
	}
	payload := chatCompletionRequest{Model: model, Messages: messages}

	var resp chatCompletionResponse
	err := doJSON(ctx, func() (*http.Request, error) {
		return jsonRequest(ctx, http.MethodPost,
			joinURL(baseURL, "/v1/chat/completions"), apiKey, payload)
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat endpoint returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
