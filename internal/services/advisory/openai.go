package advisory

import (
	"context"
	"fmt"
	"strings"

	"PairPilot/pkg/config"
	apphttp "PairPilot/pkg/http"
)

// OpenAI queries any OpenAI-compatible chat completions endpoint. It serves
// the openai, deepseek and local kinds.
type OpenAI struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *apphttp.Client
}

// NewOpenAI creates an OpenAI-compatible provider from c.
func NewOpenAI(c config.ProviderConfig, client *apphttp.Client) *OpenAI {
	return &OpenAI{
		name:        c.Name,
		baseURL:     strings.TrimRight(c.BaseURL, "/"),
		apiKey:      c.APIKey,
		model:       c.Model,
		maxTokens:   c.MaxTokens,
		temperature: c.Temperature,
		client:      client,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Query(ctx context.Context, prompt string) (string, error) {
	var headers map[string]string
	if o.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + o.apiKey}
	}

	var resp chatResponse
	err := o.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method:  apphttp.MethodPost,
		URL:     o.baseURL + "/chat/completions",
		Headers: headers,
		Body: chatRequest{
			Model:       o.model,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			MaxTokens:   o.maxTokens,
			Temperature: o.temperature,
		},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("chat completions: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
