package advisory

import (
	"context"
	"fmt"
	"strings"

	"PairPilot/pkg/config"
	apphttp "PairPilot/pkg/http"
)

const anthropicVersion = "2023-06-01"

// Claude queries the Anthropic messages API.
type Claude struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *apphttp.Client
}

// NewClaude creates a Claude provider from c.
func NewClaude(c config.ProviderConfig, client *apphttp.Client) *Claude {
	return &Claude{
		name:        c.Name,
		baseURL:     strings.TrimRight(c.BaseURL, "/"),
		apiKey:      c.APIKey,
		model:       c.Model,
		maxTokens:   c.MaxTokens,
		temperature: c.Temperature,
		client:      client,
	}
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Claude) Name() string { return c.name }

func (c *Claude) Query(ctx context.Context, prompt string) (string, error) {
	var resp claudeResponse
	err := c.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodPost,
		URL:    c.baseURL + "/messages",
		Headers: map[string]string{
			"x-api-key":         c.apiKey,
			"anthropic-version": anthropicVersion,
		},
		Body: claudeRequest{
			Model:       c.model,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			Messages:    []claudeMessage{{Role: "user", Content: prompt}},
		},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
