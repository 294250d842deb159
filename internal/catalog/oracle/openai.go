package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const openaiBaseURL = "https://api.openai.com/v1"

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponseFormat struct {
	Type string `json:"type"`
}

type openaiRequest struct {
	Model          string               `json:"model"`
	Temperature    float64              `json:"temperature"`
	Messages       []openaiMessage      `json:"messages"`
	ResponseFormat openaiResponseFormat `json:"response_format"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
}

type openaiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAICompleter is a Completer for OpenAI compatible chat completion apis.
type OpenAICompleter struct {
	client *resty.Client
	model  string
}

// NewOpenAICompleter creates a completer, an empty baseURL targets the
// OpenAI api itself.
func NewOpenAICompleter(client *resty.Client, baseURL, apiKey, model string) OpenAICompleter {
	if baseURL == "" {
		baseURL = openaiBaseURL
	}
	client.SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetAuthToken(apiKey).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)
	return OpenAICompleter{client: client, model: model}
}

func (c OpenAICompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	var out openaiResponse
	var failure openaiError
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(openaiRequest{
			Model:       c.model,
			Temperature: 0,
			Messages: []openaiMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: prompt},
			},
			ResponseFormat: openaiResponseFormat{Type: "json_object"},
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", fmt.Errorf("chat completion: %s: %s", res.Status(), failure.Error.Message)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("chat completion returned no content")
	}
	return out.Choices[0].Message.Content, nil
}
