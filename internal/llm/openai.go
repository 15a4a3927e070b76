package llm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (r chatResponse) text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// openAIClient talks to any OpenAI-compatible chat completions endpoint.
type openAIClient struct {
	spec       ModelSpec
	keys       []string
	httpClient *http.Client
	pick       func(n int) int
}

func newOpenAIClient(spec ModelSpec, env Env) (Client, error) {
	keys := keyPool(spec, env)
	if len(keys) == 0 {
		return nil, rcerrors.NewConfigurationError(spec.Name, spec.APIKeyEnv)
	}
	if strings.TrimSpace(spec.BaseURL) == "" {
		return nil, &rcerrors.ConfigurationError{Model: spec.Name, Message: "base_url is required"}
	}
	return &openAIClient{
		spec:       spec,
		keys:       keys,
		httpClient: newHTTPClient(spec),
		pick:       rand.IntN,
	}, nil
}

func (c *openAIClient) Complete(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       c.spec.Model,
		Messages:    []chatMessage{{Role: "system", Content: req.System}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	headers := map[string]string{
		"Authorization": "Bearer " + c.keys[c.pick(len(c.keys))],
	}

	var resp chatResponse
	url := strings.TrimRight(c.spec.BaseURL, "/") + "/chat/completions"
	if err := postJSON(ctx, c.httpClient, c.spec, url, headers, body, &resp); err != nil {
		return "", err
	}
	text := resp.text()
	if strings.TrimSpace(text) == "" {
		return "", emptyResponse(c.spec)
	}
	return text, nil
}

// keyPool collects APIKeyEnv and APIKeyEnv_1..N, skipping unset entries.
func keyPool(spec ModelSpec, env Env) []string {
	if spec.APIKeyEnv == "" {
		return nil
	}
	var keys []string
	if v := env(spec.APIKeyEnv); v != "" {
		keys = append(keys, v)
	}
	for i := 1; i <= spec.KeyPoolSize; i++ {
		if v := env(fmt.Sprintf("%s_%d", spec.APIKeyEnv, i)); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}
