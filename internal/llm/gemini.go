package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig *geminiGenConf  `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConf struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiClient struct {
	spec       ModelSpec
	apiKey     string
	httpClient *http.Client
}

func newGeminiClient(spec ModelSpec, env Env) (Client, error) {
	apiKey := env(spec.APIKeyEnv)
	if apiKey == "" {
		return nil, rcerrors.NewConfigurationError(spec.Name, spec.APIKeyEnv)
	}
	return &geminiClient{spec: spec, apiKey: apiKey, httpClient: newHTTPClient(spec)}, nil
}

// Complete sends the rendered prompt as the single user turn; generateContent
// rejects requests that carry only a system instruction.
func (c *geminiClient) Complete(ctx context.Context, req Request) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.System}}}},
		GenerationConfig: &geminiGenConf{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", strings.TrimRight(c.spec.BaseURL, "/"), c.spec.Model, url.QueryEscape(c.apiKey))

	var resp geminiResponse
	if err := postJSON(ctx, c.httpClient, c.spec, endpoint, nil, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", emptyResponse(c.spec)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", emptyResponse(c.spec)
	}
	return b.String(), nil
}
