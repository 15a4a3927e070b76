package llm

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

type yandexRequest struct {
	ModelURI          string          `json:"modelUri"`
	CompletionOptions yandexOptions   `json:"completionOptions"`
	Messages          []yandexMessage `json:"messages"`
}

type yandexOptions struct {
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	MaxTokens   string  `json:"maxTokens,omitempty"`
}

type yandexMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type yandexResponse struct {
	Result struct {
		Alternatives []struct {
			Message yandexMessage `json:"message"`
		} `json:"alternatives"`
	} `json:"result"`
}

type yandexClient struct {
	spec       ModelSpec
	apiKey     string
	folderID   string
	httpClient *http.Client
}

func newYandexClient(spec ModelSpec, env Env) (Client, error) {
	apiKey := env(spec.APIKeyEnv)
	folderID := env(spec.FolderIDEnv)

	var missing []string
	if apiKey == "" {
		missing = append(missing, spec.APIKeyEnv)
	}
	if folderID == "" {
		missing = append(missing, spec.FolderIDEnv)
	}
	if len(missing) > 0 {
		return nil, rcerrors.NewConfigurationError(spec.Name, missing...)
	}

	return &yandexClient{
		spec:       spec,
		apiKey:     apiKey,
		folderID:   folderID,
		httpClient: newHTTPClient(spec),
	}, nil
}

func (c *yandexClient) modelURI() string {
	return fmt.Sprintf("gpt://%s/%s/latest", c.folderID, c.spec.Model)
}

func (c *yandexClient) Complete(ctx context.Context, req Request) (string, error) {
	body := yandexRequest{
		ModelURI: c.modelURI(),
		CompletionOptions: yandexOptions{
			Temperature: req.Temperature,
		},
		Messages: []yandexMessage{{Role: "system", Text: req.System}},
	}
	if req.MaxTokens > 0 {
		body.CompletionOptions.MaxTokens = strconv.Itoa(req.MaxTokens)
	}
	headers := map[string]string{
		"Authorization": "Api-Key " + c.apiKey,
		"x-folder-id":   c.folderID,
	}

	var resp yandexResponse
	url := strings.TrimRight(c.spec.BaseURL, "/") + "/completion"
	if err := postJSON(ctx, c.httpClient, c.spec, url, headers, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Result.Alternatives) == 0 || strings.TrimSpace(resp.Result.Alternatives[0].Message.Text) == "" {
		return "", emptyResponse(c.spec)
	}
	return resp.Result.Alternatives[0].Message.Text, nil
}
