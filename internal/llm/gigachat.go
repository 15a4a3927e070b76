package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// gigaChatTokenSource exchanges the authorization key for a short-lived
// access token. GigaChat reports expiry as a unix-millisecond expires_at,
// which the generic oauth2 client-credentials flow does not read.
type gigaChatTokenSource struct {
	ctx        context.Context
	spec       ModelSpec
	authKey    string
	scope      string
	httpClient *http.Client
}

type gigaChatToken struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

func (s *gigaChatTokenSource) Token() (*oauth2.Token, error) {
	form := url.Values{"scope": {s.scope}}
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.spec.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build gigachat token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+s.authKey)
	req.Header.Set("RqUID", uuid.NewString())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, rcerrors.NewProviderError(s.spec.Provider, s.spec.Model, 0, fmt.Errorf("token exchange: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rcerrors.NewProviderError(s.spec.Provider, s.spec.Model, resp.StatusCode, fmt.Errorf("read token: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, rcerrors.NewProviderError(s.spec.Provider, s.spec.Model, resp.StatusCode, fmt.Errorf("token exchange: %s", snippet(body)))
	}

	var tok gigaChatToken
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return nil, rcerrors.NewProviderError(s.spec.Provider, s.spec.Model, resp.StatusCode, fmt.Errorf("malformed token response"))
	}

	token := &oauth2.Token{AccessToken: tok.AccessToken, TokenType: "Bearer"}
	if tok.ExpiresAt > 0 {
		token.Expiry = time.UnixMilli(tok.ExpiresAt)
	}
	return token, nil
}

type gigaChatClient struct {
	spec       ModelSpec
	httpClient *http.Client
}

func newGigaChatClient(spec ModelSpec, env Env) (Client, error) {
	authKey := env(spec.APIKeyEnv)
	scope := env(spec.ScopeEnv)

	var missing []string
	if authKey == "" {
		missing = append(missing, spec.APIKeyEnv)
	}
	if scope == "" {
		missing = append(missing, spec.ScopeEnv)
	}
	if len(missing) > 0 {
		return nil, rcerrors.NewConfigurationError(spec.Name, missing...)
	}
	if spec.AuthURL == "" {
		return nil, &rcerrors.ConfigurationError{Model: spec.Name, Message: "auth_url is required"}
	}

	base := newHTTPClient(spec)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	source := oauth2.ReuseTokenSource(nil, &gigaChatTokenSource{
		ctx:        ctx,
		spec:       spec,
		authKey:    authKey,
		scope:      scope,
		httpClient: base,
	})

	client := oauth2.NewClient(ctx, source)
	client.Timeout = base.Timeout
	return &gigaChatClient{spec: spec, httpClient: client}, nil
}

func (c *gigaChatClient) Complete(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model:       c.spec.Model,
		Messages:    []chatMessage{{Role: "system", Content: req.System}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var resp chatResponse
	endpoint := strings.TrimRight(c.spec.BaseURL, "/") + "/chat/completions"
	if err := postJSON(ctx, c.httpClient, c.spec, endpoint, nil, body, &resp); err != nil {
		return "", err
	}
	text := resp.text()
	if strings.TrimSpace(text) == "" {
		return "", emptyResponse(c.spec)
	}
	return text, nil
}
