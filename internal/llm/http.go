package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

const (
	defaultTimeout  = 120 * time.Second
	maxErrorSnippet = 512
)

func newTransport(insecure bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per model
	}
	return transport
}

func newHTTPClient(spec ModelSpec) *http.Client {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout, Transport: newTransport(spec.InsecureTLS)}
}

// postJSON sends body as JSON and decodes a 200 response into out. Every
// failure is reported as a ProviderError.
func postJSON(ctx context.Context, client *http.Client, spec ModelSpec, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", spec.Provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", spec.Provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return rcerrors.NewProviderError(spec.Provider, spec.Model, 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return rcerrors.NewProviderError(spec.Provider, spec.Model, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return rcerrors.NewProviderError(spec.Provider, spec.Model, resp.StatusCode, fmt.Errorf("unexpected response: %s", snippet(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return rcerrors.NewProviderError(spec.Provider, spec.Model, resp.StatusCode, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

func snippet(body []byte) string {
	if len(body) > maxErrorSnippet {
		return string(body[:maxErrorSnippet]) + "..."
	}
	return string(body)
}

func emptyResponse(spec ModelSpec) error {
	return rcerrors.NewProviderError(spec.Provider, spec.Model, http.StatusOK, fmt.Errorf("empty completion"))
}
