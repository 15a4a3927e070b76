// Package llm is the model gateway: it resolves a logical model name to a
// configured chat-completion client and executes single completion requests.
// The gateway never retries; retry belongs to the workflow stages.
package llm

import (
	"context"
	"os"
	"strings"
	"time"
)

// Provider identifiers.
const (
	ProviderOpenAI   = "openai"
	ProviderYandex   = "yandex"
	ProviderGigaChat = "gigachat"
	ProviderGemini   = "gemini"
)

// Request is one completion call. The rendered template is sent as the
// system message.
type Request struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Client is the capability every provider implements.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Complete implements Client.
func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Completer is what workflow stages depend on: template plus variables in,
// text out.
type Completer interface {
	Complete(ctx context.Context, systemTemplate string, vars map[string]string) (string, error)
}

// ModelSpec describes one selectable model.
type ModelSpec struct {
	Name     string
	Provider string
	Model    string
	BaseURL  string
	AuthURL  string
	// APIKeyEnv names the key variable. With KeyPoolSize > 0 the variables
	// APIKeyEnv_1..APIKeyEnv_N are pooled as well and one is picked per call.
	APIKeyEnv   string
	KeyPoolSize int
	FolderIDEnv string
	ScopeEnv    string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	InsecureTLS bool
}

// Env resolves a configuration variable; empty means unset.
type Env func(key string) string

// OSEnv reads the process environment.
func OSEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// MapEnv serves variables from a map.
func MapEnv(values map[string]string) Env {
	return func(key string) string {
		return strings.TrimSpace(values[key])
	}
}
