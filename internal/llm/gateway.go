package llm

import (
	"context"
	stdErrors "errors"
	"sync"

	"github.com/alexisbeaulieu97/reportcheck/internal/logger"
	"github.com/alexisbeaulieu97/reportcheck/internal/template"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// Factory builds a client for spec, reading credentials through env. It must
// return a ConfigurationError when credentials are missing.
type Factory func(spec ModelSpec, env Env) (Client, error)

// Gateway maps logical model names to provider clients.
type Gateway struct {
	mu        sync.Mutex
	specs     map[string]ModelSpec
	order     []string
	factories map[string]Factory
	clients   map[string]Client
	env       Env
	log       *logger.Logger
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithEnv overrides the credential source.
func WithEnv(env Env) Option {
	return func(g *Gateway) {
		if env != nil {
			g.env = env
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *logger.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

// WithProvider registers or replaces the factory for a provider id.
func WithProvider(provider string, factory Factory) Option {
	return func(g *Gateway) { g.factories[provider] = factory }
}

// WithClient pins a ready-made client for the named model, bypassing its
// provider factory.
func WithClient(name string, client Client) Option {
	return func(g *Gateway) { g.clients[name] = client }
}

// NewGateway creates a gateway over catalog. Later entries with a duplicate
// name replace earlier ones.
func NewGateway(catalog []ModelSpec, opts ...Option) *Gateway {
	g := &Gateway{
		specs: make(map[string]ModelSpec, len(catalog)),
		factories: map[string]Factory{
			ProviderOpenAI:   newOpenAIClient,
			ProviderYandex:   newYandexClient,
			ProviderGigaChat: newGigaChatClient,
			ProviderGemini:   newGeminiClient,
		},
		clients: make(map[string]Client),
		env:     OSEnv,
	}
	for _, spec := range catalog {
		if _, exists := g.specs[spec.Name]; !exists {
			g.order = append(g.order, spec.Name)
		}
		g.specs[spec.Name] = spec
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Models returns the selectable model names in catalog order.
func (g *Gateway) Models() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Spec returns the descriptor for name.
func (g *Gateway) Spec(name string) (ModelSpec, bool) {
	spec, ok := g.specs[name]
	return spec, ok
}

// Select resolves name to a client, checking credentials eagerly.
func (g *Gateway) Select(name string) (Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if client, ok := g.clients[name]; ok {
		return client, nil
	}

	spec, ok := g.specs[name]
	if !ok {
		return nil, rcerrors.NewNotFoundError("model", name)
	}

	factory, ok := g.factories[spec.Provider]
	if !ok {
		return nil, &rcerrors.ConfigurationError{Model: name, Message: "unsupported provider " + spec.Provider}
	}

	client, err := factory(spec, g.env)
	if err != nil {
		return nil, err
	}
	g.clients[name] = client
	g.log.Debug("model selected", "model", name, "provider", spec.Provider)
	return client, nil
}

// Complete renders systemTemplate with vars and sends it to the named model.
// It performs exactly one attempt.
func (g *Gateway) Complete(ctx context.Context, name, systemTemplate string, vars map[string]string) (string, error) {
	prompt, err := template.Render(systemTemplate, vars)
	if err != nil {
		return "", err
	}

	client, err := g.Select(name)
	if err != nil {
		return "", err
	}

	spec := g.specs[name]
	text, err := client.Complete(ctx, Request{
		System:      prompt,
		Temperature: spec.Temperature,
		MaxTokens:   spec.MaxTokens,
	})
	if err != nil {
		return "", classify(spec, name, err)
	}
	return text, nil
}

// Bind fixes the model for a run.
func (g *Gateway) Bind(name string) (*Binding, error) {
	if _, err := g.Select(name); err != nil {
		return nil, err
	}
	return &Binding{gateway: g, model: name}, nil
}

// Binding is a Completer pinned to one model.
type Binding struct {
	gateway *Gateway
	model   string
}

// Model returns the bound model name.
func (b *Binding) Model() string {
	return b.model
}

// Complete implements Completer.
func (b *Binding) Complete(ctx context.Context, systemTemplate string, vars map[string]string) (string, error) {
	return b.gateway.Complete(ctx, b.model, systemTemplate, vars)
}

// classify maps untyped client failures to ProviderError so the retry layer
// treats them as transient. Typed errors pass through unchanged.
func classify(spec ModelSpec, name string, err error) error {
	var (
		providerErr   *rcerrors.ProviderError
		validationErr *rcerrors.ValidationError
		configErr     *rcerrors.ConfigurationError
	)
	switch {
	case stdErrors.As(err, &providerErr),
		stdErrors.As(err, &validationErr),
		stdErrors.As(err, &configErr):
		return err
	case stdErrors.Is(err, context.Canceled):
		return err
	}
	provider := spec.Provider
	if provider == "" {
		provider = "custom"
	}
	model := spec.Model
	if model == "" {
		model = name
	}
	return rcerrors.NewProviderError(provider, model, 0, err)
}
