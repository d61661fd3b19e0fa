package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Completer is the contract agents depend on. Satisfied by *Client and
// by test fakes.
type Completer interface {
	CompleteStructured(ctx context.Context, systemPrompt, userPrompt, schemaName string, target any) error
}

// ProviderSettings configures the provider pool.
type ProviderSettings struct {
	DefaultProvider string
	DefaultModel    string
	APIKeys         map[string]string
	Endpoints       map[string]string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
}

// Providers lazily builds and caches one client per provider name.
type Providers struct {
	settings ProviderSettings

	mu      sync.Mutex
	clients map[string]*Client
}

// NewProviders creates a provider pool from settings.
func NewProviders(settings ProviderSettings) *Providers {
	if settings.DefaultProvider == "" {
		settings.DefaultProvider = "anthropic"
	}
	return &Providers{
		settings: settings,
		clients:  make(map[string]*Client),
	}
}

// Default returns the client for the configured default provider.
func (p *Providers) Default() (*Client, error) {
	return p.Get(p.settings.DefaultProvider)
}

// Get returns the client for a named provider, building it on first
// use. Unknown providers without an endpoint are an error.
func (p *Providers) Get(provider string) (*Client, error) {
	if provider == "" {
		provider = p.settings.DefaultProvider
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[provider]; ok {
		return c, nil
	}

	endpoint, ok := p.settings.Endpoints[provider]
	if !ok && provider != p.settings.DefaultProvider {
		return nil, fmt.Errorf("no endpoint configured for LLM provider %q", provider)
	}

	c := NewClient(ClientConfig{
		Provider:    provider,
		Endpoint:    endpoint,
		APIKey:      p.settings.APIKeys[provider],
		Model:       p.settings.DefaultModel,
		Temperature: p.settings.Temperature,
		MaxTokens:   p.settings.MaxTokens,
		Timeout:     p.settings.Timeout,
	})
	p.clients[provider] = c
	return c, nil
}
