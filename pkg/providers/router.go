package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dotsetgreg/aizoo/pkg/config"
	"github.com/dotsetgreg/aizoo/pkg/logger"
)

var ErrEmptyResponse = errors.New("provider returned an empty response")

// Router generates replies by picking the provider that serves a model.
// Providers whose credentials are missing are recorded and reported only when
// a model routed to them is requested.
type Router struct {
	providers   map[string]LLMProvider
	unavailable map[string]error
	maxTokens   int
	temperature float64
	mu          sync.RWMutex
}

func NewRouter(cfg *config.Config) *Router {
	r := &Router{
		providers:   make(map[string]LLMProvider),
		unavailable: make(map[string]error),
		maxTokens:   cfg.LLM.MaxTokens,
		temperature: cfg.LLM.Temperature,
	}
	for _, name := range SupportedProviders() {
		p, err := CreateProvider(cfg, name)
		if err != nil {
			r.unavailable[name] = err
			logger.DebugCF("providers", "Provider unavailable", map[string]any{
				"provider": name,
				"error":    err.Error(),
			})
			continue
		}
		r.providers[name] = p
	}
	return r
}

// NewRouterWith builds a Router from explicit providers.
func NewRouterWith(providers map[string]LLMProvider, maxTokens int, temperature float64) *Router {
	r := &Router{
		providers:   make(map[string]LLMProvider, len(providers)),
		unavailable: make(map[string]error),
		maxTokens:   maxTokens,
		temperature: temperature,
	}
	for name, p := range providers {
		r.providers[NormalizeProviderName(name)] = p
	}
	return r
}

func (r *Router) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) Generate(ctx context.Context, messages []Message, model string) (string, error) {
	name := ProviderForModel(model)

	r.mu.RLock()
	p, ok := r.providers[name]
	cause := r.unavailable[name]
	r.mu.RUnlock()
	if !ok {
		if cause != nil {
			return "", fmt.Errorf("provider %s for model %q is not configured: %w", name, model, cause)
		}
		return "", fmt.Errorf("provider %s for model %q is not configured", name, model)
	}

	options := map[string]interface{}{"temperature": r.temperature}
	if r.maxTokens > 0 {
		options["max_tokens"] = r.maxTokens
	}

	logger.InfoCF("providers", "Generating response", map[string]any{
		"provider": name,
		"model":    model,
		"messages": len(messages),
	})

	resp, err := p.Chat(ctx, messages, model, options)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("%s model %q: %w", name, model, ErrEmptyResponse)
	}
	if resp.Usage != nil {
		logger.DebugCF("providers", "Token usage", map[string]any{
			"provider":          name,
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
		})
	}
	return content, nil
}
