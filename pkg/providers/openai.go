package providers

import (
	"fmt"
	"strings"

	"github.com/dotsetgreg/aizoo/pkg/config"
)

const (
	defaultOpenAIAPIBase = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4"
)

func init() {
	RegisterFactory(ProviderOpenAI, newOpenAIProviderFromConfig, validateOpenAIConfig, openAICredentialStatus)
}

func validateOpenAIConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	_, _, err := resolveOpenAIAuthConfig(cfg)
	return err
}

func openAICredentialStatus(cfg *config.Config) (bool, string) {
	if cfg == nil {
		return false, ""
	}
	mode, _, err := resolveOpenAIAuthConfig(cfg)
	if err != nil {
		return false, ""
	}
	return true, mode
}

func newOpenAIProviderFromConfig(cfg *config.Config) (LLMProvider, error) {
	mode, source, err := resolveOpenAIAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	tokens, err := tokenSourceFor(mode, source, "providers.openai.api_key")
	if err != nil {
		return nil, err
	}

	apiBase := strings.TrimSpace(cfg.Providers.OpenAI.APIBase)
	if apiBase == "" {
		apiBase = defaultOpenAIAPIBase
	}
	extraHeaders := map[string]string{}
	if org := strings.TrimSpace(cfg.Providers.OpenAI.Organization); org != "" {
		extraHeaders["OpenAI-Organization"] = org
	}

	return newChatCompletionsProvider(
		ProviderOpenAI,
		apiBase,
		defaultOpenAIModel,
		strings.TrimSpace(cfg.Providers.OpenAI.Proxy),
		NewBearerAuth(mode, tokens),
		extraHeaders,
	)
}

func resolveOpenAIAuthConfig(cfg *config.Config) (mode string, source string, err error) {
	if cfg == nil {
		return "", "", fmt.Errorf("config is required")
	}
	return resolveAPIKey(
		"OpenAI",
		"providers.openai.api_key", cfg.Providers.OpenAI.APIKey,
		"providers.openai.api_key_file", cfg.Providers.OpenAI.APIKeyFile,
	)
}
