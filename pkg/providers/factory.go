package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dotsetgreg/aizoo/pkg/config"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type providerFactory struct {
	build              func(cfg *config.Config) (LLMProvider, error)
	validate           func(cfg *config.Config) error
	credentialStatusFn func(cfg *config.Config) (configured bool, mode string)
}

var (
	factoryMu       sync.RWMutex
	factories       = map[string]providerFactory{}
	registrationErr error
)

func RegisterFactory(name string, build func(cfg *config.Config) (LLMProvider, error), validate func(cfg *config.Config) error, credentialStatusFn func(cfg *config.Config) (bool, string)) {
	name = NormalizeProviderName(name)
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if name == "" {
		registrationErr = errors.Join(registrationErr, fmt.Errorf("providers: factory name is required"))
		return
	}
	if build == nil {
		registrationErr = errors.Join(registrationErr, fmt.Errorf("providers: factory build func is required"))
		return
	}
	factories[name] = providerFactory{
		build:              build,
		validate:           validate,
		credentialStatusFn: credentialStatusFn,
	}
}

func SupportedProviders() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	providers := make([]string, 0, len(factories))
	for name := range factories {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}

func NormalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ProviderForModel routes "claude*" models to Anthropic and everything else
// to the OpenAI chat completions API.
func ProviderForModel(model string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "claude") {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}

func ValidateProviderConfig(cfg *config.Config, name string) error {
	factory, _, err := getFactory(name)
	if err != nil {
		return err
	}
	if factory.validate == nil {
		return nil
	}
	return factory.validate(cfg)
}

func ProviderCredentialStatus(cfg *config.Config, name string) (provider string, configured bool, mode string, err error) {
	factory, provider, err := getFactory(name)
	if err != nil {
		return "", false, "", err
	}
	if factory.credentialStatusFn != nil {
		configured, mode = factory.credentialStatusFn(cfg)
		return provider, configured, mode, nil
	}
	configured = factory.validate == nil || factory.validate(cfg) == nil
	return provider, configured, "", nil
}

func CreateProvider(cfg *config.Config, name string) (LLMProvider, error) {
	factory, _, err := getFactory(name)
	if err != nil {
		return nil, err
	}
	return factory.build(cfg)
}

func getFactory(name string) (providerFactory, string, error) {
	name = NormalizeProviderName(name)

	factoryMu.RLock()
	if registrationErr != nil {
		err := registrationErr
		factoryMu.RUnlock()
		return providerFactory{}, name, fmt.Errorf("provider registration failed: %w", err)
	}
	factory, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return providerFactory{}, name, fmt.Errorf("unsupported provider %q: supported providers are %s", name, strings.Join(SupportedProviders(), ", "))
	}
	return factory, name, nil
}
