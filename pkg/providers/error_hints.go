package providers

import "strings"

func augmentProviderError(providerName, message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return msg
	}

	lower := strings.ToLower(msg)
	providerName = NormalizeProviderName(providerName)

	switch providerName {
	case ProviderOpenAI:
		if strings.Contains(lower, "incorrect api key provided") {
			return msg + " Hint: providers.openai.api_key must be an OpenAI Platform API key."
		}
		if strings.Contains(lower, "does not exist") && strings.Contains(lower, "model") {
			return msg + " Hint: check the persona's model; models not starting with \"claude\" are sent to OpenAI."
		}
	case ProviderAnthropic:
		if strings.Contains(lower, "invalid x-api-key") {
			return msg + " Hint: providers.anthropic.api_key must be an Anthropic API key."
		}
		if strings.Contains(lower, "model:") || strings.Contains(lower, "not_found_error") {
			return msg + " Hint: check the persona's model identifier against the Anthropic model list."
		}
	}

	return msg
}
