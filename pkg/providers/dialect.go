package providers

// Dialect names the message shape a backend expects for conversation history.
type Dialect string

const (
	DialectOpenAI    Dialect = "openai"
	DialectAnthropic Dialect = "anthropic"
)

func DialectForModel(model string) Dialect {
	if ProviderForModel(model) == ProviderAnthropic {
		return DialectAnthropic
	}
	return DialectOpenAI
}
