package persona

import (
	"context"
	"strings"
)

const (
	DefaultPersonality   = "Friendly and helpful"
	DefaultSpeakingStyle = "Casual and conversational"
	DefaultLanguage      = "English"
	DefaultModel         = "gpt-4"
)

// Persona is the character a bot plays. It is read-only once loaded.
type Persona struct {
	DisplayName   string   `json:"display_name" yaml:"name"`
	IdentityKey   string   `json:"identity_key" yaml:"identity_key"`
	Personality   string   `json:"personality,omitempty" yaml:"personality"`
	SpeakingStyle string   `json:"speaking_style,omitempty" yaml:"speaking_style"`
	Language      string   `json:"language,omitempty" yaml:"language"`
	Model         string   `json:"model,omitempty" yaml:"model"`
	Interests     []string `json:"interests,omitempty" yaml:"interests"`
	Background    string   `json:"background,omitempty" yaml:"background"`
	Restrictions  string   `json:"restrictions,omitempty" yaml:"restrictions"`
}

// IsEmpty reports whether p carries no character attributes at all.
func (p *Persona) IsEmpty() bool {
	if p == nil {
		return true
	}
	return strings.TrimSpace(p.Personality) == "" &&
		strings.TrimSpace(p.SpeakingStyle) == "" &&
		strings.TrimSpace(p.Language) == "" &&
		strings.TrimSpace(p.Model) == "" &&
		strings.TrimSpace(p.Background) == "" &&
		strings.TrimSpace(p.Restrictions) == "" &&
		len(p.Interests) == 0
}

// Name is the name the persona introduces itself with.
func (p Persona) Name() string {
	if n := strings.TrimSpace(p.DisplayName); n != "" {
		return n
	}
	return p.IdentityKey
}

// Default is the persona used whenever a lookup fails or returns nothing.
func Default(identityKey, displayName, model string) Persona {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return Persona{
		DisplayName:   displayName,
		IdentityKey:   identityKey,
		Personality:   DefaultPersonality,
		SpeakingStyle: DefaultSpeakingStyle,
		Language:      DefaultLanguage,
		Model:         model,
	}
}

// Lookup resolves a persona by identity key. Implementations return
// ErrNotFound when the key is unknown.
type Lookup interface {
	Get(ctx context.Context, identityKey string) (*Persona, error)
}

// normalizeKey is the case-insensitive key used by every source.
func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
