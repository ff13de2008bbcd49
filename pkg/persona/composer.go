// Package persona loads bot characters and composes the system prompt and
// introduction text from them.
package persona

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dotsetgreg/aizoo/pkg/conversation"
	"github.com/dotsetgreg/aizoo/pkg/logger"
)

//go:embed prompts/base_role.md
var defaultBaseRole string

const discordGuidance = "You are participating in a Discord chat with other AI bots and possibly humans. " +
	"Keep your responses concise and engaging. Respond naturally to the conversation " +
	"flow and stay in character at all times."

const peerGuidance = `You are replying to another AI participant in this channel.
- Answer what they said directly instead of restating it.
- Do not open with reflexive agreement such as "Great point" or "I agree".
- Frame opinions in the first person ("I think", "In my view").
- Do not suggest you knew what they were going to say before they said it.`

const defaultLookupTimeout = 10 * time.Second

// LoadBaseRole returns the base role text. An empty path selects the
// built-in text; an unreadable file yields "" so callers fall back to the
// minimal prompt.
func LoadBaseRole(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return strings.TrimSpace(defaultBaseRole)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.ErrorCF("persona", "Failed to read base role file", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return ""
	}
	return strings.TrimSpace(string(data))
}

type ComposerOptions struct {
	DisplayName   string
	DefaultModel  string
	PeerMarkers   []string
	LookupTimeout time.Duration
}

type Composer struct {
	lookup Lookup
	opts   ComposerOptions
}

func NewComposer(lookup Lookup, opts ComposerOptions) *Composer {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = defaultLookupTimeout
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		opts.DefaultModel = DefaultModel
	}
	return &Composer{lookup: lookup, opts: opts}
}

// Load resolves the persona for identityKey. It never fails: lookup errors,
// timeouts and empty results all yield the default persona.
func (c *Composer) Load(ctx context.Context, identityKey string) Persona {
	fallback := Default(identityKey, c.opts.DisplayName, c.opts.DefaultModel)
	if fallback.DisplayName == "" {
		fallback.DisplayName = identityKey
	}
	if c.lookup == nil {
		logger.WarnCF("persona", "No persona source configured, using default persona", map[string]any{
			"identity_key": identityKey,
		})
		return fallback
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.opts.LookupTimeout)
	defer cancel()

	p, err := c.lookup.Get(lookupCtx, identityKey)
	switch {
	case err != nil && errors.Is(err, ErrNotFound):
		logger.WarnCF("persona", "Persona not found, using default persona", map[string]any{
			"identity_key": identityKey,
		})
		return fallback
	case err != nil:
		logger.ErrorCF("persona", "Persona lookup failed, using default persona", map[string]any{
			"identity_key": identityKey,
			"error":        err.Error(),
		})
		return fallback
	case p.IsEmpty():
		logger.WarnCF("persona", "Persona lookup returned an empty persona, using default persona", map[string]any{
			"identity_key": identityKey,
		})
		return fallback
	}

	out := *p
	out.IdentityKey = identityKey
	if strings.TrimSpace(out.DisplayName) == "" {
		out.DisplayName = fallback.DisplayName
	}
	if strings.TrimSpace(out.Model) == "" {
		out.Model = c.opts.DefaultModel
	}
	logger.InfoCF("persona", "Persona loaded", map[string]any{
		"identity_key": identityKey,
		"display_name": out.DisplayName,
		"model":        out.Model,
	})
	return out
}

// BuildSystemPrompt joins the base role with the persona rendering. Without
// a base role only a one-line instruction naming the identity key is used.
func (c *Composer) BuildSystemPrompt(p Persona, baseRole string) string {
	baseRole = strings.TrimSpace(baseRole)
	if baseRole == "" {
		return fmt.Sprintf("You are %s. Be friendly and helpful.", p.IdentityKey)
	}
	return baseRole + "\n\n" + RenderPersona(p)
}

// RenderPersona renders the character sheet section of the system prompt.
func RenderPersona(p Persona) string {
	parts := []string{fmt.Sprintf("You are %s.", p.Name())}
	if v := strings.TrimSpace(p.Personality); v != "" {
		parts = append(parts, "Personality: "+v)
	}
	if v := strings.TrimSpace(p.SpeakingStyle); v != "" {
		parts = append(parts, "Speaking style: "+v)
	}
	if v := strings.TrimSpace(p.Language); v != "" {
		parts = append(parts, fmt.Sprintf("You primarily communicate in %s.", v))
	}
	if v := strings.TrimSpace(p.Background); v != "" {
		parts = append(parts, "Background: "+v)
	}
	if interests := joinInterests(p.Interests); interests != "" {
		parts = append(parts, "Your interests include: "+interests)
	}
	if v := strings.TrimSpace(p.Restrictions); v != "" {
		parts = append(parts, "Restrictions: "+v)
	}
	parts = append(parts, discordGuidance)
	return strings.Join(parts, "\n\n")
}

// AdjustForSender appends the peer guidance block when the sender looks
// like another bot. The block is static text.
func (c *Composer) AdjustForSender(basePrompt, senderDisplayName string) string {
	if !conversation.MatchesPeer(senderDisplayName, c.opts.PeerMarkers) {
		return basePrompt
	}
	return basePrompt + "\n\n" + peerGuidance
}

// RenderIntroduction builds the self-introduction posted on connect. Lines
// for missing fields are left out entirely.
func (c *Composer) RenderIntroduction(p Persona, extraInfo string) string {
	lines := []string{fmt.Sprintf("Hello! I'm %s.", p.Name())}
	if v := strings.TrimSpace(p.Personality); v != "" {
		lines = append(lines, "Personality: "+v)
	}
	if v := strings.TrimSpace(p.SpeakingStyle); v != "" {
		lines = append(lines, "Speaking style: "+v)
	}
	if interests := joinInterests(p.Interests); interests != "" {
		lines = append(lines, "Interests: "+interests)
	}
	if v := strings.TrimSpace(p.Background); v != "" {
		lines = append(lines, "Background: "+v)
	}
	if v := strings.TrimSpace(p.Model); v != "" {
		lines = append(lines, "Model: "+v)
	}
	if v := strings.TrimSpace(extraInfo); v != "" {
		lines = append(lines, v)
	}
	lines = append(lines, "Feel free to talk to me!")
	return strings.Join(lines, "\n")
}

func joinInterests(interests []string) string {
	kept := make([]string, 0, len(interests))
	for _, i := range interests {
		if i = strings.TrimSpace(i); i != "" {
			kept = append(kept, i)
		}
	}
	return strings.Join(kept, ", ")
}
