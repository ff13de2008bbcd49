package conversation

import (
	"fmt"
	"strings"

	"github.com/dotsetgreg/aizoo/pkg/providers"
)

// Formatter renders history into backend messages. Authors whose name
// contains one of PeerMarkers (case-insensitive) are labelled as bots.
type Formatter struct {
	PeerMarkers []string
}

func (f Formatter) IsPeer(author string) bool {
	return MatchesPeer(author, f.PeerMarkers)
}

// MatchesPeer reports whether name contains any marker, ignoring case.
func MatchesPeer(name string, markers []string) bool {
	lower := strings.ToLower(name)
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" && strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// FormatForBackend returns the system prompt followed by one message per
// stored utterance in chronological order. The bot's own replies carry the
// assistant role; everything else is user.
func (s *Store) FormatForBackend(systemPrompt string, dialect providers.Dialect, f Formatter) []providers.Message {
	history := s.Snapshot()
	out := make([]providers.Message, 0, len(history)+1)
	out = append(out, providers.Message{Role: providers.RoleSystem, Content: systemPrompt})
	for _, u := range history {
		role := providers.RoleUser
		if u.IsBotReply {
			role = providers.RoleAssistant
		}
		out = append(out, providers.Message{Role: role, Content: f.label(u, dialect)})
	}
	return out
}

func (f Formatter) label(u Utterance, dialect providers.Dialect) string {
	switch {
	case u.IsBotReply && dialect == providers.DialectAnthropic:
		return u.Content
	case u.IsBotReply:
		return fmt.Sprintf("%s: %s", u.Author, u.Content)
	case f.IsPeer(u.Author):
		return fmt.Sprintf("Bot (%s): %s", u.Author, u.Content)
	case dialect == providers.DialectAnthropic:
		return fmt.Sprintf("Human (%s): %s", u.Author, u.Content)
	default:
		return fmt.Sprintf("%s: %s", u.Author, u.Content)
	}
}
