package providers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	authModeAPIKey  = "api_key"
	authModeKeyFile = "api_key_file"
)

// TokenSource returns key material for request auth.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Source() string
}

type staticTokenSource struct {
	token  string
	source string
}

func NewStaticTokenSource(token, source string) TokenSource {
	return &staticTokenSource{
		token:  strings.TrimSpace(token),
		source: strings.TrimSpace(source),
	}
}

func (s *staticTokenSource) Token(context.Context) (string, error) {
	tok := strings.TrimSpace(s.token)
	if tok == "" {
		return "", fmt.Errorf("token is empty for %s", s.Source())
	}
	if isPlaceholderToken(tok) {
		return "", fmt.Errorf("token for %s looks like an unexpanded placeholder (%s)", s.Source(), tok)
	}
	return tok, nil
}

func (s *staticTokenSource) Source() string {
	if s.source != "" {
		return s.source
	}
	return "static"
}

// isPlaceholderToken catches values copied verbatim from example env files,
// such as "<OPENAI_API_KEY>" or "${ANTHROPIC_API_KEY}".
func isPlaceholderToken(tok string) bool {
	if strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">") {
		return true
	}
	return strings.HasPrefix(tok, "${") && strings.HasSuffix(tok, "}")
}

type fileTokenSource struct {
	path string
}

func NewFileTokenSource(path string) TokenSource {
	return &fileTokenSource{path: strings.TrimSpace(path)}
}

func (s *fileTokenSource) Token(context.Context) (string, error) {
	resolved := expandHome(strings.TrimSpace(s.path))
	if resolved == "" {
		return "", fmt.Errorf("token file path is empty")
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read token file %s: %w", resolved, err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("token file %s is empty", resolved)
	}
	return tok, nil
}

func (s *fileTokenSource) Source() string {
	resolved := expandHome(strings.TrimSpace(s.path))
	if resolved != "" {
		return resolved
	}
	return "token_file"
}

// AuthStrategy applies request auth for provider HTTP calls.
type AuthStrategy interface {
	Mode() string
	Apply(ctx context.Context, req *http.Request) error
}

type bearerAuth struct {
	mode   string
	source TokenSource
}

// NewBearerAuth sends the token as "Authorization: Bearer <token>" (OpenAI).
func NewBearerAuth(mode string, source TokenSource) AuthStrategy {
	return &bearerAuth{mode: mode, source: source}
}

func (a *bearerAuth) Mode() string {
	return a.mode
}

func (a *bearerAuth) Apply(ctx context.Context, req *http.Request) error {
	tok, err := resolveToken(ctx, a.source)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

type headerKeyAuth struct {
	mode   string
	header string
	source TokenSource
}

// NewHeaderKeyAuth sends the token in a named header (Anthropic uses x-api-key).
func NewHeaderKeyAuth(mode, header string, source TokenSource) AuthStrategy {
	return &headerKeyAuth{mode: mode, header: header, source: source}
}

func (a *headerKeyAuth) Mode() string {
	return a.mode
}

func (a *headerKeyAuth) Apply(ctx context.Context, req *http.Request) error {
	tok, err := resolveToken(ctx, a.source)
	if err != nil {
		return err
	}
	req.Header.Set(a.header, tok)
	return nil
}

func resolveToken(ctx context.Context, source TokenSource) (string, error) {
	if source == nil {
		return "", fmt.Errorf("auth token source is nil")
	}
	tok, err := source.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve auth token: %w", err)
	}
	return tok, nil
}

// tokenSourceFor builds the token source for a resolved credential mode.
func tokenSourceFor(mode, source, field string) (TokenSource, error) {
	switch mode {
	case authModeAPIKey:
		return NewStaticTokenSource(source, field), nil
	case authModeKeyFile:
		return NewFileTokenSource(source), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", mode)
	}
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
