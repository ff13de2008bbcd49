package persona

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dotsetgreg/aizoo/pkg/config"
	"github.com/dotsetgreg/aizoo/pkg/logger"
)

const (
	defaultNotionAPIBase   = "https://api.notion.com/v1"
	defaultNotionVersion   = "2022-06-28"
	defaultRefreshInterval = 60 * time.Minute
	defaultNotionCacheSize = 256
	notionPageSize         = 100
	notionMaxPages         = 20
)

type NotionOptions struct {
	APIKey          string
	DatabaseID      string
	APIBase         string
	Version         string
	PropertyMap     map[string]string
	RefreshInterval time.Duration
	CacheSize       int
	HTTPClient      *http.Client
}

// NotionLookup reads personas from a Notion database. The whole database is
// fetched at once and cached by lowercase name until the refresh interval
// passes.
type NotionLookup struct {
	opts        NotionOptions
	cache       *expirable.LRU[string, *Persona]
	lastRefresh time.Time
	now         func() time.Time
	refreshMu   sync.Mutex
}

func NewNotionLookup(opts NotionOptions) (*NotionLookup, error) {
	if strings.TrimSpace(opts.APIKey) == "" || strings.TrimSpace(opts.DatabaseID) == "" {
		return nil, fmt.Errorf("notion api key and database id are required: %w", ErrNotConfigured)
	}
	opts.APIBase = strings.TrimRight(strings.TrimSpace(opts.APIBase), "/")
	if opts.APIBase == "" {
		opts.APIBase = defaultNotionAPIBase
	}
	if strings.TrimSpace(opts.Version) == "" {
		opts.Version = defaultNotionVersion
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultNotionCacheSize
	}
	if len(opts.PropertyMap) == 0 {
		opts.PropertyMap = config.DefaultPropertyMap()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &NotionLookup{
		opts:  opts,
		cache: expirable.NewLRU[string, *Persona](opts.CacheSize, nil, opts.RefreshInterval),
		now:   time.Now,
	}, nil
}

func (n *NotionLookup) Get(ctx context.Context, identityKey string) (*Persona, error) {
	if n.stale() {
		if _, err := n.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	p, ok := n.cache.Get(normalizeKey(identityKey))
	if !ok {
		return nil, fmt.Errorf("notion persona %q: %w", identityKey, ErrNotFound)
	}
	out := *p
	return &out, nil
}

// List returns every cached persona, refreshing first if the cache is stale.
func (n *NotionLookup) List(ctx context.Context) ([]Persona, error) {
	if n.stale() {
		if _, err := n.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	values := n.cache.Values()
	out := make([]Persona, 0, len(values))
	for _, p := range values {
		out = append(out, *p)
	}
	return out, nil
}

func (n *NotionLookup) stale() bool {
	n.refreshMu.Lock()
	defer n.refreshMu.Unlock()
	return n.lastRefresh.IsZero() || n.now().Sub(n.lastRefresh) >= n.opts.RefreshInterval
}

// Refresh re-reads the database and replaces the cache contents.
func (n *NotionLookup) Refresh(ctx context.Context) (int, error) {
	n.refreshMu.Lock()
	defer n.refreshMu.Unlock()

	logger.InfoC("persona", "Refreshing persona cache from Notion")
	personas, err := n.queryDatabase(ctx)
	if err != nil {
		logger.ErrorCF("persona", "Failed to refresh persona cache", map[string]any{
			"error": err.Error(),
		})
		return 0, err
	}

	n.cache.Purge()
	for i := range personas {
		p := personas[i]
		n.cache.Add(normalizeKey(p.DisplayName), &p)
	}
	n.lastRefresh = n.now()
	logger.InfoCF("persona", "Persona cache refreshed", map[string]any{
		"count": n.cache.Len(),
	})
	return n.cache.Len(), nil
}

type notionQueryResponse struct {
	Results    []notionPage `json:"results"`
	HasMore    bool         `json:"has_more"`
	NextCursor string       `json:"next_cursor"`
}

type notionPage struct {
	ID         string                    `json:"id"`
	Properties map[string]notionProperty `json:"properties"`
}

type notionText struct {
	PlainText string `json:"plain_text"`
}

type notionOption struct {
	Name string `json:"name"`
}

type notionProperty struct {
	Type        string         `json:"type"`
	Title       []notionText   `json:"title"`
	RichText    []notionText   `json:"rich_text"`
	Select      *notionOption  `json:"select"`
	MultiSelect []notionOption `json:"multi_select"`
	Checkbox    *bool          `json:"checkbox"`
	Number      *float64       `json:"number"`
}

func (n *NotionLookup) queryDatabase(ctx context.Context) ([]Persona, error) {
	var out []Persona
	cursor := ""
	for page := 0; page < notionMaxPages; page++ {
		resp, err := n.queryPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Results {
			if persona, ok := n.parsePage(p); ok {
				out = append(out, persona)
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return out, nil
		}
		cursor = resp.NextCursor
	}
	logger.WarnCF("persona", "Notion query truncated", map[string]any{"pages": notionMaxPages})
	return out, nil
}

func (n *NotionLookup) queryPage(ctx context.Context, cursor string) (*notionQueryResponse, error) {
	body := map[string]interface{}{"page_size": notionPageSize}
	if cursor != "" {
		body["start_cursor"] = cursor
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal notion query: %w", err)
	}

	url := fmt.Sprintf("%s/databases/%s/query", n.opts.APIBase, n.opts.DatabaseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create notion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", n.opts.Version)

	resp, err := n.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send notion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read notion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("notion API error: status=%d body=%s", resp.StatusCode, truncate(string(raw), 500))
	}

	var parsed notionQueryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse notion response: %w", err)
	}
	return &parsed, nil
}

// parsePage maps database columns onto persona fields. Pages without a name
// are skipped.
func (n *NotionLookup) parsePage(page notionPage) (Persona, bool) {
	var p Persona
	for field, column := range n.opts.PropertyMap {
		prop, ok := page.Properties[column]
		if !ok {
			continue
		}
		value, ok := extractProperty(prop)
		if !ok {
			continue
		}
		switch field {
		case "name":
			p.DisplayName = asString(value)
		case "personality":
			p.Personality = asString(value)
		case "speaking_style":
			p.SpeakingStyle = asString(value)
		case "language":
			p.Language = asString(value)
		case "restrictions":
			p.Restrictions = asString(value)
		case "background":
			p.Background = asString(value)
		case "model":
			p.Model = asString(value)
		case "interests":
			p.Interests = asList(value)
		default:
			logger.DebugCF("persona", "Ignoring unknown persona field in property map", map[string]any{
				"field": field,
			})
		}
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return Persona{}, false
	}
	p.IdentityKey = p.DisplayName
	return p, true
}

// extractProperty returns the value of the supported Notion property types:
// title, rich_text, select, multi_select, checkbox and number.
func extractProperty(prop notionProperty) (interface{}, bool) {
	switch prop.Type {
	case "title":
		return joinText(prop.Title), len(prop.Title) > 0
	case "rich_text":
		return joinText(prop.RichText), len(prop.RichText) > 0
	case "select":
		if prop.Select == nil {
			return nil, false
		}
		return prop.Select.Name, true
	case "multi_select":
		names := make([]string, 0, len(prop.MultiSelect))
		for _, o := range prop.MultiSelect {
			if o.Name != "" {
				names = append(names, o.Name)
			}
		}
		return names, true
	case "checkbox":
		if prop.Checkbox == nil {
			return nil, false
		}
		return *prop.Checkbox, true
	case "number":
		if prop.Number == nil {
			return nil, false
		}
		return *prop.Number, true
	default:
		return nil, false
	}
}

func joinText(parts []notionText) string {
	var b strings.Builder
	for _, t := range parts {
		b.WriteString(t.PlainText)
	}
	return b.String()
}

func asString(v interface{}) string {
	switch vv := v.(type) {
	case string:
		return strings.TrimSpace(vv)
	case []string:
		return strings.Join(vv, ", ")
	case bool:
		return strconv.FormatBool(vv)
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	default:
		return ""
	}
}

func asList(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case string:
		var out []string
		for _, part := range strings.Split(vv, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		if s := asString(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
