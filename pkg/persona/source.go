package persona

import (
	"strings"
	"time"

	"github.com/dotsetgreg/aizoo/pkg/config"
	"github.com/dotsetgreg/aizoo/pkg/logger"
)

// Sources is the lookup chain built from config plus anything that needs
// closing on shutdown.
type Sources struct {
	Lookup Lookup
	Notion *NotionLookup
	Cache  *SQLiteCache
}

func (s *Sources) Close() error {
	if s == nil || s.Cache == nil {
		return nil
	}
	return s.Cache.Close()
}

// NewSourcesFromConfig picks Notion when credentials are present, otherwise
// the YAML persona file, and wraps the result in the sqlite cache when a
// cache path is configured. A nil Lookup means only the default persona is
// available.
func NewSourcesFromConfig(cfg *config.Config) (*Sources, error) {
	s := &Sources{}
	pc := cfg.Persona

	switch {
	case strings.TrimSpace(pc.NotionAPIKey) != "" && strings.TrimSpace(pc.NotionDatabaseID) != "":
		notion, err := NewNotionLookup(NotionOptions{
			APIKey:          pc.NotionAPIKey,
			DatabaseID:      pc.NotionDatabaseID,
			APIBase:         pc.NotionAPIBase,
			Version:         pc.NotionVersion,
			PropertyMap:     pc.PropertyMap,
			RefreshInterval: time.Duration(pc.RefreshMinutes) * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		s.Notion = notion
		s.Lookup = notion
	case strings.TrimSpace(pc.File) != "":
		file, err := LoadFileLookup(cfg.PersonaFilePath())
		if err != nil {
			return nil, err
		}
		s.Lookup = file
	default:
		logger.InfoC("persona", "No persona source configured")
	}

	if s.Lookup != nil && strings.TrimSpace(pc.CacheDB) != "" {
		cache, err := OpenSQLiteCache(cfg.PersonaCachePath())
		if err != nil {
			logger.WarnCF("persona", "Persona cache unavailable", map[string]any{
				"error": err.Error(),
			})
			return s, nil
		}
		s.Cache = cache
		s.Lookup = NewCachedLookup(s.Lookup, cache)
	}
	return s, nil
}
