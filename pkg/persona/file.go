package persona

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileLookup serves personas from a YAML file of the form:
//
//	personas:
//	  - name: Kitsune
//	    identity_key: gpt-4o-animal
//	    personality: Curious
//	    interests: [folklore, tea]
type FileLookup struct {
	byKey map[string]Persona
}

type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

func LoadFileLookup(path string) (*FileLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return ParseFileLookup(data)
}

func ParseFileLookup(data []byte) (*FileLookup, error) {
	var doc personaFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}
	l := &FileLookup{byKey: make(map[string]Persona, len(doc.Personas))}
	for i, p := range doc.Personas {
		if strings.TrimSpace(p.DisplayName) == "" && strings.TrimSpace(p.IdentityKey) == "" {
			return nil, fmt.Errorf("persona file entry %d has neither name nor identity_key", i)
		}
		if key := normalizeKey(p.IdentityKey); key != "" {
			l.byKey[key] = p
		}
		if key := normalizeKey(p.DisplayName); key != "" {
			if _, taken := l.byKey[key]; !taken {
				l.byKey[key] = p
			}
		}
	}
	return l, nil
}

func (l *FileLookup) Get(_ context.Context, identityKey string) (*Persona, error) {
	p, ok := l.byKey[normalizeKey(identityKey)]
	if !ok {
		return nil, fmt.Errorf("file persona %q: %w", identityKey, ErrNotFound)
	}
	return &p, nil
}
