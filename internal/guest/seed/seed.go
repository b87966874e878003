// Package seed loads guest profiles from a YAML or JSON file so a local
// event can run without a registration backend.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"eventgate/internal/guest/models"
)

type file struct {
	Guests []*models.Profile `json:"guests" yaml:"guests"`
}

// Saver is satisfied by the guest stores.
type Saver interface {
	Save(ctx context.Context, p *models.Profile) error
}

// LoadFile parses path by extension (.yaml, .yml or .json). Every profile is
// normalised and validated; the first invalid entry fails the whole file.
func LoadFile(path string) ([]*models.Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guests file: %w", err)
	}
	return Parse(raw, filepath.Ext(path))
}

func Parse(raw []byte, ext string) ([]*models.Profile, error) {
	var f file
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse guests yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse guests json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported guests file extension %q", ext)
	}

	seen := make(map[string]struct{}, len(f.Guests))
	for i, p := range f.Guests {
		if p == nil {
			return nil, fmt.Errorf("guest %d: empty entry", i)
		}
		p.Normalize()
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("guest %d: %w", i, err)
		}
		if _, dup := seen[p.Token]; dup {
			return nil, fmt.Errorf("guest %d: duplicate token %s", i, p.Token)
		}
		seen[p.Token] = struct{}{}
	}
	return f.Guests, nil
}

// Apply saves every profile, returning how many were written.
func Apply(ctx context.Context, s Saver, profiles []*models.Profile) (int, error) {
	for i, p := range profiles {
		if err := s.Save(ctx, p); err != nil {
			return i, fmt.Errorf("seed guest %s: %w", p.Token, err)
		}
	}
	return len(profiles), nil
}
