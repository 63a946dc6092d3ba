package agent

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Agents []catalogEntry `yaml:"agents"`
}

type catalogEntry struct {
	ID           string           `yaml:"id"`
	Name         string           `yaml:"name"`
	BusinessName string           `yaml:"businessName"`
	Tone         string           `yaml:"tone"`
	SystemPrompt string           `yaml:"systemPrompt"`
	Active       *bool            `yaml:"active"`
	Knowledge    []KnowledgeEntry `yaml:"knowledge"`
}

// LoadCatalogFile reads an agents catalog from a YAML file.
func LoadCatalogFile(path string) ([]Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents catalog: %w", err)
	}
	return ParseCatalog(bytes.NewReader(data))
}

// ParseCatalog decodes a catalog document. Agents are active unless `active: false` is set.
func ParseCatalog(r io.Reader) ([]Agent, error) {
	var file catalogFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode agents catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Agents))
	agents := make([]Agent, 0, len(file.Agents))
	for i, entry := range file.Agents {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("agents[%d]: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("agents[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}

		active := true
		if entry.Active != nil {
			active = *entry.Active
		}

		agents = append(agents, Agent{
			ID:           id,
			Name:         strings.TrimSpace(entry.Name),
			BusinessName: strings.TrimSpace(entry.BusinessName),
			Tone:         strings.TrimSpace(entry.Tone),
			SystemPrompt: strings.TrimSpace(entry.SystemPrompt),
			Active:       active,
			Knowledge:    entry.Knowledge,
		})
	}
	return agents, nil
}

// LoadStore returns the catalog at path, or the demo seed when path is empty.
func LoadStore(path string) (*MemoryStore, error) {
	if path == "" {
		return NewMemoryStore(Seed()), nil
	}
	items, err := LoadCatalogFile(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(items), nil
}
