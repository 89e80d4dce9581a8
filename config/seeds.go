package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is one externally provided instance entry.
type Seed struct {
	URL string `yaml:"url"`
	Tor bool   `yaml:"tor"`
}

// LoadSeeds reads a YAML instance seed list:
//
//	- url: https://searx.example.org
//	- url: http://example.onion
//	  tor: true
func LoadSeeds(path string) ([]Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seeds []Seed
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	for i, s := range seeds {
		if s.URL == "" {
			return nil, fmt.Errorf("seed file %s: entry %d has no url", path, i)
		}
	}
	return seeds, nil
}
