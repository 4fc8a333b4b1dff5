// Package sources loads the discovery-source configuration: the feeds and
// browse listings the discover stage walks for new creators and items.
package sources

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Config struct {
	Feeds  []Source `yaml:"feeds"`
	Browse []Source `yaml:"browse"`
}

// Load reads a YAML source configuration. An empty path yields the built-in
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}

	for _, source := range append(append([]Source{}, config.Feeds...), config.Browse...) {
		if source.Name == "" || source.URL == "" {
			return nil, fmt.Errorf("sources file %s: every source needs a name and a url", path)
		}
	}

	return &config, nil
}

// Default returns the stock discovery sources.
func Default() *Config {
	return &Config{
		Feeds: []Source{
			{Name: "all-games", URL: "https://itch.io/games.xml"},
			{Name: "newest", URL: "https://itch.io/games/newest.xml"},
		},
		Browse: []Source{
			{Name: "top-rated", URL: "https://itch.io/games/top-rated"},
			{Name: "popular", URL: "https://itch.io/games"},
			{Name: "new-popular", URL: "https://itch.io/games/new-and-popular"},
			{Name: "newest", URL: "https://itch.io/games/newest"},
		},
	}
}
