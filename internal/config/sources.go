package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"daily-digest/internal/domain/entity"
)

//go:embed sources.yaml
var defaultSourcesYAML []byte

// FeedSource is one trusted publisher and its per-topic feed addresses.
type FeedSource struct {
	Name  string            `yaml:"name"`
	Feeds map[string]string `yaml:"feeds"`
}

// SourceRegistry is the static source -> topic -> feed mapping.
// Sources keep their file order so fetch order is deterministic.
type SourceRegistry struct {
	Sources []FeedSource `yaml:"sources"`
}

// FeedTarget is one (source, topic, feed) combination to fetch.
type FeedTarget struct {
	Source string
	Topic  string
	URL    string
}

// LoadSourceRegistry reads the registry from path, or the embedded default when path is empty.
// The path parameter is expected to come from a trusted source (environment or CLI flag).
func LoadSourceRegistry(path string) (*SourceRegistry, error) {
	data := defaultSourcesYAML
	if path != "" {
		// #nosec G304 -- path is operator-provided configuration, not user input
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read source registry: %w", err)
		}
		data = b
	}
	return ParseSourceRegistry(data)
}

// ParseSourceRegistry decodes and validates a YAML registry.
func ParseSourceRegistry(data []byte) (*SourceRegistry, error) {
	var reg SourceRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse source registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("source registry validation failed: %w", err)
	}
	return &reg, nil
}

// Validate checks source names, topic names and feed URLs.
func (r *SourceRegistry) Validate() error {
	if len(r.Sources) == 0 {
		return &entity.ConfigurationError{Key: "sources", Message: "at least one source is required"}
	}
	seen := make(map[string]bool, len(r.Sources))
	for _, src := range r.Sources {
		if src.Name == "" {
			return &entity.ConfigurationError{Key: "sources", Message: "source name is required"}
		}
		if seen[src.Name] {
			return &entity.ConfigurationError{Key: "sources", Message: "duplicate source " + src.Name}
		}
		seen[src.Name] = true
		for topic, feedURL := range src.Feeds {
			if !entity.IsKnownTopic(topic) {
				return &entity.ConfigurationError{Key: src.Name, Message: "unknown topic " + topic}
			}
			if err := entity.ValidateFeedURL(feedURL); err != nil {
				return &entity.ConfigurationError{Key: src.Name + "." + topic, Message: err.Error()}
			}
		}
	}
	return nil
}

// FeedsFor lists the feeds to fetch for topics: topic order first, then source order.
// Sources without a feed for a topic are skipped.
func (r *SourceRegistry) FeedsFor(topics []string) []FeedTarget {
	targets := make([]FeedTarget, 0, len(topics)*len(r.Sources))
	for _, topic := range topics {
		for _, src := range r.Sources {
			feedURL, ok := src.Feeds[topic]
			if !ok || feedURL == "" {
				continue
			}
			targets = append(targets, FeedTarget{Source: src.Name, Topic: topic, URL: feedURL})
		}
	}
	return targets
}
