package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HelpContent is the free-form document served to the UI help panel.
type HelpContent map[string]any

// DefaultHelpContent is served when no help file is configured or it cannot
// be read.
func DefaultHelpContent() HelpContent {
	return HelpContent{
		"title": "Deployment Guide",
		"sections": []any{
			map[string]any{
				"title":   "Getting Started",
				"content": "Enter your API key and select a deployment type to begin.",
			},
		},
	}
}

// LoadHelpContent reads a YAML or JSON help document.
func LoadHelpContent(path string) (HelpContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read help content %s: %w", path, err)
	}
	var help HelpContent
	if err := yaml.Unmarshal(data, &help); err != nil {
		return nil, fmt.Errorf("failed to decode help content %s: %w", path, err)
	}
	if help == nil {
		return nil, fmt.Errorf("help content %s is empty", path)
	}
	return help, nil
}
