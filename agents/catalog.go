package agents

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ModelOption describes one chat model agents can be configured with.
type ModelOption struct {
	Provider     string   `json:"provider"`
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Description  string   `json:"description,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Recommended  bool     `json:"recommended,omitempty"`
}

var defaultModelCatalog = []ModelOption{
	{
		Provider:     "anthropic",
		Name:         "claude-sonnet-4",
		DisplayName:  "Claude Sonnet 4",
		Description:  "Balanced default for agent workloads.",
		Capabilities: []string{"chat", "tools", "vision"},
		Recommended:  true,
	},
	{
		Provider:     "anthropic",
		Name:         "claude-haiku-3-5",
		DisplayName:  "Claude Haiku 3.5",
		Description:  "Low latency model for high volume threads.",
		Capabilities: []string{"chat", "tools"},
	},
	{
		Provider:     "openai",
		Name:         "gpt-4o",
		DisplayName:  "GPT-4o",
		Description:  "General purpose model with vision support.",
		Capabilities: []string{"chat", "tools", "vision"},
	},
	{
		Provider:     "openai",
		Name:         "gpt-4o-mini",
		DisplayName:  "GPT-4o mini",
		Description:  "Cost efficient model for simple agents.",
		Capabilities: []string{"chat", "tools"},
	},
	{
		Provider:     "google",
		Name:         "gemini-2.5-pro",
		DisplayName:  "Gemini 2.5 Pro",
		Description:  "Long context model for knowledge heavy agents.",
		Capabilities: []string{"chat", "tools", "long-context"},
	},
}

// loadModelCatalog returns the model catalog, honoring the
// AGENT_MODEL_CATALOG override (inline JSON or a path to a JSON file).
func loadModelCatalog() []ModelOption {
	raw := strings.TrimSpace(os.Getenv("AGENT_MODEL_CATALOG"))
	if raw == "" {
		return append([]ModelOption(nil), defaultModelCatalog...)
	}

	if catalog := parseModelCatalogJSON(raw); len(catalog) > 0 {
		return catalog
	}

	path := filepath.Clean(raw)
	if data, err := os.ReadFile(path); err == nil {
		if catalog := parseModelCatalogJSON(string(data)); len(catalog) > 0 {
			return catalog
		}
		log.Printf("agents: model catalog file %s is not valid JSON, using defaults", path)
	}
	return append([]ModelOption(nil), defaultModelCatalog...)
}

func parseModelCatalogJSON(raw string) []ModelOption {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") {
		return nil
	}
	var catalog []ModelOption
	if err := json.Unmarshal([]byte(trimmed), &catalog); err != nil {
		return nil
	}
	cleaned := catalog[:0]
	for _, option := range catalog {
		if strings.TrimSpace(option.Name) == "" {
			continue
		}
		cleaned = append(cleaned, option)
	}
	return cleaned
}

// defaultModel returns the recommended catalog entry, falling back to the
// first one.
func defaultModel(catalog []ModelOption) string {
	for _, option := range catalog {
		if option.Recommended {
			return option.Name
		}
	}
	if len(catalog) > 0 {
		return catalog[0].Name
	}
	return ""
}
