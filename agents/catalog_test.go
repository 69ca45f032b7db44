package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadModelCatalogDefault(t *testing.T) {
	t.Setenv("AGENT_MODEL_CATALOG", "")

	catalog := loadModelCatalog()
	require.NotEmpty(t, catalog)
	assert.Equal(t, "claude-sonnet-4", defaultModel(catalog))
}

func TestLoadModelCatalogInlineOverride(t *testing.T) {
	t.Setenv("AGENT_MODEL_CATALOG", `[
		{"provider": "openai", "name": "gpt-4o", "display_name": "GPT-4o"},
		{"provider": "local", "name": "llama-3", "display_name": "Llama 3", "recommended": true},
		{"provider": "bad", "name": "   "}
	]`)

	catalog := loadModelCatalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, "llama-3", defaultModel(catalog))
}

func TestLoadModelCatalogBadOverrideFallsBack(t *testing.T) {
	t.Setenv("AGENT_MODEL_CATALOG", "{not json")

	catalog := loadModelCatalog()
	assert.Equal(t, len(defaultModelCatalog), len(catalog))
}

func TestDefaultModelEmptyCatalog(t *testing.T) {
	assert.Equal(t, "", defaultModel(nil))
	assert.Equal(t, "only", defaultModel([]ModelOption{{Name: "only"}}))
}
