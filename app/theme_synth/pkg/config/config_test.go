package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_KeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: openai
  model: gpt-4o-mini
gate:
  min_entities: 3
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Gate.MinEntities)
	assert.Equal(t, 2, cfg.Gate.CrossCategoryMinEntities())
	assert.InDelta(t, 0.7, cfg.Clustering.DistanceThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Synthesis.SampleSize)
	assert.Len(t, cfg.Quote.KeywordGroups, 5)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("THEME_SYNTH_LLM_API_KEY", "sk-from-env")
	path := writeConfig(t, "llm:\n  api_key: sk-from-file\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown provider": "llm:\n  provider: bard\n",
		"threshold > 1":    "clustering:\n  distance_threshold: 1.5\n",
		"inverted bands":   "scoring:\n  strong_threshold: 2\n  moderate_threshold: 4\n",
		"empty keywords":   "quote:\n  keyword_groups:\n    - name: cost\n      keywords: []\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestCrossCategoryMinEntities_Floor(t *testing.T) {
	assert.Equal(t, 2, GateConfig{MinEntities: 1}.CrossCategoryMinEntities())
	assert.Equal(t, 2, GateConfig{MinEntities: 2}.CrossCategoryMinEntities())
	assert.Equal(t, 4, GateConfig{MinEntities: 5}.CrossCategoryMinEntities())
}

func TestLoadConfig_ShippedExample(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Clustering, cfg.Clustering)
	assert.Equal(t, Default().Quote.KeywordGroups, cfg.Quote.KeywordGroups)
}
