package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAgentFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	writeAgentFile(t, dir, "analyst.yaml", `
name: analyst
model: claude-4-sonnet
response_instruction: "Be brief."
tools:
  - tool_spec:
      type: cortex_analyst_text_to_sql
      name: analyst
tool_resources:
  analyst:
    semantic_model_file: "@db.schema.stage/model.yaml"
`)
	writeAgentFile(t, dir, "search.yml", `
response_instruction: "Search things."
`)
	writeAgentFile(t, dir, "broken.yaml", "tools: {not: [valid")
	writeAgentFile(t, dir, "notes.txt", "not an agent")

	registry, err := LoadRegistry(dir)
	require.NoError(t, err)

	analyst, err := registry.GetAgentConfiguration("analyst")
	require.NoError(t, err)
	require.NotNil(t, analyst)
	assert.Equal(t, "claude-4-sonnet", analyst.Model)
	require.Len(t, analyst.Tools, 1)
	assert.Equal(t, "cortex_analyst_text_to_sql", analyst.Tools[0].ToolSpec.Type)
	assert.Equal(t, "analyst", analyst.Tools[0].ToolSpec.Name)
	assert.Contains(t, analyst.ToolResources, "analyst")

	// name defaults to the filename when the file does not set one
	search, err := registry.GetAgentConfiguration("search")
	require.NoError(t, err)
	require.NotNil(t, search)
	assert.Equal(t, "search", search.Name)

	// unparseable files are skipped, not fatal
	broken, err := registry.GetAgentConfiguration("broken")
	require.NoError(t, err)
	assert.Nil(t, broken)
}

func TestLoadRegistryMissingDir(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestGetAgentConfigurationUnknownIsNilNil(t *testing.T) {
	registry := NewRegistry()
	cfg, err := registry.GetAgentConfiguration("ghost")
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestRenderInstruction(t *testing.T) {
	tests := []struct {
		name        string
		instruction string
		data        InstructionData
		expected    string
		expectError bool
	}{
		{
			name:        "plain text passes through",
			instruction: "Always answer politely.",
			expected:    "Always answer politely.",
		},
		{
			name:        "empty instruction renders empty",
			instruction: "",
			expected:    "",
		},
		{
			name:        "template variables",
			instruction: "Answer {{ .Query }} as {{ .Agent }}",
			data:        InstructionData{Query: "revenue by region", Agent: "analyst"},
			expected:    "Answer revenue by region as analyst",
		},
		{
			name:        "sprig functions available",
			instruction: "Hello {{ .User | upper }}",
			data:        InstructionData{User: "ada"},
			expected:    "Hello ADA",
		},
		{
			name:        "parse error is reported",
			instruction: "{{ .Query",
			expectError: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &AgentConfiguration{Name: "test", ResponseInstruction: tc.instruction}
			rendered, err := cfg.RenderInstruction(tc.data)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, rendered)
		})
	}
}
