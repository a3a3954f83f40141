package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "recipe.yaml")
	content := `
globals:
  jobs_denylist: [StringsJob]
  filter_patterns:
    - (?i)password
  yara_rules: |
    rule x { condition: true }
PlasoParserTask:
  parsers: [winreg, prefetch]
GrepTask:
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"parsers": []any{"winreg", "prefetch"}}, r["PlasoParserTask"])
	assert.Equal(t, map[string]any{}, r["GrepTask"])

	globals, err := GlobalsOf(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"StringsJob"}, globals.JobsDenylist)
	assert.Equal(t, []string{"(?i)password"}, globals.FilterPatterns)
	assert.Equal(t, "rule x { condition: true }\n", globals.YaraRules)

	require.NoError(t, Validate(r, []string{"PlasoParserTask", "GrepTask"}))
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	r, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), r)

	_, err = Parse([]byte("globals: [a]"))
	require.Error(t, err)
	assert.Equal(t, `section "globals" must be a mapping`, err.Error())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	r := map[string]any{
		"globals":     map[string]any{"jobs_allowlist": []any{"A"}, "jobs_denylist": []any{"B"}},
		"UnknownTask": map[string]any{},
	}
	err := Validate(r, []string{"FsstatTask"})
	require.Error(t, err)
	assert.Equal(t, "recipe is not valid:\n- jobs_allowlist and jobs_denylist cannot be used together\n- unknown task \"UnknownTask\" in the recipe", err.Error())

	_, err = GlobalsOf(map[string]any{"globals": map[string]any{"debug_tasks": "yes"}})
	require.Error(t, err)
}
