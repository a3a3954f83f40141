// Package recipe loads processing options of a request.
//
// A recipe is a YAML mapping with the "globals" section and optional sections named by tasks:
//
//	globals:
//	  jobs_denylist: [StringsJob]
//	  filter_patterns: ["(?i)password"]
//	PlasoParserTask:
//	  parsers: [winreg]
package recipe

import (
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const GlobalsKey = "globals"

// Globals are options shared by all tasks of the request.
type Globals struct {
	JobsAllowlist  []string `json:"jobs_allowlist,omitempty"`
	JobsDenylist   []string `json:"jobs_denylist,omitempty"`
	FilterPatterns []string `json:"filter_patterns,omitempty"`
	YaraRules      string   `json:"yara_rules,omitempty"`
	DebugTasks     bool     `json:"debug_tasks,omitempty"`
}

// Default returns a recipe with an empty globals section.
func Default() map[string]any {
	return map[string]any{GlobalsKey: map[string]any{}}
}

func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot read recipe "%s"`, path)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot load recipe "%s"`, path)
	}
	return r, nil
}

// Parse decodes YAML, the globals section is added if missing.
func Parse(data []byte) (map[string]any, error) {
	r := make(map[string]any)
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, errors.PrefixError(err, "invalid YAML")
	}
	for key, section := range r {
		if _, ok := section.(map[string]any); !ok && section != nil {
			return nil, errors.Errorf(`section "%s" must be a mapping`, key)
		}
		if section == nil {
			r[key] = map[string]any{}
		}
	}
	if _, found := r[GlobalsKey]; !found {
		r[GlobalsKey] = map[string]any{}
	}
	return r, nil
}

// GlobalsOf returns typed globals of the recipe.
func GlobalsOf(r map[string]any) (Globals, error) {
	out := Globals{}
	section, found := r[GlobalsKey]
	if !found || section == nil {
		return out, nil
	}
	data, err := json.Encode(section, false)
	if err != nil {
		return out, errors.PrefixError(err, "cannot encode recipe globals")
	}
	if err := json.Decode(data, &out); err != nil {
		return out, errors.PrefixError(err, "invalid recipe globals")
	}
	return out, nil
}

// Validate checks the globals and names of task sections.
func Validate(r map[string]any, taskNames []string) error {
	errs := errors.NewMultiError()

	globals, err := GlobalsOf(r)
	if err != nil {
		errs.Append(err)
	} else if len(globals.JobsAllowlist) > 0 && len(globals.JobsDenylist) > 0 {
		errs.Append(errors.New("jobs_allowlist and jobs_denylist cannot be used together"))
	}

	for key := range r {
		if key == GlobalsKey {
			continue
		}
		if !slices.ContainsFunc(taskNames, func(name string) bool { return strings.EqualFold(name, key) }) {
			errs.Append(errors.Errorf(`unknown task "%s" in the recipe`, key))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return errors.PrefixError(err, "recipe is not valid")
	}
	return nil
}
