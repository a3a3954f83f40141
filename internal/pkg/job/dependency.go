package job

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DependencyError is returned when an external program of an enabled job is missing.
type DependencyError struct {
	// Missing maps a job name to missing programs.
	Missing map[string][]string
}

func (e DependencyError) ErrorType() string {
	return "missing_dependency"
}

func (e DependencyError) Error() string {
	jobs := make([]string, 0, len(e.Missing))
	for name := range e.Missing {
		jobs = append(jobs, name)
	}
	sort.Strings(jobs)
	parts := make([]string, 0, len(jobs))
	for _, name := range jobs {
		parts = append(parts, fmt.Sprintf(`job "%s" requires "%s"`, name, strings.Join(e.Missing[name], `", "`)))
	}
	return "missing job dependencies: " + strings.Join(parts, "; ")
}

// CheckDependencies checks that programs of all jobs can be found by the lookPath function.
// Overrides replace the programs declared by a job, keys are job names.
func CheckDependencies(jobs []Job, overrides map[string][]string, lookPath func(string) (string, error)) error {
	missing := make(map[string][]string)
	for _, j := range jobs {
		programs := j.Dependency().Programs
		if v, found := lookupFold(overrides, j.Name()); found {
			programs = v
		}
		for _, program := range programs {
			if _, err := lookPath(program); err != nil {
				missing[j.Name()] = append(missing[j.Name()], program)
			}
		}
	}
	if len(missing) > 0 {
		return DependencyError{Missing: missing}
	}
	return nil
}

// MaxTimeout returns the longest job timeout, the worker liveness check waits that long.
func MaxTimeout(jobs []Job, fallback time.Duration) time.Duration {
	out := time.Duration(0)
	for _, j := range jobs {
		if t := j.Dependency().Timeout; t > out {
			out = t
		}
	}
	if out == 0 {
		return fallback
	}
	return out
}

func lookupFold[V any](m map[string]V, key string) (V, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	var empty V
	return empty, false
}
