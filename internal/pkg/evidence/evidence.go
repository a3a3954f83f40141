// Package evidence contains the typed evidence model and its processing state machine.
//
// Each evidence variant embeds Base and may declare hooks that bring it into the state required by a task.
// Hooks are never called directly, see Lifecycle.Preprocess and Lifecycle.Postprocess.
package evidence

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jleaniz/turbinia/internal/pkg/processor"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
	"github.com/jleaniz/turbinia/internal/pkg/validator"
)

// Evidence is implemented only by the variants of this package.
type Evidence interface {
	// Common returns attributes shared by all variants.
	Common() *Base
	Type() string
	Name() string
	PossibleStates() []State
	Parent() Evidence
	SetParent(parent Evidence)
	Validate(ctx context.Context) error
	preprocess(ctx context.Context, h *hookContext) error
	postprocess(ctx context.Context, h *hookContext) error
}

// Base holds attributes shared by all evidence variants.
type Base struct {
	typ      string
	possible []State

	ExplicitName     string                 `json:"name,omitempty"`
	Description      string                 `json:"description,omitempty"`
	Source           string                 `json:"source,omitempty"`
	SourcePath       string                 `json:"source_path,omitempty"`
	LocalPath        string                 `json:"local_path,omitempty"`
	DevicePath       string                 `json:"device_path,omitempty"`
	MountPath        string                 `json:"mount_path,omitempty"`
	Size             int64                  `json:"size,omitempty"`
	Tags             Tags                   `json:"tags,omitempty"`
	RequestID        string                 `json:"request_id,omitempty"`
	State            StateMap               `json:"state"`
	ResourceTracked  bool                   `json:"resource_tracked"`
	ResourceID       string                 `json:"resource_id,omitempty"`
	ContextDependent bool                   `json:"context_dependent"`
	Copyable         bool                   `json:"copyable"`
	CloudOnly        bool                   `json:"cloud_only"`
	SaveMetadata     bool                   `json:"save_metadata"`
	SavedPath        string                 `json:"saved_path,omitempty"`
	SavedPathType    string                 `json:"saved_path_type,omitempty"`
	Credentials      []processor.Credential `json:"credentials,omitempty"`
	ProcessedBy      []string               `json:"processed_by,omitempty"`
	Config           map[string]any         `json:"config,omitempty"`

	ParentEvidence Evidence `json:"-"`
}

// ValidationError is returned when an evidence is not complete or not in the expected shape.
type ValidationError struct {
	Evidence string
	err      error
}

// nolint: gochecknoglobals
var defaultValidator = sync.OnceValue(func() *validator.Validator {
	return validator.New()
})

func newBase(typ string, possible ...State) Base {
	return Base{typ: typ, possible: possible, State: newStateMap()}
}

func (e ValidationError) ErrorType() string {
	return "evidence_validation"
}

func (e ValidationError) Error() string {
	if e.err == nil {
		return fmt.Sprintf(`evidence "%s" is not valid`, e.Evidence)
	}
	return fmt.Sprintf(`evidence "%s" is not valid: %s`, e.Evidence, e.err.Error())
}

func (e ValidationError) Unwrap() error {
	return e.err
}

func (b *Base) Common() *Base {
	return b
}

func (b *Base) Type() string {
	return b.typ
}

func (b *Base) PossibleStates() []State {
	return b.possible
}

// Name returns the explicit name, the source path or the type, whichever is set first.
func (b *Base) Name() string {
	switch {
	case b.ExplicitName != "":
		return b.ExplicitName
	case b.SourcePath != "":
		return b.SourcePath
	default:
		return b.typ
	}
}

func (b *Base) Parent() Evidence {
	return b.ParentEvidence
}

func (b *Base) SetParent(parent Evidence) {
	b.ParentEvidence = parent
}

// Validate checks only the source path by default.
func (b *Base) Validate(ctx context.Context) error {
	return b.validateRequired(ctx, map[string]any{"source_path": b.SourcePath})
}

func (b *Base) validateRequired(ctx context.Context, attrs map[string]any) error {
	errs := errors.NewMultiError()
	for _, name := range sortedKeys(attrs) {
		if err := defaultValidator().ValidateCtx(ctx, attrs[name], "required", name); err != nil {
			errs.Append(err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return errors.WithStack(ValidationError{Evidence: b.typ, err: err})
	}
	return nil
}

// IsPossible returns true if the state flag can be set for the variant.
func (b *Base) IsPossible(s State) bool {
	return containsState(b.possible, s)
}

// HasState returns the current value of the state flag.
func (b *Base) HasState(s State) bool {
	return b.State[s]
}

// setState ignores flags which are not possible for the variant.
func (b *Base) setState(s State, v bool) {
	if b.State == nil {
		b.State = newStateMap()
	}
	if v && !b.IsPossible(s) {
		return
	}
	b.State[s] = v
}

// ResetState sets all state flags to false, a worker cannot trust the state from another host.
func (b *Base) ResetState() {
	b.State = newStateMap()
}

// FormatState returns the state flags in the canonical order, for example "[MOUNTED: false, ATTACHED: true, ...]".
func (b *Base) FormatState() string {
	parts := make([]string, 0, 4)
	for _, s := range AllStates() {
		parts = append(parts, fmt.Sprintf("%s: %t", s, b.State[s]))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// MarkProcessedBy records the job, so it is not scheduled again for the same evidence.
func (b *Base) MarkProcessedBy(job string) {
	for _, v := range b.ProcessedBy {
		if strings.EqualFold(v, job) {
			return
		}
	}
	b.ProcessedBy = append(b.ProcessedBy, job)
}

func (b *Base) WasProcessedBy(job string) bool {
	for _, v := range b.ProcessedBy {
		if strings.EqualFold(v, job) {
			return true
		}
	}
	return false
}

// no-op hooks, overridden by variants
func (b *Base) preprocess(context.Context, *hookContext) error  { return nil }
func (b *Base) postprocess(context.Context, *hookContext) error { return nil }

// CheckRequiredStates returns an error if a required state, which is possible for the variant, is not set.
func CheckRequiredStates(e Evidence, required []State) error {
	b := e.Common()
	var missing []string
	for _, s := range required {
		if b.IsPossible(s) && !b.HasState(s) {
			missing = append(missing, string(s))
		}
	}
	if len(missing) > 0 {
		return errors.Errorf(`evidence "%s" is not in the required state %s, current state %s`, e.Name(), strings.Join(missing, ", "), b.FormatState())
	}
	return nil
}

// Chain returns the evidence and all its ancestors, the evidence itself is first.
func Chain(e Evidence) []Evidence {
	var out []Evidence
	for item := e; item != nil; item = item.Parent() {
		out = append(out, item)
	}
	return out
}
