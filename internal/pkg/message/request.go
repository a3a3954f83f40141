// Package message contains the request submitted by a client and the channel transferring it to the server.
package message

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/idgenerator"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
	"github.com/jleaniz/turbinia/internal/pkg/validator"
)

const (
	RequestType      = "TurbiniaRequest"
	DefaultRequester = "user_unspecified"
	GlobalsKey       = "globals"
)

// Request is a bundle of evidence to process.
// The evidence is validated when the request is created and it is not modified later,
// outputs of tasks travel in results.
type Request struct {
	RequestID string              `json:"request_id" validate:"required,identifier"`
	GroupID   string              `json:"group_id" validate:"required,identifier"`
	Requester string              `json:"requester" validate:"required"`
	Recipe    map[string]any      `json:"recipe" validate:"required"`
	Context   map[string]any      `json:"context"`
	Evidence  evidence.Collection `json:"evidence"`
	GroupName string              `json:"group_name"`
	Reason    string              `json:"reason"`
	AllArgs   string              `json:"all_args"`
	Type      string              `json:"type" validate:"required"`
}

type Option func(r *Request)

func WithRequestID(v string) Option {
	return func(r *Request) {
		r.RequestID = v
	}
}

func WithGroupID(v string) Option {
	return func(r *Request) {
		r.GroupID = v
	}
}

func WithRequester(v string) Option {
	return func(r *Request) {
		r.Requester = v
	}
}

// WithRecipe sets the recipe, the "globals" section is added if missing.
func WithRecipe(v map[string]any) Option {
	return func(r *Request) {
		r.Recipe = v
	}
}

func WithContext(v map[string]any) Option {
	return func(r *Request) {
		r.Context = v
	}
}

func WithEvidence(items ...evidence.Evidence) Option {
	return func(r *Request) {
		r.Evidence = append(r.Evidence, items...)
	}
}

func WithGroupName(v string) Option {
	return func(r *Request) {
		r.GroupName = v
	}
}

func WithReason(v string) Option {
	return func(r *Request) {
		r.Reason = v
	}
}

// WithAllArgs stores command line arguments of the client, for audit.
func WithAllArgs(v string) Option {
	return func(r *Request) {
		r.AllArgs = v
	}
}

// NewRequest creates a request with default values for unset fields.
// Each evidence is validated, an invalid evidence fails the submission.
func NewRequest(ctx context.Context, opts ...Option) (*Request, error) {
	r := &Request{}
	for _, o := range opts {
		o(r)
	}
	r.setDefaults()
	if err := r.Evidence.Validate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Request) setDefaults() {
	if r.RequestID == "" {
		r.RequestID = idgenerator.RequestID()
	}
	if r.GroupID == "" {
		r.GroupID = idgenerator.RequestID()
	}
	if r.Requester == "" {
		r.Requester = DefaultRequester
	}
	if r.Recipe == nil {
		r.Recipe = make(map[string]any)
	}
	if _, found := r.Recipe[GlobalsKey]; !found {
		r.Recipe[GlobalsKey] = make(map[string]any)
	}
	if r.Context == nil {
		r.Context = make(map[string]any)
	}
	if r.Evidence == nil {
		r.Evidence = evidence.Collection{}
	}
	r.Type = RequestType
}

// Globals returns the "globals" section of the recipe.
func (r *Request) Globals() map[string]any {
	if m, ok := r.Recipe[GlobalsKey].(map[string]any); ok {
		return m
	}
	return nil
}

// Validate checks required fields and all evidence.
func (r *Request) Validate(ctx context.Context) error {
	errs := errors.NewMultiError()
	if err := validator.New().Validate(ctx, r); err != nil {
		errs.Append(err)
	}
	if r.Type != RequestType {
		errs.Append(errors.Errorf(`unexpected type "%s", expected "%s"`, r.Type, RequestType))
	}
	if err := r.Evidence.Validate(ctx); err != nil {
		errs.Append(err)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return errors.PrefixErrorf(err, `request "%s" is not valid`, r.RequestID)
	}
	return nil
}

func (r *Request) ToJSON() ([]byte, error) {
	data, err := json.Encode(r, false)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `JSON serialization of request "%s" failed`, r.RequestID)
	}
	return data, nil
}

// TypeError is returned when a decoded message is not a request.
type TypeError struct {
	Type string
}

func (e TypeError) ErrorType() string {
	return "message_type"
}

func (e TypeError) Error() string {
	return fmt.Sprintf(`deserialized object does not have type of %s`, RequestType)
}

// FromJSON decodes a request, the type field must match.
// An invalid evidence is returned as evidence.DecodeError, a wrong type as TypeError.
func FromJSON(data []byte) (*Request, error) {
	header := struct {
		Type string `json:"type"`
	}{}
	if err := json.Decode(bytes.TrimSpace(data), &header); err != nil {
		return nil, errors.PrefixError(err, "cannot load JSON")
	}
	if header.Type != RequestType {
		return nil, errors.WithStack(TypeError{Type: header.Type})
	}

	type plain Request
	r := &Request{}
	aux := struct {
		*plain
		Evidence []json.RawMessage `json:"evidence"`
	}{plain: (*plain)(r)}
	if err := json.Decode(data, &aux); err != nil {
		return nil, errors.PrefixError(err, "cannot decode request")
	}
	items, err := evidence.DecodeCollection(aux.Evidence)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot decode request "%s"`, r.RequestID)
	}
	r.Evidence = items
	if r.Recipe == nil {
		r.Recipe = map[string]any{GlobalsKey: map[string]any{}}
	}
	return r, nil
}
