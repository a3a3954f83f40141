package evidence

import (
	"context"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const TypeEvidenceCollection = "EvidenceCollection"

// Collection is an ordered list of evidence, items are not unique.
type Collection []Evidence

// EvidenceCollection is an evidence which only groups other evidence.
type EvidenceCollection struct {
	Base
	Collection Collection `json:"collection,omitempty"`
}

func NewEvidenceCollection(items ...Evidence) *EvidenceCollection {
	return &EvidenceCollection{Base: newBase(TypeEvidenceCollection), Collection: items}
}

func (c *Collection) Add(e Evidence) {
	*c = append(*c, e)
}

// Validate validates all items.
func (c Collection) Validate(ctx context.Context) error {
	errs := errors.NewMultiError()
	for i, item := range c {
		if err := item.Validate(ctx); err != nil {
			errs.AppendWithPrefixf(err, `evidence [%d] "%s" is not valid`, i, item.Name())
		}
	}
	return errs.ErrorOrNil()
}

func (c Collection) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(c))
	for _, item := range c {
		data, err := Encode(item)
		if err != nil {
			return nil, err
		}
		items = append(items, data)
	}
	return json.Encode(items, false)
}

func (c *Collection) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Decode(data, &items); err != nil {
		return errors.WithStack(DecodeError{err: err})
	}
	out, err := DecodeCollection(items)
	if err != nil {
		return err
	}
	*c = out
	return nil
}

// DecodeCollection decodes raw items of an evidence list.
// Documents embedding evidence decode it by this function, so the DecodeError reaches the caller.
func DecodeCollection(items []json.RawMessage) (Collection, error) {
	out := make(Collection, 0, len(items))
	for i, item := range items {
		e, err := Decode(item)
		if err != nil {
			return nil, errors.PrefixErrorf(err, "cannot decode evidence [%d]", i)
		}
		out = append(out, e)
	}
	return out, nil
}

func (e *EvidenceCollection) decodeJSON(data []byte) error {
	type plain EvidenceCollection
	aux := struct {
		*plain
		Collection []json.RawMessage `json:"collection"`
	}{plain: (*plain)(e)}
	if err := json.Decode(data, &aux); err != nil {
		return errors.WithStack(DecodeError{Type: TypeEvidenceCollection, err: err})
	}
	items, err := DecodeCollection(aux.Collection)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot decode evidence "%s"`, TypeEvidenceCollection)
	}
	e.Collection = items
	return nil
}

func (e *EvidenceCollection) Add(item Evidence) {
	e.Collection.Add(item)
}

func (e *EvidenceCollection) Validate(ctx context.Context) error {
	return e.Collection.Validate(ctx)
}
