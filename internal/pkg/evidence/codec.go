package evidence

import (
	"fmt"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// maxChainDepth limits nesting of parent evidence in decoded payloads.
const maxChainDepth = 32

// DecodeError is returned when a payload is not a valid evidence record.
type DecodeError struct {
	Type string
	err  error
}

func (e DecodeError) Error() string {
	msg := "cannot decode evidence"
	if e.Type != "" {
		msg = fmt.Sprintf(`cannot decode evidence "%s"`, e.Type)
	}
	if e.err == nil {
		return msg
	}
	return msg + ": " + e.err.Error()
}

func (e DecodeError) ErrorType() string {
	return "evidence_decode"
}

func (e DecodeError) Unwrap() error {
	return e.err
}

// Wire wraps an evidence to embed it in other JSON documents.
type Wire struct {
	Evidence
}

func (w Wire) MarshalJSON() ([]byte, error) {
	if w.Evidence == nil {
		return []byte("null"), nil
	}
	return Encode(w.Evidence)
}

func (w *Wire) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		w.Evidence = nil
		return nil
	}
	e, err := Decode(data)
	if err != nil {
		return err
	}
	w.Evidence = e
	return nil
}

// Encode serializes the evidence, variant attributes are flattened at the top level.
// The parent evidence is nested in the "parent_evidence" key.
func Encode(e Evidence) ([]byte, error) {
	m, err := encodeMap(e, false)
	if err != nil {
		return nil, err
	}
	return json.Encode(m, false)
}

func encodeMap(e Evidence, hasChild bool) (map[string]json.RawMessage, error) {
	raw, err := json.Encode(e, false)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot encode evidence "%s"`, e.Name())
	}
	m := make(map[string]json.RawMessage)
	if err := json.Decode(raw, &m); err != nil {
		return nil, err
	}

	m["type"] = json.MustEncode(e.Type(), false)
	m["has_child_evidence"] = json.MustEncode(hasChild, false)
	if parent := e.Parent(); parent != nil {
		pm, err := encodeMap(parent, true)
		if err != nil {
			return nil, err
		}
		m["parent_evidence"] = json.MustEncode(pm, false)
	}
	return m, nil
}

// Decode reconstructs the variant from the "type" discriminator.
func Decode(data []byte) (Evidence, error) {
	return decode(data, 0)
}

func decode(data []byte, depth int) (Evidence, error) {
	if depth > maxChainDepth {
		return nil, errors.WithStack(DecodeError{err: errors.Errorf("parent evidence chain is deeper than %d", maxChainDepth)})
	}

	var header struct {
		Type   string          `json:"type"`
		Parent json.RawMessage `json:"parent_evidence"`
	}
	if err := json.Decode(data, &header); err != nil {
		return nil, errors.WithStack(DecodeError{err: err})
	}
	if header.Type == "" {
		return nil, errors.WithStack(DecodeError{err: errors.New(`missing "type" discriminator`)})
	}

	e, err := New(header.Type)
	if err != nil {
		return nil, errors.WithStack(DecodeError{Type: header.Type, err: errors.New("unknown evidence type")})
	}
	if c, ok := e.(*EvidenceCollection); ok {
		// Items are decoded one by one, so an item error keeps its type
		if err := c.decodeJSON(data); err != nil {
			return nil, err
		}
	} else if err := json.Decode(data, e); err != nil {
		return nil, errors.WithStack(DecodeError{Type: header.Type, err: err})
	}

	// Unknown flags are dropped, missing flags are added
	b := e.Common()
	state := newStateMap()
	for s, v := range b.State {
		if _, ok := state[s]; ok {
			state[s] = v && b.IsPossible(s)
		}
	}
	b.State = state

	if len(header.Parent) > 0 && string(header.Parent) != "null" {
		parent, err := decode(header.Parent, depth+1)
		if err != nil {
			return nil, errors.PrefixErrorf(err, `cannot decode parent of evidence "%s"`, header.Type)
		}
		e.SetParent(parent)
	}
	return e, nil
}
