package task

import (
	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// DecodeJSON decodes the task, an invalid evidence is returned as evidence.DecodeError.
func (t *Task) DecodeJSON(data []byte) error {
	type plain Task
	aux := struct {
		*plain
		Evidence json.RawMessage `json:"evidence"`
	}{plain: (*plain)(t)}
	if err := json.Decode(data, &aux); err != nil {
		return errors.PrefixError(err, "cannot decode task")
	}

	t.Evidence = evidence.Wire{}
	if len(aux.Evidence) == 0 || string(aux.Evidence) == "null" {
		return nil
	}
	e, err := evidence.Decode(aux.Evidence)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot decode task "%s"`, t.ID)
	}
	t.Evidence.Evidence = e
	return nil
}

// DecodeJSON decodes the result, an invalid output evidence is returned as evidence.DecodeError.
func (r *Result) DecodeJSON(data []byte) error {
	type plain Result
	aux := struct {
		*plain
		Evidence []json.RawMessage `json:"evidence"`
	}{plain: (*plain)(r)}
	if err := json.Decode(data, &aux); err != nil {
		return errors.PrefixError(err, "cannot decode task result")
	}

	items, err := evidence.DecodeCollection(aux.Evidence)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot decode result of the task "%s"`, r.ID)
	}
	r.Evidence = nil
	if len(items) > 0 {
		r.Evidence = items
	}
	return nil
}

// DecodeTaskID reads only the task identification, it is used when the full message cannot be decoded.
func DecodeTaskID(data []byte) (*Task, bool) {
	var header struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		JobName   string `json:"job_name"`
		RequestID string `json:"request_id"`
		GroupID   string `json:"group_id"`
		Requester string `json:"requester"`
	}
	if err := json.Decode(data, &header); err != nil || header.ID == "" {
		return nil, false
	}
	return &Task{
		ID:        header.ID,
		Name:      header.Name,
		JobName:   header.JobName,
		RequestID: header.RequestID,
		GroupID:   header.GroupID,
		Requester: header.Requester,
	}, true
}
