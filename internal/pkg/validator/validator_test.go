package validator

import (
	"context"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workerConfig struct {
	Name    string        `configKey:"name" validate:"required,identifier"`
	Threads int           `configKey:"threads" validate:"min=1"`
	Mounts  []mountConfig `json:"mounts" validate:"dive"`
	lockConfig
}

type mountConfig struct {
	Prefix string `json:"prefix" validate:"required"`
}

type lockConfig struct {
	LockFile string `yaml:"lockFile" validate:"required"`
}

func TestValidator_Struct(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	err := New().Validate(ctx, workerConfig{Name: "worker.1", Mounts: []mountConfig{{}, {Prefix: "/mnt"}}})
	require.Error(t, err)
	expected := `
- "name" can only contain alphanumeric characters, underscore and dash
- "threads" must be 1 or greater
- "mounts[0].prefix" is a required field
- "lockFile" is a required field
`
	assert.Equal(t, strings.TrimSpace(expected), err.Error())

	ok := workerConfig{Name: "worker_1-a", Threads: 2, lockConfig: lockConfig{LockFile: "/var/lock/turbinia"}}
	assert.NoError(t, New().Validate(ctx, ok))
	assert.NoError(t, New().Validate(ctx, &ok))
}

func TestValidator_Value(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v := New()

	cases := []struct {
		value     any
		tag       string
		namespace string
		err       string
	}{
		{value: "", tag: "required", err: `is a required field`},
		{value: "", tag: "required", namespace: "source_path", err: `"source_path" is a required field`},
		{value: "/disk.raw", tag: "required", namespace: "source_path"},
		{value: "abc-123_x", tag: "identifier", namespace: "request_id"},
		{value: "../etc", tag: "identifier", namespace: "request_id", err: `"request_id" can only contain alphanumeric characters, underscore and dash`},
	}

	for _, c := range cases {
		err := v.ValidateCtx(ctx, c.value, c.tag, c.namespace)
		if c.err == "" {
			assert.NoError(t, err, c.value)
		} else if assert.Error(t, err, c.value) {
			assert.Equal(t, c.err, err.Error())
		}
	}

	require.Error(t, v.ValidateValue("", "required"))
}

func TestValidator_CustomRule(t *testing.T) {
	t.Parallel()

	rule := Rule{
		Tag: "evidence_type",
		FuncNoCtx: func(fl validator.FieldLevel) bool {
			return fl.Field().String() == "RawDisk"
		},
		ErrorMsgFunc: func(fe validator.FieldError) string {
			return "type " + fe.Value().(string) + " is not supported"
		},
	}

	v := New(rule)
	require.NoError(t, v.ValidateCtx(context.Background(), "RawDisk", "evidence_type", "type"))
	err := v.ValidateCtx(context.Background(), "Unknown", "evidence_type", "type")
	require.Error(t, err)
	assert.Equal(t, `"type" type Unknown is not supported`, err.Error())
}
