package errors

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNestedError_Is(t *testing.T) {
	t.Parallel()

	err := PrefixError(io.ErrUnexpectedEOF, "cannot decode")
	assert.True(t, Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "cannot decode: unexpected EOF", err.Error())
}

func TestMultiError_ErrorOrNil(t *testing.T) {
	t.Parallel()

	errs := NewMultiError()
	assert.NoError(t, errs.ErrorOrNil())

	errs.Append(nil)
	assert.NoError(t, errs.ErrorOrNil())

	errs.Append(io.EOF)
	assert.Equal(t, io.EOF, errs.ErrorOrNil())

	errs.Append(New("second"))
	assert.Equal(t, 2, errs.Len())
	assert.True(t, Is(errs.ErrorOrNil(), io.EOF))
}

func TestFormat_WithStack(t *testing.T) {
	t.Parallel()

	out := Format(New("original error"), FormatWithStack())
	assert.Regexp(t, `^original error \[.*errors_test\.go:\d+\]$`, out)
}

func TestWithStack_Nil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, WithStack(nil))
}

func TestNewNestedError(t *testing.T) {
	t.Parallel()

	reasons := NewMultiError()
	reasons.Append(New("loop device busy"), io.ErrUnexpectedEOF)
	err := NewNestedError(New("cannot enumerate partitions"), reasons, nil)

	assert.True(t, Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "cannot enumerate partitions:\n- loop device busy\n- unexpected EOF", err.Error())
}
