package idgenerator

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	t.Parallel()
	id := RequestID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), id)
	assert.NotEqual(t, id, RequestID())
}

func TestTaskID(t *testing.T) {
	t.Parallel()
	assert.Len(t, TaskID(), TaskIDLength)
	assert.Regexp(t, `^worker-[0-9a-z]{10}$`, WorkerID())
}
