package telemetry

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type lockError struct{}

func (lockError) Error() string     { return "cannot acquire lock" }
func (lockError) ErrorType() string { return "lock_timeout" }

func TestErrorType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err      error
		expected string
	}{
		{nil, ""},
		{errors.New("task failed"), "other"},
		{errors.Errorf(`task failed: %w`, context.Canceled), "context_canceled"},
		{errors.Errorf(`task failed: %w`, context.DeadlineExceeded), "deadline_exceeded"},
		{&net.DNSError{}, "net"},
		{&net.DNSError{IsTimeout: true}, "net_timeout"},
		{errors.PrefixError(lockError{}, "cannot run task"), "lock_timeout"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, ErrorType(tc.err), "%v", tc.err)
	}
}
