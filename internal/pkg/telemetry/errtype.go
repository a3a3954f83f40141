package telemetry

import (
	"context"
	"net"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// TypedError provides its own category for ErrorType.
type TypedError interface {
	error
	ErrorType() string
}

// ErrorType returns a low-cardinality error category, used as a span and metric attribute.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}

	var typedErr TypedError
	var netErr net.Error
	switch {
	case errors.As(err, &typedErr):
		return typedErr.ErrorType()
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "net_timeout"
	case errors.As(err, &netErr):
		return "net"
	default:
		return "other"
	}
}
