package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// FormatConfig configures error output, see FormatOption.
type FormatConfig struct {
	// WithStack appends the first stack frame to each message.
	WithStack bool
	// WithUnwrap writes wrapped errors as a bullet list.
	WithUnwrap bool
}

type FormatOption func(c *FormatConfig)

// MessageFormatter formats each error message.
type MessageFormatter func(msg string, trace StackTrace, config FormatConfig) string

// PrefixFormatter formats a prefix followed by a list of errors.
type PrefixFormatter func(prefix string) string

func FormatWithStack() FormatOption {
	return func(c *FormatConfig) {
		c.WithStack = true
	}
}

func FormatWithUnwrap() FormatOption {
	return func(c *FormatConfig) {
		c.WithUnwrap = true
	}
}

// Format error to a human-readable string.
// Multi errors and nested errors are formatted as an indented bullet list.
func Format(err error, opts ...FormatOption) string {
	w := newErrorWriter(DefaultMessageFormatter(), DefaultPrefixFormatter(), opts...)
	w.writeError(0, err, nil)
	return w.String()
}

func DefaultMessageFormatter() MessageFormatter {
	return func(msg string, trace StackTrace, config FormatConfig) string {
		if config.WithStack && len(trace) > 0 {
			frame := trace[0]
			if fn := runtime.FuncForPC(frame); fn != nil {
				file, line := fn.FileLine(frame - 1)
				msg = fmt.Sprintf("%s [%s:%d]", msg, file, line)
			}
		}
		return msg
	}
}

func DefaultPrefixFormatter() PrefixFormatter {
	return func(prefix string) string {
		return strings.TrimRight(prefix, ".,:") + ":"
	}
}
