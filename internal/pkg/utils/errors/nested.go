package errors

// nestedError is a main message followed by its reasons,
// for example `cannot mount evidence "disk.raw"` with the mount error below it.
type nestedError struct {
	main    error
	reasons []error
	trace   StackTrace
}

type nestedErrorGetter interface {
	MainError() error
	WrappedErrors() []error
}

// PrefixError returns "prefix: err", the reason stays reachable by Is and As.
func PrefixError(err error, prefix string) error {
	return newNestedError(New(prefix), []error{err}, callers())
}

func PrefixErrorf(err error, format string, a ...any) error {
	return newNestedError(Errorf(format, a...), []error{err}, callers())
}

// NewNestedError joins the main error with reasons, nil reasons are skipped and multi errors are flattened.
func NewNestedError(main error, reasons ...error) error {
	if main == nil {
		panic("error cannot be nil")
	}
	return newNestedError(main, reasons, callers())
}

func newNestedError(main error, reasons []error, trace StackTrace) *nestedError {
	e := &nestedError{main: main, trace: trace}
	for _, err := range reasons {
		switch v := err.(type) { // nolint: errorlint
		case nil:
		case *multiError:
			e.reasons = append(e.reasons, v.WrappedErrors()...)
		default:
			e.reasons = append(e.reasons, err)
		}
	}
	return e
}

func (e *nestedError) Error() string {
	return Format(e)
}

func (e *nestedError) Unwrap() []error {
	return append([]error{e.main}, e.reasons...)
}

func (e *nestedError) StackTrace() StackTrace {
	return e.trace
}

func (e *nestedError) MainError() error {
	return e.main
}

func (e *nestedError) WrappedErrors() []error {
	return append([]error(nil), e.reasons...)
}
