package errors

import (
	"bufio"
	"fmt"
	"strings"
)

const (
	Indent = "  "
	Bullet = "- "
)

// inlineLimit is the maximum length of "prefix: reason" written on one line.
const inlineLimit = 60

// errorWriter renders an error tree, see Format.
type errorWriter struct {
	config  FormatConfig
	message MessageFormatter
	prefix  PrefixFormatter
	out     strings.Builder
}

func newErrorWriter(message MessageFormatter, prefix PrefixFormatter, opts ...FormatOption) *errorWriter {
	w := &errorWriter{message: message, prefix: prefix}
	for _, o := range opts {
		o(&w.config)
	}
	return w
}

// sub returns an empty writer with the same configuration, used to measure a part of the output.
func (w *errorWriter) sub() *errorWriter {
	return &errorWriter{config: w.config, message: w.message, prefix: w.prefix}
}

func (w *errorWriter) String() string {
	return w.out.String()
}

func (w *errorWriter) write(parts ...string) {
	for _, s := range parts {
		w.out.WriteString(s)
	}
}

func (w *errorWriter) bullet(level int) {
	w.write(strings.Repeat(Indent, level), Bullet)
}

func (w *errorWriter) writeError(level int, err error, trace StackTrace) {
	if err == nil {
		panic(New("error cannot be nil"))
	}

	if v, ok := err.(stackTracer); ok { // nolint: errorlint
		trace = v.StackTrace()
	}

	// nolint: errorlint
	switch v := err.(type) {
	case nestedErrorGetter:
		w.writeNested(level, v.MainError(), v.WrappedErrors(), trace)
	case *multiError:
		w.writeList(level, v.WrappedErrors())
	case *withStack:
		if _, ok := v.error.(stackTracer); ok { // nolint: errorlint
			w.writeError(level, v.error, nil)
		} else {
			w.writeMessage(level, v.Error(), trace)
		}
	case *wrappedError:
		if !w.config.WithUnwrap || v.err == nil {
			w.writeMessage(level, v.msg, trace)
			return
		}
		w.write(w.prefix(w.message(v.msg, trace, w.config)), fmt.Sprintf(" (%T)\n", err))
		w.bullet(level)
		w.writeError(level+1, v.err, nil)
	default:
		w.writeMessage(level, v.Error(), trace)
	}
}

// writeNested writes "main: reason" on one line if it is short,
// otherwise the reasons follow as a bullet list.
func (w *errorWriter) writeNested(level int, main error, errs []error, trace StackTrace) {
	mainWriter := w.sub()
	mainWriter.writeError(level, main, trace)
	if len(errs) == 0 {
		w.write(mainWriter.String())
		return
	}
	mainStr := w.prefix(mainWriter.String())

	listWriter := w.sub()
	listWriter.writeList(level, errs)
	listStr := listWriter.String()

	w.write(mainStr)
	switch {
	case len(errs) == 1 && len(mainStr)+len(listStr) <= inlineLimit && !strings.Contains(listStr, "\n"):
		w.write(" ", listStr)
	case len(errs) == 1:
		w.write("\n")
		w.bullet(level)
		w.writeError(level+1, errs[0], nil)
	default:
		w.write("\n", listStr)
	}
}

func (w *errorWriter) writeList(level int, errs []error) {
	for i, err := range errs {
		if i > 0 {
			w.write("\n")
		}
		if len(errs) > 1 {
			w.bullet(level)
		}
		w.writeError(level+1, err, nil)
	}
}

// writeMessage indents continuation lines of a multi-line message.
func (w *errorWriter) writeMessage(level int, msg string, trace StackTrace) {
	scanner := bufio.NewScanner(strings.NewReader(w.message(msg, trace, w.config)))
	for first := true; scanner.Scan(); first = false {
		if !first {
			w.write("\n", strings.Repeat(Indent, level))
		}
		w.write(scanner.Text())
	}
}
