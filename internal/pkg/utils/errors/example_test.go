package errors_test

import (
	"fmt"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

func ExampleNew() {
	fmt.Println(errors.New("some error"))
	// output:
	// some error
}

func ExampleErrorf() {
	err := errors.Errorf("enhanced error message: %w", errors.New("original error"))
	fmt.Println(err)
	// output:
	// enhanced error message: original error
}

func ExampleWrap() {
	err := errors.Wrap(errors.New("original error"), "new error message")
	fmt.Println(errors.Format(err, errors.FormatWithUnwrap()))
	// output:
	// new error message: (*errors.wrappedError)
	// - original error
}

func ExamplePrefixError() {
	err := errors.PrefixError(errors.New("disk not found"), "cannot attach evidence")
	fmt.Println(err)
	// output:
	// cannot attach evidence: disk not found
}

func ExampleNewMultiError() {
	errs := errors.NewMultiError()
	errs.Append(errors.New("first"))
	errs.AppendWithPrefix(errors.New("second"), "prefix")
	fmt.Println(errs.ErrorOrNil())
	// output:
	// - first
	// - prefix: second
}
