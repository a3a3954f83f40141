package log

import (
	"bufio"
	"reflect"
	"strings"

	"github.com/keboola/go-utils/pkg/wildcards"
	"github.com/stretchr/testify/assert"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// CompareJSONMessages checks that expected json messages appear in actual in the same order.
// Actual string may have extra messages and fields. String values are compared using wildcards.
func CompareJSONMessages(expected string, actual string) error {
	expectedScanner := bufio.NewScanner(strings.NewReader(strings.Trim(expected, "\n")))
	actualScanner := bufio.NewScanner(strings.NewReader(strings.Trim(actual, "\n")))

	for expectedScanner.Scan() {
		expectedLine := expectedScanner.Text()
		var expectedData map[string]any
		if err := json.DecodeString(expectedLine, &expectedData); err != nil {
			return errors.PrefixErrorf(err, "expected string contains invalid json:\n%s", expectedLine)
		}

		var seen strings.Builder
		found := false
		for !found && actualScanner.Scan() {
			actualLine := actualScanner.Text()
			seen.WriteString(actualLine + "\n")
			var actualData map[string]any
			if err := json.DecodeString(actualLine, &actualData); err != nil {
				return errors.PrefixErrorf(err, "actual string contains invalid json:\n%s", actualLine)
			}
			found = messageMatches(expectedData, actualData)
		}

		if !found {
			return errors.Errorf(
				"Expected:\n-----\n%s\n-----\nActual:\n-----\n%s",
				expectedLine,
				strings.TrimRight(seen.String(), "\n"),
			)
		}
	}

	return nil
}

// AssertJSONMessages checks that expected json messages appear in actual in the same order.
func AssertJSONMessages(t assert.TestingT, expected string, actual string, msgAndArgs ...any) bool {
	if err := CompareJSONMessages(expected, actual); err != nil {
		return assert.Fail(t, err.Error(), msgAndArgs...)
	}
	return true
}

func messageMatches(expected, actual map[string]any) bool {
	for key, value := range expected {
		actualValue, ok := actual[key]
		if !ok || !valueMatches(value, actualValue) {
			return false
		}
	}
	return true
}

func valueMatches(value any, actualValue any) bool {
	if expectedString, ok := value.(string); ok {
		actualString, ok := actualValue.(string)
		return ok && wildcards.Compare(expectedString, actualString) == nil
	}
	return reflect.DeepEqual(actualValue, value)
}
