// Package duration provides a wrapper for time.Duration type,
// to serialize duration as string instead of int64 nanoseconds.
//
// Numbers are read as seconds, timeouts in configuration files and recipes are written that way.
package duration

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type Duration time.Duration

func From(duration time.Duration) Duration {
	return Duration(duration)
}

func Seconds(s float64) Duration {
	return Duration(s * float64(time.Second))
}

func (v Duration) Duration() time.Duration {
	return time.Duration(v)
}

func (v Duration) String() string {
	return v.Duration().String()
}

func (v Duration) MarshalText() (text []byte, err error) {
	return []byte(v.String()), nil
}

func (v *Duration) UnmarshalText(text []byte) error {
	str := string(text)
	// Plain number, for example "3600"
	if seconds, err := strconv.ParseFloat(str, 64); err == nil {
		*v = Seconds(seconds)
		return nil
	}
	duration, err := time.ParseDuration(str)
	if err != nil {
		return errors.Errorf(`invalid duration "%s"`, str)
	}
	*v = Duration(duration)
	return nil
}

func (v *Duration) UnmarshalJSON(b []byte) error {
	// String, for example, "1h20s"
	if bytes.HasPrefix(b, []byte(`"`)) && bytes.HasSuffix(b, []byte(`"`)) {
		return v.UnmarshalText(bytes.Trim(b, `"`))
	}
	var seconds float64
	if err := json.Decode(b, &seconds); err != nil {
		return err
	}
	*v = Seconds(seconds)
	return nil
}

func (v *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return errors.Errorf(`duration must be a scalar, found line %d`, n.Line)
	}
	return v.UnmarshalText([]byte(strings.Trim(n.Value, `"`)))
}
