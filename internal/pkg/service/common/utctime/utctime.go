// Package utctime provides a time type serialized in UTC with millisecond precision.
package utctime

import (
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const TimeFormat = "2006-01-02T15:04:05.000Z"

type UTCTime time.Time

func From(t time.Time) UTCTime {
	return UTCTime(t.UTC())
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func Parse(str string) (UTCTime, error) {
	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return UTCTime{}, errors.Errorf(`invalid time "%s"`, str)
	}
	return From(t), nil
}

func (v UTCTime) Time() time.Time {
	return time.Time(v)
}

func (v UTCTime) IsZero() bool {
	return v.Time().IsZero()
}

func (v UTCTime) String() string {
	return FormatTime(v.Time())
}

func (v UTCTime) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *UTCTime) UnmarshalText(text []byte) error {
	t, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = t
	return nil
}
