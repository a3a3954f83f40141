// Package json wraps json-iterator with the standard library compatible configuration
// and adds helpers returning wrapped errors.
package json

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// nolint: gochecknoglobals
var api = jsoniter.ConfigCompatibleWithStandardLibrary

type RawMessage = jsoniter.RawMessage

func Encode(v any, pretty bool) ([]byte, error) {
	var data []byte
	var err error
	if pretty {
		data, err = api.MarshalIndent(v, "", "  ")
	} else {
		data, err = api.Marshal(v)
	}
	if err != nil {
		return nil, errors.PrefixError(err, "json encode failed")
	}
	return data, nil
}

func EncodeString(v any, pretty bool) (string, error) {
	data, err := Encode(v, pretty)
	return string(data), err
}

func MustEncode(v any, pretty bool) []byte {
	data, err := Encode(v, pretty)
	if err != nil {
		panic(err)
	}
	return data
}

func MustEncodeString(v any, pretty bool) string {
	return string(MustEncode(v, pretty))
}

func Decode(data []byte, v any) error {
	if err := api.Unmarshal(data, v); err != nil {
		return errors.PrefixError(err, "json decode failed")
	}
	return nil
}

func DecodeString(data string, v any) error {
	return Decode([]byte(data), v)
}

// DecodeStrict fails on unknown object keys.
func DecodeStrict(data []byte, v any) error {
	decoder := api.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.PrefixError(err, "json decode failed")
	}
	return nil
}
