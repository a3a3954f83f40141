package evidence

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// Tag is one key/value pair of Tags.
type Tag struct {
	Key   string
	Value string
}

// Tags is an ordered string map, serialized as a JSON object with keys in the insertion order.
type Tags []Tag

func (t Tags) Get(key string) (string, bool) {
	for _, tag := range t {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing key or appends a new key.
func (t *Tags) Set(key, value string) {
	for i := range *t {
		if (*t)[i].Key == key {
			(*t)[i].Value = value
			return
		}
	}
	*t = append(*t, Tag{Key: key, Value: value})
}

func (t Tags) Keys() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = tag.Key
	}
	return out
}

func (t Tags) MarshalJSON() ([]byte, error) {
	stream := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)

	stream.WriteObjectStart()
	for i, tag := range t {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(tag.Key)
		stream.WriteString(tag.Value)
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, errors.WithStack(stream.Error)
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

func (t *Tags) UnmarshalJSON(data []byte) error {
	iter := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, data)
	*t = nil
	if iter.WhatIsNext() == jsoniter.NilValue {
		iter.ReadNil()
		return nil
	}
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		t.Set(key, it.ReadString())
		return it.Error == nil
	})
	if iter.Error != nil {
		return errors.PrefixError(iter.Error, "tags must be an object of strings")
	}
	return nil
}
