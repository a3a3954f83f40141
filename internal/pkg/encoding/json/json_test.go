package json

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testValue struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

func TestEncodeString(t *testing.T) {
	t.Parallel()

	out, err := EncodeString(testValue{Name: "disk"}, false)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"disk"}`, out)

	out, err = EncodeString(testValue{Name: "disk", Count: 2}, true)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"disk\",\n  \"count\": 2\n}", out)
}

func TestDecodeString(t *testing.T) {
	t.Parallel()

	var v testValue
	require.NoError(t, DecodeString(`{"name":"disk","count":3,"extra":true}`, &v))
	assert.Equal(t, testValue{Name: "disk", Count: 3}, v)

	err := DecodeString(`{"name":`, &v)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "json decode failed:"), err.Error())
	assert.Greater(t, len(err.Error()), len("json decode failed:"))
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()

	var v testValue
	require.NoError(t, DecodeStrict([]byte(`{"name":"disk"}`), &v))
	err := DecodeStrict([]byte(`{"name":"disk","extra":true}`), &v)
	require.Error(t, err)
	// The reason is kept
	assert.Contains(t, err.Error(), "extra")
}
