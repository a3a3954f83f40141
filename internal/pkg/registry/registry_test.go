package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type item struct {
	name string
}

func factory(name string) Factory[*item] {
	return func() *item {
		return &item{name: name}
	}
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()
	r := New[*item]("job")
	require.NoError(t, r.Register("PlasoJob", factory("plaso")))

	// Duplicate, case-insensitive
	err := r.Register("plasojob", factory("other"))
	require.Error(t, err)
	assert.Equal(t, `job "plasojob" is already registered`, err.Error())
	var alreadyErr AlreadyRegisteredError
	assert.True(t, errors.As(err, &alreadyErr))

	v, err := r.Get("PLASOJOB")
	require.NoError(t, err)
	assert.Equal(t, "plaso", v.name)
	assert.Equal(t, []string{"PlasoJob"}, r.Names())
}

func TestRegistry_GetNotFound(t *testing.T) {
	t.Parallel()
	r := New[*item]("job")
	_, err := r.Get("missing")
	require.Error(t, err)
	var notFound NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Name)
}

func TestRegistry_RegisterMany(t *testing.T) {
	t.Parallel()
	r := New[*item]("job")
	require.NoError(t, r.Register("GrepJob", factory("grep")))

	// All or nothing
	err := r.RegisterMany(map[string]Factory[*item]{"StringsJob": factory("strings"), "grepjob": factory("grep2")})
	require.Error(t, err)
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.RegisterMany(map[string]Factory[*item]{"StringsJob": factory("strings"), "FsstatJob": factory("fsstat")}))
	assert.Equal(t, []string{"FsstatJob", "GrepJob", "StringsJob"}, r.Names())

	items, err := r.GetMany([]string{"grepjob", "stringsjob"})
	require.NoError(t, err)
	assert.Equal(t, "grep", items[0].name)
	assert.Equal(t, "strings", items[1].name)
	assert.Len(t, r.All(), 3)
}

func TestRegistry_Deregister(t *testing.T) {
	t.Parallel()
	r := New[*item]("evidence")
	require.NoError(t, r.Register("RawDisk", factory("raw")))
	require.NoError(t, r.Deregister("rawdisk"))
	assert.False(t, r.Has("RawDisk"))
	require.Error(t, r.Deregister("rawdisk"))
}

func TestKey(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"PlasoJob", "plasojob", "plaso_job", "PLASOJOB"} {
		assert.Equal(t, "plasojob", Key(name), name)
	}
	assert.NotEqual(t, Key("PlasoJob"), Key("PlasoHasherTask"))
}
