package worker

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const dirPerm = 0o750

// CheckDirectory makes sure the directory exists and it is writable.
// A missing directory is created, the owner write permission is added if it is missing.
func CheckDirectory(path string) error {
	stat, err := os.Stat(path)
	switch {
	case err == nil && !stat.IsDir():
		return errors.Errorf(`file "%s" exists, but it is not a directory`, path)
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(path, dirPerm); err != nil {
			return errors.PrefixErrorf(err, `cannot create directory "%s"`, path)
		}
		return nil
	case err != nil:
		return errors.PrefixErrorf(err, `cannot check directory "%s"`, path)
	}

	if unix.Access(path, unix.W_OK) == nil {
		return nil
	}
	if err := os.Chmod(path, stat.Mode().Perm()|0o200); err != nil {
		return errors.PrefixErrorf(err, `cannot add write permissions to "%s"`, path)
	}
	return nil
}
