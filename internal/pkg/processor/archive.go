package processor

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	tarGzSuffix = ".tar.gz"
	tgzSuffix   = ".tgz"
)

// Tar compresses the directory to "<dir>.tar.gz", paths in the archive are relative to the directory.
func Tar(ctx context.Context, dir string) (archivePath string, err error) {
	dir = filepath.Clean(dir)
	archivePath = dir + tarGzSuffix

	file, err := os.Create(archivePath)
	if err != nil {
		return "", errors.PrefixErrorf(err, `cannot create archive "%s"`, archivePath)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	gzipWriter := pgzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzipWriter)

	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			// Skip symlinks, devices and sockets
			return nil
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tarWriter, src)
		return err
	})
	if walkErr != nil {
		return "", errors.PrefixErrorf(walkErr, `cannot compress "%s"`, dir)
	}

	if err := tarWriter.Close(); err != nil {
		return "", errors.WithStack(err)
	}
	if err := gzipWriter.Close(); err != nil {
		return "", errors.WithStack(err)
	}
	return archivePath, nil
}

// Untar extracts the archive to a new directory in the tmpDir and returns path to the directory.
func Untar(ctx context.Context, archivePath string, tmpDir string) (string, error) {
	name := filepath.Base(archivePath)
	name = strings.TrimSuffix(strings.TrimSuffix(name, tarGzSuffix), tgzSuffix)
	dir, err := os.MkdirTemp(tmpDir, name+"-")
	if err != nil {
		return "", errors.PrefixError(err, "cannot create directory for the uncompressed archive")
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return "", errors.PrefixErrorf(err, `cannot open archive "%s"`, archivePath)
	}
	defer file.Close()

	gzipReader, err := pgzip.NewReader(file)
	if err != nil {
		return "", errors.PrefixErrorf(err, `cannot read archive "%s"`, archivePath)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return "", errors.PrefixErrorf(err, `cannot read archive "%s"`, archivePath)
		}

		target := filepath.Join(dir, filepath.FromSlash(header.Name))
		if !strings.HasPrefix(target, dir+string(os.PathSeparator)) {
			return "", errors.Errorf(`archive entry "%s" is outside of the target directory`, header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", errors.WithStack(err)
			}
		case tar.TypeReg:
			if err := extractFile(tarReader, target, header.FileInfo().Mode().Perm()); err != nil {
				return "", err
			}
		}
	}

	return dir, nil
}

func extractFile(r io.Reader, target string, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.WithStack(err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := io.Copy(out, r); err != nil { // nolint: gosec
		_ = out.Close()
		return errors.WithStack(err)
	}
	return out.Close()
}
