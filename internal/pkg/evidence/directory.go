package evidence

import (
	"context"

	"github.com/jleaniz/turbinia/internal/pkg/processor"
)

const (
	TypeDirectory           = "Directory"
	TypeCompressedDirectory = "CompressedDirectory"
)

type Directory struct {
	Base
}

// CompressedDirectory is a tar.gz archive of a directory.
type CompressedDirectory struct {
	Base
	UncompressedDirectory string `json:"uncompressed_directory,omitempty"`
}

func NewDirectory(sourcePath string) *Directory {
	e := &Directory{Base: newBase(TypeDirectory)}
	e.SourcePath = sourcePath
	e.Copyable = true
	return e
}

func NewCompressedDirectory(sourcePath string) *CompressedDirectory {
	e := &CompressedDirectory{Base: newBase(TypeCompressedDirectory, StateDecompressed)}
	e.SourcePath = sourcePath
	e.Copyable = true
	return e
}

func (e *CompressedDirectory) preprocess(ctx context.Context, h *hookContext) error {
	if !h.requested(&e.Base, StateDecompressed) {
		return nil
	}
	dir, err := h.processor.Decompress(ctx, e.LocalPath, h.tmpDir)
	if err != nil {
		return err
	}
	e.UncompressedDirectory = dir
	e.LocalPath = dir
	e.setState(StateDecompressed, true)
	return nil
}

// Compress creates an archive from the local directory, the archive becomes the source of the evidence.
func (e *CompressedDirectory) Compress(ctx context.Context, proc processor.Processor) error {
	dir := e.LocalPath
	if dir == "" {
		dir = e.SourcePath
	}
	archive, err := proc.Compress(ctx, dir)
	if err != nil {
		return err
	}
	e.UncompressedDirectory = dir
	e.SourcePath = archive
	e.LocalPath = archive
	e.setState(StateDecompressed, false)
	return nil
}
