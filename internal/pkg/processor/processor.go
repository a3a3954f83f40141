// Package processor performs the physical actions needed to bring evidence to a processable state,
// for example attaching a disk image to a loop device or mounting a partition.
package processor

import (
	"context"
)

const (
	EncryptionBitLocker = "BDE"
)

// LoopSpec describes a loop device to create.
type LoopSpec struct {
	Path   string
	Offset int64
	Size   int64
	LVUUID string
}

// Partition is one volume found in a disk or an image.
type Partition struct {
	Location   string `json:"location"`
	Offset     int64  `json:"offset"`
	Size       int64  `json:"size"`
	FSType     string `json:"fs_type"`
	Encryption string `json:"encryption,omitempty"`
}

type CloudDisk struct {
	Project  string
	Zone     string
	DiskName string
}

type Credential struct {
	Type string `json:"credential_type"`
	Data string `json:"credential_data"`
}

// Processor is implemented by Local, which runs external programs, and by Recorder in tests.
type Processor interface {
	DiskSize(ctx context.Context, path string) (int64, error)

	Losetup(ctx context.Context, spec LoopSpec) (device string, err error)
	DeleteLosetup(ctx context.Context, device string, lvUUID string) error

	MountEwf(ctx context.Context, source string) (mountDir string, err error)
	EwfDiskPath(ctx context.Context, mountDir string) (string, error)

	EnumeratePartitions(ctx context.Context, device string, location string) ([]Partition, error)
	MountPartition(ctx context.Context, device string, fsType string) (mountPath string, err error)
	MountDisk(ctx context.Context, partitionPaths []string, partition int) (mountPath string, err error)
	BitLocker(ctx context.Context, device string, offset int64, credentials []Credential) (devicePath string, err error)
	Unmount(ctx context.Context, path string) error

	AttachCloudDisk(ctx context.Context, disk CloudDisk) (device string, partitionPaths []string, err error)
	DetachCloudDisk(ctx context.Context, disk CloudDisk, device string) error

	Decompress(ctx context.Context, archivePath string, tmpDir string) (dir string, err error)
	Compress(ctx context.Context, dir string) (archivePath string, err error)

	DockerRoot(ctx context.Context, mountPath string) (string, error)
	MountDockerFS(ctx context.Context, dockerRoot string, containerID string) (mountPath string, err error)
	MountContainerdFS(ctx context.Context, imagePath string, namespace string, containerID string) (mountPath string, err error)
}

var (
	_ Processor = (*Local)(nil)
	_ Processor = (*Recorder)(nil)
)
