package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// Recorder is a Processor which only records calls and returns predictable paths.
// It is used in tests and by the dry-run mode of the worker.
type Recorder struct {
	lock       sync.Mutex
	calls      []string
	loops      int
	mounts     int
	partitions map[string][]Partition
	failures   map[string]error
	diskSize   int64
}

func NewRecorder() *Recorder {
	return &Recorder{partitions: make(map[string][]Partition), failures: make(map[string]error), diskSize: 1024}
}

// SetPartitions sets partitions returned for the device.
func (r *Recorder) SetPartitions(device string, partitions []Partition) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.partitions[device] = partitions
}

// FailOn makes the operation fail, for example FailOn("mount", err).
func (r *Recorder) FailOn(op string, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failures[op] = err
}

// Calls returns recorded calls, each one formatted as "<op> <args...>".
func (r *Recorder) Calls() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *Recorder) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.calls = nil
}

func (r *Recorder) record(op string, args ...any) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	parts := []string{op}
	for _, arg := range args {
		parts = append(parts, fmt.Sprint(arg))
	}
	r.calls = append(r.calls, strings.Join(parts, " "))
	return r.failures[op]
}

func (r *Recorder) next(counter *int) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	v := *counter
	*counter++
	return v
}

func (r *Recorder) DiskSize(_ context.Context, path string) (int64, error) {
	if err := r.record("disk-size", path); err != nil {
		return 0, err
	}
	return r.diskSize, nil
}

func (r *Recorder) Losetup(_ context.Context, spec LoopSpec) (string, error) {
	if err := r.record("losetup", spec.Path, spec.Offset, spec.Size); err != nil {
		return "", err
	}
	return fmt.Sprintf("/dev/loop%d", r.next(&r.loops)), nil
}

func (r *Recorder) DeleteLosetup(_ context.Context, device string, _ string) error {
	return r.record("losetup-delete", device)
}

func (r *Recorder) MountEwf(_ context.Context, source string) (string, error) {
	if err := r.record("ewfmount", source); err != nil {
		return "", err
	}
	return fmt.Sprintf("/mnt/ewf%d", r.next(&r.mounts)), nil
}

func (r *Recorder) EwfDiskPath(_ context.Context, mountDir string) (string, error) {
	return mountDir + "/ewf1", nil
}

func (r *Recorder) EnumeratePartitions(_ context.Context, device string, location string) ([]Partition, error) {
	if err := r.record("partitions", device, location); err != nil {
		return nil, err
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	partitions, found := r.partitions[device]
	if !found {
		partitions = r.partitions["*"]
	}
	var out []Partition
	for _, p := range partitions {
		if location == "" || p.Location == location {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *Recorder) MountPartition(_ context.Context, device string, fsType string) (string, error) {
	if err := r.record("mount", device, fsType); err != nil {
		return "", err
	}
	return fmt.Sprintf("/mnt/mount%d", r.next(&r.mounts)), nil
}

func (r *Recorder) MountDisk(ctx context.Context, partitionPaths []string, partition int) (string, error) {
	if partition < 1 || partition > len(partitionPaths) {
		return "", errors.Errorf(`partition %d not found`, partition)
	}
	return r.MountPartition(ctx, partitionPaths[partition-1], "")
}

func (r *Recorder) BitLocker(_ context.Context, device string, offset int64, _ []Credential) (string, error) {
	if err := r.record("bdemount", device, offset); err != nil {
		return "", err
	}
	return fmt.Sprintf("/mnt/bde%d/bde1", r.next(&r.mounts)), nil
}

func (r *Recorder) Unmount(_ context.Context, path string) error {
	return r.record("umount", path)
}

func (r *Recorder) AttachCloudDisk(_ context.Context, disk CloudDisk) (string, []string, error) {
	if err := r.record("attach-disk", disk.DiskName); err != nil {
		return "", nil, err
	}
	device := googleDiskPrefix + disk.DiskName
	return device, []string{device + "-part1"}, nil
}

func (r *Recorder) DetachCloudDisk(_ context.Context, disk CloudDisk, _ string) error {
	return r.record("detach-disk", disk.DiskName)
}

func (r *Recorder) Decompress(_ context.Context, archivePath string, tmpDir string) (string, error) {
	if err := r.record("decompress", archivePath); err != nil {
		return "", err
	}
	return tmpDir + "/uncompressed", nil
}

func (r *Recorder) Compress(_ context.Context, dir string) (string, error) {
	if err := r.record("compress", dir); err != nil {
		return "", err
	}
	return dir + tarGzSuffix, nil
}

func (r *Recorder) DockerRoot(_ context.Context, mountPath string) (string, error) {
	return mountPath + "/" + dockerDefaultRoot, nil
}

func (r *Recorder) MountDockerFS(_ context.Context, dockerRoot string, containerID string) (string, error) {
	if err := r.record("docker-mount", dockerRoot, containerID); err != nil {
		return "", err
	}
	return fmt.Sprintf("/mnt/docker%d", r.next(&r.mounts)), nil
}

func (r *Recorder) MountContainerdFS(_ context.Context, imagePath string, namespace string, containerID string) (string, error) {
	if err := r.record("containerd-mount", imagePath, namespace, containerID); err != nil {
		return "", err
	}
	return fmt.Sprintf("/mnt/containerd%d", r.next(&r.mounts)), nil
}
