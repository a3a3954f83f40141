package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	defaultSectorSize = 512
	dockerDefaultRoot = "var/lib/docker"
	dockerDaemonJSON  = "etc/docker/daemon.json"
	googleDiskPrefix  = "/dev/disk/by-id/google-"
	bitLockerDevice   = "bde1"
	mountDirPerm      = 0o700
)

// LocalConfig configures the Local processor.
type LocalConfig struct {
	// MountDirPrefix is the directory where evidence is mounted.
	MountDirPrefix string `configKey:"mountDirPrefix" configUsage:"Directory where evidence is mounted." validate:"required"`
	// Instance is the name of the cloud VM the worker runs on, used to attach cloud disks.
	Instance string `configKey:"instance" configUsage:"Name of the cloud instance the worker runs on."`
}

// Local runs the external programs on the worker host.
type Local struct {
	logger log.Logger
	config LocalConfig
}

// Programs returns external programs used by the Local processor, keyed by the purpose.
func Programs() map[string][]string {
	return map[string][]string{
		"disk":       {"losetup", "blockdev", "mount", "umount", "sfdisk", "blkid"},
		"ewf":        {"ewfmount"},
		"bitlocker":  {"bdemount"},
		"lvm":        {"lvchange", "lvs", "pvscan"},
		"cloud":      {"gcloud"},
		"containers": {"de.py", "ce"},
	}
}

func NewLocal(logger log.Logger, cfg LocalConfig) *Local {
	return &Local{logger: logger.WithComponent("processor"), config: cfg}
}

func (p *Local) DiskSize(ctx context.Context, path string) (int64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, errors.PrefixErrorf(err, `cannot get size of "%s"`, path)
	}
	if stat.Mode().IsRegular() {
		return stat.Size(), nil
	}
	out, err := RunCommand(ctx, p.logger, "blockdev", "--getsize64", path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(out, 10, 64)
}

func (p *Local) Losetup(ctx context.Context, spec LoopSpec) (string, error) {
	args := []string{"--show", "--find", "--read-only"}
	if spec.Offset > 0 {
		args = append(args, "--offset", strconv.FormatInt(spec.Offset, 10))
	}
	if spec.Size > 0 {
		args = append(args, "--sizelimit", strconv.FormatInt(spec.Size, 10))
	}
	if spec.Offset == 0 && spec.Size == 0 {
		args = append(args, "--partscan")
	}
	args = append(args, spec.Path)

	device, err := RunCommand(ctx, p.logger, "losetup", args...)
	if err != nil {
		return "", err
	}
	if device == "" {
		return "", errors.Errorf(`losetup returned no device for "%s"`, spec.Path)
	}

	// Logical volume inside the loop device
	if spec.LVUUID != "" {
		if _, err := RunCommand(ctx, p.logger, "pvscan", "--cache", device); err != nil {
			return "", err
		}
		selector := "lv_uuid=" + spec.LVUUID
		if _, err := RunCommand(ctx, p.logger, "lvchange", "--activate", "y", "--select", selector); err != nil {
			return "", err
		}
		lvPath, err := RunCommand(ctx, p.logger, "lvs", "--noheadings", "--options", "lv_path", "--select", selector)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(lvPath), nil
	}

	return device, nil
}

func (p *Local) DeleteLosetup(ctx context.Context, device string, lvUUID string) error {
	if lvUUID != "" {
		if _, err := RunCommand(ctx, p.logger, "lvchange", "--activate", "n", "--select", "lv_uuid="+lvUUID); err != nil {
			return err
		}
		return nil
	}
	_, err := RunCommand(ctx, p.logger, "losetup", "--detach", device)
	return err
}

func (p *Local) MountEwf(ctx context.Context, source string) (string, error) {
	dir, err := p.mountDir("ewf")
	if err != nil {
		return "", err
	}
	if _, err := RunCommand(ctx, p.logger, "ewfmount", "-X", "allow_other", source, dir); err != nil {
		return "", err
	}
	return dir, nil
}

func (p *Local) EwfDiskPath(_ context.Context, mountDir string) (string, error) {
	entries, err := os.ReadDir(mountDir)
	if err != nil {
		return "", errors.PrefixErrorf(err, `cannot list EWF mount "%s"`, mountDir)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "ewf") {
			return filepath.Join(mountDir, entry.Name()), nil
		}
	}
	return "", errors.Errorf(`no EWF image found in "%s"`, mountDir)
}

type sfdiskOutput struct {
	PartitionTable struct {
		SectorSize int64 `json:"sectorsize"`
		Partitions []struct {
			Node  string `json:"node"`
			Start int64  `json:"start"`
			Size  int64  `json:"size"`
		} `json:"partitions"`
	} `json:"partitiontable"`
}

// EnumeratePartitions lists partitions by sfdisk, location "p1" is the first partition.
// A device without a partition table is reported as one partition "p0" covering the whole device.
func (p *Local) EnumeratePartitions(ctx context.Context, device string, location string) ([]Partition, error) {
	var partitions []Partition
	out, err := RunCommand(ctx, p.logger, "sfdisk", "--json", device)
	if err != nil {
		size, sizeErr := p.DiskSize(ctx, device)
		if sizeErr != nil {
			return nil, errors.NewNestedError(errors.Errorf(`cannot enumerate partitions of "%s"`, device), err, sizeErr)
		}
		partitions = append(partitions, Partition{Location: "p0", Offset: 0, Size: size})
	} else {
		var parsed sfdiskOutput
		if err := json.DecodeString(out, &parsed); err != nil {
			return nil, errors.PrefixError(err, "cannot parse sfdisk output")
		}
		sectorSize := parsed.PartitionTable.SectorSize
		if sectorSize == 0 {
			sectorSize = defaultSectorSize
		}
		for i, part := range parsed.PartitionTable.Partitions {
			partitions = append(partitions, Partition{
				Location: fmt.Sprintf("p%d", i+1),
				Offset:   part.Start * sectorSize,
				Size:     part.Size * sectorSize,
			})
		}
	}

	var filtered []Partition
	for _, part := range partitions {
		if location != "" && part.Location != location {
			continue
		}
		fsType, _ := RunCommand(ctx, p.logger, "blkid", "--probe", "--offset", strconv.FormatInt(part.Offset, 10), "--output", "value", "--match-tag", "TYPE", device)
		part.FSType = fsType
		if strings.EqualFold(fsType, "bitlocker") {
			part.Encryption = EncryptionBitLocker
		}
		filtered = append(filtered, part)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Offset < filtered[j].Offset })
	return filtered, nil
}

func (p *Local) MountPartition(ctx context.Context, device string, fsType string) (string, error) {
	dir, err := p.mountDir("mount")
	if err != nil {
		return "", err
	}
	options := "ro"
	switch fsType {
	case "ext3", "ext4":
		options += ",noload"
	case "xfs":
		options += ",norecovery"
	}
	args := []string{"-o", options}
	if fsType != "" {
		args = append(args, "-t", fsType)
	}
	args = append(args, device, dir)
	if _, err := RunCommand(ctx, p.logger, "mount", args...); err != nil {
		return "", err
	}
	return dir, nil
}

func (p *Local) MountDisk(ctx context.Context, partitionPaths []string, partition int) (string, error) {
	if partition < 1 || partition > len(partitionPaths) {
		return "", errors.Errorf(`partition %d not found, the disk has %d partitions`, partition, len(partitionPaths))
	}
	return p.MountPartition(ctx, partitionPaths[partition-1], "")
}

func (p *Local) BitLocker(ctx context.Context, device string, offset int64, credentials []Credential) (string, error) {
	dir, err := p.mountDir("bde")
	if err != nil {
		return "", err
	}
	errs := errors.NewMultiError()
	for _, credential := range credentials {
		var flag string
		switch credential.Type {
		case "password":
			flag = "-p"
		case "recovery_password":
			flag = "-r"
		default:
			continue
		}
		args := []string{"-o", strconv.FormatInt(offset, 10), flag, credential.Data, device, dir}
		if _, err := RunCommand(ctx, p.logger, "bdemount", args...); err != nil {
			errs.Append(err)
			continue
		}
		return filepath.Join(dir, bitLockerDevice), nil
	}
	if err := errs.ErrorOrNil(); err != nil {
		return "", errors.PrefixError(err, "cannot decrypt the BitLocker volume")
	}
	return "", errors.New("cannot decrypt the BitLocker volume: no usable credentials")
}

func (p *Local) Unmount(ctx context.Context, path string) error {
	if _, err := RunCommand(ctx, p.logger, "umount", path); err != nil {
		return err
	}
	if strings.HasPrefix(path, p.config.MountDirPrefix) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warnf(ctx, `cannot remove mount directory "%s": %s`, path, err)
		}
	}
	return nil
}

func (p *Local) AttachCloudDisk(ctx context.Context, disk CloudDisk) (string, []string, error) {
	device := googleDiskPrefix + disk.DiskName
	if _, err := os.Stat(device); err != nil {
		args := []string{
			"compute", "instances", "attach-disk", p.config.Instance,
			"--disk", disk.DiskName, "--device-name", disk.DiskName,
			"--zone", disk.Zone, "--project", disk.Project, "--mode", "ro",
		}
		if _, err := RunCommand(ctx, p.logger, "gcloud", args...); err != nil {
			return "", nil, err
		}
	}
	partitions, err := filepath.Glob(device + "-part*")
	if err != nil {
		return "", nil, errors.WithStack(err)
	}
	sort.Strings(partitions)
	return device, partitions, nil
}

func (p *Local) DetachCloudDisk(ctx context.Context, disk CloudDisk, _ string) error {
	args := []string{
		"compute", "instances", "detach-disk", p.config.Instance,
		"--disk", disk.DiskName, "--zone", disk.Zone, "--project", disk.Project,
	}
	_, err := RunCommand(ctx, p.logger, "gcloud", args...)
	return err
}

func (p *Local) Decompress(ctx context.Context, archivePath string, tmpDir string) (string, error) {
	return Untar(ctx, archivePath, tmpDir)
}

func (p *Local) Compress(ctx context.Context, dir string) (string, error) {
	return Tar(ctx, dir)
}

// DockerRoot returns the docker data root inside the mounted filesystem, "data-root" from daemon.json has priority.
func (p *Local) DockerRoot(_ context.Context, mountPath string) (string, error) {
	root := filepath.Join(mountPath, dockerDefaultRoot)
	if data, err := os.ReadFile(filepath.Join(mountPath, dockerDaemonJSON)); err == nil {
		var daemon struct {
			DataRoot string `json:"data-root"`
		}
		if err := json.Decode(data, &daemon); err == nil && daemon.DataRoot != "" {
			root = filepath.Join(mountPath, daemon.DataRoot)
		}
	}
	if _, err := os.Stat(root); err != nil {
		return "", errors.PrefixErrorf(err, `docker root "%s" not found`, root)
	}
	return root, nil
}

func (p *Local) MountDockerFS(ctx context.Context, dockerRoot string, containerID string) (string, error) {
	dir, err := p.mountDir("docker")
	if err != nil {
		return "", err
	}
	if _, err := RunCommand(ctx, p.logger, "de.py", "-r", dockerRoot, "mount", containerID, dir); err != nil {
		return "", err
	}
	return dir, nil
}

func (p *Local) MountContainerdFS(ctx context.Context, imagePath string, namespace string, containerID string) (string, error) {
	dir, err := p.mountDir("containerd")
	if err != nil {
		return "", err
	}
	args := []string{"--image-root", imagePath, "--namespace", namespace, "mount", containerID, dir}
	if _, err := RunCommand(ctx, p.logger, "ce", args...); err != nil {
		return "", err
	}
	return dir, nil
}

func (p *Local) mountDir(kind string) (string, error) {
	if err := os.MkdirAll(p.config.MountDirPrefix, mountDirPerm); err != nil {
		return "", errors.PrefixErrorf(err, `cannot create mount directory prefix "%s"`, p.config.MountDirPrefix)
	}
	dir, err := os.MkdirTemp(p.config.MountDirPrefix, "turbinia-"+kind+"-")
	if err != nil {
		return "", errors.PrefixError(err, "cannot create mount directory")
	}
	return dir, nil
}
