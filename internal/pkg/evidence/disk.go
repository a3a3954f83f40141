package evidence

import (
	"context"
	"path/filepath"

	"github.com/jleaniz/turbinia/internal/pkg/processor"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	TypeRawDisk       = "RawDisk"
	TypeEwfDisk       = "EwfDisk"
	TypeDiskPartition = "DiskPartition"
)

// RawDisk is a raw disk image, it can be attached to a loop device.
type RawDisk struct {
	Base
}

// EwfDisk is a disk image in the Expert Witness Format, it is mounted by ewfmount and then attached to a loop device.
type EwfDisk struct {
	Base
	EwfPath      string `json:"ewf_path,omitempty"`
	EwfMountPath string `json:"ewf_mount_path,omitempty"`
}

// DiskPartition is a volume inside the parent disk.
type DiskPartition struct {
	Base
	PartitionLocation string               `json:"partition_location,omitempty"`
	PartitionOffset   int64                `json:"partition_offset,omitempty"`
	PartitionSize     int64                `json:"partition_size,omitempty"`
	LVUUID            string               `json:"lv_uuid,omitempty"`
	PathSpec          *processor.Partition `json:"path_spec,omitempty"`
	Important         bool                 `json:"important"`
}

func NewRawDisk(sourcePath string) *RawDisk {
	e := &RawDisk{Base: newBase(TypeRawDisk, StateAttached)}
	e.SourcePath = sourcePath
	return e
}

func NewEwfDisk(sourcePath string) *EwfDisk {
	e := &EwfDisk{Base: newBase(TypeEwfDisk, StateAttached)}
	e.SourcePath = sourcePath
	return e
}

func NewDiskPartition(location string) *DiskPartition {
	e := &DiskPartition{Base: newBase(TypeDiskPartition, StateAttached, StateMounted), PartitionLocation: location, Important: true}
	e.ContextDependent = true
	return e
}

// attachLoop creates the loop device and updates the state of the disk.
func attachLoop(ctx context.Context, h *hookContext, b *Base, path string) error {
	device, err := h.processor.Losetup(ctx, processor.LoopSpec{Path: path})
	if err != nil {
		return err
	}
	b.DevicePath = device
	b.LocalPath = device
	b.setState(StateAttached, true)
	return nil
}

func detachLoop(ctx context.Context, h *hookContext, b *Base, lvUUID string) error {
	if !b.HasState(StateAttached) || b.DevicePath == "" {
		return nil
	}
	if err := h.processor.DeleteLosetup(ctx, b.DevicePath, lvUUID); err != nil {
		return err
	}
	b.DevicePath = ""
	b.setState(StateAttached, false)
	return nil
}

func (e *RawDisk) preprocess(ctx context.Context, h *hookContext) error {
	if e.Size == 0 {
		if size, err := h.processor.DiskSize(ctx, e.LocalPath); err == nil {
			e.Size = size
		} else {
			h.logger.Warnf(ctx, `Cannot get size of "%s": %s`, e.LocalPath, err)
		}
	}
	if h.requested(&e.Base, StateAttached) || h.hasChild {
		return attachLoop(ctx, h, &e.Base, e.LocalPath)
	}
	return nil
}

func (e *RawDisk) postprocess(ctx context.Context, h *hookContext) error {
	return detachLoop(ctx, h, &e.Base, "")
}

func (e *EwfDisk) preprocess(ctx context.Context, h *hookContext) error {
	if !h.requested(&e.Base, StateAttached) && !h.hasChild {
		return nil
	}

	mountDir, err := h.processor.MountEwf(ctx, e.LocalPath)
	if err != nil {
		return err
	}
	e.EwfMountPath = mountDir

	e.EwfPath, err = h.processor.EwfDiskPath(ctx, mountDir)
	if err != nil {
		return err
	}
	return attachLoop(ctx, h, &e.Base, e.EwfPath)
}

func (e *EwfDisk) postprocess(ctx context.Context, h *hookContext) error {
	if err := detachLoop(ctx, h, &e.Base, ""); err != nil {
		return err
	}
	if e.EwfMountPath != "" {
		if err := h.processor.Unmount(ctx, e.EwfMountPath); err != nil {
			return err
		}
		e.EwfMountPath = ""
	}
	return nil
}

// Name returns "<parent name>:<partition location>", if there is no explicit name.
func (e *DiskPartition) Name() string {
	if e.ExplicitName != "" {
		return e.ExplicitName
	}
	prefix := e.typ
	if e.ParentEvidence != nil {
		prefix = e.ParentEvidence.Name()
	}
	if e.PartitionLocation == "" {
		return prefix
	}
	return prefix + ":" + e.PartitionLocation
}

// Validate has nothing to check, the partition is located in the parent evidence.
func (e *DiskPartition) Validate(context.Context) error {
	return nil
}

func (e *DiskPartition) encrypted() bool {
	return e.PathSpec != nil && e.PathSpec.Encryption == processor.EncryptionBitLocker
}

func (e *DiskPartition) preprocess(ctx context.Context, h *hookContext) error {
	attach := h.requested(&e.Base, StateAttached) || h.hasChild
	mount := h.requested(&e.Base, StateMounted) || h.hasChild
	if !attach && !mount {
		return nil
	}

	parentPath := e.ParentEvidence.Common().LocalPath
	if e.PathSpec == nil {
		partitions, err := h.processor.EnumeratePartitions(ctx, parentPath, e.PartitionLocation)
		if err != nil {
			return err
		}
		switch len(partitions) {
		case 0:
			return errors.Errorf(`partition "%s" was not found in "%s"`, e.PartitionLocation, parentPath)
		case 1:
			e.PathSpec = &partitions[0]
		default:
			return errors.Errorf(`partition location "%s" is ambiguous, found %d partitions`, e.PartitionLocation, len(partitions))
		}
	}
	if e.PartitionOffset == 0 {
		e.PartitionOffset = e.PathSpec.Offset
	}
	if e.PartitionSize == 0 {
		e.PartitionSize = e.PathSpec.Size
	}

	// A mount requires an attached device
	var device string
	var err error
	if e.encrypted() {
		device, err = h.processor.BitLocker(ctx, parentPath, e.PartitionOffset, e.Credentials)
	} else {
		device, err = h.processor.Losetup(ctx, processor.LoopSpec{
			Path:   parentPath,
			Offset: e.PartitionOffset,
			Size:   e.PartitionSize,
			LVUUID: e.LVUUID,
		})
	}
	if err != nil {
		return err
	}
	e.DevicePath = device
	e.LocalPath = device
	e.setState(StateAttached, true)

	if !mount {
		return nil
	}
	mountPath, err := h.processor.MountPartition(ctx, device, e.PathSpec.FSType)
	if err != nil {
		return err
	}
	e.MountPath = mountPath
	e.LocalPath = mountPath
	e.setState(StateMounted, true)
	return nil
}

func (e *DiskPartition) postprocess(ctx context.Context, h *hookContext) error {
	if e.HasState(StateMounted) && e.MountPath != "" {
		if err := h.processor.Unmount(ctx, e.MountPath); err != nil {
			return err
		}
		e.MountPath = ""
		e.setState(StateMounted, false)
	}

	if e.encrypted() && e.HasState(StateAttached) {
		if err := h.processor.Unmount(ctx, filepath.Dir(e.DevicePath)); err != nil {
			return err
		}
		e.DevicePath = ""
		e.setState(StateAttached, false)
		return nil
	}
	return detachLoop(ctx, h, &e.Base, e.LVUUID)
}
