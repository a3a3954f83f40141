package evidence

import (
	"context"
	"path/filepath"

	"github.com/jleaniz/turbinia/internal/pkg/processor"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	TypeGoogleCloudDisk            = "GoogleCloudDisk"
	TypeGoogleCloudDiskRawEmbedded = "GoogleCloudDiskRawEmbedded"
)

// GoogleCloudDisk is a persistent disk, it is attached to the worker instance.
// The disk can be used by more tasks on the same worker, so it is tracked by the resource manager.
type GoogleCloudDisk struct {
	Base
	Project        string   `json:"project,omitempty"`
	Zone           string   `json:"zone,omitempty"`
	DiskName       string   `json:"disk_name,omitempty"`
	MountPartition int      `json:"mount_partition,omitempty"`
	PartitionPaths []string `json:"partition_paths,omitempty"`
}

// GoogleCloudDiskRawEmbedded is a raw disk image stored on the parent cloud disk.
type GoogleCloudDiskRawEmbedded struct {
	Base
	EmbeddedPath string `json:"embedded_path,omitempty"`
}

func NewGoogleCloudDisk(project, zone, diskName string) *GoogleCloudDisk {
	e := &GoogleCloudDisk{Base: newBase(TypeGoogleCloudDisk, StateAttached, StateMounted), Project: project, Zone: zone, DiskName: diskName, MountPartition: 1}
	e.ResourceTracked = true
	e.ResourceID = diskName
	e.CloudOnly = true
	return e
}

func NewGoogleCloudDiskRawEmbedded(embeddedPath string) *GoogleCloudDiskRawEmbedded {
	e := &GoogleCloudDiskRawEmbedded{Base: newBase(TypeGoogleCloudDiskRawEmbedded, StateAttached), EmbeddedPath: embeddedPath}
	e.ContextDependent = true
	e.CloudOnly = true
	return e
}

func (e *GoogleCloudDisk) Name() string {
	if e.ExplicitName != "" {
		return e.ExplicitName
	}
	if e.DiskName != "" {
		return e.DiskName
	}
	return e.Base.Name()
}

func (e *GoogleCloudDisk) Validate(ctx context.Context) error {
	return e.validateRequired(ctx, map[string]any{"project": e.Project, "zone": e.Zone, "disk_name": e.DiskName})
}

func (e *GoogleCloudDisk) disk() processor.CloudDisk {
	return processor.CloudDisk{Project: e.Project, Zone: e.Zone, DiskName: e.DiskName}
}

func (e *GoogleCloudDisk) preprocess(ctx context.Context, h *hookContext) error {
	if !h.requested(&e.Base, StateAttached) && !h.requested(&e.Base, StateMounted) && !h.hasChild {
		return nil
	}

	// Attach is serialized across workers
	err := h.resources.WithLock(ctx, func(ctx context.Context) error {
		device, partitionPaths, err := h.processor.AttachCloudDisk(ctx, e.disk())
		if err != nil {
			return err
		}
		e.DevicePath = device
		e.LocalPath = device
		e.PartitionPaths = partitionPaths
		e.setState(StateAttached, true)
		return nil
	})
	if err != nil {
		return err
	}

	if h.requested(&e.Base, StateMounted) {
		return e.mount(ctx, h)
	}
	return nil
}

func (e *GoogleCloudDisk) mount(ctx context.Context, h *hookContext) error {
	if e.HasState(StateMounted) {
		return nil
	}
	mountPath, err := h.processor.MountDisk(ctx, e.PartitionPaths, e.MountPartition)
	if err != nil {
		return err
	}
	e.MountPath = mountPath
	e.LocalPath = mountPath
	e.setState(StateMounted, true)
	return nil
}

func (e *GoogleCloudDisk) postprocess(ctx context.Context, h *hookContext) error {
	if e.HasState(StateMounted) && e.MountPath != "" {
		if err := h.processor.Unmount(ctx, e.MountPath); err != nil {
			return err
		}
		e.MountPath = ""
		e.setState(StateMounted, false)
	}
	if e.HasState(StateAttached) {
		if err := h.processor.DetachCloudDisk(ctx, e.disk(), e.DevicePath); err != nil {
			return err
		}
		e.DevicePath = ""
		e.setState(StateAttached, false)
	}
	return nil
}

func (e *GoogleCloudDiskRawEmbedded) Name() string {
	if e.ExplicitName != "" {
		return e.ExplicitName
	}
	if e.ParentEvidence != nil {
		return e.ParentEvidence.Name() + ":" + e.EmbeddedPath
	}
	return e.typ + ":" + e.EmbeddedPath
}

func (e *GoogleCloudDiskRawEmbedded) Validate(ctx context.Context) error {
	return e.validateRequired(ctx, map[string]any{"embedded_path": e.EmbeddedPath})
}

func (e *GoogleCloudDiskRawEmbedded) preprocess(ctx context.Context, h *hookContext) error {
	if !h.requested(&e.Base, StateAttached) && !h.hasChild {
		return nil
	}

	parent, ok := e.ParentEvidence.(*GoogleCloudDisk)
	if !ok {
		return errors.Errorf(`parent evidence must be "%s", found "%s"`, TypeGoogleCloudDisk, e.ParentEvidence.Type())
	}

	// The image is a file on the parent disk
	if err := parent.mount(ctx, h); err != nil {
		return err
	}
	return attachLoop(ctx, h, &e.Base, filepath.Join(parent.MountPath, e.EmbeddedPath))
}

func (e *GoogleCloudDiskRawEmbedded) postprocess(ctx context.Context, h *hookContext) error {
	return detachLoop(ctx, h, &e.Base, "")
}
