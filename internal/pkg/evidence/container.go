package evidence

import (
	"context"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	TypeDockerContainer     = "DockerContainer"
	TypeContainerdContainer = "ContainerdContainer"
)

// DockerContainer is a container filesystem found on the mounted parent evidence.
type DockerContainer struct {
	Base
	ContainerID         string `json:"container_id,omitempty"`
	ContainerFSPath     string `json:"container_fs_path,omitempty"`
	DockerRootDirectory string `json:"docker_root_directory,omitempty"`
}

// ContainerdContainer is a containerd container filesystem found on the mounted parent evidence.
type ContainerdContainer struct {
	Base
	Namespace       string `json:"namespace,omitempty"`
	ContainerID     string `json:"container_id,omitempty"`
	ImagePath       string `json:"image_path,omitempty"`
	ContainerFSPath string `json:"container_fs_path,omitempty"`
}

func NewDockerContainer(containerID string) *DockerContainer {
	e := &DockerContainer{Base: newBase(TypeDockerContainer, StateContainerMounted), ContainerID: containerID}
	e.ContextDependent = true
	return e
}

func NewContainerdContainer(namespace, containerID string) *ContainerdContainer {
	e := &ContainerdContainer{Base: newBase(TypeContainerdContainer, StateContainerMounted), Namespace: namespace, ContainerID: containerID}
	e.ContextDependent = true
	return e
}

func containerName(b *Base, id string) string {
	if b.ExplicitName != "" {
		return b.ExplicitName
	}
	if b.ParentEvidence != nil {
		return b.ParentEvidence.Name() + ":" + id
	}
	return b.typ + ":" + id
}

func parentMountPath(b *Base) (string, error) {
	path := b.ParentEvidence.Common().MountPath
	if path == "" {
		return "", errors.Errorf(`parent evidence "%s" is not mounted`, b.ParentEvidence.Name())
	}
	return path, nil
}

func unmountContainer(ctx context.Context, h *hookContext, b *Base, path *string) error {
	if !b.HasState(StateContainerMounted) || *path == "" {
		return nil
	}
	if err := h.processor.Unmount(ctx, *path); err != nil {
		return err
	}
	*path = ""
	b.setState(StateContainerMounted, false)
	return nil
}

func (e *DockerContainer) Name() string {
	return containerName(&e.Base, e.ContainerID)
}

func (e *DockerContainer) Validate(ctx context.Context) error {
	return e.validateRequired(ctx, map[string]any{"container_id": e.ContainerID})
}

func (e *DockerContainer) preprocess(ctx context.Context, h *hookContext) error {
	if !h.requested(&e.Base, StateContainerMounted) {
		return nil
	}
	mountPath, err := parentMountPath(&e.Base)
	if err != nil {
		return err
	}
	if e.DockerRootDirectory, err = h.processor.DockerRoot(ctx, mountPath); err != nil {
		return err
	}
	fsPath, err := h.processor.MountDockerFS(ctx, e.DockerRootDirectory, e.ContainerID)
	if err != nil {
		return err
	}
	e.ContainerFSPath = fsPath
	e.LocalPath = fsPath
	e.setState(StateContainerMounted, true)
	return nil
}

func (e *DockerContainer) postprocess(ctx context.Context, h *hookContext) error {
	return unmountContainer(ctx, h, &e.Base, &e.ContainerFSPath)
}

func (e *ContainerdContainer) Name() string {
	return containerName(&e.Base, e.ContainerID)
}

func (e *ContainerdContainer) Validate(ctx context.Context) error {
	return e.validateRequired(ctx, map[string]any{"namespace": e.Namespace, "container_id": e.ContainerID})
}

func (e *ContainerdContainer) preprocess(ctx context.Context, h *hookContext) error {
	if !h.requested(&e.Base, StateContainerMounted) {
		return nil
	}
	mountPath, err := parentMountPath(&e.Base)
	if err != nil {
		return err
	}
	e.ImagePath = mountPath
	fsPath, err := h.processor.MountContainerdFS(ctx, mountPath, e.Namespace, e.ContainerID)
	if err != nil {
		return err
	}
	e.ContainerFSPath = fsPath
	e.LocalPath = fsPath
	e.setState(StateContainerMounted, true)
	return nil
}

func (e *ContainerdContainer) postprocess(ctx context.Context, h *hookContext) error {
	return unmountContainer(ctx, h, &e.Base, &e.ContainerFSPath)
}
