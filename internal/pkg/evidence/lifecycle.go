package evidence

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/processor"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// ResourceTracker arbitrates access to physical resources shared by tasks, see the resource package.
type ResourceTracker interface {
	PreprocessResourceState(ctx context.Context, resourceID, taskID string) error
	// Release removes the claim and calls teardown, if the resource is detachable, in the same lock acquisition.
	Release(ctx context.Context, resourceID, taskID string, teardown func(ctx context.Context) error) (detachable bool, err error)
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// Lifecycle runs preprocessing and postprocessing of an evidence chain.
type Lifecycle struct {
	logger    log.Logger
	processor processor.Processor
	resources ResourceTracker
}

type hookContext struct {
	logger    log.Logger
	processor processor.Processor
	resources ResourceTracker
	taskID    string
	tmpDir    string
	required  []State
	hasChild  bool
}

func NewLifecycle(logger log.Logger, proc processor.Processor, resources ResourceTracker) *Lifecycle {
	return &Lifecycle{logger: logger.WithComponent("evidence"), processor: proc, resources: resources}
}

// requested returns true if the state was requested by the task and it is possible for the evidence.
func (h *hookContext) requested(b *Base, s State) bool {
	return b.IsPossible(s) && containsState(h.required, s)
}

// Preprocess brings the evidence and all its ancestors to the required states.
// Ancestors are processed first, the most distant one at the beginning.
//
// Failures of the variant hooks are logged and ignored, the task then fails on the required states check.
// A context dependent evidence without a parent and a resource lock timeout are returned as an error.
func (l *Lifecycle) Preprocess(ctx context.Context, e Evidence, taskID, tmpDir string, required []State) error {
	// Check the whole chain before any side effect
	for _, item := range Chain(e) {
		if item.Common().ContextDependent && item.Parent() == nil {
			return errors.WithStack(ValidationError{
				Evidence: item.Type(),
				err:      errors.New("evidence is context dependent, but it has no parent evidence"),
			})
		}
	}

	h := &hookContext{
		logger:    l.logger,
		processor: l.processor,
		resources: l.resources,
		taskID:    taskID,
		tmpDir:    tmpDir,
		required:  required,
	}
	return l.preprocess(ctx, e, h)
}

func (l *Lifecycle) preprocess(ctx context.Context, e Evidence, h *hookContext) error {
	b := e.Common()
	b.LocalPath = b.SourcePath

	if parent := e.Parent(); parent != nil {
		parentHook := *h
		parentHook.hasChild = true
		if err := l.preprocess(ctx, parent, &parentHook); err != nil {
			return err
		}
	}

	logger := l.logger.With(attribute.String("evidence", e.Name()), attribute.String("task.id", h.taskID))
	if b.ResourceTracked {
		if err := l.resources.PreprocessResourceState(ctx, b.ResourceID, h.taskID); err != nil {
			return errors.PrefixErrorf(err, `cannot claim resource "%s"`, b.ResourceID)
		}
	}

	logger.Debugf(ctx, `Preprocessing evidence, state %s`, b.FormatState())
	if err := e.preprocess(ctx, h); err != nil {
		logger.Errorf(ctx, `Preprocessing of evidence "%s" failed: %s`, e.Name(), err)
		return nil
	}
	logger.Debugf(ctx, `Preprocessed evidence, state %s`, b.FormatState())
	return nil
}

// Postprocess releases the evidence and then all its ancestors.
// A resource tracked evidence is released only when no other task claims the resource.
// All errors are collected and the chain is always walked to the end.
func (l *Lifecycle) Postprocess(ctx context.Context, e Evidence, taskID string) error {
	errs := errors.NewMultiError()
	for _, item := range Chain(e) {
		h := &hookContext{
			logger:    l.logger,
			processor: l.processor,
			resources: l.resources,
			taskID:    taskID,
			hasChild:  item != e,
		}
		if err := l.postprocess(ctx, item, h); err != nil {
			errs.AppendWithPrefixf(err, `cannot postprocess evidence "%s"`, item.Name())
		}
	}
	return errs.ErrorOrNil()
}

func (l *Lifecycle) postprocess(ctx context.Context, e Evidence, h *hookContext) error {
	b := e.Common()
	logger := l.logger.With(attribute.String("evidence", e.Name()), attribute.String("task.id", h.taskID))
	if !b.ResourceTracked {
		logger.Debugf(ctx, `Postprocessing evidence, state %s`, b.FormatState())
		return e.postprocess(ctx, h)
	}

	detachable, err := l.resources.Release(ctx, b.ResourceID, h.taskID, func(ctx context.Context) error {
		logger.Debugf(ctx, `Postprocessing evidence, state %s`, b.FormatState())
		return e.postprocess(ctx, h)
	})
	if err == nil && !detachable {
		logger.Infof(ctx, `Resource "%s" is still in use by other tasks, skipping postprocessing`, b.ResourceID)
	}
	return err
}
