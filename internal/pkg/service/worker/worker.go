// Package worker pulls tasks from the task queue, runs them and pushes results back to the server.
//
// Only one task runs at a time. While it runs, the worker holds an exclusive lock of the lock file,
// so the liveness check (see WaitForIdle) can wait until the running task is finished.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/job/jobs"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/message"
	"github.com/jleaniz/turbinia/internal/pkg/processor"
	"github.com/jleaniz/turbinia/internal/pkg/registry"
	"github.com/jleaniz/turbinia/internal/pkg/resource"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/dependencies"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/telemetry"
	"github.com/jleaniz/turbinia/internal/pkg/transport"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	dirPermission  = 0o750
	maxRetryDelay  = 30 * time.Second
	spanName       = "turbinia.worker.task"
	metricTasks    = "turbinia.worker.tasks"
	metricDuration = "turbinia.worker.task.duration"
	metricRunning  = "turbinia.worker.tasks.running"
)

type Worker struct {
	config      Config
	name        string
	logger      log.Logger
	clock       clockwork.Clock
	tracer      telemetry.Tracer
	tasks       *message.Queue[task.Task]
	results     *message.Queue[task.Result]
	jobs        *job.Manager
	definitions *registry.Registry[task.Definition]
	lifecycle   *evidence.Lifecycle
	executor    task.Executor
	processor   processor.Processor
	wg          *sync.WaitGroup
	processed   *atomic.Int64
	failed      *atomic.Int64
	metrics     workerMetrics
}

type workerMetrics struct {
	tasks    metric.Int64Counter
	duration metric.Float64Histogram
	running  metric.Int64UpDownCounter
}

type options struct {
	executor  task.Executor
	processor processor.Processor
	lookPath  func(string) (string, error)
}

type Option func(o *options)

// WithExecutor replaces the executor running external programs of tasks.
func WithExecutor(v task.Executor) Option {
	return func(o *options) {
		o.executor = v
	}
}

// WithProcessor replaces the processor attaching and mounting evidence.
func WithProcessor(v processor.Processor) Option {
	return func(o *options) {
		o.processor = v
	}
}

// WithLookPath replaces the function used by the dependency check, exec.LookPath is used by default.
func WithLookPath(v func(string) (string, error)) Option {
	return func(o *options) {
		o.lookPath = v
	}
}

// New checks the worker environment and starts the task loop in the background.
// A missing program of an enabled job is a fatal error, see job.DependencyError.
func New(ctx context.Context, d dependencies.BackendScope, cfg Config, opts ...Option) (*Worker, error) {
	logger := d.Logger().WithComponent("worker")
	o := options{lookPath: exec.LookPath}
	for _, opt := range opts {
		opt(&o)
	}
	if o.executor == nil {
		o.executor = task.NewLocalExecutor(logger)
	}
	if o.processor == nil {
		o.processor = processor.NewLocal(logger, cfg.Processor)
	}

	name := cfg.Name
	if name == "" {
		name = d.Process().UniqueID()
	}

	w := &Worker{
		config:    cfg,
		name:      name,
		logger:    logger.With(attribute.String("worker", name)),
		clock:     d.Clock(),
		tracer:    d.Telemetry().Tracer(),
		tasks:     message.NewQueue[task.Task](d.Transport().Queue(transport.TasksQueue)),
		results:   message.NewQueue[task.Result](d.Transport().Queue(transport.ResultsQueue)),
		jobs:      job.NewManager(logger),
		executor:  o.executor,
		processor: o.processor,
		lifecycle: evidence.NewLifecycle(logger, o.processor, resource.NewManager(logger, cfg.Resource)),
		wg:        &sync.WaitGroup{},
		processed: atomic.NewInt64(0),
		failed:    atomic.NewInt64(0),
		metrics: workerMetrics{
			tasks:    d.Telemetry().Meter().Counter(metricTasks, "Finished tasks.", ""),
			duration: d.Telemetry().Meter().Histogram(metricDuration, "Duration of tasks.", "s"),
			running:  d.Telemetry().Meter().UpDownCounter(metricRunning, "Running tasks.", ""),
		},
	}

	// Enabled jobs
	if err := jobs.Register(w.jobs); err != nil {
		return nil, err
	}
	if err := w.jobs.Filter(ctx, cfg.JobsAllowlist, cfg.JobsDenylist, cfg.DisabledJobs); err != nil {
		return nil, err
	}
	if cfg.CheckDependencies {
		if err := job.CheckDependencies(w.jobs.All(), nil, o.lookPath); err != nil {
			return nil, err
		}
		w.logger.Infof(ctx, `Dependencies of jobs are installed: %s`, w.jobs.Names())
	}

	// Task definitions
	var err error
	if w.definitions, err = jobs.Definitions(); err != nil {
		return nil, err
	}

	// Directories
	for _, dir := range []string{cfg.OutputDir, cfg.TmpDir, cfg.Processor.MountDirPrefix} {
		if dir == "" {
			continue
		}
		if err := CheckDirectory(dir); err != nil {
			return nil, err
		}
	}

	// Graceful shutdown
	proc := d.Process()
	proc.OnShutdown(func(ctx context.Context) {
		w.logger.Info(ctx, "received shutdown request")
		w.wg.Wait()
		w.logger.Infof(ctx, "shutdown done, processed %d tasks, %d failed", w.processed.Load(), w.failed.Load())
	})

	w.wg.Add(1)
	proc.Add(func(ctx context.Context, _ chan<- error) {
		defer w.wg.Done()
		w.loop(ctx)
	})

	w.logger.Infof(ctx, `Worker "%s" started, enabled jobs: %s`, w.name, w.jobs.Names())
	return w, nil
}

// Jobs returns names of the enabled jobs.
func (w *Worker) Jobs() []string {
	return w.jobs.Names()
}

func (w *Worker) ProcessedCount() int64 {
	return w.processed.Load()
}

func (w *Worker) FailedCount() int64 {
	return w.failed.Load()
}

func (w *Worker) loop(ctx context.Context) {
	b := newRetryBackoff(w.clock)
	for ctx.Err() == nil {
		t, err := w.tasks.Pop(ctx, w.config.PollTimeout.Duration())
		var decodeErr message.DecodeError
		switch {
		case errors.Is(err, transport.ErrEmpty):
			continue
		case ctx.Err() != nil:
			return
		case errors.As(err, &decodeErr):
			// The message is consumed, the transport is fine
			b.Reset()
			w.rejectTask(ctx, decodeErr.Data, err)
			continue
		case err != nil:
			delay := b.NextBackOff()
			w.logger.Errorf(ctx, `Cannot get a task, retrying in %s: %s`, delay, err)
			select {
			case <-ctx.Done():
				return
			case <-w.clock.After(delay):
			}
			continue
		}

		b.Reset()
		result := w.ProcessTask(ctx, t)

		// The result is always sent, also during shutdown
		if err := w.results.Push(context.WithoutCancel(ctx), result); err != nil {
			w.logger.Errorf(ctx, `Cannot send result of the task "%s": %s`, t.ID, err)
		}
	}
}

// rejectTask closes the result of a task message which cannot be decoded, so the request does not wait for it forever.
func (w *Worker) rejectTask(ctx context.Context, data []byte, err error) {
	t, ok := task.DecodeTaskID(data)
	if !ok {
		w.logger.Errorf(ctx, `Dropped a task message without a task id: %s`, err)
		return
	}

	w.failed.Inc()
	result := task.NewResult(t, w.clock)
	result.WorkerName = w.name
	result.Error = errors.Format(err, errors.FormatWithStack())
	result.Close(false, fmt.Sprintf("Task %s failed: %s", t.Name, err.Error()))
	w.logger.With(attribute.String("task.id", t.ID), attribute.String("request.id", t.RequestID)).Warnf(ctx, `Task "%s" rejected: %s`, t.Name, err)

	if err := w.results.Push(context.WithoutCancel(ctx), result); err != nil {
		w.logger.Errorf(ctx, `Cannot send result of the task "%s": %s`, t.ID, err)
	}
}

// ProcessTask runs the task and returns its closed result.
// Errors are not returned, they are stored in the result.
func (w *Worker) ProcessTask(ctx context.Context, t *task.Task) *task.Result {
	logger := w.logger.With(
		attribute.String("task.id", t.ID),
		attribute.String("task.name", t.Name),
		attribute.String("request.id", t.RequestID),
	)

	ctx, span := w.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("task.name", t.Name),
		attribute.String("job.name", t.JobName),
		attribute.String("request.id", t.RequestID),
	))

	result := task.NewResult(t, w.clock)
	result.Start(w.name)
	logger.Infof(ctx, `Task "%s" started`, t.Name)
	w.metrics.running.Add(ctx, 1)

	err := w.runTask(ctx, logger, t, result)
	if err != nil && !result.IsFinished() {
		if result.Error == "" {
			result.Error = errors.Format(err, errors.FormatWithStack())
		}
		result.Close(false, fmt.Sprintf("Task %s failed: %s", t.Name, err.Error()))
	}

	status := "success"
	w.processed.Inc()
	if result.IsFailed() {
		status = "failure"
		w.failed.Inc()
		logger.Warnf(ctx, `Task "%s" failed: %s`, t.Name, result.Status)
	} else {
		logger.Infof(ctx, `Task "%s" finished: %s`, t.Name, result.Status)
	}

	attrs := metric.WithAttributes(
		attribute.String("task.name", t.Name),
		attribute.String("status", status),
		attribute.String("error_type", telemetry.ErrorType(err)),
	)
	w.metrics.running.Add(ctx, -1)
	w.metrics.tasks.Add(ctx, 1, attrs)
	w.metrics.duration.Record(ctx, result.RunTime.Duration().Seconds(), attrs)
	span.SetAttributes(attribute.String("task.status", result.Status))
	span.End(&err)
	return result
}

func (w *Worker) runTask(ctx context.Context, logger log.Logger, t *task.Task, result *task.Result) (err error) {
	def, err := w.definitions.Get(t.Name)
	if err != nil {
		return err
	}

	e := t.Evidence.Evidence
	if e == nil {
		return errors.New("task has no evidence")
	}

	// Evidence state is local to the worker, the values from the server are ignored
	for _, item := range evidence.Chain(e) {
		item.Common().ResetState()
	}
	if err := e.Validate(ctx); err != nil {
		return err
	}

	// Hold the worker lock while the evidence is in use
	unlock, err := resource.AcquireFileLock(ctx, w.config.LockFile, w.config.LockTimeout.Duration())
	if err != nil {
		return err
	}
	defer func() {
		if unlockErr := unlock(); unlockErr != nil {
			logger.Errorf(ctx, `Cannot release worker lock "%s": %s`, w.config.LockFile, unlockErr)
		}
	}()

	taskDir := fmt.Sprintf("%s-%s", t.ID, t.Name)
	t.OutputDir = filepath.Join(w.config.OutputDir, t.RequestID, taskDir)
	t.TmpDir = filepath.Join(w.config.TmpDir, taskDir)
	for _, dir := range []string{t.OutputDir, t.TmpDir} {
		if err := os.MkdirAll(dir, dirPermission); err != nil {
			return errors.PrefixErrorf(err, `cannot create task directory "%s"`, dir)
		}
	}
	defer func() {
		if rmErr := os.RemoveAll(t.TmpDir); rmErr != nil {
			logger.Warnf(ctx, `Cannot remove tmp directory "%s": %s`, t.TmpDir, rmErr)
		}
	}()

	// Postprocessing runs also after a failure
	defer func() {
		if postErr := w.lifecycle.Postprocess(context.WithoutCancel(ctx), e, t.ID); postErr != nil {
			logger.Errorf(ctx, `Cannot postprocess evidence "%s": %s`, e.Name(), postErr)
			result.Report(fmt.Sprintf("Evidence postprocessing failed: %s", postErr))
		}
	}()

	if err := w.lifecycle.Preprocess(ctx, e, t.ID, t.TmpDir, def.RequiredStates()); err != nil {
		return err
	}
	if err := evidence.CheckRequiredStates(e, def.RequiredStates()); err != nil {
		return err
	}

	rc := &task.RunContext{
		Task:      t,
		Logger:    logger,
		Executor:  w.executor,
		Processor: w.processor,
		OutputDir: t.OutputDir,
		TmpDir:    t.TmpDir,
	}
	return task.Run(ctx, def, rc, e, result)
}

func newRetryBackoff(clock clockwork.Clock) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	b.Clock = clock
	b.Reset()
	return b
}
