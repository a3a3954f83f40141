// Package server schedules tasks of requests and collects their results.
//
// The server consumes requests, selects jobs accepting the evidence and pushes their tasks to the task queue.
// Each scheduled task is stored as a pending result, the client reads the task store to report the status.
// Results from workers are stored and the evidence they produced is scheduled again,
// jobs which already processed the evidence are skipped.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/job/jobs"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/message"
	"github.com/jleaniz/turbinia/internal/pkg/recipe"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/dependencies"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/utctime"
	"github.com/jleaniz/turbinia/internal/pkg/store"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/telemetry"
	"github.com/jleaniz/turbinia/internal/pkg/transport"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const maxRetryDelay = 30 * time.Second

type Server struct {
	config    Config
	logger    log.Logger
	clock     clockwork.Clock
	tracer    telemetry.Tracer
	requests  *message.Channel
	tasks     *message.Queue[task.Task]
	results   *message.Queue[task.Result]
	store     store.TaskStore
	taskNames []string
	metrics   serverMetrics

	lock   sync.Mutex
	active map[string]*requestState
}

type serverMetrics struct {
	requests  metric.Int64Counter
	scheduled metric.Int64Counter
	results   metric.Int64Counter
}

// requestState is kept until all tasks of the request are finished.
type requestState struct {
	request *message.Request
	pending int
}

// New creates the server, the loops are started by Start.
func New(d dependencies.BackendScope, cfg Config) (*Server, error) {
	logger := d.Logger().WithComponent("server")

	definitions, err := jobs.Definitions()
	if err != nil {
		return nil, err
	}

	meter := d.Telemetry().Meter()
	return &Server{
		config:    cfg,
		logger:    logger,
		clock:     d.Clock(),
		tracer:    d.Telemetry().Tracer(),
		requests:  message.NewChannel(logger, d.Transport().Queue(transport.RequestsQueue)),
		tasks:     message.NewQueue[task.Task](d.Transport().Queue(transport.TasksQueue)),
		results:   message.NewQueue[task.Result](d.Transport().Queue(transport.ResultsQueue)),
		store:     d.TaskStore(),
		taskNames: definitions.Names(),
		active:    make(map[string]*requestState),
		metrics: serverMetrics{
			requests:  meter.Counter("turbinia.server.requests", "Received requests.", ""),
			scheduled: meter.Counter("turbinia.server.tasks.scheduled", "Scheduled tasks.", ""),
			results:   meter.Counter("turbinia.server.results", "Received task results.", ""),
		},
	}, nil
}

// Start runs the request and the result loops in the background, until the process is terminated.
func Start(ctx context.Context, d dependencies.BackendScope, cfg Config) (*Server, error) {
	s, err := New(d, cfg)
	if err != nil {
		return nil, err
	}

	// Check the configuration, before the first request
	if _, err := s.jobManager(ctx, nil); err != nil {
		return nil, err
	}

	d.Process().Add(func(ctx context.Context, _ chan<- error) {
		grp, ctx := errgroup.WithContext(ctx)
		grp.Go(func() error {
			s.requestsLoop(ctx)
			return nil
		})
		grp.Go(func() error {
			s.resultsLoop(ctx)
			return nil
		})
		_ = grp.Wait()
		s.logger.Info(ctx, "server stopped")
	})

	s.logger.Info(ctx, "server started")
	return s, nil
}

// ActiveRequests returns the number of requests with unfinished tasks.
func (s *Server) ActiveRequests() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.active)
}

func (s *Server) requestsLoop(ctx context.Context) {
	b := newRetryBackoff(s.clock)
	for ctx.Err() == nil {
		requests, err := s.requests.CheckMessages(ctx, s.config.PollTimeout.Duration())
		if err != nil && ctx.Err() == nil {
			s.waitForRetry(ctx, b, "Cannot check requests", err)
		} else {
			b.Reset()
		}
		for _, r := range requests {
			if _, err := s.ProcessRequest(ctx, r); err != nil {
				s.logger.With(attribute.String("request.id", r.RequestID)).Errorf(ctx, `Request "%s" failed: %s`, r.RequestID, err)
			}
		}
	}
}

func (s *Server) resultsLoop(ctx context.Context) {
	b := newRetryBackoff(s.clock)
	for ctx.Err() == nil {
		result, err := s.results.Pop(ctx, s.config.PollTimeout.Duration())
		var decodeErr message.DecodeError
		switch {
		case errors.Is(err, transport.ErrEmpty):
			continue
		case ctx.Err() != nil:
			return
		case errors.As(err, &decodeErr):
			b.Reset()
			s.logger.Errorf(ctx, `Dropped a result which cannot be decoded: %s`, err)
			continue
		case err != nil:
			s.waitForRetry(ctx, b, "Cannot get a result", err)
			continue
		}

		b.Reset()
		if _, err := s.ProcessResult(ctx, result); err != nil {
			s.logger.With(attribute.String("task.id", result.ID)).Errorf(ctx, `Cannot process result of the task "%s": %s`, result.ID, err)
		}
	}
}

func (s *Server) waitForRetry(ctx context.Context, b backoff.BackOff, msg string, err error) {
	delay := b.NextBackOff()
	s.logger.Errorf(ctx, `%s, retrying in %s: %s`, msg, delay, err)
	select {
	case <-ctx.Done():
	case <-s.clock.After(delay):
	}
}

// ProcessRequest schedules tasks of jobs accepting the request evidence.
func (s *Server) ProcessRequest(ctx context.Context, r *message.Request) (tasks []*task.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "turbinia.server.request", trace.WithAttributes(attribute.String("request.id", r.RequestID)))
	defer span.End(&err)

	s.metrics.requests.Add(ctx, 1)
	logger := s.logger.With(attribute.String("request.id", r.RequestID))

	if err := recipe.Validate(r.Recipe, s.taskNames); err != nil {
		return nil, err
	}
	m, err := s.jobManager(ctx, r.Recipe)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	s.active[r.RequestID] = &requestState{request: r}
	s.lock.Unlock()

	tasks = m.Expand(ctx, r.Evidence)
	if len(tasks) == 0 {
		logger.Warnf(ctx, `No jobs accept evidence of the request "%s"`, r.RequestID)
		s.finishRequest(ctx, r.RequestID)
		return nil, nil
	}

	if err := s.schedule(ctx, r, tasks); err != nil {
		return nil, err
	}
	logger.Infof(ctx, `Request "%s" from "%s": scheduled %d tasks`, r.RequestID, r.Requester, len(tasks))
	return tasks, nil
}

// ProcessResult stores the result and schedules tasks for the evidence produced by the task.
func (s *Server) ProcessResult(ctx context.Context, result *task.Result) (tasks []*task.Task, err error) {
	ctx, span := s.tracer.Start(ctx, "turbinia.server.result", trace.WithAttributes(
		attribute.String("request.id", result.RequestID),
		attribute.String("task.id", result.ID),
	))
	defer span.End(&err)

	s.metrics.results.Add(ctx, 1, metric.WithAttributes(attribute.Bool("successful", result.IsSuccessful())))
	result.WithClock(s.clock)
	logger := s.logger.With(attribute.String("request.id", result.RequestID), attribute.String("task.id", result.ID))
	logger.Infof(ctx, `Task "%s" on "%s": %s`, result.Name, result.WorkerName, result.Status)

	s.lock.Lock()
	state := s.active[result.RequestID]
	s.lock.Unlock()

	// Follow-up tasks are stored before the result, so the request is never seen as finished too early
	if len(result.Evidence) > 0 {
		r := s.requestOf(ctx, state, result)
		var m *job.Manager
		if m, err = s.jobManager(ctx, r.Recipe); err != nil {
			return nil, err
		}
		for _, e := range result.Evidence {
			e.Common().RequestID = result.RequestID
		}
		tasks = m.Expand(ctx, []evidence.Evidence(result.Evidence))
		if err := s.schedule(ctx, r, tasks); err != nil {
			return nil, err
		}
		if len(tasks) > 0 {
			logger.Infof(ctx, `Scheduled %d tasks for %d evidence produced by the task "%s"`, len(tasks), len(result.Evidence), result.Name)
		}
	}

	if err := s.store.Put(ctx, result); err != nil {
		return nil, err
	}

	s.lock.Lock()
	if state != nil && result.IsFinished() {
		state.pending--
	}
	done := state != nil && state.pending <= 0
	s.lock.Unlock()
	if done {
		s.finishRequest(ctx, result.RequestID)
	}
	return tasks, nil
}

// requestOf returns the request of the result. If the server was restarted in the meantime,
// the request is rebuilt from the result with the default recipe.
func (s *Server) requestOf(ctx context.Context, state *requestState, result *task.Result) *message.Request {
	if state != nil {
		return state.request
	}
	s.logger.Warnf(ctx, `Request "%s" is not known, the default recipe is used`, result.RequestID)
	r, _ := message.NewRequest(ctx,
		message.WithRequestID(result.RequestID),
		message.WithGroupID(result.GroupID),
		message.WithRequester(result.Requester),
	)
	return r
}

func (s *Server) schedule(ctx context.Context, r *message.Request, tasks []*task.Task) error {
	errs := errors.NewMultiError()
	for _, t := range tasks {
		t.RequestID = r.RequestID
		t.GroupID = r.GroupID
		t.Requester = r.Requester
		t.Recipe = r.Recipe
		t.Context = r.Context
		t.CreatedAt = utctime.From(s.clock.Now())

		// The pending result is stored first, so the client never misses a task
		if err := s.store.Put(ctx, task.NewResult(t, s.clock)); err != nil {
			errs.AppendWithPrefixf(err, `cannot store task "%s"`, t.ID)
			continue
		}

		// The task is counted before it is sent, the result may arrive at any time
		s.addPending(r.RequestID, 1)
		if err := s.tasks.Push(ctx, t); err != nil {
			s.addPending(r.RequestID, -1)
			errs.AppendWithPrefixf(err, `cannot send task "%s"`, t.ID)
			continue
		}
		s.metrics.scheduled.Add(ctx, 1, metric.WithAttributes(attribute.String("job.name", t.JobName)))
	}
	return errs.ErrorOrNil()
}

func (s *Server) addPending(requestID string, delta int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if state := s.active[requestID]; state != nil {
		state.pending += delta
	}
}

func (s *Server) finishRequest(ctx context.Context, requestID string) {
	s.lock.Lock()
	delete(s.active, requestID)
	s.lock.Unlock()
	s.logger.With(attribute.String("request.id", requestID)).Infof(ctx, `Request "%s" finished`, requestID)
}

// jobManager returns jobs enabled for the recipe.
func (s *Server) jobManager(ctx context.Context, r map[string]any) (*job.Manager, error) {
	globals, err := recipe.GlobalsOf(r)
	if err != nil {
		return nil, err
	}
	m := job.NewManager(log.NewNopLogger())
	if err := jobs.Register(m); err != nil {
		return nil, err
	}
	if err := m.Filter(ctx, globals.JobsAllowlist, globals.JobsDenylist, s.config.DisabledJobs); err != nil {
		return nil, err
	}
	return m, nil
}

func newRetryBackoff(clock clockwork.Clock) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	b.Clock = clock
	b.Reset()
	return b
}
