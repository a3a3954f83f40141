// Package servicectx runs the long-lived operations of a server or worker process and stops them together.
package servicectx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jleaniz/turbinia/internal/pkg/idgenerator"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// Process is stopped by SIGINT/SIGTERM, by Shutdown or by an error sent from an operation.
// Only the first stop reason is used, later errors are logged.
type Process struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger log.Logger

	ops     sync.WaitGroup
	errCh   chan error
	stopped chan struct{}
	reason  error

	lock        sync.Mutex
	terminating bool
	onShutdown  []OnShutdownFn
}

type OnShutdownFn func(ctx context.Context)

type Option func(p *Process)

// WithUniqueID overrides the process ID, the default is "<hostname>-<pid>".
func WithUniqueID(v string) Option {
	return func(p *Process) {
		p.id = v
	}
}

func New(ctx context.Context, cancel context.CancelFunc, logger log.Logger, opts ...Option) (*Process, error) {
	p := &Process{
		ctx:     ctx,
		cancel:  cancel,
		errCh:   make(chan error),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}

	if p.id == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, errors.PrefixError(err, "cannot get hostname")
		}
		p.id = fmt.Sprintf(`%s-%05d`, hostname, os.Getpid())
	}
	p.logger = logger.With(attribute.String("process.id", p.id))

	go p.collectErrors()
	go p.handleSignals()

	p.logger.Infof(ctx, `process unique id "%s"`, p.id)
	return p, nil
}

// NewForTest returns a process stopped by the test cleanup.
func NewForTest(t *testing.T) *Process {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	p, err := New(ctx, cancel, log.NewNopLogger(), WithUniqueID("test-"+idgenerator.EtcdNamespaceForTest()))
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		p.Shutdown(errors.New("test cleanup"))
		p.WaitForShutdown()
	})
	return p
}

func (p *Process) UniqueID() string {
	return p.id
}

// Ctx is cancelled when the process is stopping.
func (p *Process) Ctx() context.Context {
	return p.ctx
}

// Add starts the operation in a goroutine.
// The operation should end when ctx is done, it can stop the process by sending an error to errCh.
func (p *Process) Add(operation func(ctx context.Context, errCh chan<- error)) {
	p.ops.Add(1)
	go func() {
		defer p.ops.Done()
		operation(p.ctx, p.errCh)
	}()
}

// OnShutdown registers a callback, callbacks run in reverse order before WaitForShutdown waits for operations.
func (p *Process) OnShutdown(fn OnShutdownFn) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.terminating {
		p.logger.Error(p.ctx, `cannot register OnShutdown callback: the process is terminating`)
		return
	}
	p.onShutdown = append(p.onShutdown, fn)
}

// Shutdown stops the process, it does not block.
func (p *Process) Shutdown(err error) {
	go func() {
		p.errCh <- err
	}()
}

// WaitForShutdown blocks until the process is stopped and all operations have ended.
func (p *Process) WaitForShutdown() {
	<-p.stopped
	p.logger.Infof(p.ctx, "exiting (%v)", p.reason)
	p.cancel()

	p.lock.Lock()
	p.terminating = true
	callbacks := p.onShutdown
	p.lock.Unlock()

	ctx := context.WithoutCancel(p.ctx)
	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i](ctx)
	}

	p.ops.Wait()
	p.logger.Info(ctx, "exited")
}

// collectErrors reads errCh for the whole process lifetime, so no sender is blocked after the first error.
func (p *Process) collectErrors() {
	first := true
	for err := range p.errCh {
		if first {
			first = false
			p.reason = err
			close(p.stopped)
			continue
		}
		if err != nil {
			p.logger.Warnf(context.WithoutCancel(p.ctx), "process is already stopping, error ignored: %s", err)
		}
	}
}

func (p *Process) handleSignals() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	select {
	case s := <-sig:
		p.errCh <- errors.Errorf("%s", s)
	case <-p.ctx.Done():
	}
}
