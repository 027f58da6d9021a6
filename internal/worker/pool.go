// ABOUTME: Bounded worker pool for effectful bot tasks
// ABOUTME: Submit blocks while every slot is busy; failures are contained per task

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the pool size used when none is configured.
const DefaultSize = 8

// ErrClosed is returned by Submit after Shutdown has begun.
var ErrClosed = errors.New("worker pool closed")

// ErrPanic wraps a value recovered from a panicking task.
var ErrPanic = errors.New("task panicked")

// Task is one unit of effectful work.
type Task struct {
	ID   string
	Kind string
	Run  func(ctx context.Context) error
	// OnFailure, when set, receives the error of a failed or panicking task.
	OnFailure func(err error)
}

// Pool runs tasks with at most Size in flight.
type Pool struct {
	size   int64
	sem    *semaphore.Weighted
	logger *slog.Logger

	metrics *Metrics

	// intake is cancelled when Shutdown begins; it unblocks waiting submitters.
	intake       context.Context
	cancelIntake context.CancelFunc
	// tasks is the parent of every task context; cancelled after the grace period.
	tasks       context.Context
	cancelTasks context.CancelFunc

	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger.With("component", "worker") }
}

// WithMetrics records pool activity in m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// New creates a pool with size slots. Non-positive sizes use DefaultSize.
func New(size int, opts ...Option) *Pool {
	if size <= 0 {
		size = DefaultSize
	}

	p := &Pool{
		size:   int64(size),
		sem:    semaphore.NewWeighted(int64(size)),
		logger: slog.Default().With("component", "worker"),
	}
	p.intake, p.cancelIntake = context.WithCancel(context.Background())
	p.tasks, p.cancelTasks = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return int(p.size)
}

// InFlight returns the number of running tasks.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Submit starts t as soon as a slot is free, blocking until then.
// It returns ctx's error if ctx ends first and ErrClosed once Shutdown has begun.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	if t.Run == nil {
		return fmt.Errorf("submitting task %s: nil Run", t.ID)
	}
	if p.isClosed() {
		return ErrClosed
	}

	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.intake, cancel)
	defer stop()

	start := time.Now()
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if p.isClosed() {
			return ErrClosed
		}
		return err
	}
	p.metrics.observeWait(time.Since(start))

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.sem.Release(1)
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	p.inFlight.Add(1)
	p.metrics.setInFlight(p.inFlight.Load())

	go p.run(t)
	return nil
}

func (p *Pool) run(t Task) {
	start := time.Now()
	defer func() {
		n := p.inFlight.Add(-1)
		p.metrics.setInFlight(n)
		p.sem.Release(1)
		p.wg.Done()
	}()

	err := p.safeRun(t)

	outcome := outcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrPanic):
		outcome = outcomePanic
	case p.tasks.Err() != nil:
		outcome = outcomeCancelled
	default:
		outcome = outcomeError
	}
	p.metrics.observeTask(t.Kind, outcome, time.Since(start))

	if err == nil {
		return
	}

	p.logger.Error("task failed",
		"task_id", t.ID,
		"kind", t.Kind,
		"outcome", outcome,
		"error", err,
	)
	if t.OnFailure != nil {
		p.safeFailure(t, err)
	}
}

// safeRun executes the task, converting a panic into an error.
func (p *Pool) safeRun(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panic", "task_id", t.ID, "kind", t.Kind, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return t.Run(p.tasks)
}

func (p *Pool) safeFailure(t Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("failure handler panic", "task_id", t.ID, "kind", t.Kind, "panic", r)
		}
	}()
	t.OnFailure(err)
}

func (p *Pool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Shutdown stops intake and waits up to grace for running tasks. Tasks
// still running after grace have their context cancelled and are counted
// as abandoned. Calling Shutdown again returns 0.
func (p *Pool) Shutdown(grace time.Duration) int {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0
	}
	p.closed = true
	p.mu.Unlock()
	p.cancelIntake()

	p.logger.Info("worker pool shutting down", "in_flight", p.InFlight(), "grace", grace)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		p.cancelTasks()
		p.logger.Info("worker pool drained")
		return 0
	case <-timer.C:
	}

	abandoned := p.InFlight()
	p.cancelTasks()
	p.metrics.addAbandoned(abandoned)
	p.logger.Warn("worker pool grace period expired", "abandoned", abandoned)
	return abandoned
}
