package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("scheduler is closed")

// Action runs when a task fires. Actions are best-effort: an error means the
// target was already gone or the platform refused, and is logged, never
// propagated. Tasks are in-memory only and do not survive a restart.
type Action func(ctx context.Context) error

type Handle string

type task struct {
	timer  *time.Timer
	cancel func()
}

type Scheduler struct {
	logger *zap.Logger

	mu     sync.Mutex
	tasks  map[Handle]*task
	closed bool

	// afterFunc is swapped in tests to fire callbacks deterministically.
	afterFunc func(d time.Duration, fn func()) *time.Timer
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		logger:    logger,
		tasks:     make(map[Handle]*task),
		afterFunc: time.AfterFunc,
	}
}

// Schedule registers action to run after delay and returns immediately. The
// returned handle can cancel the task; once the task has fired or been
// cancelled the handle is dead and cancelling it again is a no-op.
func (s *Scheduler) Schedule(delay time.Duration, kind string, action Action) (Handle, error) {
	if action == nil {
		return "", fmt.Errorf("action is nil")
	}
	if delay < 0 {
		delay = 0
	}

	handle := Handle(uuid.NewString())
	ctx, cancelCtx := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancelCtx()
		return "", ErrClosed
	}

	t := &task{cancel: cancelCtx}
	t.timer = s.afterFunc(delay, func() {
		s.fire(ctx, handle, kind, action)
	})
	s.tasks[handle] = t
	s.mu.Unlock()

	return handle, nil
}

// Cancel stops a pending task. Cancelling an unknown or already-fired handle
// is a no-op: the task may have been resolved by a human admin first.
func (s *Scheduler) Cancel(handle Handle) {
	s.mu.Lock()
	t, ok := s.tasks[handle]
	if ok {
		delete(s.tasks, handle)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	t.timer.Stop()
	t.cancel()
}

// Close cancels everything pending. Used on shutdown; losing pending deletes
// across restarts is an accepted limitation.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		pending = append(pending, t)
	}
	s.tasks = make(map[Handle]*task)
	s.mu.Unlock()

	for _, t := range pending {
		t.timer.Stop()
		t.cancel()
	}
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) fire(ctx context.Context, handle Handle, kind string, action Action) {
	s.mu.Lock()
	_, ok := s.tasks[handle]
	if ok {
		delete(s.tasks, handle)
	}
	s.mu.Unlock()

	// A duplicate or post-cancel fire must stay silent.
	if !ok || ctx.Err() != nil {
		return
	}

	if err := action(ctx); err != nil {
		s.logger.Debug("deferred task fired against gone target",
			zap.String("task", kind),
			zap.Error(err))
	}
}
