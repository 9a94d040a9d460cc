package queue

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrQueueClosed    = errors.New("queue is closed")
	ErrAlreadyRunning = errors.New("queue already has a worker")
)

// Task is a unit of background work.
type Task struct {
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

// ErrorHandler is called on the worker goroutine for every failed or
// panicking task.
type ErrorHandler func(task *Task, err error)

// Queue is an unbounded FIFO consumed by exactly one worker. Enqueue never
// blocks, and at most one task executes at any time.
type Queue struct {
	mu      sync.Mutex
	idle    *sync.Cond
	tasks   []*Task
	pending int
	running bool
	closed  bool
	notify  chan struct{}

	onError ErrorHandler
}

type Option func(*Queue)

func WithErrorHandler(h ErrorHandler) Option {
	return func(q *Queue) {
		q.onError = h
	}
}

func New(options ...Option) *Queue {
	q := &Queue{
		notify: make(chan struct{}, 1),
	}
	q.idle = sync.NewCond(&q.mu)
	for _, o := range options {
		o(q)
	}
	return q
}

// Enqueue appends a task and returns its id. A task without an id gets a
// fresh uuid.
func (q *Queue) Enqueue(task *Task) (string, error) {
	if task == nil || task.Run == nil {
		return "", errors.New("task has nothing to run")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	q.tasks = append(q.tasks, task)
	q.pending++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	log.Debug().Str("task_id", task.ID).Str("task", task.Name).Msg("Enqueued task")
	return task.ID, nil
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Run is the worker loop. It executes tasks one after the other until ctx is
// cancelled or the queue is closed and drained. On cancellation the running
// task finishes and the tasks still queued are dropped.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrAlreadyRunning
	}
	q.running = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			q.discard(err)
			return nil
		}
		task, closed := q.next()
		if task == nil {
			if closed {
				return nil
			}
			select {
			case <-ctx.Done():
			case <-q.notify:
			}
			continue
		}

		q.execute(ctx, task)
	}
}

func (q *Queue) next() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, q.closed
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task, false
}

// discard drops the queued tasks and counts them as done, so Wait returns.
func (q *Queue) discard(reason error) {
	q.mu.Lock()
	dropped := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, task := range dropped {
		log.Warn().Err(reason).Str("task_id", task.ID).Str("task", task.Name).Msg("Dropped queued task")
		q.markDone()
	}
}

func (q *Queue) execute(ctx context.Context, task *Task) {
	defer q.markDone()

	err := q.runTask(ctx, task)
	if err == nil {
		return
	}
	log.Error().Err(err).Str("task_id", task.ID).Str("task", task.Name).Msg("Task failed")
	if q.onError != nil {
		q.onError(task, err)
	}
}

func (q *Queue) runTask(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task_id", task.ID).Bytes("stack", debug.Stack()).Msg("Task panicked")
			err = errors.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	return task.Run(ctx)
}

func (q *Queue) markDone() {
	q.mu.Lock()
	q.pending--
	if q.pending == 0 {
		q.idle.Broadcast()
	}
	q.mu.Unlock()
}

// Wait blocks until every task enqueued so far has finished or was dropped.
// Tasks enqueued while no worker runs keep Wait blocked until one does.
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending > 0 {
		q.idle.Wait()
	}
}

// Close stops accepting tasks. A running worker drains what is queued and
// then returns.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
