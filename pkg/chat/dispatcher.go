package chat

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Dispatcher runs state mutations on the interactive goroutine. Invoke
// blocks until fn has run and returns its error. fn must not call Invoke.
type Dispatcher interface {
	Invoke(ctx context.Context, fn func() error) error
}

// InlineDispatcher runs fn on the calling goroutine, one call at a time. It
// is meant for headless use, where there is no interactive loop.
type InlineDispatcher struct {
	mu sync.Mutex
}

var _ Dispatcher = (*InlineDispatcher)(nil)

func NewInlineDispatcher() *InlineDispatcher {
	return &InlineDispatcher{}
}

func (d *InlineDispatcher) Invoke(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return safeCall(fn)
}

type dispatchCall struct {
	fn   func() error
	done chan error
}

// LoopDispatcher hands every call to the goroutine running Run.
type LoopDispatcher struct {
	calls   chan dispatchCall
	stopped chan struct{}
	once    sync.Once
}

var _ Dispatcher = (*LoopDispatcher)(nil)

func NewLoopDispatcher() *LoopDispatcher {
	return &LoopDispatcher{
		calls:   make(chan dispatchCall),
		stopped: make(chan struct{}),
	}
}

// Run executes submitted calls until ctx is cancelled. Calls submitted
// afterwards fail with ErrDispatcherStopped.
func (d *LoopDispatcher) Run(ctx context.Context) error {
	defer d.once.Do(func() { close(d.stopped) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-d.calls:
			c.done <- safeCall(c.fn)
		}
	}
}

func (d *LoopDispatcher) Invoke(ctx context.Context, fn func() error) error {
	c := dispatchCall{fn: fn, done: make(chan error, 1)}
	select {
	case d.calls <- c:
	case <-d.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// once handed over, the call always completes
	return <-c.done
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Dispatched call panicked")
			err = errors.Errorf("dispatched call panicked: %v", r)
		}
	}()
	return fn()
}
