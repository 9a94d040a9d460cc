package chat

import (
	"context"
	"io"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/events"
	"github.com/go-go-golems/multichat/pkg/inference/queue"
	"github.com/go-go-golems/multichat/pkg/sessions"
	"github.com/go-go-golems/multichat/pkg/steps/ai/settings"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// App is the surface a presentation layer talks to. Mutations of session
// state run through the dispatcher; generation runs on the queue worker and
// is reported through events.
type App struct {
	store      *sessions.Store
	registry   *Registry
	engine     *Engine
	queue      *queue.Queue
	router     *events.EventRouter
	dispatcher Dispatcher
	loop       *LoopDispatcher

	engineOptions []EngineOption
}

type AppOption func(*App)

// WithDispatcher replaces the default InlineDispatcher. A *LoopDispatcher is
// driven by App.Run.
func WithDispatcher(d Dispatcher) AppOption {
	return func(a *App) {
		a.dispatcher = d
		if loop, ok := d.(*LoopDispatcher); ok {
			a.loop = loop
		}
	}
}

func WithEngineOptions(options ...EngineOption) AppOption {
	return func(a *App) {
		a.engineOptions = append(a.engineOptions, options...)
	}
}

func WithEventRouter(router *events.EventRouter) AppOption {
	return func(a *App) {
		a.router = router
	}
}

func NewApp(store *sessions.Store, registry *Registry, options ...AppOption) (*App, error) {
	a := &App{
		store:      store,
		registry:   registry,
		dispatcher: NewInlineDispatcher(),
	}
	for _, o := range options {
		o(a)
	}

	if a.router == nil {
		router, err := events.NewEventRouter(events.WithLogger(events.NewWatermill(log.Logger)))
		if err != nil {
			return nil, errors.Wrap(err, "could not create event router")
		}
		a.router = router
	}

	a.engine = NewEngine(store, registry, a.dispatcher, a.engineOptions...)
	a.queue = queue.New(queue.WithErrorHandler(a.onTaskError))
	return a, nil
}

// Load reads the provider configuration and every stored session. It is
// called once, before Run. Sessions that could not be read are returned as
// warnings.
func (a *App) Load(ctx context.Context) ([]error, error) {
	if err := a.registry.Load(); err != nil {
		return nil, err
	}
	_, warnings := a.store.LoadAll(ctx)
	return warnings, nil
}

// Run drives the queue worker, the dispatcher loop and the event router
// until ctx is cancelled. The dispatcher loop outlives the worker so that a
// reply being generated at shutdown is still appended.
func (a *App) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	loopCtx, cancelLoop := context.WithCancel(context.Background())

	eg.Go(func() error {
		defer cancelLoop()
		return a.queue.Run(ctx)
	})
	if a.loop != nil {
		eg.Go(func() error {
			return a.loop.Run(loopCtx)
		})
	} else {
		cancelLoop()
	}
	eg.Go(func() error {
		return a.router.Run(ctx)
	})
	return eg.Wait()
}

func (a *App) Close() error {
	a.queue.Close()
	if err := a.router.Close(); err != nil {
		log.Warn().Err(err).Msg("Could not close event router")
	}
	return a.store.Close()
}

func (a *App) CreateSession(ctx context.Context) (*sessions.Session, error) {
	var sess *sessions.Session
	err := a.dispatcher.Invoke(ctx, func() error {
		sess = a.store.Create()
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.publish(events.NewSessionCreatedEvent(sess.Name))
	return sess, nil
}

func (a *App) DeleteSession(ctx context.Context, name string) error {
	err := a.dispatcher.Invoke(ctx, func() error {
		return a.store.Delete(ctx, name)
	})
	if err != nil {
		return err
	}
	a.publish(events.NewSessionDeletedEvent(name))
	return nil
}

func (a *App) ListSessions() []string {
	return a.store.List()
}

func (a *App) SelectSession(ctx context.Context, name string) error {
	return a.dispatcher.Invoke(ctx, func() error {
		return a.store.Select(name)
	})
}

func (a *App) CurrentSession() (*sessions.Session, bool) {
	return a.store.Current()
}

func (a *App) Session(name string) (*sessions.Session, bool) {
	return a.store.Get(name)
}

// SubmitUserTurn adds a user turn to the current session.
func (a *App) SubmitUserTurn(ctx context.Context, text string) (conversation.Turn, error) {
	return a.engine.SubmitUserTurn(ctx, a.store.CurrentName(), text)
}

// RequestGeneration queues a reply for the named session and returns the
// task id. The reply is announced with a reply-ready event.
func (a *App) RequestGeneration(name string) (string, error) {
	if !a.store.Has(name) {
		return "", &errdefs.ValidationError{Field: "session", Reason: "unknown session " + name}
	}
	task := &queue.Task{Name: "generate:" + name}
	task.Run = func(ctx context.Context) error {
		ctx = events.ContextWithCorrelationID(ctx, task.ID)
		turn, err := a.engine.GenerateReply(ctx, name)
		if err != nil && !errors.Is(err, errdefs.ErrPersistence) {
			return err
		}
		a.publishContext(ctx, events.NewReplyReadyEvent(name, turn))
		return err
	}
	return a.queue.Enqueue(task)
}

// Send submits text to the current session and queues the reply.
func (a *App) Send(ctx context.Context, text string) (string, error) {
	name := a.store.CurrentName()
	if _, err := a.engine.SubmitUserTurn(ctx, name, text); err != nil {
		// the turn is appended even when saving it failed
		if !errors.Is(err, errdefs.ErrPersistence) {
			return "", err
		}
		log.Warn().Err(err).Str("session", name).Msg("Could not save user turn")
	}
	return a.RequestGeneration(name)
}

func (a *App) AttachFile(ctx context.Context, path string) (*sessions.Attachment, error) {
	var ret *sessions.Attachment
	err := a.dispatcher.Invoke(ctx, func() error {
		var err error
		ret, err = a.store.Attach(ctx, a.store.CurrentName(), path)
		return err
	})
	return ret, err
}

// ExportCurrent writes the current session as plain text.
func (a *App) ExportCurrent(w io.Writer) error {
	sess, ok := a.store.Current()
	if !ok {
		return &errdefs.ValidationError{Field: "session", Reason: "no session selected"}
	}
	return sessions.Export(w, sess)
}

func (a *App) Configuration() *settings.Configuration {
	return a.registry.Configuration()
}

func (a *App) SetConfiguration(ctx context.Context, cfg *settings.Configuration) error {
	return a.dispatcher.Invoke(ctx, func() error {
		return a.registry.SetConfiguration(cfg)
	})
}

// SetActiveProvider switches provider and saves the configuration.
func (a *App) SetActiveProvider(ctx context.Context, id types.ProviderID) error {
	cfg := a.registry.Configuration()
	cfg.ActiveProvider = id
	return a.SetConfiguration(ctx, cfg)
}

func (a *App) ActiveProviderLabel() string {
	return a.registry.Label()
}

func (a *App) Subscribe(ctx context.Context) (<-chan events.Event, error) {
	return a.router.Subscribe(ctx)
}

// Wait blocks until every queued generation has finished.
func (a *App) Wait() {
	a.queue.Wait()
}

func (a *App) publish(ev events.Event) {
	a.publishContext(context.Background(), ev)
}

func (a *App) publishContext(ctx context.Context, ev events.Event) {
	if err := a.router.PublishContext(ctx, ev); err != nil {
		log.Warn().Err(err).Str("type", string(ev.Type())).Msg("Could not publish event")
	}
}

func (a *App) onTaskError(task *queue.Task, err error) {
	ctx := events.ContextWithCorrelationID(context.Background(), task.ID)
	a.publishContext(ctx, events.NewProcessingErrorEvent(task.ID, err))
}
