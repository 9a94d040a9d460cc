package chat

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/errdefs"
	"github.com/go-go-golems/multichat/pkg/sessions"
	"github.com/rs/zerolog/log"
)

// ErrorReplyPrefix starts the assistant turn written when every attempt failed.
const ErrorReplyPrefix = "Error generating response: "

// RetryPolicy bounds provider calls. Every failure consumes an attempt and
// attempts are separated by a fixed delay.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	// Sleep waits between attempts. It is not interrupted by cancellation.
	Sleep func(time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 2 * time.Second, Sleep: time.Sleep}
}

// Engine sequences user turns and replies of sessions.
type Engine struct {
	store      *sessions.Store
	registry   *Registry
	dispatcher Dispatcher
	retry      RetryPolicy
}

type EngineOption func(*Engine)

func WithRetryPolicy(p RetryPolicy) EngineOption {
	return func(e *Engine) {
		e.retry = p
	}
}

func NewEngine(store *sessions.Store, registry *Registry, dispatcher Dispatcher, options ...EngineOption) *Engine {
	e := &Engine{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		retry:      DefaultRetryPolicy(),
	}
	for _, o := range options {
		o(e)
	}
	if e.retry.Attempts < 1 {
		e.retry.Attempts = 1
	}
	if e.retry.Sleep == nil {
		e.retry.Sleep = time.Sleep
	}
	return e
}

// SubmitUserTurn appends a user turn to the named session and persists it.
// No provider is called.
func (e *Engine) SubmitUserTurn(ctx context.Context, name string, text string) (conversation.Turn, error) {
	if name == "" {
		return conversation.Turn{}, &errdefs.ValidationError{Field: "session", Reason: "no session selected"}
	}
	if strings.TrimSpace(text) == "" {
		return conversation.Turn{}, &errdefs.ValidationError{Field: "text", Reason: "message is empty"}
	}

	turn := conversation.NewTurn(conversation.RoleUser, text, e.store.Now())
	err := e.dispatcher.Invoke(ctx, func() error {
		return e.store.AppendTurn(name, turn)
	})
	if err != nil {
		return conversation.Turn{}, err
	}
	if err := e.store.Persist(ctx, name); err != nil {
		return turn, err
	}
	return turn, nil
}

// GenerateReply sends the whole transcript of a session to the active
// provider and appends the reply. Provider failures never fail the call: after
// the last attempt their message becomes the assistant turn. The returned
// error only reports a session that vanished or could not be saved.
func (e *Engine) GenerateReply(ctx context.Context, name string) (conversation.Turn, error) {
	sess, ok := e.store.Get(name)
	if !ok {
		return conversation.Turn{}, &errdefs.ValidationError{Field: "session", Reason: "unknown session " + name}
	}

	// an in-flight generation is not cancellable
	ctx = context.WithoutCancel(ctx)

	text := e.generate(ctx, sess.History())
	turn := conversation.NewTurn(conversation.RoleAssistant, text, e.store.Now())
	err := e.dispatcher.Invoke(ctx, func() error {
		return e.store.AppendTurn(name, turn)
	})
	if err != nil {
		return turn, err
	}
	if err := e.store.Persist(ctx, name); err != nil {
		return turn, err
	}
	return turn, nil
}

func (e *Engine) generate(ctx context.Context, history conversation.History) string {
	var lastErr error
	for attempt := 1; attempt <= e.retry.Attempts; attempt++ {
		id, eng, cfg, err := e.registry.Active()
		if err == nil {
			var reply string
			reply, err = eng.Send(ctx, history, cfg)
			if err == nil {
				log.Debug().Str("provider", id.String()).Int("attempt", attempt).Msg("Generated reply")
				return reply
			}
		}
		lastErr = err

		ev := log.Warn().Err(err).Str("provider", id.String()).Int("attempt", attempt)
		if errdefs.IsRateLimited(err) {
			ev = ev.Bool("rate_limited", true)
		}
		ev.Msg("Provider call failed")

		if attempt < e.retry.Attempts {
			e.retry.Sleep(e.retry.Delay)
		}
	}
	return ErrorReplyPrefix + lastErr.Error()
}
