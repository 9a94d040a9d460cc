package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

// EventRouter is the in-process bus between the background worker and
// whatever presents the conversation.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	verbose    bool
}

const subscriberBuffer = 64

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

// WithVerbose logs watermill internals and every published event.
func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		r.verbose = verbose
		if verbose {
			r.logger = NewWatermill(log.Logger)
		}
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = CorrelationPublisherDecorator{Publisher: goPubSub}
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}
	ret.router = router

	if ret.verbose {
		ret.AddHandler("log-events", TopicChat, ret.logEvent)
	}

	return ret, nil
}

// Publish encodes ev as JSON and publishes it on TopicChat.
func (e *EventRouter) Publish(ev Event) error {
	return e.PublishContext(context.Background(), ev)
}

// PublishContext publishes ev with the correlation id carried by ctx.
func (e *EventRouter) PublishContext(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(ev.Metadata().ID.String(), b)
	msg.SetContext(ctx)
	return e.Publisher.Publish(TopicChat, msg)
}

// Subscribe returns a channel of decoded events, in publish order. It is
// closed when ctx is done or the router is closed. Undecodable messages are
// logged and dropped. Publishing blocks once a subscriber falls
// subscriberBuffer events behind.
func (e *EventRouter) Subscribe(ctx context.Context) (<-chan Event, error) {
	msgs, err := e.Subscriber.Subscribe(ctx, TopicChat)
	if err != nil {
		return nil, err
	}
	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range msgs {
			ev, err := NewEventFromJson(msg.Payload)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable event")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

func (e *EventRouter) logEvent(msg *message.Message) error {
	defer msg.Ack()

	ev, err := NewEventFromJson(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.UUID).Msg("Undecodable event")
		return nil
	}
	log.Debug().
		Str("type", string(ev.Type())).
		Str("correlation_id", msg.Metadata.Get(CorrelationIDMetadataKey)).
		RawJSON("event", msg.Payload).
		Msg("Event")
	return nil
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

// Run blocks running the router handlers until ctx is cancelled.
func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

func (e *EventRouter) Close() error {
	log.Debug().Msg("Closing publisher")
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
	}
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}
	return nil
}
