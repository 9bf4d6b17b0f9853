package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/shopwire/pkg/helpers"
)

// ChatEventHandler receives decoded inference events from a topic.
type ChatEventHandler interface {
	HandlePartialCompletion(ctx context.Context, e *EventPartialCompletion) error
	HandleFinal(ctx context.Context, e *EventFinal) error
	HandleToolCall(ctx context.Context, e *EventToolCall) error
	HandleError(ctx context.Context, e *EventError) error
	HandleInterrupt(ctx context.Context, e *EventInterrupt) error
}

// EventRouter wires an in-process watermill pub/sub to named handlers.
// Engines publish into it through a WatermillSink on Publisher.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	verbose    bool
	dumpWriter io.Writer
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithPublisher(publisher message.Publisher) EventRouterOption {
	return func(r *EventRouter) {
		r.Publisher = publisher
	}
}

func WithSubscriber(subscriber message.Subscriber) EventRouterOption {
	return func(r *EventRouter) {
		r.Subscriber = subscriber
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		r.verbose = verbose
		r.logger = helpers.NewWatermill(log.Logger)
	}
}

// WithDumpWriter sets where DumpRawEvents writes, stdout by default.
func WithDumpWriter(w io.Writer) EventRouterOption {
	return func(r *EventRouter) {
		r.dumpWriter = w
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger:     watermill.NopLogger{},
		dumpWriter: os.Stdout,
	}

	for _, o := range options {
		o(ret)
	}

	if ret.Publisher == nil || ret.Subscriber == nil {
		goPubSub := gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, ret.logger)
		if ret.Publisher == nil {
			ret.Publisher = goPubSub
		}
		if ret.Subscriber == nil {
			ret.Subscriber = goPubSub
		}
	}

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}
	ret.router = router

	return ret, nil
}

// Close closes the publisher and then the router. Errors are logged.
func (e *EventRouter) Close() error {
	log.Debug().Msg("Closing publisher")
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
	}

	log.Debug().Msg("Closing router")
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}
	log.Debug().Msg("Router closed")

	return nil
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// AddChatEventHandler decodes every message on topic and dispatches it to
// handler.
func (e *EventRouter) AddChatEventHandler(name string, topic string, handler ChatEventHandler) {
	e.AddHandler(name, topic, createChatDispatchHandler(handler))
}

func createChatDispatchHandler(handler ChatEventHandler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		ev, err := NewEventFromJson(msg.Payload)
		if err != nil {
			// one bad message must not stop the handler
			log.Error().Err(err).Str("message_id", msg.UUID).Str("payload", string(msg.Payload)).Msg("Failed to parse chat event")
			return nil
		}

		log.Trace().Str("message_id", msg.UUID).Str("event_type", string(ev.Type())).Msg("Dispatching chat event")

		ctx := msg.Context()
		switch ev_ := ev.(type) {
		case *EventPartialCompletion:
			err = handler.HandlePartialCompletion(ctx, ev_)
		case *EventFinal:
			err = handler.HandleFinal(ctx, ev_)
		case *EventToolCall:
			err = handler.HandleToolCall(ctx, ev_)
		case *EventError:
			err = handler.HandleError(ctx, ev_)
		case *EventInterrupt:
			err = handler.HandleInterrupt(ctx, ev_)
		case *EventPartialCompletionStart:
		default:
			log.Warn().Str("message_id", msg.UUID).Str("event_type", string(ev.Type())).Msg("Unhandled chat event type")
		}

		if err != nil {
			log.Error().Err(err).Str("message_id", msg.UUID).Msg("Error processing chat event")
			return err
		}
		return nil
	}
}

// DumpRawEvents prints each event as indented JSON. Unless verbose, the
// metadata is reduced to the message id.
func (e *EventRouter) DumpRawEvents(msg *message.Message) error {
	defer msg.Ack()

	var s map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &s); err != nil {
		return err
	}
	if !e.verbose {
		if meta, ok := s["meta"].(map[string]interface{}); ok {
			s["id"] = meta["message_id"]
		}
		delete(s, "meta")
	}
	s_, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.dumpWriter, string(s_))
	return err
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) IsRunning() bool {
	return e.router.IsRunning()
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}
