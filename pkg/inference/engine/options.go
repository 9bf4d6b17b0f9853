package engine

import (
	"context"

	"github.com/go-go-golems/shopwire/pkg/events"
	"github.com/rs/zerolog/log"
)

// Option is a functional option for configuring engines.
type Option func(*Config) error

type Config struct {
	// EventSinks receive every event published during a turn, in the order they were added.
	EventSinks []events.EventSink
}

func NewConfig() *Config {
	return &Config{
		EventSinks: make([]events.EventSink, 0),
	}
}

func WithSink(sink events.EventSink) Option {
	return func(c *Config) error {
		c.EventSinks = append(c.EventSinks, sink)
		return nil
	}
}

func ApplyOptions(config *Config, options ...Option) error {
	for _, option := range options {
		if err := option(config); err != nil {
			return err
		}
	}
	return nil
}

// PublishEvent sends event to the configured sinks and then to the sinks
// attached to ctx. Sink failures are logged and never abort the turn.
func (c *Config) PublishEvent(ctx context.Context, event events.Event) {
	for _, sink := range c.EventSinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("Failed to publish event to sink")
		}
	}
	events.PublishEventToContext(ctx, event)
}
