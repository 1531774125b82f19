package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventRouter wires pipeline event publishers to subscribers over an
// in-process watermill gochannel pubsub. The relay publishes through a
// WatermillSink; consumers (bot streaming updates, CLI printers) register
// handlers on topics.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	verbose    bool
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		r.verbose = verbose
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
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}

	ret.router = router

	return ret, nil
}

func (e *EventRouter) Close() error {
	log.Debug().Msg("Closing publisher")
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
		// not returning just yet, the router still needs closing
	}

	log.Debug().Msg("Closing router")
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}

	return nil
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// DumpRawEvents is a debugging handler that pretty-prints every event on a
// topic to stdout.
func (e *EventRouter) DumpRawEvents(msg *message.Message) error {
	defer msg.Ack()

	var s map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &s); err != nil {
		return err
	}
	if !e.verbose {
		delete(s, "meta")
	}
	s_, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(s_))
	return nil
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

// NewEventFromJSON deserializes an event published through a WatermillSink
// back into its concrete type.
func NewEventFromJSON(b []byte) (Event, error) {
	var impl EventImpl
	if err := json.Unmarshal(b, &impl); err != nil {
		return nil, err
	}
	impl.payload = b

	switch impl.Type_ {
	case EventTypeStart:
		ret := &EventStart{}
		if err := json.Unmarshal(b, ret); err != nil {
			return nil, err
		}
		ret.payload = b
		return ret, nil
	case EventTypeDelta:
		ret := &EventDelta{}
		if err := json.Unmarshal(b, ret); err != nil {
			return nil, err
		}
		ret.payload = b
		return ret, nil
	case EventTypeThinkingDelta:
		ret := &EventThinkingDelta{}
		if err := json.Unmarshal(b, ret); err != nil {
			return nil, err
		}
		ret.payload = b
		return ret, nil
	case EventTypeToolCall:
		ret := &EventToolCall{}
		if err := json.Unmarshal(b, ret); err != nil {
			return nil, err
		}
		ret.payload = b
		return ret, nil
	case EventTypeFinal:
		ret := &EventFinal{}
		if err := json.Unmarshal(b, ret); err != nil {
			return nil, err
		}
		ret.payload = b
		return ret, nil
	case EventTypeError:
		ret := &EventError{}
		if err := json.Unmarshal(b, ret); err != nil {
			return nil, err
		}
		ret.payload = b
		return ret, nil
	case EventTypeInterrupt:
		ret := &EventInterrupt{}
		if err := json.Unmarshal(b, ret); err != nil {
			return nil, err
		}
		ret.payload = b
		return ret, nil
	default:
		return nil, errors.Errorf("unknown event type: %s", impl.Type_)
	}
}
