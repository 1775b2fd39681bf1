// Package events feeds the orchestrator from the event bus.
//
// The matchmaking engine and the compute provisioner publish their
// asynchronous events to JetStream subjects; a durable consumer delivers
// them at-least-once. Handler outcomes map to acks: nil acks the message,
// an error naks it with a delay so the bus redelivers. Undecodable
// messages are acked away as poison.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/cubedrop/backend/internal/domain"
)

// Event subjects carried on the stream
const (
	SubjectMatchFound     = "mm.events.found"
	SubjectTicketDropped  = "mm.events.dropped"
	SubjectComputeRunning = "compute.events.running"
)

const durableName = "orchestrator"

// Handler receives decoded lifecycle events.
type Handler interface {
	HandleMatchFound(ctx context.Context, ev *domain.MatchFoundEvent) error
	HandleTicketDropped(ctx context.Context, ev *domain.TicketDroppedEvent) error
	HandleComputeRunning(ctx context.Context, ev *domain.ComputeRunningEvent) error
}

// Consumer binds a durable JetStream consumer to a Handler.
type Consumer struct {
	js         jetstream.JetStream
	stream     string
	handler    Handler
	retryDelay time.Duration

	consumeCtx jetstream.ConsumeContext
}

// NewConsumer creates a consumer on the given stream. retryDelay is the
// redelivery pause after a failed handler invocation.
func NewConsumer(nc *nats.Conn, stream string, handler Handler, retryDelay time.Duration) (*Consumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	return &Consumer{js: js, stream: stream, handler: handler, retryDelay: retryDelay}, nil
}

// Start ensures the stream and durable consumer exist and begins
// dispatching. It returns immediately; Stop drains the subscription.
func (c *Consumer) Start(ctx context.Context) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.stream,
		Subjects: []string{"mm.events.>", "compute.events.>"},
	})
	if err != nil {
		return fmt.Errorf("ensuring stream %s: %w", c.stream, err)
	}

	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.stream, jetstream.ConsumerConfig{
		Durable:   durableName,
		AckPolicy: jetstream.AckExplicitPolicy,
		FilterSubjects: []string{
			SubjectMatchFound,
			SubjectTicketDropped,
			SubjectComputeRunning,
		},
	})
	if err != nil {
		return fmt.Errorf("ensuring consumer %s: %w", durableName, err)
	}

	c.consumeCtx, err = cons.Consume(c.dispatch)
	if err != nil {
		return fmt.Errorf("starting consume loop: %w", err)
	}

	log.Info().Str("stream", c.stream).Str("durable", durableName).Msg("events: consumer started")
	return nil
}

// Stop drains the consume loop.
func (c *Consumer) Stop() {
	if c.consumeCtx != nil {
		c.consumeCtx.Stop()
	}
}

func (c *Consumer) dispatch(msg jetstream.Msg) {
	ctx := context.Background()
	subject := msg.Subject()

	var err error
	switch subject {
	case SubjectMatchFound:
		err = decodeAndHandle(ctx, msg, c.handler.HandleMatchFound)
	case SubjectTicketDropped:
		err = decodeAndHandle(ctx, msg, c.handler.HandleTicketDropped)
	case SubjectComputeRunning:
		err = decodeAndHandle(ctx, msg, c.handler.HandleComputeRunning)
	default:
		log.Warn().Str("subject", subject).Msg("events: unexpected subject, dropping")
		ackOrLog(msg)
		return
	}

	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("events: handler failed, scheduling redelivery")
		if nakErr := msg.NakWithDelay(c.retryDelay); nakErr != nil {
			log.Error().Err(nakErr).Str("subject", subject).Msg("events: nak failed")
		}
		return
	}
	ackOrLog(msg)
}

// decodeAndHandle unmarshals the message body and invokes the handler.
// A body that does not decode is poison: acked and dropped.
func decodeAndHandle[T any](ctx context.Context, msg jetstream.Msg, handle func(context.Context, *T) error) error {
	var ev T
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("events: undecodable message, dropping")
		return nil
	}
	return handle(ctx, &ev)
}

func ackOrLog(msg jetstream.Msg) {
	if err := msg.Ack(); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("events: ack failed")
	}
}
