package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"LendLedger/internal/observability"
)

// StreamName holds the decoded chain-event firehose. The engine depends on
// in-order delivery, so a single stream with a single durable consumer
// carries every event type; the subject's last token names the type.
const (
	StreamName     = "LEND_EVENTS"
	SubjectPrefix  = "lend.events"
	SubjectPattern = "lend.events.>"
	ConsumerName   = "lendledger-core"
)

// NATSSubscriber consumes the chain-event stream and feeds raw messages into
// the shell via eventChan. One consumer, explicit ack: a message is acked
// only after the core applied (or intentionally skipped) the event, so a
// crash replays from the last unacked message and the idempotency tier
// swallows the overlap.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumer  jetstream.ConsumeContext
}

// RawEvent is one undecoded message off the stream. Subject carries the
// event type; Ack/Nak must be called exactly once after processing.
type RawEvent struct {
	Subject  string
	Data     []byte
	Received time.Time
	AckFunc  func()
	NakFunc  func()
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates the durable consumer and starts delivery. MaxAckPending
// is 1: the next message is not delivered until the previous one is acked,
// which is what keeps the chain order intact across redeliveries.
func (ns *NATSSubscriber) Subscribe(ctx context.Context) error {
	log := observability.NewLogger("ingestion")

	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: SubjectPattern,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", ConsumerName, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawEvent{
			Subject:  msg.Subject(),
			Data:     msg.Data(),
			Received: time.Now(),
			AckFunc:  func() { msg.Ack() },
			NakFunc:  func() { msg.Nak() },
		}

		select {
		case ns.eventChan <- raw:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", ConsumerName, err)
	}

	ns.consumer = consumeCtx
	log.Info().
		Str("stream", StreamName).
		Str("consumer", ConsumerName).
		Msg("subscribed to chain-event stream")
	return nil
}

// EnsureStream creates the chain-event stream if it doesn't exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	log := observability.NewLogger("ingestion")

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPattern},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	log.Info().
		Str("stream", StreamName).
		Msg("ensured chain-event stream")
	return nil
}

// Stop gracefully stops the consumer.
func (ns *NATSSubscriber) Stop() {
	if ns.consumer != nil {
		ns.consumer.Stop()
	}
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := observability.NewLogger("ingestion")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
