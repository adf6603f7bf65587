package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// TailOptions selects which operation events Tail delivers.
type TailOptions struct {
	// Kind filters by operation kind; empty means all kinds.
	Kind string
	// Durable names a consumer that survives restarts.
	Durable string
	// FromStart replays the retained stream instead of only new events.
	FromStart bool
}

// Tail streams operation events to handle until ctx is done. Events that
// fail to decode are logged and acknowledged.
func Tail(ctx context.Context, natsURL string, opts TailOptions, logger *slog.Logger, handle func(*OperationEvent)) error {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(natsURL, nats.Name("aleotx-tail"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, consumerConfig(opts))
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		event, err := decodeEvent(msg.Data())
		if err != nil {
			logger.Warn("failed to decode operation event", "subject", msg.Subject(), "error", err)
		} else {
			handle(event)
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return nil
}

func consumerConfig(opts TailOptions) jetstream.ConsumerConfig {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: SubjectFor(opts.Kind),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if opts.FromStart {
		cfg.DeliverPolicy = jetstream.DeliverAllPolicy
	}
	if opts.Durable != "" {
		cfg.Durable = opts.Durable
		cfg.Name = opts.Durable
	}
	return cfg
}

func decodeEvent(data []byte) (*OperationEvent, error) {
	var event OperationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
