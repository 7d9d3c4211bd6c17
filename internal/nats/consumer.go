package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// maxDeliver bounds redelivery of a message that keeps failing, such as
// an audit row the database refuses.
const maxDeliver = 5

// redeliveryBackOff applies when an ack wait expires. Handlers that reject a
// message pick the same delay through RedeliveryDelay.
var redeliveryBackOff = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second, 30 * time.Second}

// ConsumerManager creates the durable pull consumers for event subjects.
type ConsumerManager struct {
	js jetstream.JetStream
}

func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js}
}

// EnsureConsumer creates or updates a durable pull consumer filtered to one
// subject. A message is dropped after maxDeliver attempts.
func (cm *ConsumerManager) EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       name,
		Description:   "replypilot " + name,
		FilterSubject: filterSubject,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    maxDeliver,
		BackOff:       redeliveryBackOff,
	}

	consumer, err := cm.js.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", name, stream, err)
	}
	return consumer, nil
}

// RedeliveryDelay is the wait before the next attempt of a message that has
// been delivered the given number of times.
func RedeliveryDelay(delivered uint64) time.Duration {
	if delivered == 0 {
		return redeliveryBackOff[0]
	}
	i := min(delivered-1, uint64(len(redeliveryBackOff)-1))
	return redeliveryBackOff[i]
}
