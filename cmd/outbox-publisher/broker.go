package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-settlement/pkg/kafka"
	"github.com/angelmondragon/storefront-settlement/pkg/pubsub"
)

type pubsubBroker struct {
	client *pubsub.Client
}

func (b pubsubBroker) Ping(ctx context.Context) error { return b.client.Ping(ctx) }

func (b pubsubBroker) Publisher(topic string) publisher {
	p := b.client.Publisher(topic)
	if p == nil {
		return nil
	}
	return pubsubPublisher{p}
}

type pubsubPublisher struct {
	p *gcppubsub.Publisher
}

func (t pubsubPublisher) Publish(ctx context.Context, msg outboundMessage) publishResult {
	return t.p.Publish(ctx, &gcppubsub.Message{Data: msg.Data, Attributes: msg.Attributes})
}

type kafkaBroker struct {
	writer *kafka.Writer
}

func (b kafkaBroker) Ping(ctx context.Context) error { return b.writer.Ping(ctx) }

func (b kafkaBroker) Publisher(topic string) publisher {
	if topic == "" {
		return nil
	}
	return kafkaPublisher{writer: b.writer, topic: topic}
}

type kafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// Publish is synchronous; the returned result only carries the write error.
func (k kafkaPublisher) Publish(ctx context.Context, msg outboundMessage) publishResult {
	return writtenResult{err: k.writer.Publish(ctx, k.topic, []byte(msg.Key), msg.Data, msg.Attributes)}
}

type writtenResult struct {
	err error
}

func (r writtenResult) Get(context.Context) (string, error) { return "", r.err }
