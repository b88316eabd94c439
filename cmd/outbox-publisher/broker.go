package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// broker is the slice of the Pub/Sub client the publisher loop uses.
type broker interface {
	Ping(context.Context) error
	Topic(name string) publisher
	ResumePublish(topic, orderingKey string)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// gcpBroker adapts pkg/pubsub to broker.
type gcpBroker struct {
	client topicSource
}

func newGCPBroker(client topicSource) *gcpBroker {
	return &gcpBroker{client: client}
}

func (b *gcpBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx)
}

func (b *gcpBroker) Topic(name string) publisher {
	p := b.client.Publisher(name)
	if p == nil {
		return nil
	}
	return gcpPublisher{p}
}

func (b *gcpBroker) ResumePublish(topic, orderingKey string) {
	if p := b.client.Publisher(topic); p != nil {
		p.ResumePublish(orderingKey)
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
