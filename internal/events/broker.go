// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"

	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/models"
)

// subscriberBuffer bounds each subscription's channel. A subscriber that
// stalls longer than the buffer delays delivery on its topic only; the
// WebSocket layer drops per-client instead of blocking here.
const subscriberBuffer = 256

// Broker is the in-process pub/sub hub. Per-topic delivery order follows
// publish order; no ordering is guaranteed across topics.
type Broker struct {
	pubsub *gochannel.GoChannel
}

// NewBroker creates the event broker.
//
// Publishing blocks until every current subscriber has acked, which is what
// makes per-topic delivery order match publish order. Subscribers ack
// immediately after handing frames to their own buffered fan-out, so the
// write path never waits on a slow client.
func NewBroker() *Broker {
	return &Broker{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            subscriberBuffer,
			BlockPublishUntilSubscriberAck: true,
		}, newWatermillLogger()),
	}
}

// Subscribe returns a channel of raw messages for the topic. The subscription
// ends when ctx is cancelled or the broker closes.
func (b *Broker) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return messages, nil
}

// PublishAlert publishes an alert lifecycle event on the given topic.
func (b *Broker) PublishAlert(topic string, alert *models.Alert) {
	b.publish(topic, &models.AlertEvent{Topic: topic, Alert: alert})
}

// PublishSource publishes a source lifecycle event on the given topic.
func (b *Broker) PublishSource(topic string, source *models.Source) {
	b.publish(topic, &models.SourceEvent{Topic: topic, Source: source})
}

// publish is fire-and-forget: a marshal or delivery failure is logged and
// never propagates into the write path that triggered the event.
func (b *Broker) publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("failed to marshal event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("failed to publish event")
	}
}

// Close shuts the broker down, closing all subscriptions.
func (b *Broker) Close() error {
	if err := b.pubsub.Close(); err != nil {
		return fmt.Errorf("failed to close event broker: %w", err)
	}
	return nil
}
