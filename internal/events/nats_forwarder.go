// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build nats

package events

import (
	"context"
	"fmt"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/models"
)

// NATSForwarder mirrors every lifecycle event from the in-process broker onto
// a NATS subject of the same name, so external consumers can follow the feed
// without holding a WebSocket open.
type NATSForwarder struct {
	publisher message.Publisher
	cancel    context.CancelFunc
	done      chan struct{}
}

// StartNATSForwarder connects to NATS and begins forwarding all alert and
// source topics.
func StartNATSForwarder(broker *Broker, url string) (*NATSForwarder, error) {
	logger := newWatermillLogger()

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	publisher, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &NATSForwarder{
		publisher: publisher,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	topics := append(append([]string{}, models.AlertTopics...), models.SourceTopics...)
	subs := make([]<-chan *message.Message, 0, len(topics))
	for _, topic := range topics {
		messages, err := broker.Subscribe(ctx, topic)
		if err != nil {
			cancel()
			return nil, err
		}
		subs = append(subs, messages)
	}

	for i, topic := range topics {
		go f.forward(topic, subs[i])
	}
	go func() {
		<-ctx.Done()
		close(f.done)
	}()

	logging.Info().Str("url", url).Msg("NATS event forwarding enabled")
	return f, nil
}

func (f *NATSForwarder) forward(topic string, messages <-chan *message.Message) {
	for msg := range messages {
		if err := f.publisher.Publish(topic, msg); err != nil {
			logging.Warn().Err(err).Str("topic", topic).Msg("NATS forward failed")
		}
		msg.Ack()
	}
}

// Close stops forwarding and closes the NATS connection.
func (f *NATSForwarder) Close() error {
	f.cancel()
	<-f.done
	return f.publisher.Close()
}
