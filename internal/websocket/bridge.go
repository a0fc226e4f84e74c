// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package websocket

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"

	"github.com/decibelco/capstream/internal/events"
	"github.com/decibelco/capstream/internal/models"
)

// topicMessageTypes maps broker topics to socket frame types.
var topicMessageTypes = map[string]string{
	models.TopicAlertNew:     MessageTypeAlertNew,
	models.TopicAlertUpdate:  MessageTypeAlertUpdate,
	models.TopicAlertExpire:  MessageTypeAlertExpire,
	models.TopicSourceNew:    MessageTypeSourceNew,
	models.TopicSourceUpdate: MessageTypeSourceUpdate,
	models.TopicSourceDelete: MessageTypeSourceDelete,
}

// Bridge subscribes to all lifecycle topics and forwards each event to the
// hub as a typed frame.
type Bridge struct {
	hub    *Hub
	broker *events.Broker
}

// NewBridge wires the broker to the hub.
func NewBridge(hub *Hub, broker *events.Broker) *Bridge {
	return &Bridge{hub: hub, broker: broker}
}

// RunWithContext subscribes to every topic and forwards until the context is
// cancelled. Designed for suture supervision.
func (b *Bridge) RunWithContext(ctx context.Context) error {
	for topic, msgType := range topicMessageTypes {
		messages, err := b.broker.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		go b.forward(msgType, messages)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (b *Bridge) forward(msgType string, messages <-chan *message.Message) {
	for msg := range messages {
		b.hub.Broadcast(Message{Type: msgType, Data: json.RawMessage(msg.Payload)})
		msg.Ack()
	}
}
