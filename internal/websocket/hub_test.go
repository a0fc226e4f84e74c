// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/decibelco/capstream/internal/events"
	"github.com/decibelco/capstream/internal/models"
)

// registerTestClient registers a client without a real connection. Only the
// send channel matters for hub behavior.
func registerTestClient(t *testing.T, hub *Hub, buffer int) *Client {
	t.Helper()
	client := &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		send: make(chan Message, buffer),
	}
	hub.Register <- client
	return client
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop")
		}
	})
	return hub, cancel
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, _ := startHub(t)

	c1 := registerTestClient(t, hub, 8)
	c2 := registerTestClient(t, hub, 8)

	waitForClients(t, hub, 2)
	hub.Broadcast(Message{Type: MessageTypeAlertNew})

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			if msg.Type != MessageTypeAlertNew {
				t.Errorf("type = %q", msg.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub, _ := startHub(t)

	slow := registerTestClient(t, hub, 1)
	healthy := registerTestClient(t, hub, 8)
	waitForClients(t, hub, 2)

	// First message fills the slow client's buffer; the second drops it.
	hub.Broadcast(Message{Type: MessageTypeAlertNew})
	hub.Broadcast(Message{Type: MessageTypeAlertUpdate})

	deadline := time.After(2 * time.Second)
	for hub.GetClientCount() != 1 {
		select {
		case <-deadline:
			t.Fatalf("slow client not dropped, count = %d", hub.GetClientCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The healthy client got both frames.
	for i := 0; i < 2; i++ {
		select {
		case <-healthy.send:
		case <-time.After(2 * time.Second):
			t.Fatal("healthy client missing frame")
		}
	}
	// The dropped client's channel is closed.
	select {
	case _, ok := <-slow.send:
		if ok {
			// Buffered frame from before the drop; the close follows.
			if _, stillOpen := <-slow.send; stillOpen {
				t.Error("slow client channel not closed")
			}
		}
	case <-time.After(2 * time.Second):
		t.Error("slow client channel not closed")
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub, _ := startHub(t)

	client := registerTestClient(t, hub, 8)
	waitForClients(t, hub, 1)

	hub.Unregister <- client
	waitForClients(t, hub, 0)

	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed after unregister")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()

	client := registerTestClient(t, hub, 8)
	waitForClients(t, hub, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed after shutdown")
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("client count = %d after shutdown", hub.GetClientCount())
	}
}

func TestBridge_ForwardsAlertEvents(t *testing.T) {
	hub, _ := startHub(t)
	broker := events.NewBroker()
	defer broker.Close()

	bridge := NewBridge(hub, broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bridge.RunWithContext(ctx) }()

	client := registerTestClient(t, hub, 8)
	waitForClients(t, hub, 1)

	// Give the bridge's subscriptions a moment to attach.
	time.Sleep(50 * time.Millisecond)
	broker.PublishAlert(models.TopicAlertExpire, &models.Alert{Identifier: "BR-1"})

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeAlertExpire {
			t.Errorf("type = %q", msg.Type)
		}
		if msg.Data == nil {
			t.Error("expected event payload")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridged event did not arrive")
	}
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for hub.GetClientCount() != want {
		select {
		case <-deadline:
			t.Fatalf("client count = %d, want %d", hub.GetClientCount(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
