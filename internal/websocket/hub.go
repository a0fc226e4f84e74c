// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package websocket fans alert and source lifecycle events out to connected
// browser and integration clients. The hub owns the client set; the bridge
// feeds it from the event broker.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/metrics"
)

// Message types delivered over the socket.
const (
	MessageTypeAlertNew     = "alert_new"
	MessageTypeAlertUpdate  = "alert_update"
	MessageTypeAlertExpire  = "alert_expire"
	MessageTypeSourceNew    = "source_new"
	MessageTypeSourceUpdate = "source_update"
	MessageTypeSourceDelete = "source_delete"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Message is one WebSocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
// A slow client never blocks the hub: when its buffer fills, the client is
// dropped and must reconnect.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Broadcast enqueues a message for all clients. Non-blocking: when the hub's
// own buffer is full the message is dropped, because lifecycle events are
// snapshots the client can recover via the query API.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("type", msg.Type).Msg("hub broadcast buffer full, dropping message")
	}
}

// RunWithContext runs the hub until the context is cancelled, then closes all
// clients and returns ctx.Err(). Designed for suture supervision.
//
// Selection is priority ordered so behavior stays predictable when several
// channels are ready at once: shutdown first, then client lifecycle, then
// broadcasts.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("totalClients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("totalClients", total).Msg("websocket client disconnected")
}

// broadcastToClients delivers to clients in ID order so delivery order is
// reproducible. A client whose buffer is full is dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}
	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSClientsDropped.Inc()
		logging.Warn().Uint64("clientId", client.id).Msg("websocket client too slow, dropped")
	}
	metrics.WSConnections.Set(float64(len(h.clients)))
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	metrics.WSConnections.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Int("clientsClosed", count).
		Msg("websocket hub stopped")
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
