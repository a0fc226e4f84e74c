// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events is the in-process event bus for alert and source lifecycle
// events. Watermill's gochannel Pub/Sub carries the messages; subscribers are
// the WebSocket bridge and, when built with the nats tag, a NATS forwarder.
package events

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/decibelco/capstream/internal/logging"
)

// wmLogger adapts the global zerolog logger to watermill.LoggerAdapter.
type wmLogger struct {
	fields watermill.LogFields
}

func newWatermillLogger() watermill.LoggerAdapter {
	return &wmLogger{}
}

func (l *wmLogger) Error(msg string, err error, fields watermill.LogFields) {
	ev := logging.Error().Err(err)
	for k, v := range l.fields.Add(fields) {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *wmLogger) Info(msg string, fields watermill.LogFields) {
	ev := logging.Debug() // watermill Info is too chatty for our info level
	for k, v := range l.fields.Add(fields) {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *wmLogger) Debug(msg string, fields watermill.LogFields) {
	ev := logging.Trace()
	for k, v := range l.fields.Add(fields) {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *wmLogger) Trace(msg string, fields watermill.LogFields) {
	ev := logging.Trace()
	for k, v := range l.fields.Add(fields) {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *wmLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &wmLogger{fields: l.fields.Add(fields)}
}
