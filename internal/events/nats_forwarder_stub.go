// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !nats

package events

import "errors"

// NATSForwarder is unavailable without the nats build tag.
type NATSForwarder struct{}

// StartNATSForwarder reports that NATS support was not compiled in. Build
// with -tags nats to enable forwarding.
func StartNATSForwarder(broker *Broker, url string) (*NATSForwarder, error) {
	return nil, errors.New("NATS support not compiled in, rebuild with -tags nats")
}

// Close is a no-op on the stub.
func (f *NATSForwarder) Close() error {
	return nil
}
