// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build nats

package main

import (
	"github.com/decibelco/capstream/internal/config"
	"github.com/decibelco/capstream/internal/events"
	"github.com/decibelco/capstream/internal/logging"
)

// initNATS starts the NATS forwarder when enabled. A connection failure at
// startup is fatal: if the operator asked for NATS, silently running without
// it would lose events.
func initNATS(cfg *config.Config, broker *events.Broker) *events.NATSForwarder {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("NATS forwarding disabled (NATS_ENABLED=false)")
		return nil
	}

	forwarder, err := events.StartNATSForwarder(broker, cfg.NATS.URL)
	if err != nil {
		logging.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to start NATS forwarder")
	}
	logging.Info().Str("url", cfg.NATS.URL).Msg("NATS forwarder started")
	return forwarder
}
