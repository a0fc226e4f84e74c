// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !nats

package main

import (
	"github.com/decibelco/capstream/internal/config"
	"github.com/decibelco/capstream/internal/events"
	"github.com/decibelco/capstream/internal/logging"
)

// initNATS is a no-op without the nats build tag.
func initNATS(cfg *config.Config, broker *events.Broker) *events.NATSForwarder {
	if cfg.NATS.Enabled {
		logging.Warn().Msg("NATS_ENABLED is set but NATS support was not compiled in, rebuild with -tags nats")
	}
	return nil
}
