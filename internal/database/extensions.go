// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/decibelco/capstream/internal/logging"
)

// extensionTimeout bounds INSTALL/LOAD, which may hit the network.
const extensionTimeout = 30 * time.Second

// installExtensions loads the spatial extension. Spatial is optional: the
// alert store falls back to Go-side geometry evaluation without it, so a
// failed install degrades point queries instead of failing startup.
func (db *DB) installExtensions() {
	if err := db.loadExtension("spatial"); err != nil {
		db.spatialAvailable = false
		logging.Warn().Err(err).
			Msg("spatial extension unavailable, point queries will evaluate geometry in process")
		return
	}

	// Verify the extension actually answers.
	ctx, cancel := context.WithTimeout(context.Background(), extensionTimeout)
	defer cancel()
	var wkt string
	if err := db.conn.QueryRowContext(ctx, "SELECT ST_AsText(ST_Point(1, 2))").Scan(&wkt); err != nil {
		db.spatialAvailable = false
		logging.Warn().Err(err).Msg("spatial extension loaded but not functional")
	}
}

func (db *DB) loadExtension(name string) error {
	// LOAD first: the extension may be bundled or preinstalled. INSTALL only
	// when LOAD fails, then LOAD again.
	if err := db.execWithTimeout(fmt.Sprintf("LOAD %s;", name)); err == nil {
		return nil
	}
	if err := db.execWithTimeout(fmt.Sprintf("INSTALL %s;", name)); err != nil {
		return fmt.Errorf("failed to install %s extension: %w", name, err)
	}
	if err := db.execWithTimeout(fmt.Sprintf("LOAD %s;", name)); err != nil {
		return fmt.Errorf("failed to load %s extension: %w", name, err)
	}
	return nil
}

func (db *DB) execWithTimeout(query string) error {
	ctx, cancel := context.WithTimeout(context.Background(), extensionTimeout)
	defer cancel()
	_, err := db.conn.ExecContext(ctx, query)
	return err
}
