// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"errors"
	"io"
	"strings"

	"github.com/decibelco/capstream/internal/logging"
)

var (
	// ErrSourceNotFound is returned when a source lookup misses.
	ErrSourceNotFound = errors.New("source not found")

	// ErrSourceNameConflict is returned when a source with the same name exists.
	ErrSourceNameConflict = errors.New("source with this name already exists")

	// ErrLastDefaultSource is returned when deleting the only default source.
	ErrLastDefaultSource = errors.New("cannot delete the last default source")

	// ErrAlertNotFound is returned when an alert lookup misses.
	ErrAlertNotFound = errors.New("alert not found")
)

// closeQuietly closes a resource and explicitly ignores any error.
// Use this in error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// isUniqueConstraintError checks for a DuckDB unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "Constraint Error")
}
