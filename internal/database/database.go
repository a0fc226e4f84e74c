// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package database provides the DuckDB persistence layer: the source
// registry, the alert store with spatial queries, and schema management.
//
// DuckDB runs embedded, so one process owns the database file. The spatial
// extension powers point-in-polygon queries; when it cannot be loaded the
// store degrades to evaluating geometry in Go against the stored documents.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/decibelco/capstream/internal/config"
	"github.com/decibelco/capstream/internal/logging"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn             *sql.DB
	cfg              *config.DatabaseConfig
	spatialAvailable bool
}

// New opens the database, configures the connection pool, loads extensions,
// and creates the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// The data directory may not exist on first boot.
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	// Auto-install/auto-load is disabled to avoid hangs in restricted
	// networks; installExtensions loads spatial explicitly with a timeout.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn:             conn,
		cfg:              cfg,
		spatialAvailable: true,
	}

	db.configureConnectionPool()

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("spatial", db.spatialAvailable).
		Msg("database ready")
	return db, nil
}

func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

func (db *DB) initialize() error {
	db.installExtensions()
	if err := db.createSchema(); err != nil {
		return err
	}
	return nil
}

// IsSpatialAvailable returns whether the spatial extension is loaded.
func (db *DB) IsSpatialAvailable() bool {
	return db.spatialAvailable
}

// Conn exposes the underlying connection for health checks.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
