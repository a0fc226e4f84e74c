// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Service wrappers adapting Capstream components to the suture.Service
// interface.

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Runner is the lifecycle shape shared by the hub, the event bridge, and the
// janitor: run until the context is canceled, then return.
type Runner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService wraps a Runner as a supervised service.
type RunnerService struct {
	name   string
	runner Runner
}

// NewRunnerService wraps a Runner under the given service name.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{name: name, runner: runner}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.RunWithContext(ctx)
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *RunnerService) String() string {
	return s.name
}

// StartStopper is the lifecycle shape of the fetch scheduler: an explicit
// Start that spawns the per-source loops and a blocking Stop that drains
// them.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
}

// SchedulerService runs a StartStopper under supervision, translating the
// start/stop pair into suture's blocking Serve.
type SchedulerService struct {
	name      string
	scheduler StartStopper
}

// NewSchedulerService wraps the fetch scheduler as a supervised service.
func NewSchedulerService(scheduler StartStopper) *SchedulerService {
	return &SchedulerService{name: "fetch-scheduler", scheduler: scheduler}
}

// Serve implements suture.Service. It starts the scheduler, blocks until the
// context is canceled, then stops it and waits for the loops to drain.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("scheduler start failed: %w", err)
	}

	<-ctx.Done()
	s.scheduler.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *SchedulerService) String() string {
	return s.name
}

// HTTPServer matches the *http.Server lifecycle methods the wrapper needs.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService wraps an HTTP server as a supervised service, translating
// the blocking ListenAndServe pattern into suture's context-aware Serve.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPServerService creates an HTTP server service wrapper. The
// shutdownTimeout bounds how long active connections get to close during
// graceful shutdown.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
}

// Serve implements suture.Service. http.ErrServerClosed is converted to nil
// since it is the expected result of a graceful shutdown.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The original context is already canceled; shutdown needs its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer.
func (h *HTTPServerService) String() string {
	return h.name
}
