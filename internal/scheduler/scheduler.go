// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
scheduler.go - Per-source fetch scheduling

Each active source gets its own polling loop running at the source's own
cadence, so a slow or broken publisher never delays the others. Loops are
registered in a map keyed by source ID; registry changes (create, update,
delete) restart or remove the affected loop without touching the rest.
*/

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decibelco/capstream/internal/config"
	"github.com/decibelco/capstream/internal/database"
	"github.com/decibelco/capstream/internal/events"
	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/metrics"
	"github.com/decibelco/capstream/internal/models"
)

// statsDumpEvery logs a counter snapshot after this many completed cycles.
const statsDumpEvery = 10

// Parser abstracts the CAP feed parser for testing.
type Parser interface {
	FetchAlerts(ctx context.Context, source *models.Source) ([]models.Alert, error)
	Stats() models.ParserStatsSnapshot
}

// Scheduler runs the per-source fetch loops and the differential write path.
type Scheduler struct {
	db     *database.DB
	parser Parser
	broker *events.Broker
	cfg    config.FetchConfig

	mu      sync.Mutex
	running bool
	loops   map[string]chan struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	// cycleLocks serializes cycles per source: the source's own loop and a
	// manual refresh never run a cycle for the same source concurrently.
	cycleMu    sync.Mutex
	cycleLocks map[string]*sync.Mutex

	cycles        atomic.Int64
	successCycles atomic.Int64
	failedCycles  atomic.Int64
	newAlerts     atomic.Int64
	updatedAlerts atomic.Int64
	expiredAlerts atomic.Int64
	cleanedAlerts atomic.Int64
}

// New creates a scheduler.
func New(db *database.DB, parser Parser, broker *events.Broker, cfg config.FetchConfig) *Scheduler {
	return &Scheduler{
		db:         db,
		parser:     parser,
		broker:     broker,
		cfg:        cfg,
		loops:      make(map[string]chan struct{}),
		cycleLocks: make(map[string]*sync.Mutex),
	}
}

// Start loads active sources and begins their loops. Idempotent.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	sources, err := s.db.ListSources(ctx, true)
	if err != nil {
		return err
	}
	for i := range sources {
		s.startLoop(&sources[i])
	}
	logging.Info().Int("sources", len(sources)).Msg("scheduler started")
	return nil
}

// Stop terminates all loops and waits for them to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	for id, stop := range s.loops {
		close(stop)
		delete(s.loops, id)
	}
	metrics.ActiveSourceLoops.Set(0)
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info().Msg("scheduler stopped")
}

// UpdateSource restarts the loop for a changed source, or stops it when the
// source went inactive.
func (s *Scheduler) UpdateSource(source *models.Source) {
	s.removeLoop(source.ID)
	if source.Active {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if running {
			s.startLoop(source)
		}
	}
}

// RemoveSource stops the loop for a deleted source.
func (s *Scheduler) RemoveSource(sourceID string) {
	s.removeLoop(sourceID)
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() models.SchedulerStatsSnapshot {
	s.mu.Lock()
	active := len(s.loops)
	s.mu.Unlock()
	return models.SchedulerStatsSnapshot{
		Cycles:        s.cycles.Load(),
		SuccessCycles: s.successCycles.Load(),
		FailedCycles:  s.failedCycles.Load(),
		NewAlerts:     s.newAlerts.Load(),
		UpdatedAlerts: s.updatedAlerts.Load(),
		ExpiredAlerts: s.expiredAlerts.Load(),
		CleanedAlerts: s.cleanedAlerts.Load(),
		ActiveSources: active,
	}
}

func (s *Scheduler) startLoop(source *models.Source) {
	s.mu.Lock()
	if _, exists := s.loops[source.ID]; exists {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.loops[source.ID] = stop
	metrics.ActiveSourceLoops.Set(float64(len(s.loops)))
	s.mu.Unlock()

	s.wg.Add(1)
	go s.sourceLoop(source, stop)
}

func (s *Scheduler) removeLoop(sourceID string) {
	s.mu.Lock()
	if stop, ok := s.loops[sourceID]; ok {
		close(stop)
		delete(s.loops, sourceID)
		metrics.ActiveSourceLoops.Set(float64(len(s.loops)))
	}
	s.mu.Unlock()
}

// sourceLock returns the cycle mutex for a source, creating it on first use.
// Locks are never removed; a deleted source leaves behind one idle mutex.
func (s *Scheduler) sourceLock(sourceID string) *sync.Mutex {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	mu, ok := s.cycleLocks[sourceID]
	if !ok {
		mu = &sync.Mutex{}
		s.cycleLocks[sourceID] = mu
	}
	return mu
}

// sourceLoop polls one source at its configured cadence. The source is
// re-read from the registry before every cycle, so an operator change to the
// interval takes effect without a restart, a deactivated source ends its own
// loop, and a recent fetch (a manual refresh, typically) defers the next poll
// instead of doubling it.
func (s *Scheduler) sourceLoop(source *models.Source, stop chan struct{}) {
	defer s.wg.Done()

	logging.Info().
		Str("source", source.Name).
		Dur("interval", source.FetchInterval()).
		Msg("source loop started")

	current := source
	for {
		if fresh, err := s.db.GetSource(s.ctx, current.ID); err == nil {
			current = fresh
		}
		if !current.Active {
			logging.Info().Str("source", current.Name).Msg("source deactivated, loop ending")
			s.removeLoop(current.ID)
			return
		}

		if current.NeedsFetching(time.Now().UTC()) {
			if err := s.RunCycle(s.ctx, current); err != nil {
				logging.Warn().Err(err).Str("source", current.Name).Msg("fetch cycle failed")
			}
		}

		timer := time.NewTimer(current.FetchInterval())
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) maybeDumpStats() {
	if s.cycles.Load()%statsDumpEvery != 0 {
		return
	}
	snap := s.Stats()
	parser := s.parser.Stats()
	logging.Info().
		Int64("cycles", snap.Cycles).
		Int64("newAlerts", snap.NewAlerts).
		Int64("updatedAlerts", snap.UpdatedAlerts).
		Int64("failedCycles", snap.FailedCycles).
		Int64("cacheHits", parser.CacheHits).
		Int64("htmlFallbacks", parser.HTMLFallbacks).
		Int("activeSources", snap.ActiveSources).
		Msg("scheduler stats")
}
