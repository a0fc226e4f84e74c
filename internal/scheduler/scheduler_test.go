// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/decibelco/capstream/internal/config"
	"github.com/decibelco/capstream/internal/database"
	"github.com/decibelco/capstream/internal/events"
	"github.com/decibelco/capstream/internal/models"
)

// testDBSemaphore serializes test database lifecycles, same reasoning as in
// the database package tests.
var testDBSemaphore = make(chan struct{}, 1)

var testDBMutex sync.Mutex

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	}

	testDBMutex.Lock()
	db, err := database.New(cfg)
	testDBMutex.Unlock()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

// subscribeAlerts drains a topic in the background, acking immediately the
// way the bridge does, and delivers decoded events in arrival order. The
// broker blocks publishes until ack, so tests must consume concurrently.
func subscribeAlerts(t *testing.T, ctx context.Context, broker *events.Broker, topic string) <-chan models.AlertEvent {
	t.Helper()
	msgs, err := broker.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	out := make(chan models.AlertEvent, 64)
	go func() {
		for msg := range msgs {
			var event models.AlertEvent
			if err := json.Unmarshal(msg.Payload, &event); err == nil {
				out <- event
			}
			msg.Ack()
		}
	}()
	return out
}

// fakeParser returns a fixed result per call and counts invocations.
type fakeParser struct {
	mu      sync.Mutex
	alerts  []models.Alert
	err     error
	fetches atomic.Int64
}

func (p *fakeParser) FetchAlerts(_ context.Context, _ *models.Source) ([]models.Alert, error) {
	p.fetches.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make([]models.Alert, len(p.alerts))
	copy(out, p.alerts)
	return out, nil
}

func (p *fakeParser) Stats() models.ParserStatsSnapshot {
	return models.ParserStatsSnapshot{}
}

func (p *fakeParser) set(alerts []models.Alert, err error) {
	p.mu.Lock()
	p.alerts = alerts
	p.err = err
	p.mu.Unlock()
}

// slowParser holds every fetch for a fixed delay and tracks how many ran at
// once.
type slowParser struct {
	delay    time.Duration
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func (p *slowParser) FetchAlerts(_ context.Context, _ *models.Source) ([]models.Alert, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		max := p.maxSeen.Load()
		if n <= max || p.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	time.Sleep(p.delay)
	return nil, nil
}

func (p *slowParser) Stats() models.ParserStatsSnapshot {
	return models.ParserStatsSnapshot{}
}

func testSource(t *testing.T, db *database.DB) *models.Source {
	t.Helper()
	src := &models.Source{
		Name:                 "imd-test",
		URL:                  "https://cap.example.gov/feed.xml",
		Active:               true,
		Default:              true,
		FetchIntervalSeconds: 60,
	}
	if err := db.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("CreateSource failed: %v", err)
	}
	return src
}

func feedAlert(identifier string, sent time.Time, expires time.Time) models.Alert {
	exp := expires
	return models.Alert{
		Identifier: identifier,
		Sender:     "imd@example.gov",
		Sent:       sent,
		Status:     models.StatusActual,
		MsgType:    models.MsgTypeAlert,
		Scope:      models.ScopePublic,
		Info: []models.Info{
			{
				Categories: []string{"Met"},
				Event:      "Heavy Rain",
				Severity:   "Severe",
				Urgency:    "Expected",
				Certainty:  "Likely",
				Expires:    &exp,
				Areas: []models.Area{
					{
						AreaDesc: "District",
						Polygons: []string{"10,70 10,72 12,72 12,70 10,70"},
					},
				},
			},
		},
		Active:    expires.After(time.Now()),
		FetchedAt: time.Now().UTC(),
	}
}

func TestRunCycle_NewThenUnchangedThenUpdated(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	newCh := subscribeAlerts(t, ctx, broker, models.TopicAlertNew)
	updCh := subscribeAlerts(t, ctx, broker, models.TopicAlertUpdate)

	parser := &fakeParser{}
	sched := New(db, parser, broker, config.FetchConfig{})
	src := testSource(t, db)

	sent := time.Now().UTC().Add(-time.Hour)
	expires := time.Now().UTC().Add(2 * time.Hour)
	parser.set([]models.Alert{feedAlert("9000000000000001", sent, expires)}, nil)

	// First cycle: one new alert.
	if err := sched.RunCycle(ctx, src); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	select {
	case <-newCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no alert.new event after first cycle")
	}

	active, err := db.GetActiveAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("GetActiveAlerts failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active alerts = %d, want 1", len(active))
	}
	firstID := active[0].ID
	if active[0].Info[0].Areas[0].GeoJSON == nil {
		t.Error("expected normalized geometry on stored alert")
	}

	// Second cycle with the identical payload: unchanged, no write, no event.
	if err := sched.RunCycle(ctx, src); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	select {
	case <-newCh:
		t.Fatal("unchanged alert republished as new")
	case <-updCh:
		t.Fatal("unchanged alert published as update")
	case <-time.After(200 * time.Millisecond):
	}

	// Third cycle with a bumped sent timestamp: an update preserving row identity.
	parser.set([]models.Alert{feedAlert("9000000000000001", sent.Add(30*time.Minute), expires)}, nil)
	if err := sched.RunCycle(ctx, src); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	select {
	case <-updCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no alert.update event after changed cycle")
	}

	active, err = db.GetActiveAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("GetActiveAlerts failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active alerts after update = %d, want 1", len(active))
	}
	if active[0].ID != firstID {
		t.Errorf("update changed row identity: %s -> %s", firstID, active[0].ID)
	}

	snap := sched.Stats()
	if snap.NewAlerts != 1 || snap.UpdatedAlerts != 1 {
		t.Errorf("counters = new %d updated %d, want 1/1", snap.NewAlerts, snap.UpdatedAlerts)
	}
	if snap.SuccessCycles != 3 {
		t.Errorf("successful cycles = %d, want 3", snap.SuccessCycles)
	}
}

func TestRunCycle_CancellationEmitsExpire(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updCh := subscribeAlerts(t, ctx, broker, models.TopicAlertUpdate)
	expCh := subscribeAlerts(t, ctx, broker, models.TopicAlertExpire)

	parser := &fakeParser{}
	sched := New(db, parser, broker, config.FetchConfig{})
	src := testSource(t, db)

	sent := time.Now().UTC().Add(-time.Hour)
	parser.set([]models.Alert{feedAlert("9000000000000010", sent, time.Now().UTC().Add(2*time.Hour))}, nil)
	if err := sched.RunCycle(ctx, src); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	// The publisher cancels: same identifier, later sent, no longer active.
	cancelled := feedAlert("9000000000000010", sent.Add(10*time.Minute), time.Now().UTC().Add(-time.Minute))
	cancelled.MsgType = models.MsgTypeCancel
	parser.set([]models.Alert{cancelled}, nil)
	if err := sched.RunCycle(ctx, src); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	select {
	case event := <-expCh:
		if event.Alert.Identifier != "9000000000000010" {
			t.Errorf("expire event for %s", event.Alert.Identifier)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert.expire event after cancellation")
	}
	select {
	case <-updCh:
		t.Fatal("deactivating write published as update instead of expire")
	case <-time.After(200 * time.Millisecond):
	}

	active, err := db.GetActiveAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("GetActiveAlerts failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active alerts after cancellation = %d, want 0", len(active))
	}
	if snap := sched.Stats(); snap.ExpiredAlerts != 1 || snap.UpdatedAlerts != 0 {
		t.Errorf("counters = expired %d updated %d, want 1/0", snap.ExpiredAlerts, snap.UpdatedAlerts)
	}
}

func TestRunCycle_FailureStillRepairsExpiredBit(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	expCh := subscribeAlerts(t, ctx, broker, models.TopicAlertExpire)

	parser := &fakeParser{}
	parser.set(nil, errors.New("index fetch failed: status 503"))
	sched := New(db, parser, broker, config.FetchConfig{})
	src := testSource(t, db)

	other := &models.Source{
		Name:                 "other-feed",
		URL:                  "https://cap.example.gov/other.xml",
		Active:               true,
		FetchIntervalSeconds: 60,
	}
	if err := db.CreateSource(ctx, other); err != nil {
		t.Fatalf("CreateSource failed: %v", err)
	}

	// Both sources hold an alert that expired after its last write. Only the
	// fetched source's alert may be flipped by its cycle.
	overdue := feedAlert("9000000000000020", time.Now().UTC().Add(-2*time.Hour), time.Now().UTC().Add(-time.Hour))
	overdue.SourceID = src.ID
	overdue.Active = true
	foreign := feedAlert("9000000000000021", time.Now().UTC().Add(-2*time.Hour), time.Now().UTC().Add(-time.Hour))
	foreign.SourceID = other.ID
	foreign.Active = true
	if failed := db.UpsertAlerts(ctx, []models.Alert{overdue, foreign}); len(failed) != 0 {
		t.Fatalf("UpsertAlerts failed for %d records", len(failed))
	}

	if err := sched.RunCycle(ctx, src); err == nil {
		t.Fatal("expected cycle error")
	}

	select {
	case event := <-expCh:
		if event.Alert.Identifier != "9000000000000020" {
			t.Errorf("expire event for %s, want the fetched source's alert", event.Alert.Identifier)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("failed cycle did not repair the expired bit")
	}
	select {
	case event := <-expCh:
		t.Fatalf("cycle expired foreign alert %s", event.Alert.Identifier)
	case <-time.After(200 * time.Millisecond):
	}

	stored, err := db.GetAlertsByIdentifiers(ctx, other.ID, []string{"9000000000000021"})
	if err != nil {
		t.Fatalf("GetAlertsByIdentifiers failed: %v", err)
	}
	if !stored["9000000000000021"].Active {
		t.Error("other source's alert was deactivated by a foreign cycle")
	}
	if snap := sched.Stats(); snap.ExpiredAlerts != 1 {
		t.Errorf("expired counter = %d, want 1", snap.ExpiredAlerts)
	}
}

func TestRunCycle_FailedPersistNotPublished(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	newCh := subscribeAlerts(t, ctx, broker, models.TopicAlertNew)

	parser := &fakeParser{}
	sched := New(db, parser, broker, config.FetchConfig{})
	src := testSource(t, db)

	good := feedAlert("9000000000000030", time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(2*time.Hour))
	// NaN altitude cannot be encoded, so this record fails its upsert.
	bad := feedAlert("9000000000000031", time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(2*time.Hour))
	nan := math.NaN()
	bad.Info[0].Areas[0].Altitude = &nan
	parser.set([]models.Alert{good, bad}, nil)

	if err := sched.RunCycle(ctx, src); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	select {
	case event := <-newCh:
		if event.Alert.Identifier != "9000000000000030" {
			t.Errorf("published %s, want only the persisted alert", event.Alert.Identifier)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert.new event for the persisted alert")
	}
	select {
	case event := <-newCh:
		t.Fatalf("event published for unpersisted alert %s", event.Alert.Identifier)
	case <-time.After(200 * time.Millisecond):
	}

	active, err := db.GetActiveAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("GetActiveAlerts failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("stored alerts = %d, want 1", len(active))
	}
	if snap := sched.Stats(); snap.NewAlerts != 1 {
		t.Errorf("new counter = %d, want 1", snap.NewAlerts)
	}
}

func TestRunCycle_ParserFailureRecordsAttempt(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	parser := &fakeParser{}
	parser.set(nil, errors.New("index fetch failed: status 503"))
	sched := New(db, parser, broker, config.FetchConfig{})
	src := testSource(t, db)

	ctx := context.Background()
	if err := sched.RunCycle(ctx, src); err == nil {
		t.Fatal("expected cycle error")
	}

	stored, err := db.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("GetSource failed: %v", err)
	}
	if stored.TotalFetches != 1 || stored.FailedFetches != 1 {
		t.Errorf("fetch counters = total %d failed %d, want 1/1", stored.TotalFetches, stored.FailedFetches)
	}
	if stored.LastError == "" {
		t.Error("expected last error recorded")
	}
	if sched.Stats().FailedCycles != 1 {
		t.Errorf("failed cycles = %d, want 1", sched.Stats().FailedCycles)
	}

	// A following success clears the recorded error.
	parser.set(nil, nil)
	if err := sched.RunCycle(ctx, src); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	stored, err = db.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("GetSource failed: %v", err)
	}
	if stored.LastError != "" {
		t.Errorf("last error not cleared: %q", stored.LastError)
	}
	if stored.SuccessfulFetches != 1 {
		t.Errorf("successful fetches = %d, want 1", stored.SuccessfulFetches)
	}
}

func TestRunCycle_SerializedPerSource(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	parser := &slowParser{delay: 50 * time.Millisecond}
	sched := New(db, parser, broker, config.FetchConfig{})
	src := testSource(t, db)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sched.RunCycle(ctx, src)
		}()
	}
	wg.Wait()

	if max := parser.maxSeen.Load(); max != 1 {
		t.Errorf("max concurrent cycles for one source = %d, want 1", max)
	}
	if snap := sched.Stats(); snap.Cycles != 3 {
		t.Errorf("cycles = %d, want 3", snap.Cycles)
	}
}

func TestScheduler_StartRunsActiveSources(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	parser := &fakeParser{}
	sched := New(db, parser, broker, config.FetchConfig{})
	testSource(t, db)

	// An inactive source must not get a loop.
	inactive := &models.Source{
		Name:                 "dormant",
		URL:                  "https://cap.example.gov/other.xml",
		Active:               false,
		FetchIntervalSeconds: 60,
	}
	if err := db.CreateSource(context.Background(), inactive); err != nil {
		t.Fatalf("CreateSource failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sched.Stop()

	deadline := time.After(5 * time.Second)
	for parser.fetches.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no fetch cycle ran after start")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := sched.Stats().ActiveSources; got != 1 {
		t.Errorf("active source loops = %d, want 1", got)
	}

	sched.Stop()
	if got := sched.Stats().ActiveSources; got != 0 {
		t.Errorf("active source loops after stop = %d, want 0", got)
	}
}

func TestScheduler_StartSkipsRecentlyFetchedSource(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	parser := &fakeParser{}
	sched := New(db, parser, broker, config.FetchConfig{})

	src := &models.Source{
		Name:                 "fresh-feed",
		URL:                  "https://cap.example.gov/feed.xml",
		Active:               true,
		FetchIntervalSeconds: 3600,
	}
	ctx := context.Background()
	if err := db.CreateSource(ctx, src); err != nil {
		t.Fatalf("CreateSource failed: %v", err)
	}
	// A fetch just happened (a manual refresh, say); the loop must wait out
	// the interval instead of fetching again on start.
	if err := db.RecordFetchAttempt(ctx, src.ID, true, ""); err != nil {
		t.Fatalf("RecordFetchAttempt failed: %v", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.Start(loopCtx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sched.Stop()

	time.Sleep(300 * time.Millisecond)
	if got := parser.fetches.Load(); got != 0 {
		t.Errorf("recently fetched source polled %d times before its interval elapsed", got)
	}
	if got := sched.Stats().ActiveSources; got != 1 {
		t.Errorf("active source loops = %d, want 1", got)
	}
}

func TestSourceLoop_EndsWhenSourceDeactivated(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	parser := &fakeParser{}
	sched := New(db, parser, broker, config.FetchConfig{})
	src := testSource(t, db)

	ctx := context.Background()
	inactive := false
	if _, err := db.UpdateSource(ctx, src.ID, &models.SourceUpdate{Active: &inactive}); err != nil {
		t.Fatalf("UpdateSource failed: %v", err)
	}

	// Drive the loop directly: it must notice the registry state and end
	// without fetching.
	sched.ctx, sched.cancel = context.WithCancel(context.Background())
	defer sched.cancel()
	stop := make(chan struct{})
	sched.wg.Add(1)
	go sched.sourceLoop(src, stop)

	done := make(chan struct{})
	go func() {
		sched.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not end after source deactivation")
	}
	if got := parser.fetches.Load(); got != 0 {
		t.Errorf("deactivated source fetched %d times", got)
	}
}

func TestScheduler_UpdateSourceStopsInactiveLoop(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	parser := &fakeParser{}
	sched := New(db, parser, broker, config.FetchConfig{})
	src := testSource(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sched.Stop()

	deadline := time.After(5 * time.Second)
	for sched.Stats().ActiveSources != 1 {
		select {
		case <-deadline:
			t.Fatal("source loop did not start")
		case <-time.After(10 * time.Millisecond):
		}
	}

	src.Active = false
	sched.UpdateSource(src)
	if got := sched.Stats().ActiveSources; got != 0 {
		t.Errorf("active source loops = %d after deactivation, want 0", got)
	}

	src.Active = true
	sched.UpdateSource(src)
	if got := sched.Stats().ActiveSources; got != 1 {
		t.Errorf("active source loops = %d after reactivation, want 1", got)
	}
}

func TestJanitor_SweepExpiresAndCleans(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	expireCh := subscribeAlerts(t, ctx, broker, models.TopicAlertExpire)

	parser := &fakeParser{}
	sched := New(db, parser, broker, config.FetchConfig{})
	src := testSource(t, db)

	// Drifted alert: marked active at write time but already expired.
	drifted := feedAlert("9000000000000002", time.Now().UTC().Add(-2*time.Hour), time.Now().UTC().Add(-time.Hour))
	drifted.SourceID = src.ID
	drifted.Active = true
	if failed := db.UpsertAlerts(ctx, []models.Alert{drifted}); len(failed) != 0 {
		t.Fatalf("UpsertAlerts failed for %d records", len(failed))
	}

	// Retention days of -1 puts the cutoff in the future so the freshly
	// deactivated row is cleaned in the same sweep.
	janitor := NewJanitor(db, broker, sched, config.JanitorConfig{
		Interval:      time.Hour,
		RetentionDays: -1,
	})
	janitor.Sweep(ctx)

	select {
	case <-expireCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no alert.expire event from sweep")
	}

	snap := sched.Stats()
	if snap.ExpiredAlerts != 1 {
		t.Errorf("expired counter = %d, want 1", snap.ExpiredAlerts)
	}
	if snap.CleanedAlerts != 1 {
		t.Errorf("cleaned counter = %d, want 1", snap.CleanedAlerts)
	}

	stats, err := db.GetAlertCounts(ctx)
	if err != nil {
		t.Fatalf("GetAlertCounts failed: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("alerts remaining after sweep = %d, want 0", stats.Total)
	}
}

func TestJanitor_SweepKeepsActiveAlerts(t *testing.T) {
	db := setupTestDB(t)
	broker := events.NewBroker()
	defer broker.Close()

	parser := &fakeParser{}
	sched := New(db, parser, broker, config.FetchConfig{})
	src := testSource(t, db)

	ctx := context.Background()
	live := feedAlert("9000000000000003", time.Now().UTC(), time.Now().UTC().Add(3*time.Hour))
	live.SourceID = src.ID
	if failed := db.UpsertAlerts(ctx, []models.Alert{live}); len(failed) != 0 {
		t.Fatalf("UpsertAlerts failed for %d records", len(failed))
	}

	janitor := NewJanitor(db, broker, sched, config.JanitorConfig{
		Interval:      time.Hour,
		RetentionDays: 30,
	})
	janitor.Sweep(ctx)

	active, err := db.GetActiveAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("GetActiveAlerts failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("active alerts after sweep = %d, want 1", len(active))
	}
	if sched.Stats().ExpiredAlerts != 0 {
		t.Errorf("expired counter = %d, want 0", sched.Stats().ExpiredAlerts)
	}
}
