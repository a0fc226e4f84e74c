// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/decibelco/capstream/internal/config"
	"github.com/decibelco/capstream/internal/database"
	"github.com/decibelco/capstream/internal/events"
	"github.com/decibelco/capstream/internal/models"
	"github.com/decibelco/capstream/internal/websocket"
)

var testDBSemaphore = make(chan struct{}, 1)

var testDBMutex sync.Mutex

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"}
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

// fakePipeline records the scheduler calls the handlers make.
type fakePipeline struct {
	mu       sync.Mutex
	cycles   []string
	updates  []string
	removals []string
	cycleErr error
}

func (p *fakePipeline) RunCycle(_ context.Context, source *models.Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycles = append(p.cycles, source.ID)
	return p.cycleErr
}

func (p *fakePipeline) UpdateSource(source *models.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, source.ID)
}

func (p *fakePipeline) RemoveSource(sourceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removals = append(p.removals, sourceID)
}

func (p *fakePipeline) Stats() models.SchedulerStatsSnapshot {
	return models.SchedulerStatsSnapshot{Cycles: 7, ActiveSources: 1}
}

func (p *fakePipeline) cycleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cycles)
}

type fakeFeed struct{}

func (fakeFeed) Stats() models.ParserStatsSnapshot {
	return models.ParserStatsSnapshot{TotalRequests: 3, CacheHits: 2}
}

func setupTestAPI(t *testing.T) (http.Handler, *database.DB, *fakePipeline) {
	t.Helper()

	db := setupTestDB(t)
	broker := events.NewBroker()
	t.Cleanup(func() { _ = broker.Close() })
	pipeline := &fakePipeline{}
	handler := NewHandler(db, pipeline, fakeFeed{}, broker, websocket.NewHub())

	mw := NewMiddleware(&MiddlewareConfig{
		CORSAllowedOrigins: []string{"*"},
		RateLimitDisabled:  true,
	})
	return NewRouter(handler, mw), db, pipeline
}

func createTestSource(t *testing.T, db *database.DB, name string, isDefault bool) *models.Source {
	t.Helper()
	src := &models.Source{
		Name:                 name,
		URL:                  "https://cap.example.gov/" + name + ".xml",
		Active:               true,
		Default:              isDefault,
		FetchIntervalSeconds: 60,
	}
	if err := db.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("CreateSource failed: %v", err)
	}
	return src
}

func storeTestAlert(t *testing.T, db *database.DB, sourceID, identifier, severity string, expires time.Time) {
	t.Helper()
	exp := expires
	alert := models.Alert{
		SourceID:   sourceID,
		Identifier: identifier,
		Sender:     "test@example.gov",
		Sent:       time.Now().UTC().Add(-time.Hour),
		Status:     models.StatusActual,
		MsgType:    models.MsgTypeAlert,
		Scope:      models.ScopePublic,
		Info: []models.Info{
			{
				Categories: []string{"Met"},
				Event:      "Test Event",
				Severity:   severity,
				Urgency:    "Expected",
				Certainty:  "Likely",
				Expires:    &exp,
			},
		},
		Active:    expires.After(time.Now()),
		FetchedAt: time.Now().UTC(),
	}
	if failed := db.UpsertAlerts(context.Background(), []models.Alert{alert}); len(failed) != 0 {
		t.Fatalf("UpsertAlerts failed for %d records", len(failed))
	}
}

func doRequest(t *testing.T, router http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp models.APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestActiveAlerts(t *testing.T) {
	router, db, _ := setupTestAPI(t)
	src := createTestSource(t, db, "api-test", true)

	future := time.Now().UTC().Add(2 * time.Hour)
	storeTestAlert(t, db, src.ID, "9100000000000001", "Severe", future)
	storeTestAlert(t, db, src.ID, "9100000000000002", "Extreme", future)
	storeTestAlert(t, db, src.ID, "9100000000000003", "Minor", time.Now().UTC().Add(-time.Hour))

	rec, resp := doRequest(t, router, http.MethodGet, "/cap-alerts/active", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !resp.Success || resp.Count == nil || *resp.Count != 2 {
		t.Fatalf("response = %+v, want 2 active alerts", resp)
	}
	// Extreme ranks above Severe.
	if resp.Alerts[0].Identifier != "9100000000000002" {
		t.Errorf("first alert = %s, want the Extreme one", resp.Alerts[0].Identifier)
	}
}

func TestActiveAlerts_BadLimit(t *testing.T) {
	router, _, _ := setupTestAPI(t)
	rec, resp := doRequest(t, router, http.MethodGet, "/cap-alerts/active?limit=banana", nil)
	if rec.Code != http.StatusBadRequest || resp.Success {
		t.Errorf("status = %d success = %v, want 400 failure", rec.Code, resp.Success)
	}
}

func TestAlertByID(t *testing.T) {
	router, db, _ := setupTestAPI(t)
	src := createTestSource(t, db, "api-test", true)
	storeTestAlert(t, db, src.ID, "9100000000000010", "Severe", time.Now().UTC().Add(time.Hour))

	rec, resp := doRequest(t, router, http.MethodGet, "/cap-alerts/9100000000000010", nil)
	if rec.Code != http.StatusOK || resp.Alert == nil {
		t.Fatalf("status = %d alert = %v", rec.Code, resp.Alert)
	}
	if resp.Alert.Identifier != "9100000000000010" {
		t.Errorf("identifier = %s", resp.Alert.Identifier)
	}

	rec, resp = doRequest(t, router, http.MethodGet, "/cap-alerts/no-such-alert", nil)
	if rec.Code != http.StatusNotFound || resp.Success {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAlertsBySeverity_InvalidLevel(t *testing.T) {
	router, _, _ := setupTestAPI(t)
	rec, resp := doRequest(t, router, http.MethodGet, "/cap-alerts/severity/Apocalyptic", nil)
	if rec.Code != http.StatusBadRequest || resp.Success {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAlertsByArea_Validation(t *testing.T) {
	router, _, _ := setupTestAPI(t)

	tests := []struct {
		path string
		want int
	}{
		{"/cap-alerts/area/91/70", http.StatusBadRequest},
		{"/cap-alerts/area/12/181", http.StatusBadRequest},
		{"/cap-alerts/area/abc/70", http.StatusBadRequest},
		{"/cap-alerts/area/12.5/70.2", http.StatusOK},
	}
	for _, tt := range tests {
		rec, _ := doRequest(t, router, http.MethodGet, tt.path, nil)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestAlertStats(t *testing.T) {
	router, db, _ := setupTestAPI(t)
	src := createTestSource(t, db, "api-test", true)
	storeTestAlert(t, db, src.ID, "9100000000000020", "Severe", time.Now().UTC().Add(time.Hour))

	rec, resp := doRequest(t, router, http.MethodGet, "/cap-alerts/stats", nil)
	if rec.Code != http.StatusOK || resp.Stats == nil {
		t.Fatalf("status = %d stats = %v", rec.Code, resp.Stats)
	}
	if resp.Stats.Total != 1 || resp.Stats.Active != 1 {
		t.Errorf("totals = %d/%d, want 1/1", resp.Stats.Total, resp.Stats.Active)
	}
	if resp.Stats.Scheduler.Cycles != 7 {
		t.Errorf("scheduler snapshot missing: %+v", resp.Stats.Scheduler)
	}
	if resp.Stats.Parser.CacheHits != 2 {
		t.Errorf("parser snapshot missing: %+v", resp.Stats.Parser)
	}
}

func TestFetchCycle(t *testing.T) {
	router, db, pipeline := setupTestAPI(t)
	src := createTestSource(t, db, "api-test", true)

	rec, _ := doRequest(t, router, http.MethodGet, "/cap-alerts/fetch?sourceId=unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown source: status = %d, want 404", rec.Code)
	}

	rec, resp := doRequest(t, router, http.MethodGet, "/cap-alerts/fetch?sourceId="+src.ID, nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d body = %+v", rec.Code, resp)
	}

	// Without a sourceId the default source is fetched.
	rec, resp = doRequest(t, router, http.MethodGet, "/cap-alerts/fetch", nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("default fetch: status = %d body = %+v", rec.Code, resp)
	}
	if pipeline.cycleCount() != 2 {
		t.Fatalf("cycles run = %d, want 2", pipeline.cycleCount())
	}
	pipeline.mu.Lock()
	last := pipeline.cycles[1]
	pipeline.mu.Unlock()
	if last != src.ID {
		t.Errorf("default fetch ran source %s, want %s", last, src.ID)
	}
}

func TestFetchCycle_NoDefaultConfigured(t *testing.T) {
	router, db, pipeline := setupTestAPI(t)
	createTestSource(t, db, "plain-source", false)

	rec, _ := doRequest(t, router, http.MethodGet, "/cap-alerts/fetch", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a default source", rec.Code)
	}
	if pipeline.cycleCount() != 0 {
		t.Errorf("cycles run = %d, want 0", pipeline.cycleCount())
	}
}

func TestDefaultSourceEndpoint(t *testing.T) {
	router, db, _ := setupTestAPI(t)

	rec, _ := doRequest(t, router, http.MethodGet, "/cap-sources/default", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a default source", rec.Code)
	}

	createTestSource(t, db, "plain-source", false)
	def := createTestSource(t, db, "default-source", true)

	rec, resp := doRequest(t, router, http.MethodGet, "/cap-sources/default", nil)
	if rec.Code != http.StatusOK || resp.Source == nil {
		t.Fatalf("status = %d body = %+v", rec.Code, resp)
	}
	if resp.Source.ID != def.ID {
		t.Errorf("default source = %s, want %s", resp.Source.Name, def.Name)
	}

	// Creating a new default over HTTP moves the flag.
	body := []byte(`{"name":"takeover","url":"https://cap.example.gov/takeover.xml","isDefault":true}`)
	if rec, _ := doRequest(t, router, http.MethodPost, "/cap-sources/", body); rec.Code != http.StatusOK {
		t.Fatalf("create: status = %d", rec.Code)
	}
	rec, resp = doRequest(t, router, http.MethodGet, "/cap-sources/default", nil)
	if rec.Code != http.StatusOK || resp.Source == nil || resp.Source.Name != "takeover" {
		t.Errorf("default after takeover = %+v", resp.Source)
	}
}

func TestRefresh_RunsAllActiveSources(t *testing.T) {
	router, db, pipeline := setupTestAPI(t)
	createTestSource(t, db, "source-a", true)
	createTestSource(t, db, "source-b", false)

	inactive := createTestSource(t, db, "source-c", false)
	off := false
	if _, err := db.UpdateSource(context.Background(), inactive.ID, &models.SourceUpdate{Active: &off}); err != nil {
		t.Fatalf("UpdateSource failed: %v", err)
	}

	rec, resp := doRequest(t, router, http.MethodPost, "/cap-alerts/refresh", nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d body = %+v", rec.Code, resp)
	}
	if pipeline.cycleCount() != 2 {
		t.Errorf("cycles run = %d, want 2 active sources", pipeline.cycleCount())
	}
}

func TestSourceCRUDOverHTTP(t *testing.T) {
	router, _, pipeline := setupTestAPI(t)

	body := []byte(`{"name":"imd-delhi","url":"https://cap.example.gov/delhi.xml","isDefault":true,"fetchIntervalSeconds":120}`)
	rec, resp := doRequest(t, router, http.MethodPost, "/cap-sources/", body)
	if rec.Code != http.StatusOK || resp.Source == nil {
		t.Fatalf("create: status = %d body = %+v", rec.Code, resp)
	}
	id := resp.Source.ID
	if id == "" {
		t.Fatal("created source has no ID")
	}
	if len(pipeline.updates) != 1 {
		t.Errorf("scheduler not notified of new source")
	}

	// Duplicate name rejected.
	rec, _ = doRequest(t, router, http.MethodPost, "/cap-sources/", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate create: status = %d, want 400", rec.Code)
	}

	// List includes it.
	rec, resp = doRequest(t, router, http.MethodGet, "/cap-sources/", nil)
	if rec.Code != http.StatusOK || resp.Count == nil || *resp.Count != 1 {
		t.Fatalf("list: status = %d body = %+v", rec.Code, resp)
	}

	// Update the interval.
	rec, resp = doRequest(t, router, http.MethodPut, "/cap-sources/"+id, []byte(`{"fetchIntervalSeconds":300}`))
	if rec.Code != http.StatusOK || resp.Source.FetchIntervalSeconds != 300 {
		t.Fatalf("update: status = %d body = %+v", rec.Code, resp)
	}

	// Interval below the floor rejected.
	rec, _ = doRequest(t, router, http.MethodPut, "/cap-sources/"+id, []byte(`{"fetchIntervalSeconds":5}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("low interval: status = %d, want 400", rec.Code)
	}

	// The last default source cannot be deleted.
	rec, _ = doRequest(t, router, http.MethodDelete, "/cap-sources/"+id, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete last default: status = %d, want 400", rec.Code)
	}
}

func TestCreateSource_Validation(t *testing.T) {
	router, _, _ := setupTestAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{"name":"imd-delhi"}`},
		{"bad url", `{"name":"imd-delhi","url":"not a url"}`},
		{"short name", `{"name":"x","url":"https://cap.example.gov/feed.xml"}`},
		{"malformed json", `{"name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := doRequest(t, router, http.MethodPost, "/cap-sources/", []byte(tt.body))
			if rec.Code != http.StatusBadRequest || resp.Success {
				t.Errorf("status = %d success = %v, want 400 failure", rec.Code, resp.Success)
			}
		})
	}
}

func TestDeleteSource(t *testing.T) {
	router, db, pipeline := setupTestAPI(t)
	createTestSource(t, db, "keeper", true)
	victim := createTestSource(t, db, "victim", false)

	rec, resp := doRequest(t, router, http.MethodDelete, "/cap-sources/"+victim.ID, nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d body = %+v", rec.Code, resp)
	}
	if len(pipeline.removals) != 1 || pipeline.removals[0] != victim.ID {
		t.Errorf("scheduler not notified of removal: %v", pipeline.removals)
	}

	rec, _ = doRequest(t, router, http.MethodDelete, "/cap-sources/"+victim.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", rec.Code)
	}
}

func TestSeedSources_Idempotent(t *testing.T) {
	router, _, _ := setupTestAPI(t)

	rec, resp := doRequest(t, router, http.MethodPost, "/cap-sources/seed", nil)
	if rec.Code != http.StatusOK || resp.Message != "seeded 1 sources" {
		t.Fatalf("first seed: status = %d message = %q", rec.Code, resp.Message)
	}

	rec, resp = doRequest(t, router, http.MethodPost, "/cap-sources/seed", nil)
	if rec.Code != http.StatusOK || resp.Message != "seeded 0 sources" {
		t.Errorf("second seed: status = %d message = %q", rec.Code, resp.Message)
	}
}

func TestHealthEndpoints(t *testing.T) {
	router, _, _ := setupTestAPI(t)

	for _, path := range []string{"/api/v1/health/", "/api/v1/health/live", "/api/v1/health/ready"} {
		rec, resp := doRequest(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK || !resp.Success {
			t.Errorf("%s: status = %d success = %v", path, rec.Code, resp.Success)
		}
	}
}
