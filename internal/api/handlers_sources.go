// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/decibelco/capstream/internal/database"
	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/models"
	"github.com/decibelco/capstream/internal/validation"
)

// CreateSourceRequest is the body of POST /cap-sources.
type CreateSourceRequest struct {
	Name                 string            `json:"name" validate:"required,min=2,max=128"`
	URL                  string            `json:"url" validate:"required,url"`
	Country              string            `json:"country" validate:"omitempty,max=8"`
	Language             string            `json:"language" validate:"omitempty,max=16"`
	Active               *bool             `json:"isActive"`
	Default              bool              `json:"isDefault"`
	FetchIntervalSeconds int               `json:"fetchIntervalSeconds" validate:"omitempty,gte=30,lte=86400"`
	Metadata             map[string]string `json:"metadata"`
}

// ListSources handles GET /cap-sources. ?active=true filters to sources the
// scheduler is polling.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	sources, err := h.db.ListSources(r.Context(), activeOnly)
	if err != nil {
		logging.Error().Err(err).Msg("source list query failed")
		respondError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	respondSources(w, sources)
}

// DefaultSource handles GET /cap-sources/default, returning the source
// holding the default flag.
func (h *Handler) DefaultSource(w http.ResponseWriter, r *http.Request) {
	source, err := h.db.GetDefaultSource(r.Context())
	if err != nil {
		if errors.Is(err, database.ErrSourceNotFound) {
			respondError(w, http.StatusNotFound, "no default source configured")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to query default source")
		return
	}
	respondSource(w, source)
}

// SourceByID handles GET /cap-sources/{id}.
func (h *Handler) SourceByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	source, err := h.db.GetSource(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrSourceNotFound) {
			respondError(w, http.StatusNotFound, "source not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to query source")
		return
	}
	respondSource(w, source)
}

// CreateSource handles POST /cap-sources. On success the scheduler starts
// polling immediately and a source.new event is published.
func (h *Handler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var req CreateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, http.StatusBadRequest, verr.Error())
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	source := &models.Source{
		Name:                 req.Name,
		URL:                  req.URL,
		Country:              req.Country,
		Language:             req.Language,
		Active:               active,
		Default:              req.Default,
		FetchIntervalSeconds: req.FetchIntervalSeconds,
		Metadata:             req.Metadata,
	}

	if err := h.db.CreateSource(r.Context(), source); err != nil {
		if errors.Is(err, database.ErrSourceNameConflict) {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("source name %q already exists", req.Name))
			return
		}
		logging.Error().Err(err).Str("name", req.Name).Msg("source create failed")
		respondError(w, http.StatusInternalServerError, "failed to create source")
		return
	}

	h.broker.PublishSource(models.TopicSourceNew, source)
	h.pipeline.UpdateSource(source)
	respondSource(w, source)
}

// UpdateSource handles PUT /cap-sources/{id}. Nil fields in the body leave
// the stored value unchanged.
func (h *Handler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var upd models.SourceUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if upd.FetchIntervalSeconds != nil && *upd.FetchIntervalSeconds < models.MinFetchIntervalSeconds {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("fetchIntervalSeconds must be at least %d", models.MinFetchIntervalSeconds))
		return
	}

	source, err := h.db.UpdateSource(r.Context(), id, &upd)
	if err != nil {
		if errors.Is(err, database.ErrSourceNotFound) {
			respondError(w, http.StatusNotFound, "source not found")
			return
		}
		logging.Error().Err(err).Str("id", id).Msg("source update failed")
		respondError(w, http.StatusInternalServerError, "failed to update source")
		return
	}

	h.broker.PublishSource(models.TopicSourceUpdate, source)
	h.pipeline.UpdateSource(source)
	respondSource(w, source)
}

// DeleteSource handles DELETE /cap-sources/{id}. The last default source
// cannot be removed.
func (h *Handler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	source, err := h.db.GetSource(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrSourceNotFound) {
			respondError(w, http.StatusNotFound, "source not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to query source")
		return
	}

	if err := h.db.DeleteSource(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrLastDefaultSource) {
			respondError(w, http.StatusBadRequest, "cannot delete the last default source")
			return
		}
		logging.Error().Err(err).Str("id", id).Msg("source delete failed")
		respondError(w, http.StatusInternalServerError, "failed to delete source")
		return
	}

	h.pipeline.RemoveSource(id)
	h.broker.PublishSource(models.TopicSourceDelete, source)
	respondMessage(w, fmt.Sprintf("source %s deleted", source.Name))
}

// SeedSources handles POST /cap-sources/seed, inserting any built-in
// publisher whose name is not yet registered.
func (h *Handler) SeedSources(w http.ResponseWriter, r *http.Request) {
	defaults := database.DefaultSources()
	inserted, err := h.db.SeedSources(r.Context(), defaults)
	if err != nil {
		logging.Error().Err(err).Msg("source seeding failed")
		respondError(w, http.StatusInternalServerError, "failed to seed sources")
		return
	}

	// Freshly seeded sources start polling without waiting for a restart.
	if inserted > 0 {
		for i := range defaults {
			if source, err := h.db.GetSourceByName(r.Context(), defaults[i].Name); err == nil {
				h.pipeline.UpdateSource(source)
			}
		}
	}
	respondMessage(w, fmt.Sprintf("seeded %d sources", inserted))
}
