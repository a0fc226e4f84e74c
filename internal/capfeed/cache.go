// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package capfeed

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/decibelco/capstream/internal/models"
)

const (
	// defaultCacheTTL bounds staleness of cached alert documents. CAP records
	// are immutable per identifier in practice; five minutes covers the common
	// case of the same identifier appearing in consecutive index fetches.
	defaultCacheTTL = 5 * time.Minute

	defaultCacheSize = 2048
)

// alertCache is a TTL-bounded LRU of parsed alert documents keyed by CAP
// identifier. Detail endpoints are the slow path of a fetch cycle; most index
// polls repeat the previous poll's identifiers almost entirely.
type alertCache struct {
	lru *expirable.LRU[string, *models.Alert]
}

func newAlertCache(size int, ttl time.Duration) *alertCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &alertCache{
		lru: expirable.NewLRU[string, *models.Alert](size, nil, ttl),
	}
}

// Get returns a copy of the cached alert, or nil on miss. The copy is deep
// through the info and area slices: the writer strips and recomputes geometry
// in place, and two sources hitting the same identifier must never race
// through a shared record.
func (c *alertCache) Get(identifier string) *models.Alert {
	cached, ok := c.lru.Get(identifier)
	if !ok || cached == nil {
		return nil
	}
	return cloneAlert(cached)
}

func (c *alertCache) Add(identifier string, alert *models.Alert) {
	if identifier == "" || alert == nil {
		return
	}
	c.lru.Add(identifier, cloneAlert(alert))
}

// cloneAlert copies the record down to its areas so cache entries never
// share mutable state with callers.
func cloneAlert(a *models.Alert) *models.Alert {
	cp := *a
	if len(a.Codes) > 0 {
		cp.Codes = append([]string(nil), a.Codes...)
	}
	if len(a.Info) == 0 {
		return &cp
	}
	cp.Info = make([]models.Info, len(a.Info))
	copy(cp.Info, a.Info)
	for i := range cp.Info {
		info := &cp.Info[i]
		info.Categories = append([]string(nil), info.Categories...)
		info.ResponseTypes = append([]string(nil), info.ResponseTypes...)
		info.Parameters = append([]models.Parameter(nil), info.Parameters...)
		areas := make([]models.Area, len(info.Areas))
		copy(areas, info.Areas)
		for j := range areas {
			area := &areas[j]
			area.Polygons = append([]string(nil), area.Polygons...)
			area.Circles = append([]string(nil), area.Circles...)
			area.Geocodes = append([]models.Geocode(nil), area.Geocodes...)
			if area.GeoJSON != nil {
				geo := *area.GeoJSON
				area.GeoJSON = &geo
			}
		}
		info.Areas = areas
	}
	return &cp
}

func (c *alertCache) Len() int {
	return c.lru.Len()
}

func (c *alertCache) Purge() {
	c.lru.Purge()
}
