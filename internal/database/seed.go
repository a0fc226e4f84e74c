// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import "github.com/decibelco/capstream/internal/models"

// DefaultSources returns the built-in publisher set used by the seed
// endpoint and the startup seeding flag. SeedSources skips any entry whose
// name already exists, so seeding is idempotent.
func DefaultSources() []models.Source {
	return []models.Source{
		{
			Name:                 "ndma-sachet",
			URL:                  "https://sachet.ndma.gov.in/cap_public_website/rss/rss_india.xml",
			Country:              "IN",
			Language:             "en-IN",
			Active:               true,
			Default:              true,
			FetchIntervalSeconds: 60,
			Metadata: map[string]string{
				"detailBaseUrl": "https://sachet.ndma.gov.in/cap_public_website/FetchXMLFile?identifier=",
			},
		},
	}
}
