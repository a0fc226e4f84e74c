// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration. Struct tags cover ranges and enums;
// cross-field duration sanity is checked by hand.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid value for %s (rule %s)", e.Namespace(), e.Tag())
		}
		return err
	}

	if c.Fetch.DetailDelay < 0 {
		return fmt.Errorf("fetch.detail_delay must not be negative")
	}
	if c.Fetch.CacheTTL < 0 {
		return fmt.Errorf("fetch.cache_ttl must not be negative")
	}
	if c.Janitor.Interval < time.Minute {
		return fmt.Errorf("janitor.interval must be at least 1m, got %s", c.Janitor.Interval)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	return nil
}
