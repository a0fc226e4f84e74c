// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

// Event bus topics. Per-topic ordering matches the writer's observed order;
// there is no ordering guarantee across topics.
const (
	TopicAlertNew     = "alert.new"
	TopicAlertUpdate  = "alert.update"
	TopicAlertExpire  = "alert.expire"
	TopicSourceNew    = "source.new"
	TopicSourceUpdate = "source.update"
	TopicSourceDelete = "source.delete"
)

// AlertTopics lists the alert lifecycle topics in emission order for a single
// alert: new precedes update precedes expire.
var AlertTopics = []string{TopicAlertNew, TopicAlertUpdate, TopicAlertExpire}

// SourceTopics lists the source lifecycle topics.
var SourceTopics = []string{TopicSourceNew, TopicSourceUpdate, TopicSourceDelete}

// AlertEvent is the payload published on alert.* topics.
type AlertEvent struct {
	Topic string `json:"topic"`
	Alert *Alert `json:"alert"`
}

// SourceEvent is the payload published on source.* topics.
type SourceEvent struct {
	Topic  string  `json:"topic"`
	Source *Source `json:"source"`
}
