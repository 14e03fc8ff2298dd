/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package store implements the Registry Store (spec.md §4.6): an
// atomic, checksummed, file-backed key-value store keyed by
// (entity_type, entity_id), with an append-only operation log and
// restart-time reconciliation between the index and the directory tree.
// Reconciliation does not read the operation log; it appends a record
// to it for each repair.
package store

import (
	"encoding/json"
	"time"
)

// EntityRecord is the persisted shape of one registry entity (spec.md
// §6, "EntityRecord JSON").
type EntityRecord struct {
	EntityID   string            `json:"entity_id"`
	EntityType string            `json:"entity_type"`
	Data       json.RawMessage   `json:"data"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Checksum   string            `json:"checksum"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// indexEntry is one row of the root index file, enough to locate and
// verify an entity without reading its file.
type indexEntry struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Checksum   string    `json:"checksum"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// registryIndex is the root index file (<var>/registry/_INDEX.json),
// keyed by "type/id".
type registryIndex struct {
	Entries map[string]indexEntry `json:"entries"`
}

// logRecord is one JSON-line record in registry_log.jsonl (spec.md
// §4.6/§9).
type logRecord struct {
	Op         string    `json:"op"` // created | updated | deleted | reconciled_orphan | reconciled_stale
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Checksum   string    `json:"checksum,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func indexKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}
