/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/marcus-qen/governor/internal/atomicfile"
	"github.com/marcus-qen/governor/internal/errkind"
)

// Error is a store-level error carrying a machine-readable kind, in the
// same shape the Harness uses for AgentResult errors.
type Error struct {
	Kind errkind.Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func wrapErr(kind errkind.Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Store is the file-backed Registry Store (spec.md §4.6). One Store
// instance owns one <var>/registry root.
type Store struct {
	root string
	log  logr.Logger

	mu    sync.Mutex
	index registryIndex
}

const indexFile = "_INDEX.json"
const opLogFile = "registry_log.jsonl"

// Open loads the index (and reconciles it against the on-disk entity
// tree) for the registry rooted at root. It creates root if absent.
func Open(root string, log logr.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrapErr(errkind.IOError, "create registry root %q: %w", root, err)
	}

	s := &Store{root: root, log: log, index: registryIndex{Entries: map[string]indexEntry{}}}

	idxPath := filepath.Join(root, indexFile)
	if data, err := os.ReadFile(idxPath); err == nil {
		if err := json.Unmarshal(data, &s.index); err != nil {
			return nil, wrapErr(errkind.IOError, "parse index %q: %w", idxPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, wrapErr(errkind.IOError, "read index %q: %w", idxPath, err)
	}
	if s.index.Entries == nil {
		s.index.Entries = map[string]indexEntry{}
	}

	if err := s.reconcile(); err != nil {
		return nil, err
	}
	return s, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Store) entityPath(entityType, entityID string) string {
	return filepath.Join(s.root, entityType, entityID+".json")
}

func (s *Store) writeIndex() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return wrapErr(errkind.IOError, "marshal index: %w", err)
	}
	if err := atomicfile.WriteFile(filepath.Join(s.root, indexFile), data, 0o644); err != nil {
		return wrapErr(errkind.IOError, "write index: %w", err)
	}
	return nil
}

func (s *Store) appendLog(rec logRecord) error {
	rec.Timestamp = time.Now().UTC()
	line, err := json.Marshal(rec)
	if err != nil {
		return wrapErr(errkind.IOError, "marshal operation log record: %w", err)
	}
	if err := atomicfile.AppendLine(filepath.Join(s.root, opLogFile), line); err != nil {
		return wrapErr(errkind.IOError, "append operation log: %w", err)
	}
	return nil
}

// Register creates a new entity. If (type, id) already exists, it
// returns a duplicate_entity error and makes no on-disk change.
func (s *Store) Register(entityType, entityID string, data json.RawMessage) (*EntityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := indexKey(entityType, entityID)
	if _, exists := s.index.Entries[key]; exists {
		return nil, wrapErr(errkind.DuplicateEntity, "entity %s/%s already registered", entityType, entityID)
	}

	now := time.Now().UTC()
	rec := &EntityRecord{
		EntityID:   entityID,
		EntityType: entityType,
		Data:       data,
		CreatedAt:  now,
		UpdatedAt:  now,
		Checksum:   checksum(data),
	}
	if err := s.persist(rec, "created"); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update overwrites an existing entity's data, preserving CreatedAt.
func (s *Store) Update(entityType, entityID string, data json.RawMessage) (*EntityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readLocked(entityType, entityID)
	if err != nil {
		return nil, err
	}

	existing.Data = data
	existing.UpdatedAt = time.Now().UTC()
	existing.Checksum = checksum(data)
	if err := s.persist(existing, "updated"); err != nil {
		return nil, err
	}
	return existing, nil
}

// persist writes the entity file, appends the operation-log record
// (before the index update, per spec.md §4.6), then rewrites the index.
// The entity-type subdirectory is created on demand.
func (s *Store) persist(rec *EntityRecord, op string) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return wrapErr(errkind.IOError, "marshal entity %s/%s: %w", rec.EntityType, rec.EntityID, err)
	}

	path := s.entityPath(rec.EntityType, rec.EntityID)
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return wrapErr(errkind.IOError, "write entity %s/%s: %w", rec.EntityType, rec.EntityID, err)
	}

	if err := s.appendLog(logRecord{Op: op, EntityType: rec.EntityType, EntityID: rec.EntityID, Checksum: rec.Checksum}); err != nil {
		return err
	}

	s.index.Entries[indexKey(rec.EntityType, rec.EntityID)] = indexEntry{
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		Checksum:   rec.Checksum,
		UpdatedAt:  rec.UpdatedAt,
	}
	return s.writeIndex()
}

// Deregister removes an entity's file and index entry.
func (s *Store) Deregister(entityType, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := indexKey(entityType, entityID)
	if _, exists := s.index.Entries[key]; !exists {
		return wrapErr(errkind.NotRegistered, "entity %s/%s not registered", entityType, entityID)
	}

	path := s.entityPath(entityType, entityID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return wrapErr(errkind.IOError, "remove entity %s/%s: %w", entityType, entityID, err)
	}

	if err := s.appendLog(logRecord{Op: "deleted", EntityType: entityType, EntityID: entityID}); err != nil {
		return err
	}

	delete(s.index.Entries, key)
	return s.writeIndex()
}

// Read returns the stored entity, or a not_registered error.
func (s *Store) Read(entityType, entityID string) (*EntityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(entityType, entityID)
}

func (s *Store) readLocked(entityType, entityID string) (*EntityRecord, error) {
	key := indexKey(entityType, entityID)
	if _, exists := s.index.Entries[key]; !exists {
		return nil, wrapErr(errkind.NotRegistered, "entity %s/%s not registered", entityType, entityID)
	}

	path := s.entityPath(entityType, entityID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(errkind.IOError, "read entity %s/%s: %w", entityType, entityID, err)
	}

	var rec EntityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, wrapErr(errkind.IOError, "parse entity %s/%s: %w", entityType, entityID, err)
	}
	return &rec, nil
}

// List returns every entity of the given type, sorted by id.
func (s *Store) List(entityType string) ([]*EntityRecord, error) {
	s.mu.Lock()
	ids := make([]string, 0)
	for _, e := range s.index.Entries {
		if e.EntityType == entityType {
			ids = append(ids, e.EntityID)
		}
	}
	s.mu.Unlock()

	sort.Strings(ids)
	records := make([]*EntityRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Read(entityType, id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Verify recomputes the checksum of the stored payload and compares it
// to the index entry, returning an integrity_error on mismatch.
func (s *Store) Verify(entityType, entityID string) error {
	rec, err := s.Read(entityType, entityID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	indexed, ok := s.index.Entries[indexKey(entityType, entityID)]
	s.mu.Unlock()
	if !ok {
		return wrapErr(errkind.NotRegistered, "entity %s/%s not registered", entityType, entityID)
	}

	recomputed := checksum(rec.Data)
	if recomputed != indexed.Checksum || recomputed != rec.Checksum {
		return wrapErr(errkind.IntegrityError, "checksum mismatch for %s/%s: stored=%s indexed=%s recomputed=%s",
			entityType, entityID, rec.Checksum, indexed.Checksum, recomputed)
	}
	return nil
}

// reconcile detects and repairs divergence between the index and the
// on-disk entity tree on restart (spec.md §4.6/§9): orphan entity files
// are re-indexed, stale index entries whose files are missing are
// dropped. Both kinds of repair are logged to the operation log as
// reconciliation events.
func (s *Store) reconcile() error {
	typeDirs, err := os.ReadDir(s.root)
	if err != nil {
		return wrapErr(errkind.IOError, "list registry root %q: %w", s.root, err)
	}

	onDisk := map[string]bool{}
	for _, td := range typeDirs {
		if !td.IsDir() {
			continue
		}
		entityType := td.Name()
		files, err := os.ReadDir(filepath.Join(s.root, entityType))
		if err != nil {
			return wrapErr(errkind.IOError, "list entity directory %q: %w", entityType, err)
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			entityID := f.Name()[:len(f.Name())-len(".json")]
			key := indexKey(entityType, entityID)
			onDisk[key] = true

			if _, indexed := s.index.Entries[key]; indexed {
				continue
			}

			data, err := os.ReadFile(filepath.Join(s.root, entityType, f.Name()))
			if err != nil {
				return wrapErr(errkind.IOError, "read orphan entity %q: %w", key, err)
			}
			var rec EntityRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return wrapErr(errkind.IOError, "parse orphan entity %q: %w", key, err)
			}

			s.index.Entries[key] = indexEntry{
				EntityType: entityType,
				EntityID:   entityID,
				Checksum:   rec.Checksum,
				UpdatedAt:  rec.UpdatedAt,
			}
			if err := s.appendLog(logRecord{Op: "reconciled_orphan", EntityType: entityType, EntityID: entityID, Checksum: rec.Checksum}); err != nil {
				return err
			}
			s.log.Info("reconciled orphan registry entity", "type", entityType, "id", entityID)
		}
	}

	for key, entry := range s.index.Entries {
		if onDisk[key] {
			continue
		}
		delete(s.index.Entries, key)
		if err := s.appendLog(logRecord{Op: "reconciled_stale", EntityType: entry.EntityType, EntityID: entry.EntityID}); err != nil {
			return err
		}
		s.log.Info("dropped stale registry index entry", "type", entry.EntityType, "id", entry.EntityID)
	}

	return s.writeIndex()
}
