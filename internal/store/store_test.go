/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-qen/governor/internal/errkind"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), logr.Discard())
	require.NoError(t, err)
	return s
}

func TestStore_RegisterReadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.Register("component", "x", json.RawMessage(`{"v":1}`))
	require.NoError(t, err)
	assert.Equal(t, checksum([]byte(`{"v":1}`)), rec.Checksum)

	read, err := s.Read("component", "x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(read.Data))
	assert.Equal(t, rec.Checksum, read.Checksum)
}

func TestStore_DuplicateRegisterFails(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Register("component", "x", json.RawMessage(`{"v":1}`))
	require.NoError(t, err)

	_, err = s.Register("component", "x", json.RawMessage(`{"v":2}`))
	require.Error(t, err)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, errkind.DuplicateEntity, serr.Kind)

	read, err := s.Read("component", "x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(read.Data), "duplicate register must not modify the existing entity")
}

func TestStore_UpdateThenReadReflectsLatest(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Register("component", "x", json.RawMessage(`{"v":1}`))
	require.NoError(t, err)

	updated, err := s.Update("component", "x", json.RawMessage(`{"v":2}`))
	require.NoError(t, err)
	assert.Equal(t, checksum([]byte(`{"v":2}`)), updated.Checksum)

	read, err := s.Read("component", "x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(read.Data))
	assert.Equal(t, updated.Checksum, read.Checksum)
}

func TestStore_OperationLogOrdering(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, logr.Discard())
	require.NoError(t, err)

	_, err = s.Register("component", "x", json.RawMessage(`{"v":1}`))
	require.NoError(t, err)
	_, err = s.Update("component", "x", json.RawMessage(`{"v":2}`))
	require.NoError(t, err)

	ops := readLogOps(t, filepath.Join(dir, opLogFile))
	require.Len(t, ops, 2)
	assert.Equal(t, "created", ops[0])
	assert.Equal(t, "updated", ops[1])
}

func TestStore_Deregister(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Register("component", "x", json.RawMessage(`{"v":1}`))
	require.NoError(t, err)

	require.NoError(t, s.Deregister("component", "x"))

	_, err = s.Read("component", "x")
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, errkind.NotRegistered, serr.Kind)
}

func TestStore_VerifyDetectsTamperedFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, logr.Discard())
	require.NoError(t, err)

	_, err = s.Register("component", "x", json.RawMessage(`{"v":1}`))
	require.NoError(t, err)
	require.NoError(t, s.Verify("component", "x"))

	path := filepath.Join(dir, "component", "x.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec EntityRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	rec.Data = json.RawMessage(`{"v":999}`)
	tampered, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	err = s.Verify("component", "x")
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, errkind.IntegrityError, serr.Kind)
}

func TestStore_ReconcilesOrphanAndStaleEntries(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, logr.Discard())
	require.NoError(t, err)
	_, err = s.Register("component", "x", json.RawMessage(`{"v":1}`))
	require.NoError(t, err)

	// Simulate a crash that left an orphan file (written directly, bypassing
	// the index) and a stale index entry (file removed out from under the
	// index).
	orphan := EntityRecord{EntityID: "y", EntityType: "component", Data: json.RawMessage(`{"v":2}`), Checksum: checksum([]byte(`{"v":2}`))}
	orphanBytes, err := json.Marshal(orphan)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "component", "y.json"), orphanBytes, 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "component", "x.json")))

	s2, err := Open(dir, logr.Discard())
	require.NoError(t, err)

	_, err = s2.Read("component", "y")
	require.NoError(t, err, "orphan file should have been re-indexed")

	_, err = s2.Read("component", "x")
	require.Error(t, err, "stale index entry should have been dropped")
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, errkind.NotRegistered, serr.Kind)
}

func TestStore_ListSortedByID(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Register("component", "b", json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = s.Register("component", "a", json.RawMessage(`{}`))
	require.NoError(t, err)

	records, err := s.List("component")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].EntityID)
	assert.Equal(t, "b", records[1].EntityID)
}

func readLogOps(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ops []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec logRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		ops = append(ops, rec.Op)
	}
	return ops
}
