/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package metadata

import (
	"os"
	"path/filepath"
	"testing"
)

// newTestEngine returns an in-memory Engine and a cleanup function. Used
// by this package's tests that only need a metadata store and do not
// care which backend implements it.
func newTestEngine(t *testing.T) (Engine, func()) {
	t.Helper()
	engine := NewMemoryEngine()
	return engine, func() { engine.Close() }
}

// newTestSQLiteEngine returns a SQLite-backed Engine rooted in a fresh
// temp directory, for tests that exercise durability across a
// Close/reopen cycle.
func newTestSQLiteEngine(t *testing.T) (Engine, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "syncd-metadata-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	engine, err := NewSQLiteEngine(filepath.Join(tmpDir, "metadata.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create sqlite engine: %v", err)
	}

	cleanup := func() {
		engine.Close()
		os.RemoveAll(tmpDir)
	}

	return engine, cleanup
}
