/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package metadata

import "testing"

func TestMemoryEnginePutGet(t *testing.T) {
	engine, cleanup := newTestEngine(t)
	defer cleanup()

	if err := engine.Put("nodes", "n1", []byte("payload")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	v, ok, err := engine.Get("nodes", "n1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected key to exist")
	}
	if string(v) != "payload" {
		t.Errorf("expected 'payload', got '%s'", v)
	}
}

func TestMemoryEngineGetMissing(t *testing.T) {
	engine, cleanup := newTestEngine(t)
	defer cleanup()

	_, ok, err := engine.Get("nodes", "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("expected missing key to report false")
	}
}

func TestMemoryEngineDelete(t *testing.T) {
	engine, cleanup := newTestEngine(t)
	defer cleanup()

	engine.Put("nodes", "n1", []byte("x"))
	if err := engine.Delete("nodes", "n1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, ok, _ := engine.Get("nodes", "n1")
	if ok {
		t.Error("expected key to be gone after Delete")
	}
}

func TestMemoryEngineScanPrefixOrdered(t *testing.T) {
	engine, cleanup := newTestEngine(t)
	defer cleanup()

	engine.Put("versions", "file-1:v3", []byte("3"))
	engine.Put("versions", "file-1:v1", []byte("1"))
	engine.Put("versions", "file-1:v2", []byte("2"))
	engine.Put("versions", "file-2:v1", []byte("other"))

	recs, err := engine.Scan("versions", "file-1:")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, want := range []string{"file-1:v1", "file-1:v2", "file-1:v3"} {
		if recs[i].Key != want {
			t.Errorf("expected key %s at position %d, got %s", want, i, recs[i].Key)
		}
	}
}

func TestMemoryEngineNamespacesAreIsolated(t *testing.T) {
	engine, cleanup := newTestEngine(t)
	defer cleanup()

	engine.Put("nodes", "id", []byte("node-value"))
	engine.Put("files", "id", []byte("file-value"))

	v, _, _ := engine.Get("nodes", "id")
	if string(v) != "node-value" {
		t.Errorf("expected node-value, got %s", v)
	}
	v, _, _ = engine.Get("files", "id")
	if string(v) != "file-value" {
		t.Errorf("expected file-value, got %s", v)
	}
}

func TestSQLiteEnginePersistsAcrossReopen(t *testing.T) {
	engine, cleanup := newTestSQLiteEngine(t)
	defer cleanup()

	if err := engine.Put("nodes", "n1", []byte("durable")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	sqlite, ok := engine.(*SQLiteEngine)
	if !ok {
		t.Fatal("expected *SQLiteEngine")
	}
	path := sqlite.path
	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteEngine(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	v, ok, err := reopened.Get("nodes", "n1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || string(v) != "durable" {
		t.Errorf("expected durable value to survive reopen, got %q (ok=%v)", v, ok)
	}
}

func TestNewEngineDefaultsToMemory(t *testing.T) {
	engine, err := NewEngine(Config{})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Close()
	if engine.Type() != EngineTypeMemory {
		t.Errorf("expected memory engine by default, got %s", engine.Type())
	}
}

func TestNewEngineRejectsUnknownType(t *testing.T) {
	_, err := NewEngine(Config{Type: "bogus"})
	if err == nil {
		t.Error("expected error for unknown engine type")
	}
}
