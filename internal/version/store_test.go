/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package version

import (
	"testing"

	"syncd/internal/chunkstore"
	"syncd/internal/delta"
	syncderrors "syncd/internal/errors"
	"syncd/internal/vclock"
)

const testChunkSize = 4

func newTestStore() (*Store, *chunkstore.Store, *vclock.Manager) {
	clocks := vclock.NewManager()
	chunks := chunkstore.New()
	return New(clocks, chunks), chunks, clocks
}

func putContent(chunks *chunkstore.Store, content []byte) []delta.ChunkSignature {
	sig := delta.Signature(content, testChunkSize)
	for i := range sig {
		start := sig[i].Offset
		end := start + sig[i].Size
		chunks.Put(content[start:end])
	}
	return sig
}

func TestCreateVersionFirstVersion(t *testing.T) {
	store, chunks, clocks := newTestStore()
	content := []byte("hello world")
	chunkList := putContent(chunks, content)
	clock := clocks.Tick("n1")

	v, conflict, err := store.CreateVersion("f1", nil, clock, chunkList, "n1")
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	if conflict != nil {
		t.Fatal("expected no conflict on first version")
	}
	if v.FileID != "f1" || v.CreatedByNode != "n1" {
		t.Errorf("unexpected version: %+v", v)
	}
	if v.VersionID == "" {
		t.Error("expected a generated version id")
	}
}

func TestCreateVersionRejectsMissingChunk(t *testing.T) {
	store, _, clocks := newTestStore()
	clock := clocks.Tick("n1")
	chunkList := []delta.ChunkSignature{{Index: 0, Offset: 0, Size: 4, Hash: "deadbeef"}}

	_, _, err := store.CreateVersion("f1", nil, clock, chunkList, "n1")
	if syncderrors.GetKind(err) != syncderrors.KindMissingChunk {
		t.Errorf("expected MissingChunk, got %v", err)
	}
}

func TestCreateVersionRejectsStaleClock(t *testing.T) {
	store, chunks, clocks := newTestStore()
	content := []byte("v1")
	chunkList := putContent(chunks, content)
	clock1 := clocks.Tick("n1")
	v1, _, err := store.CreateVersion("f1", nil, clock1, chunkList, "n1")
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	// Attempt a second version with a clock that does not dominate v1's.
	_, _, err = store.CreateVersion("f1", []string{v1.VersionID}, clock1, chunkList, "n1")
	if syncderrors.GetKind(err) != syncderrors.KindStaleVersion {
		t.Errorf("expected StaleVersion, got %v", err)
	}
}

func TestCreateVersionDetectsConflictOnConcurrentHeads(t *testing.T) {
	store, chunks, clocks := newTestStore()
	content := []byte("base")
	chunkList := putContent(chunks, content)

	clockN1 := clocks.Tick("n1")
	v1, _, err := store.CreateVersion("f1", nil, clockN1, chunkList, "n1")
	if err != nil {
		t.Fatalf("CreateVersion v1 failed: %v", err)
	}

	// A concurrent edit from n2 that never observed v1: its own clock,
	// ticked independently, is concurrent with v1's.
	concurrentClock := vclock.VectorClock{"n2": 1}
	content2 := []byte("concurrent-edit")
	chunkList2 := putContent(chunks, content2)

	v2, conflict, err := store.CreateVersion("f1", nil, concurrentClock, chunkList2, "n2")
	if err != nil {
		t.Fatalf("CreateVersion v2 failed: %v", err)
	}
	if conflict == nil {
		t.Fatal("expected a conflict between concurrent heads")
	}
	heads, err := store.Head("f1")
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if len(heads) != 2 {
		t.Errorf("expected 2 heads after concurrent write, got %d", len(heads))
	}
	_ = v1
	_ = v2
}

func TestHeadUnknownFileReturnsNotFound(t *testing.T) {
	store, _, _ := newTestStore()
	_, err := store.Head("nonexistent")
	if syncderrors.GetKind(err) != syncderrors.KindNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestHistoryOrdersCausally(t *testing.T) {
	store, chunks, clocks := newTestStore()
	content1 := []byte("v1")
	chunkList1 := putContent(chunks, content1)
	clock1 := clocks.Tick("n1")
	v1, _, err := store.CreateVersion("f1", nil, clock1, chunkList1, "n1")
	if err != nil {
		t.Fatalf("v1 failed: %v", err)
	}

	content2 := []byte("v2-longer-content")
	chunkList2 := putContent(chunks, content2)
	clock2 := clocks.Tick("n1")
	v2, _, err := store.CreateVersion("f1", []string{v1.VersionID}, clock2, chunkList2, "n1")
	if err != nil {
		t.Fatalf("v2 failed: %v", err)
	}

	history, err := store.History("f1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(history))
	}
	if history[0].VersionID != v1.VersionID || history[1].VersionID != v2.VersionID {
		t.Errorf("expected causal order [v1, v2], got [%s, %s]", history[0].VersionID, history[1].VersionID)
	}
}

func TestRestoreCreatesForwardVersion(t *testing.T) {
	store, chunks, clocks := newTestStore()
	content1 := []byte("original")
	chunkList1 := putContent(chunks, content1)
	clock1 := clocks.Tick("n1")
	v1, _, err := store.CreateVersion("f1", nil, clock1, chunkList1, "n1")
	if err != nil {
		t.Fatalf("v1 failed: %v", err)
	}

	content2 := []byte("overwritten-content")
	chunkList2 := putContent(chunks, content2)
	clock2 := clocks.Tick("n1")
	v2, _, err := store.CreateVersion("f1", []string{v1.VersionID}, clock2, chunkList2, "n1")
	if err != nil {
		t.Fatalf("v2 failed: %v", err)
	}

	restored, conflict, err := store.Restore("f1", v1.VersionID, "n1")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if conflict != nil {
		t.Fatal("expected no conflict on a restore with a single prior head")
	}
	if restored.VersionID == v1.VersionID {
		t.Error("expected restore to create a new version, not reuse the old id")
	}
	if restored.ContentHash != v1.ContentHash {
		t.Error("expected restored content hash to match the restored-from version")
	}

	heads, err := store.Head("f1")
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if len(heads) != 1 || heads[0].VersionID != restored.VersionID {
		t.Error("expected restore to become the sole new head")
	}
	_ = v2
}

func TestDiffWrapsDeltaEngine(t *testing.T) {
	store, chunks, clocks := newTestStore()
	content1 := []byte("aaaabbbb")
	chunkList1 := putContent(chunks, content1)
	clock1 := clocks.Tick("n1")
	v1, _, err := store.CreateVersion("f1", nil, clock1, chunkList1, "n1")
	if err != nil {
		t.Fatalf("v1 failed: %v", err)
	}

	content2 := []byte("aaaacccc")
	chunkList2 := putContent(chunks, content2)
	clock2 := clocks.Tick("n1")
	v2, _, err := store.CreateVersion("f1", []string{v1.VersionID}, clock2, chunkList2, "n1")
	if err != nil {
		t.Fatalf("v2 failed: %v", err)
	}

	d, err := store.Diff("f1", v1.VersionID, v2.VersionID, testChunkSize)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if len(d.Operations) == 0 {
		t.Fatal("expected at least one operation in the diff")
	}
}

func TestResolveConflict(t *testing.T) {
	store, chunks, clocks := newTestStore()
	content := []byte("base")
	chunkList := putContent(chunks, content)
	clockN1 := clocks.Tick("n1")
	_, _, err := store.CreateVersion("f1", nil, clockN1, chunkList, "n1")
	if err != nil {
		t.Fatalf("v1 failed: %v", err)
	}

	concurrentClock := vclock.VectorClock{"n2": 1}
	content2 := []byte("concurrent-edit")
	chunkList2 := putContent(chunks, content2)
	_, conflict, err := store.CreateVersion("f1", nil, concurrentClock, chunkList2, "n2")
	if err != nil {
		t.Fatalf("v2 failed: %v", err)
	}
	if conflict == nil {
		t.Fatal("expected a conflict")
	}

	if err := store.ResolveConflict("f1", conflict.ConflictID, conflict.VersionB); err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}

	conflicts := store.Conflicts("f1")
	if len(conflicts) != 1 || !conflicts[0].Resolved {
		t.Error("expected conflict to be marked resolved")
	}
}
