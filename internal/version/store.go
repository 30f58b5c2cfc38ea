/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package version is the coordinator's per-file DAG of immutable
// FileVersions: history, heads, restore-as-forward-step and diff.
package version

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"syncd/internal/chunkstore"
	"syncd/internal/delta"
	syncderrors "syncd/internal/errors"
	"syncd/internal/vclock"
)

// Store is a DAG of FileVersions per file, backed by a ChunkStore for
// reconstructing content on restore/diff. Safe for concurrent use; each
// file has its own logical lock so unrelated files never contend.
type Store struct {
	clocks *vclock.Manager
	chunks *chunkstore.Store

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	mu        sync.RWMutex
	versions  map[string]*FileVersion // version_id -> version
	heads     map[string][]string     // file_id -> leaf version ids
	conflicts map[string][]*Conflict  // file_id -> conflicts
	allByFile map[string][]string     // file_id -> every version id ever created, insertion order
}

// New returns an empty Store backed by clocks and chunks.
func New(clocks *vclock.Manager, chunks *chunkstore.Store) *Store {
	return &Store{
		clocks:    clocks,
		chunks:    chunks,
		locks:     make(map[string]*sync.Mutex),
		versions:  make(map[string]*FileVersion),
		heads:     make(map[string][]string),
		conflicts: make(map[string][]*Conflict),
		allByFile: make(map[string][]string),
	}
}

func (s *Store) fileLock(fileID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[fileID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[fileID] = l
	}
	return l
}

// CreateVersion allocates and persists a new FileVersion. parentIDs
// names the version(s) this one supersedes (empty for a file's first
// version). clock must already reflect the originator's tick; every
// chunk hash in chunkList must already resolve in the Chunk Store.
//
// If, after updating FileHead, two or more heads remain and any pair of
// them has a concurrent clock relation, a Conflict is recorded and
// returned alongside the version (ConflictDetected is not propagated as
// a hard failure: the version is still created).
func (s *Store) CreateVersion(fileID string, parentIDs []string, clock vclock.VectorClock, chunkList []delta.ChunkSignature, originator string) (*FileVersion, *Conflict, error) {
	lock := s.fileLock(fileID)
	lock.Lock()
	defer lock.Unlock()

	for _, c := range chunkList {
		if !s.chunks.Has(c.Hash) {
			return nil, nil, syncderrors.MissingChunk(c.Hash)
		}
	}

	heads := s.headClocks(fileID)
	for _, h := range heads {
		rel := vclock.Compare(clock, h)
		if rel == vclock.Before || rel == vclock.Equal {
			return nil, nil, syncderrors.StaleVersion(fileID)
		}
	}

	var size int64
	if n := len(chunkList); n > 0 {
		last := chunkList[n-1]
		size = last.Offset + last.Size
	}

	v := &FileVersion{
		FileID:        fileID,
		VersionID:     uuid.NewString(),
		Clock:         clock.Copy(),
		ChunkList:     append([]delta.ChunkSignature(nil), chunkList...),
		Size:          size,
		CreatedByNode: originator,
		CreatedAt:     time.Now().UTC(),
	}
	if len(parentIDs) > 0 {
		v.ParentVersionID = parentIDs[0]
	}
	contentHash, err := s.contentHashFromChunks(chunkList)
	if err != nil {
		return nil, nil, err
	}
	v.ContentHash = contentHash

	s.mu.Lock()
	s.versions[v.VersionID] = v
	s.allByFile[fileID] = append(s.allByFile[fileID], v.VersionID)

	current := s.heads[fileID]
	remaining := make([]string, 0, len(current))
	parentSet := make(map[string]struct{}, len(parentIDs))
	for _, p := range parentIDs {
		parentSet[p] = struct{}{}
	}
	for _, id := range current {
		if _, wasParent := parentSet[id]; !wasParent {
			remaining = append(remaining, id)
		}
	}
	remaining = append(remaining, v.VersionID)
	s.heads[fileID] = remaining
	s.mu.Unlock()

	var conflict *Conflict
	if len(remaining) >= 2 {
		newHeads := s.headClocks(fileID)
		for i := 0; i < len(newHeads); i++ {
			for j := i + 1; j < len(newHeads); j++ {
				if vclock.Compare(newHeads[i], newHeads[j]) == vclock.Concurrent {
					conflict = &Conflict{
						ConflictID: uuid.NewString(),
						FileID:     fileID,
						VersionA:   remaining[i],
						VersionB:   remaining[j],
						DetectedAt: time.Now().UTC(),
					}
					s.mu.Lock()
					s.conflicts[fileID] = append(s.conflicts[fileID], conflict)
					s.mu.Unlock()
					break
				}
			}
			if conflict != nil {
				break
			}
		}
	}

	return v, conflict, nil
}

// contentHashFromChunks computes SHA-256 over the concatenated ordered
// chunk bodies, as spec requires for FileVersion.ContentHash.
func (s *Store) contentHashFromChunks(chunkList []delta.ChunkSignature) (string, error) {
	h := sha256.New()
	for _, c := range chunkList {
		b, err := s.chunks.Get(c.Hash)
		if err != nil {
			return "", err
		}
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Head returns the current leaf versions for file_id, usually one.
func (s *Store) Head(fileID string) ([]*FileVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.heads[fileID]
	if len(ids) == 0 {
		return nil, syncderrors.NotFound("file", fileID)
	}
	out := make([]*FileVersion, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.versions[id])
	}
	return out, nil
}

func (s *Store) headClocks(fileID string) []vclock.VectorClock {
	ids := s.heads[fileID]
	out := make([]vclock.VectorClock, 0, len(ids))
	s.mu.RLock()
	for _, id := range ids {
		if v, ok := s.versions[id]; ok {
			out = append(out, v.Clock)
		}
	}
	s.mu.RUnlock()
	return out
}

// History returns every version of file_id in causal order.
func (s *Store) History(fileID string) ([]*FileVersion, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.allByFile[fileID]...)
	versions := make([]*FileVersion, 0, len(ids))
	for _, id := range ids {
		versions = append(versions, s.versions[id])
	}
	s.mu.RUnlock()

	if len(versions) == 0 {
		return nil, syncderrors.NotFound("file", fileID)
	}

	clocked := make([]causalVersion, len(versions))
	for i, v := range versions {
		clocked[i] = causalVersion{v: v}
	}
	sorted := vclock.CausalSort(clocked)

	out := make([]*FileVersion, len(sorted))
	for i, c := range sorted {
		out[i] = c.v
	}
	return out, nil
}

// Version returns a single version by id.
func (s *Store) Version(versionID string) (*FileVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[versionID]
	if !ok {
		return nil, syncderrors.NotFound("version", versionID)
	}
	return v, nil
}

// reconstruct concatenates a version's chunks in order, reading their
// bytes from the Chunk Store.
func (s *Store) reconstruct(v *FileVersion) ([]byte, error) {
	out := make([]byte, 0, v.Size)
	for _, c := range v.ChunkList {
		b, err := s.chunks.Get(c.Hash)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// Restore creates a new forward version whose content equals versionID's
// content. History is never rewritten: the new version's clock is
// originator's tick applied to the merge of the current head clocks, and
// its parents are the current heads, exactly like any other write.
func (s *Store) Restore(fileID, versionID, originator string) (*FileVersion, *Conflict, error) {
	target, err := s.Version(versionID)
	if err != nil {
		return nil, nil, err
	}
	if target.FileID != fileID {
		return nil, nil, syncderrors.NotFound("version", versionID)
	}

	heads, err := s.Head(fileID)
	if err != nil {
		return nil, nil, err
	}

	merged := target.Clock.Copy()
	parentIDs := make([]string, 0, len(heads))
	for _, h := range heads {
		for k, v := range h.Clock {
			if v > merged[k] {
				merged[k] = v
			}
		}
		parentIDs = append(parentIDs, h.VersionID)
	}
	clock := s.clocks.Merge(originator, merged)

	return s.CreateVersion(fileID, parentIDs, clock, target.ChunkList, originator)
}

// Content reconstructs and returns the full byte content of versionID by
// concatenating its chunks in order. Used by the replication orchestrator
// to compute a delta against a target's last known signature.
func (s *Store) Content(versionID string) ([]byte, error) {
	v, err := s.Version(versionID)
	if err != nil {
		return nil, err
	}
	return s.reconstruct(v)
}

// Diff computes the Delta turning fromVersion's content into
// toVersion's content, wrapping the Delta Engine.
func (s *Store) Diff(fileID, fromVersionID, toVersionID string, chunkSize int) (*delta.Delta, error) {
	from, err := s.Version(fromVersionID)
	if err != nil {
		return nil, err
	}
	to, err := s.Version(toVersionID)
	if err != nil {
		return nil, err
	}
	if from.FileID != fileID || to.FileID != fileID {
		return nil, syncderrors.NotFound("file", fileID)
	}

	toContent, err := s.reconstruct(to)
	if err != nil {
		return nil, err
	}

	return delta.Compute(from.ChunkList, toContent, chunkSize), nil
}

// Conflicts returns every conflict recorded for fileID.
func (s *Store) Conflicts(fileID string) []*Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Conflict(nil), s.conflicts[fileID]...)
}

// Files returns the id of every file that has at least one version,
// for the coordinator's file-listing endpoint.
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.heads))
	for fileID := range s.heads {
		out = append(out, fileID)
	}
	return out
}

// AllConflicts returns every conflict recorded across every file, most
// recently detected last within each file's own slice.
func (s *Store) AllConflicts() []*Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Conflict
	for _, cs := range s.conflicts {
		out = append(out, cs...)
	}
	return out
}

// ConflictFile returns the file id owning conflictID.
func (s *Store) ConflictFile(conflictID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for fileID, cs := range s.conflicts {
		for _, c := range cs {
			if c.ConflictID == conflictID {
				return fileID, true
			}
		}
	}
	return "", false
}

// OrphanNode marks every version authored by node, and every conflict
// touching one of those versions, as Orphaned. Called when node is
// removed from the cluster registry; history is kept, not deleted, but
// is now visibly disowned. Returns how many versions and conflicts it
// touched.
func (s *Store) OrphanNode(node string) (versions int, conflicts int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orphanedVersions := make(map[string]struct{})
	for id, v := range s.versions {
		if v.CreatedByNode == node && !v.Orphaned {
			v.Orphaned = true
			versions++
		}
		if v.CreatedByNode == node {
			orphanedVersions[id] = struct{}{}
		}
	}

	for _, cs := range s.conflicts {
		for _, c := range cs {
			if c.Orphaned {
				continue
			}
			_, aOrphaned := orphanedVersions[c.VersionA]
			_, bOrphaned := orphanedVersions[c.VersionB]
			if aOrphaned || bOrphaned {
				c.Orphaned = true
				conflicts++
			}
		}
	}
	return versions, conflicts
}

// ResolveConflict marks a conflict resolved with the chosen successor
// version recorded as its resolution.
func (s *Store) ResolveConflict(fileID, conflictID, resolution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conflicts[fileID] {
		if c.ConflictID == conflictID {
			c.Resolved = true
			c.Resolution = resolution
			return nil
		}
	}
	return syncderrors.NotFound("conflict", conflictID)
}
