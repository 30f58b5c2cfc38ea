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

package version

import (
	"time"

	"syncd/internal/delta"
	"syncd/internal/vclock"
)

// FileVersion is an immutable point in a file's history. Never mutated
// after creation; a later edit always creates a new FileVersion with
// this one as a parent.
type FileVersion struct {
	FileID          string
	VersionID       string
	ParentVersionID string // empty for the first version of a file

	Clock     vclock.VectorClock
	ChunkList []delta.ChunkSignature

	Size          int64
	ContentHash   string
	CreatedByNode string
	CreatedAt     time.Time

	// Orphaned marks a version whose CreatedByNode was later removed
	// from the cluster registry. Set only by Store.OrphanNode, after the
	// version already exists; the content and clock above never change.
	Orphaned bool
}

// When returns a monotonic-enough timestamp for causal tie-breaking.
func (v *FileVersion) When() int64 { return v.CreatedAt.UnixNano() }

// ID returns the version's identifier.
func (v *FileVersion) ID() string { return v.VersionID }

// causalVersion adapts FileVersion to vclock.Clocked without exporting a
// Clock() method that would collide with the Clock field above.
type causalVersion struct{ v *FileVersion }

func (c causalVersion) Clock() vclock.VectorClock { return c.v.Clock }
func (c causalVersion) When() int64               { return c.v.When() }
func (c causalVersion) ID() string                { return c.v.ID() }

// Conflict records two concurrent heads for the same file, left for an
// operator to resolve.
type Conflict struct {
	ConflictID string
	FileID     string
	VersionA   string
	VersionB   string
	DetectedAt time.Time
	Resolved   bool
	Resolution string

	// Orphaned marks a conflict where VersionA or VersionB was authored
	// by a node later removed from the cluster registry.
	Orphaned bool
}
