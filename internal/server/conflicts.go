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

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	syncderrors "syncd/internal/errors"
	"syncd/internal/events"
	"syncd/internal/version"
)

type conflictView struct {
	ConflictID string `json:"conflict_id"`
	FileID     string `json:"file_id"`
	VersionA   string `json:"version_a"`
	VersionB   string `json:"version_b"`
	DetectedAt string `json:"detected_at"`
	Resolved   bool   `json:"resolved"`
	Resolution string `json:"resolution,omitempty"`
}

func toConflictView(c *version.Conflict) conflictView {
	return conflictView{
		ConflictID: c.ConflictID,
		FileID:     c.FileID,
		VersionA:   c.VersionA,
		VersionB:   c.VersionB,
		DetectedAt: c.DetectedAt.Format(timeLayout),
		Resolved:   c.Resolved,
		Resolution: c.Resolution,
	}
}

// handleListConflicts implements GET /conflicts: every unresolved
// conflict across every file.
func (s *Server) handleListConflicts(c *gin.Context) {
	all := s.versions.AllConflicts()
	out := make([]conflictView, 0, len(all))
	for _, cf := range all {
		if cf.Resolved {
			continue
		}
		out = append(out, toConflictView(cf))
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": out})
}

type resolveRequest struct {
	WinnerVersionID string `json:"winner_version_id" binding:"required"`
}

// handleResolveConflict implements POST /conflicts/{id}/resolve: records
// the resolution, then creates a new head by restoring the winning
// version forward over the merge of every current head's clock (exactly
// what version.Store.Restore already does), satisfying spec's "creates a
// new head merging both clocks".
func (s *Server) handleResolveConflict(c *gin.Context) {
	conflictID := c.Param("id")

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errJSON(c, http.StatusBadRequest, invalidRequest(err))
		return
	}

	fileID, ok := s.versions.ConflictFile(conflictID)
	if !ok {
		errJSON(c, http.StatusNotFound, syncderrors.NotFound("conflict", conflictID))
		return
	}

	if err := s.versions.ResolveConflict(fileID, conflictID, req.WinnerVersionID); err != nil {
		errJSON(c, statusFor(err), err)
		return
	}

	v, _, err := s.versions.Restore(fileID, req.WinnerVersionID, "conflict-resolution")
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}

	s.eventsMgr.Append(events.Event{
		NodeID:    "conflict-resolution",
		FileID:    fileID,
		EventType: events.TypeFileModified,
		Clock:     v.Clock,
		Data: map[string]any{
			"conflict_id":       conflictID,
			"winner_version_id": req.WinnerVersionID,
			"merged_version_id": v.VersionID,
		},
	})

	s.orch.FanOut(fileID, v.VersionID, "conflict-resolution")

	c.JSON(http.StatusOK, gin.H{"version": toVersionView(v)})
}
