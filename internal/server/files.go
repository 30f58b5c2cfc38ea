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

	"syncd/internal/delta"
	"syncd/internal/events"
	"syncd/internal/vclock"
	"syncd/internal/version"
)

// emitConflictDetected records a conflict_detected event for a head
// collision CreateVersion just reported.
func (s *Server) emitConflictDetected(fileID string, conflict *version.Conflict) {
	s.eventsMgr.Append(events.Event{
		FileID:    fileID,
		EventType: events.TypeConflictDetected,
		Clock:     s.clocks.Snapshot(),
		Data: map[string]any{
			"conflict_id": conflict.ConflictID,
			"version_a":   conflict.VersionA,
			"version_b":   conflict.VersionB,
		},
	})
}

type versionView struct {
	FileID          string             `json:"file_id"`
	VersionID       string             `json:"version_id"`
	ParentVersionID string             `json:"parent_version_id,omitempty"`
	VectorClock     vclock.VectorClock `json:"vector_clock"`
	ChunkCount      int                `json:"chunk_count"`
	Size            int64              `json:"size"`
	ContentHash     string             `json:"content_hash"`
	CreatedByNode   string             `json:"created_by_node"`
	CreatedAt       string             `json:"created_at"`
}

func toVersionView(v *version.FileVersion) versionView {
	return versionView{
		FileID:          v.FileID,
		VersionID:       v.VersionID,
		ParentVersionID: v.ParentVersionID,
		VectorClock:     v.Clock,
		ChunkCount:      len(v.ChunkList),
		Size:            v.Size,
		ContentHash:     v.ContentHash,
		CreatedByNode:   v.CreatedByNode,
		CreatedAt:       v.CreatedAt.Format(timeLayout),
	}
}

// handleListFiles implements GET /files: the current head version(s)
// across every file known to the version Store.
func (s *Server) handleListFiles(c *gin.Context) {
	var out []versionView
	for _, fileID := range s.versions.Files() {
		heads, err := s.versions.Head(fileID)
		if err != nil {
			continue
		}
		for _, h := range heads {
			out = append(out, toVersionView(h))
		}
	}
	c.JSON(http.StatusOK, gin.H{"files": out})
}

// handleGetFile implements GET /files/{id}.
func (s *Server) handleGetFile(c *gin.Context) {
	heads, err := s.versions.Head(c.Param("id"))
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}
	out := make([]versionView, 0, len(heads))
	for _, h := range heads {
		out = append(out, toVersionView(h))
	}
	c.JSON(http.StatusOK, gin.H{"versions": out})
}

// handleFileChunks implements GET /files/{id}/chunks: the chunk
// signature of the current head, for a peer preparing a delta upload.
// When the file currently has more than one head (an unresolved
// conflict), the first head's signature is returned; callers that care
// about a specific branch should resolve the conflict first.
func (s *Server) handleFileChunks(c *gin.Context) {
	heads, err := s.versions.Head(c.Param("id"))
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version_id": heads[0].VersionID,
		"chunks":     heads[0].ChunkList,
	})
}

// handleFileContent implements GET /files/{id}/content: reconstructed
// bytes of the current head.
func (s *Server) handleFileContent(c *gin.Context) {
	heads, err := s.versions.Head(c.Param("id"))
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}
	content, err := s.versions.Content(heads[0].VersionID)
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", content)
}

// handleFileHistory implements GET /files/{id}/history: the
// causal-ordered version list.
func (s *Server) handleFileHistory(c *gin.Context) {
	versions, err := s.versions.History(c.Param("id"))
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}
	out := make([]versionView, 0, len(versions))
	for _, v := range versions {
		out = append(out, toVersionView(v))
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}

type uploadRequest struct {
	FileID       string             `json:"file_id" binding:"required"`
	NodeID       string             `json:"node_id" binding:"required"`
	Content      []byte             `json:"content"`
	VectorClock  vclock.VectorClock `json:"vector_clock"`
	UseDeltaSync bool               `json:"use_delta_sync"`
}

// handleUpload implements POST /files/upload: creates a new version from
// whole content, fans it out to every other online node, and reports
// delta_metrics describing the savings relative to whatever the node
// previously held (if use_delta_sync was requested and a head exists).
func (s *Server) handleUpload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errJSON(c, http.StatusBadRequest, invalidRequest(err))
		return
	}

	sig := delta.Signature(req.Content, s.cfg.ChunkSize)
	for _, chunk := range sig {
		s.chunks.Put(req.Content[chunk.Offset : chunk.Offset+chunk.Size])
	}

	// The new version's clock is the uploader's own clock with its entry
	// ticked. Only heads that clock has observed become parents, so an
	// upload that did not see an existing head leaves both as heads.
	merged := s.clocks.Merge(req.NodeID, req.VectorClock)
	clock := req.VectorClock.Copy()
	clock[req.NodeID] = merged[req.NodeID]

	var parentIDs []string
	var baseSig []delta.ChunkSignature
	if heads, err := s.versions.Head(req.FileID); err == nil {
		for _, h := range heads {
			if vclock.Compare(h.Clock, clock) == vclock.Before {
				parentIDs = append(parentIDs, h.VersionID)
			}
		}
		if req.UseDeltaSync {
			baseSig = heads[0].ChunkList
		}
	}

	v, conflict, err := s.versions.CreateVersion(req.FileID, parentIDs, clock, sig, req.NodeID)
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}

	metrics := delta.ComputeMetrics(delta.Compute(baseSig, req.Content, s.cfg.ChunkSize))

	s.eventsMgr.Append(events.Event{
		NodeID:    req.NodeID,
		FileID:    req.FileID,
		EventType: events.TypeFileModified,
		Clock:     clock,
		Data: map[string]any{
			"version_id": v.VersionID,
		},
	})

	s.orch.FanOut(req.FileID, v.VersionID, req.NodeID)
	if conflict != nil {
		s.emitConflictDetected(req.FileID, conflict)
	}

	resp := gin.H{
		"version_id":    v.VersionID,
		"delta_metrics": metrics,
	}
	if conflict != nil {
		resp["conflict_id"] = conflict.ConflictID
	}
	c.JSON(http.StatusOK, resp)
}

type deltaSubmitRequest struct {
	NodeID      string             `json:"node_id" binding:"required"`
	VectorClock vclock.VectorClock `json:"vector_clock"`
	Delta       *delta.Delta       `json:"delta" binding:"required"`
}

// handleSubmitDelta implements POST /files/{id}/delta: applies a delta
// computed against the file's current head, creating a new version from
// the reconstructed content.
func (s *Server) handleSubmitDelta(c *gin.Context) {
	fileID := c.Param("id")

	var req deltaSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errJSON(c, http.StatusBadRequest, invalidRequest(err))
		return
	}

	heads, err := s.versions.Head(fileID)
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}
	base := heads[0]
	baseContent, err := s.versions.Content(base.VersionID)
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}

	content, err := delta.Apply(baseContent, base.ChunkList, req.Delta, func(hash string) ([]byte, bool) {
		b, err := s.chunks.Get(hash)
		if err != nil {
			return nil, false
		}
		return b, true
	})
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}

	sig := delta.Signature(content, s.cfg.ChunkSize)
	for _, chunk := range sig {
		s.chunks.Put(content[chunk.Offset : chunk.Offset+chunk.Size])
	}

	parentIDs := make([]string, 0, len(heads))
	for _, h := range heads {
		parentIDs = append(parentIDs, h.VersionID)
	}
	clock := s.clocks.Merge(req.NodeID, req.VectorClock)

	v, conflict, err := s.versions.CreateVersion(fileID, parentIDs, clock, sig, req.NodeID)
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}

	metrics := delta.ComputeMetrics(req.Delta)

	s.eventsMgr.Append(events.Event{
		NodeID:    req.NodeID,
		FileID:    fileID,
		EventType: events.TypeFileModified,
		Clock:     clock,
		Data: map[string]any{
			"version_id": v.VersionID,
		},
	})

	s.orch.FanOut(fileID, v.VersionID, req.NodeID)
	if conflict != nil {
		s.emitConflictDetected(fileID, conflict)
	}

	resp := gin.H{
		"version_id":    v.VersionID,
		"delta_metrics": metrics,
	}
	if conflict != nil {
		resp["conflict_id"] = conflict.ConflictID
	}
	c.JSON(http.StatusOK, resp)
}

type restoreRequest struct {
	VersionID string `json:"version_id" binding:"required"`
	NodeID    string `json:"node_id"`
}

// handleRestore implements POST /files/{id}/restore: a forward version
// whose content matches an earlier one, per version.Store.Restore.
func (s *Server) handleRestore(c *gin.Context) {
	fileID := c.Param("id")

	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errJSON(c, http.StatusBadRequest, invalidRequest(err))
		return
	}
	originator := req.NodeID
	if originator == "" {
		originator = "coordinator"
	}

	v, conflict, err := s.versions.Restore(fileID, req.VersionID, originator)
	if err != nil {
		errJSON(c, statusFor(err), err)
		return
	}

	s.eventsMgr.Append(events.Event{
		NodeID:    originator,
		FileID:    fileID,
		EventType: events.TypeFileModified,
		Clock:     v.Clock,
		Data: map[string]any{
			"version_id":  v.VersionID,
			"restored_of": req.VersionID,
		},
	})

	s.orch.FanOut(fileID, v.VersionID, originator)

	resp := gin.H{"version": toVersionView(v)}
	if conflict != nil {
		resp["conflict_id"] = conflict.ConflictID
	}
	c.JSON(http.StatusOK, resp)
}
