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

	"syncd/internal/cluster"
	"syncd/internal/events"
)

type registerRequest struct {
	NodeID       string   `json:"node_id" binding:"required"`
	Name         string   `json:"name"`
	Address      string   `json:"address" binding:"required"`
	Port         int      `json:"port" binding:"required"`
	Capabilities []string `json:"capabilities"`
}

type nodeView struct {
	NodeID        string   `json:"node_id"`
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Port          int      `json:"port"`
	Capabilities  []string `json:"capabilities"`
	State         string   `json:"state"`
	RegisteredAt  string   `json:"registered_at"`
	LastHeartbeat string   `json:"last_heartbeat"`
}

func toNodeView(n *cluster.Node) nodeView {
	return nodeView{
		NodeID:        n.ID,
		Name:          n.Name,
		Address:       n.Address,
		Port:          n.Port,
		Capabilities:  n.Capabilities,
		State:         n.State.String(),
		RegisteredAt:  n.RegisteredAt.Format(timeLayout),
		LastHeartbeat: n.LastHeartbeat.Format(timeLayout),
	}
}

// handleRegister implements POST /register: registers a node and
// assigns its initial vector clock entry.
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errJSON(c, http.StatusBadRequest, invalidRequest(err))
		return
	}

	node := s.registry.Register(req.NodeID, req.Name, req.Address, req.Port, req.Capabilities)
	clock := s.clocks.Tick(req.NodeID)

	s.eventsMgr.Append(events.Event{
		NodeID:    req.NodeID,
		EventType: events.TypeNodeRegistered,
		Clock:     clock,
		Data: map[string]any{
			"address": req.Address,
			"port":    req.Port,
		},
	})

	c.JSON(http.StatusOK, gin.H{
		"node":         toNodeView(node),
		"vector_clock": clock,
	})
}

// handleListNodes implements GET /nodes.
func (s *Server) handleListNodes(c *gin.Context) {
	nodes := s.registry.List()
	out := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toNodeView(n))
	}
	c.JSON(http.StatusOK, gin.H{"nodes": out})
}

// handleRemoveNode implements DELETE /nodes/{id}: removes the node from
// the registry (cancelling in-flight sessions addressed to it, via
// cluster.Registry's OnNodeRemove callback into the replication
// Orchestrator), forgets its vector-clock entry, and marks its owned
// versions, conflicts and event-log entries orphaned rather than
// deleting the history they left behind.
func (s *Server) handleRemoveNode(c *gin.Context) {
	id := c.Param("id")
	if err := s.registry.Remove(id); err != nil {
		errJSON(c, statusFor(err), err)
		return
	}

	s.clocks.Forget(id)
	orphanedVersions, orphanedConflicts := s.versions.OrphanNode(id)
	orphanedEvents, err := s.eventsMgr.OrphanNode(id)
	if err != nil {
		s.logger.Warn("failed to orphan event log entries for removed node", "node_id", id, "error", err)
	}

	s.eventsMgr.Append(events.Event{
		NodeID:    id,
		EventType: events.TypeNodeRemoved,
		Clock:     s.clocks.Snapshot(),
		Data: map[string]any{
			"orphaned_versions":  orphanedVersions,
			"orphaned_conflicts": orphanedConflicts,
			"orphaned_events":    orphanedEvents,
		},
	})

	c.JSON(http.StatusOK, gin.H{"removed": id})
}
