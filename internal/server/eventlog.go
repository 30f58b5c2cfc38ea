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

	"syncd/internal/events"
)

const defaultEventLimit = 100

// handleEvents implements GET /events?limit=N: recent events, most recent
// first (reverse append order), not necessarily causal order.
func (s *Server) handleEvents(c *gin.Context) {
	limit := queryLimit(c, defaultEventLimit)
	evts, err := s.eventsMgr.Recent(limit)
	if err != nil {
		errJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evts})
}

// handleCausalOrder implements GET /causal-order?limit=N.
func (s *Server) handleCausalOrder(c *gin.Context) {
	limit := queryLimit(c, defaultEventLimit)
	evts, err := s.eventsMgr.CausalRecent(limit)
	if err != nil {
		errJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evts})
}

// handleVectorClocks implements GET /vector-clocks: the coordinator's
// current clock entry for every node it has ever ticked or merged.
func (s *Server) handleVectorClocks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"vector_clocks": s.clocks.Snapshot()})
}

// handleEventsExport implements GET /events/export?format=json|csv&limit=N&order=causal,
// streaming the event log directly to the response body so an operator
// can redirect it to a file without an intermediate JSON round trip.
func (s *Server) handleEventsExport(c *gin.Context) {
	format, err := events.ParseExportFormat(c.DefaultQuery("format", "json"))
	if err != nil {
		errJSON(c, http.StatusBadRequest, err)
		return
	}

	limit := queryLimit(c, 0)
	var evts []events.Event
	if c.Query("order") == "causal" {
		evts, err = s.eventsMgr.CausalRecent(limit)
	} else {
		evts, err = s.eventsMgr.Recent(limit)
	}
	if err != nil {
		errJSON(c, http.StatusInternalServerError, err)
		return
	}

	switch format {
	case events.ExportCSV:
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="events.csv"`)
	default:
		c.Header("Content-Type", "application/json")
		c.Header("Content-Disposition", `attachment; filename="events.json"`)
	}

	if err := s.eventsMgr.Export(c.Writer, format, evts); err != nil {
		s.logger.Error("events export failed mid-stream", "error", err)
	}
}
