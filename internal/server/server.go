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

// Package server is the coordinator's JSON/WebSocket surface: node
// registration and listing, file upload/delta/history/restore/content,
// conflict listing and resolution, the event log (plain and causal
// order), current vector clocks, and aggregate/delta metrics. Every
// handler is a thin adapter over internal/cluster, internal/version,
// internal/chunkstore, internal/events and internal/replication; none of
// the domain logic lives in this package.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"syncd/internal/chunkstore"
	"syncd/internal/cluster"
	"syncd/internal/config"
	"syncd/internal/events"
	"syncd/internal/logging"
	"syncd/internal/replication"
	"syncd/internal/vclock"
	"syncd/internal/version"
)

// Server wires the coordinator's domain packages behind an HTTP router.
type Server struct {
	cfg       *config.Config
	registry  *cluster.Registry
	versions  *version.Store
	chunks    *chunkstore.Store
	clocks    *vclock.Manager
	eventsMgr *events.Manager
	orch      *replication.Orchestrator
	logger    *logging.Logger
	metrics   *metricsCollector

	engine *gin.Engine
	http   *http.Server
}

// New constructs a Server over its dependencies. Call Router to obtain
// the gin.Engine for tests, or Start to actually listen.
func New(cfg *config.Config, registry *cluster.Registry, versions *version.Store, chunks *chunkstore.Store, clocks *vclock.Manager, eventsMgr *events.Manager, orch *replication.Orchestrator) *Server {
	if cfg.LogJSON {
		gin.DisableConsoleColor()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:       cfg,
		registry:  registry,
		versions:  versions,
		chunks:    chunks,
		clocks:    clocks,
		eventsMgr: eventsMgr,
		orch:      orch,
		logger:    logging.NewLogger("server"),
		metrics:   newMetricsCollector(),
	}

	s.metrics.watch(eventsMgr)

	engine := gin.New()
	engine.Use(s.requestLogger(), gin.Recovery())
	s.routes(engine)
	s.engine = engine

	return s
}

// Router returns the underlying gin.Engine, for httptest-driven handler
// tests that never open a real socket.
func (s *Server) Router() *gin.Engine {
	return s.engine
}

func (s *Server) routes(r *gin.Engine) {
	r.POST("/register", s.handleRegister)
	r.GET("/nodes", s.handleListNodes)
	r.DELETE("/nodes/:id", s.handleRemoveNode)

	r.GET("/files", s.handleListFiles)
	r.GET("/files/:id", s.handleGetFile)
	r.GET("/files/:id/chunks", s.handleFileChunks)
	r.POST("/files/upload", s.handleUpload)
	r.POST("/files/:id/delta", s.handleSubmitDelta)
	r.GET("/files/:id/history", s.handleFileHistory)
	r.POST("/files/:id/restore", s.handleRestore)
	r.GET("/files/:id/content", s.handleFileContent)

	r.GET("/conflicts", s.handleListConflicts)
	r.POST("/conflicts/:id/resolve", s.handleResolveConflict)

	r.GET("/events", s.handleEvents)
	r.GET("/events/export", s.handleEventsExport)
	r.GET("/causal-order", s.handleCausalOrder)
	r.GET("/vector-clocks", s.handleVectorClocks)

	r.GET("/metrics", s.handleMetrics)
	r.GET("/delta-metrics", s.handleDeltaMetrics)

	r.GET("/ws", s.handleWebSocket)
}

// requestLogger mirrors the teacher's leveled access logging, but
// through internal/logging instead of a bespoke middleware.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// Start begins listening on cfg.HTTPAddr. It blocks until the server
// stops or fails; callers typically run it in its own goroutine.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}
	s.logger.Info("http server listening", "addr", s.cfg.HTTPAddr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// errJSON renders the coordinator's structured error taxonomy as the
// response body, mapping its Kind to an HTTP status.
func errJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"error":   kindOf(err),
		"message": err.Error(),
	})
}
