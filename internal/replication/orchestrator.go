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

/*
Package replication drives fan-out of newly created file versions from
the coordinator to every other online node. A Session tracks one
(file, target) replication attempt through Pending -> InProgress ->
{Completed, Failed}; the Orchestrator enforces per-target and
coordinator-wide concurrency caps, serializes sessions that share a
(file, target) pair, and reacts to a target going offline mid-transfer
by failing its in-flight sessions rather than blocking indefinitely.
*/
package replication

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"syncd/internal/chunkstore"
	"syncd/internal/cluster"
	"syncd/internal/config"
	"syncd/internal/delta"
	syncderrors "syncd/internal/errors"
	"syncd/internal/events"
	"syncd/internal/logging"
	"syncd/internal/version"
)

var progressMilestones = []int{25, 50, 75, 100}

// ConsistencyLevel names the acknowledgement guarantee an operator asked
// for. It is advisory bookkeeping only: every Session still fans out to
// every online peer and finishes Completed once its own transfer is
// acknowledged — there is no quorum wait anywhere in this package. It
// exists so a future stronger-consistency mode (wait for N peers before
// reporting the write durable to the uploader) has a documented home.
type ConsistencyLevel int

const (
	ConsistencyEventual ConsistencyLevel = iota
	ConsistencyQuorum
	ConsistencyStrong
)

func (c ConsistencyLevel) String() string {
	switch c {
	case ConsistencyEventual:
		return "EVENTUAL"
	case ConsistencyQuorum:
		return "QUORUM"
	case ConsistencyStrong:
		return "STRONG"
	default:
		return "UNKNOWN"
	}
}

// Orchestrator owns every replication Session and the backpressure and
// serialization state that governs how sessions run.
type Orchestrator struct {
	cfg       *config.Config
	versions  *version.Store
	chunks    *chunkstore.Store
	registry  *cluster.Registry
	eventsMgr *events.Manager
	transport Transport
	logger    *logging.Logger

	// Consistency is advisory only; see ConsistencyLevel.
	Consistency ConsistencyLevel

	globalSem chan struct{}

	targetSemMu sync.Mutex
	targetSem   map[string]chan struct{}

	pairMu sync.Mutex
	pairs  map[string]*sync.Mutex

	baseMu     sync.Mutex
	targetBase map[string]map[string][]delta.ChunkSignature // fileID -> targetID -> last-synced signature

	sessionsMu sync.Mutex
	sessions   map[string]*Session
	byTarget   map[string][]*Session // targetID -> in-flight sessions, for offline cancellation

	wg sync.WaitGroup
}

// NewOrchestrator wires an Orchestrator over its dependencies and
// subscribes to registry offline notifications.
func NewOrchestrator(cfg *config.Config, versions *version.Store, chunks *chunkstore.Store, registry *cluster.Registry, eventsMgr *events.Manager, transport Transport) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		versions:    versions,
		chunks:      chunks,
		registry:    registry,
		eventsMgr:   eventsMgr,
		transport:   transport,
		logger:      logging.NewLogger("replication"),
		Consistency: ConsistencyQuorum,
		globalSem:   make(chan struct{}, cfg.MaxParallelSessionsTotal),
		targetSem:   make(map[string]chan struct{}),
		pairs:       make(map[string]*sync.Mutex),
		targetBase:  make(map[string]map[string][]delta.ChunkSignature),
		sessions:    make(map[string]*Session),
		byTarget:    make(map[string][]*Session),
	}
	registry.OnNodeOffline(o.handleNodeOffline)
	registry.OnNodeRemove(o.handleNodeOffline)
	return o
}

// InFlightSessions reports how many sessions are currently in flight
// (queued or running) across every target, for the coordinator's
// aggregate metrics endpoint.
func (o *Orchestrator) InFlightSessions() int {
	o.sessionsMu.Lock()
	defer o.sessionsMu.Unlock()
	n := 0
	for _, sessions := range o.byTarget {
		n += len(sessions)
	}
	return n
}

func (o *Orchestrator) targetSemaphore(targetID string) chan struct{} {
	o.targetSemMu.Lock()
	defer o.targetSemMu.Unlock()
	sem, ok := o.targetSem[targetID]
	if !ok {
		sem = make(chan struct{}, o.cfg.MaxParallelSessionsPerTarget)
		o.targetSem[targetID] = sem
	}
	return sem
}

func (o *Orchestrator) pairMutex(fileID, targetID string) *sync.Mutex {
	key := targetKey(fileID, targetID)
	o.pairMu.Lock()
	defer o.pairMu.Unlock()
	m, ok := o.pairs[key]
	if !ok {
		m = &sync.Mutex{}
		o.pairs[key] = m
	}
	return m
}

func (o *Orchestrator) baseSignature(fileID, targetID string) []delta.ChunkSignature {
	o.baseMu.Lock()
	defer o.baseMu.Unlock()
	byTarget, ok := o.targetBase[fileID]
	if !ok {
		return nil
	}
	return byTarget[targetID]
}

func (o *Orchestrator) setBaseSignature(fileID, targetID string, sig []delta.ChunkSignature) {
	o.baseMu.Lock()
	defer o.baseMu.Unlock()
	byTarget, ok := o.targetBase[fileID]
	if !ok {
		byTarget = make(map[string][]delta.ChunkSignature)
		o.targetBase[fileID] = byTarget
	}
	byTarget[targetID] = sig
}

// FanOut starts one Session per node currently online other than
// sourceNodeID, per spec's replication fan-out step. It returns
// immediately with the created (Pending) Sessions; each runs to
// completion asynchronously.
func (o *Orchestrator) FanOut(fileID, versionID, sourceNodeID string) []*Session {
	var sessions []*Session
	for _, n := range o.registry.Online() {
		if n.ID == sourceNodeID {
			continue
		}
		sessions = append(sessions, o.Replicate(fileID, versionID, n.ID, sourceNodeID))
	}
	return sessions
}

// Replicate creates a new Session replicating versionID of fileID from
// sourceNodeID to targetID and runs it asynchronously. It is not an
// error to call this again for the same (fileID, targetID) while a
// previous session is still running: the new session queues behind the
// pair's serialization lock, exactly like a deliberate re-replication
// after a failure.
func (o *Orchestrator) Replicate(fileID, versionID, targetID, sourceNodeID string) *Session {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.SessionDeadline)
	sess := &Session{
		SessionID: uuid.NewString(),
		FileID:    fileID,
		VersionID: versionID,
		TargetID:  targetID,
		Source:    sourceNodeID,
		state:     StatePending,
		cancel:    cancel,
	}

	o.sessionsMu.Lock()
	o.sessions[sess.SessionID] = sess
	o.byTarget[targetID] = append(o.byTarget[targetID], sess)
	o.sessionsMu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(ctx, sess)
		o.forget(sess)
	}()

	return sess
}

func (o *Orchestrator) forget(sess *Session) {
	o.sessionsMu.Lock()
	defer o.sessionsMu.Unlock()
	list := o.byTarget[sess.TargetID]
	for i, s := range list {
		if s == sess {
			o.byTarget[sess.TargetID] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Session looks up a session by id.
func (o *Orchestrator) Session(sessionID string) (*Session, bool) {
	o.sessionsMu.Lock()
	defer o.sessionsMu.Unlock()
	s, ok := o.sessions[sessionID]
	return s, ok
}

// Wait blocks until every session started so far has reached a terminal
// state. Intended for tests and graceful shutdown, not the hot path.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, sess *Session) {
	pairLock := o.pairMutex(sess.FileID, sess.TargetID)
	pairLock.Lock()
	defer pairLock.Unlock()

	globalSem := o.globalSem
	targetSem := o.targetSemaphore(sess.TargetID)

	select {
	case globalSem <- struct{}{}:
	case <-ctx.Done():
		sess.fail("session cancelled while queued for a global replication slot")
		return
	}
	defer func() { <-globalSem }()

	select {
	case targetSem <- struct{}{}:
	case <-ctx.Done():
		sess.fail("session cancelled while queued for a target replication slot")
		return
	}
	defer func() { <-targetSem }()

	sess.setState(StateInProgress)
	o.logger.Debug("replication session starting", "session_id", sess.SessionID,
		"file_id", sess.FileID, "target_id", sess.TargetID, "consistency", o.Consistency.String())

	target, err := o.registry.Get(sess.TargetID)
	if err != nil || target.State != cluster.NodeStateOnline {
		o.failSession(ctx, sess, syncderrors.TargetOffline(sess.TargetID).Error())
		return
	}

	content, err := o.versions.Content(sess.VersionID)
	if err != nil {
		o.failSession(ctx, sess, fmt.Sprintf("reading version content: %v", err))
		return
	}

	resp, err := o.transport.RequestSignature(ctx, target, sess.FileID)
	if err != nil {
		o.failSession(ctx, sess, fmt.Sprintf("requesting target signature: %v", err))
		return
	}

	baseSig := o.baseSignature(sess.FileID, sess.TargetID)
	if !resp.HasExistingVersion {
		baseSig = nil
	}

	d := delta.Compute(baseSig, content, o.cfg.ChunkSize)
	metrics := delta.ComputeMetrics(d)

	inserts := 0
	for _, op := range d.Operations {
		if op.Kind == delta.OpInsert {
			inserts++
		}
	}

	milestoneIdx := 0
	sess.setProgress(0)
	o.emitStarted(sess)
	if inserts == 0 {
		o.emitProgress(sess, 100)
		milestoneIdx = len(progressMilestones)
	}

	sent := 0
	for _, op := range d.Operations {
		if op.Kind != delta.OpInsert {
			continue
		}
		select {
		case <-ctx.Done():
			o.failSession(ctx, sess, "session deadline exceeded while transferring chunks")
			return
		default:
		}

		if err := o.transport.SendChunk(ctx, target, op.Hash, op.Bytes); err != nil {
			o.failSession(ctx, sess, fmt.Sprintf("sending chunk %s: %v", op.Hash, err))
			return
		}

		sent++
		pct := sent * 100 / inserts
		highest := -1
		for milestoneIdx < len(progressMilestones) && pct >= progressMilestones[milestoneIdx] {
			highest = progressMilestones[milestoneIdx]
			milestoneIdx++
		}
		if highest >= 0 {
			o.emitProgress(sess, highest)
		}
	}

	v, err := o.versions.Version(sess.VersionID)
	if err != nil {
		o.failSession(ctx, sess, fmt.Sprintf("reading version for finalize: %v", err))
		return
	}
	fullSig := delta.Signature(content, o.cfg.ChunkSize)

	if err := o.transport.Finalize(ctx, target, SyncResult{
		FileID:       sess.FileID,
		VersionID:    sess.VersionID,
		SourceNodeID: sess.Source,
		ContentHash:  v.ContentHash,
		ChunkList:    fullSig,
		Clock:        v.Clock,
		BytesSaved:   metrics.BytesSaved,
	}); err != nil {
		o.failSession(ctx, sess, fmt.Sprintf("finalizing session: %v", err))
		return
	}

	o.setBaseSignature(sess.FileID, sess.TargetID, fullSig)
	sess.setProgress(100)
	sess.setState(StateCompleted)

	o.eventsMgr.Append(events.Event{
		NodeID:    sess.TargetID,
		FileID:    sess.FileID,
		EventType: events.TypeSyncCompleted,
		Data: map[string]any{
			"session_id":    sess.SessionID,
			"version_id":    sess.VersionID,
			"bytes_saved":   metrics.BytesSaved,
			"chunks_copied": metrics.ChunksCopied,
			"total_size":    d.TotalSize,
		},
	})
}

// emitStarted appends the session-opened progress event, spec's
// `action="sync_started", progress=0, source=S, target=T`.
func (o *Orchestrator) emitStarted(sess *Session) {
	o.eventsMgr.Append(events.Event{
		NodeID:    sess.TargetID,
		FileID:    sess.FileID,
		EventType: events.TypeFileSyncProgress,
		Data: map[string]any{
			"session_id": sess.SessionID,
			"version_id": sess.VersionID,
			"action":     "sync_started",
			"progress":   0,
			"source":     sess.Source,
			"target":     sess.TargetID,
		},
	})
}

func (o *Orchestrator) emitProgress(sess *Session, pct int) {
	sess.setProgress(pct)
	o.eventsMgr.Append(events.Event{
		NodeID:    sess.TargetID,
		FileID:    sess.FileID,
		EventType: events.TypeFileSyncProgress,
		Data: map[string]any{
			"session_id": sess.SessionID,
			"version_id": sess.VersionID,
			"action":     "sync_progress",
			"progress":   pct,
			"source":     sess.Source,
			"target":     sess.TargetID,
		},
	})
}

func (o *Orchestrator) failSession(ctx context.Context, sess *Session, reason string) {
	sess.fail(reason)
	if target, err := o.registry.Get(sess.TargetID); err == nil {
		o.transport.Fail(ctx, target, sess.FileID, "sync_failed", reason)
	}
	o.eventsMgr.Append(events.Event{
		NodeID:    sess.TargetID,
		FileID:    sess.FileID,
		EventType: events.TypeSyncError,
		Data: map[string]any{
			"session_id": sess.SessionID,
			"version_id": sess.VersionID,
			"reason":     reason,
		},
	})
}

// handleNodeOffline cancels every in-flight session targeting node,
// failing them promptly rather than leaving them blocked on a peer that
// will never respond again.
func (o *Orchestrator) handleNodeOffline(node *cluster.Node) {
	o.sessionsMu.Lock()
	sessions := append([]*Session(nil), o.byTarget[node.ID]...)
	o.sessionsMu.Unlock()

	for _, sess := range sessions {
		if sess.State() == StateInProgress || sess.State() == StatePending {
			sess.cancel()
		}
	}
}
