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

package replication

import (
	"crypto/tls"
	"net"
	"time"

	"syncd/internal/chunkstore"
	"syncd/internal/compression"
	"syncd/internal/delta"
	"syncd/internal/events"
	"syncd/internal/logging"
	"syncd/internal/protocol"
	"syncd/internal/vclock"
	"syncd/internal/version"
)

// Receiver is the accept side of the replication channel: it listens on
// the coordinator's replication port and applies incoming pushes from
// peer coordinators into this node's own chunk store, version store and
// vector clock, the same way a local write would. Every syncd-coordinatord
// process runs both a Transport (to push its own versions out) and a
// Receiver (to accept pushes from others).
type Receiver struct {
	nodeID     string
	chunks     *chunkstore.Store
	versions   *version.Store
	clocks     *vclock.Manager
	eventsMgr  *events.Manager
	compressor *compression.Compressor
	log        *logging.Logger

	listener net.Listener
	stopCh   chan struct{}
}

// NewReceiver returns a Receiver that applies incoming replication
// sessions under nodeID's identity.
func NewReceiver(nodeID string, chunks *chunkstore.Store, versions *version.Store, clocks *vclock.Manager, eventsMgr *events.Manager) *Receiver {
	return &Receiver{
		nodeID:    nodeID,
		chunks:    chunks,
		versions:  versions,
		clocks:    clocks,
		eventsMgr: eventsMgr,
		log:       logging.NewLogger("replication-receiver"),
		stopCh:    make(chan struct{}),
	}
}

// WithCompression arms the receiver to decompress chunk bodies flagged
// FlagCompressed using compressor's algorithm. It must agree with
// whatever TCPTransport.WithCompression the sending side was configured
// with.
func (r *Receiver) WithCompression(compressor *compression.Compressor) *Receiver {
	r.compressor = compressor
	return r
}

// Listen binds addr, optionally over TLS when tlsConfig is non-nil.
func (r *Receiver) Listen(addr string, tlsConfig *tls.Config) error {
	var ln net.Listener
	var err error
	if tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return err
	}
	r.listener = ln
	return nil
}

// Serve accepts connections until Close is called, handling each on its
// own goroutine. Call after Listen, typically in its own goroutine.
func (r *Receiver) Serve() {
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		if tcpLn, ok := r.listener.(*net.TCPListener); ok {
			tcpLn.SetDeadline(time.Now().Add(time.Second))
		}
		conn, err := r.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-r.stopCh:
				return
			default:
				r.log.Warn("accept failed", "error", err)
				continue
			}
		}
		go r.handleConn(conn)
	}
}

// Close stops Serve and closes the listener. In-flight sessions are left
// to finish or time out on their own.
func (r *Receiver) Close() error {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	if r.listener != nil {
		return r.listener.Close()
	}
	return nil
}

func (r *Receiver) handleConn(conn net.Conn) {
	mc := protocol.NewMultiplexConn(conn, false)
	defer mc.Close()

	for {
		stream, err := mc.AcceptStream()
		if err != nil {
			return
		}
		go r.handleStream(stream)
	}
}

// handleStream dispatches every frame that arrives on one logical stream
// opened by a peer: a signature request (possibly preceded by a
// handshake), chunk bodies, and the final sync-complete or sync-error
// message that closes the session.
func (r *Receiver) handleStream(stream *protocol.Stream) {
	defer stream.Close()

	for {
		msgType, flags, payload, err := stream.ReadMessageFlags()
		if err != nil {
			return
		}

		switch msgType {
		case protocol.MsgHandshake:
			// Peer identity isn't tracked per stream; nothing to ack.
			continue

		case protocol.MsgDeltaRequest:
			r.handleDeltaRequest(stream, payload)

		case protocol.MsgChunkData:
			r.handleChunkData(stream, flags, payload)

		case protocol.MsgSyncComplete:
			r.handleSyncComplete(payload)
			return

		case protocol.MsgSyncError:
			r.handleSyncError(payload)
			return

		default:
			// Unrecognized message type on an otherwise open stream: ignore
			// and keep reading, the sender drives the session to its close.
		}
	}
}

func (r *Receiver) handleDeltaRequest(stream *protocol.Stream, payload []byte) {
	req, err := protocol.DecodeDeltaRequestMessage(payload)
	if err != nil {
		return
	}

	resp := &protocol.DeltaResponseMessage{FileID: req.FileID}
	if heads, err := r.versions.Head(req.FileID); err == nil && len(heads) > 0 {
		resp.BaseSignatureDigest = heads[0].ContentHash
		resp.HasExistingVersion = true
	}

	encoded, err := resp.Encode()
	if err != nil {
		return
	}
	_ = stream.WriteMessage(protocol.MsgDeltaResponse, encoded)
}

func (r *Receiver) handleChunkData(stream *protocol.Stream, flags protocol.MessageFlag, payload []byte) {
	msg, err := protocol.DecodeChunkDataMessage(payload)
	if err != nil {
		r.ackChunk(stream, "", false)
		return
	}

	body := msg.Bytes
	if flags&protocol.FlagCompressed != 0 && r.compressor != nil {
		decompressed, err := r.compressor.Decompress(body, r.compressor.Algorithm())
		if err != nil {
			r.ackChunk(stream, msg.Hash, false)
			return
		}
		body = decompressed
	}

	got := r.chunks.Put(body)
	r.ackChunk(stream, msg.Hash, got == msg.Hash)
}

func (r *Receiver) ackChunk(stream *protocol.Stream, hash string, success bool) {
	ack := &protocol.ChunkAckMessage{Hash: hash, Success: success}
	encoded, err := ack.Encode()
	if err != nil {
		return
	}
	_ = stream.WriteMessage(protocol.MsgChunkAck, encoded)
}

// handleSyncComplete applies an incoming version: it merges the sender's
// vector clock into this node's, builds the chunk list the sender
// declared (every chunk hash must already be held locally, either
// received as ChunkData this session or kept from an earlier sync of
// overlapping content), and supersedes whatever head(s) this node
// currently holds for the file. Superseding the local head rather than
// keeping it as a second parent avoids both an unbounded head buildup
// and a spurious conflict against a version the incoming one causally
// follows.
func (r *Receiver) handleSyncComplete(payload []byte) {
	msg, err := protocol.DecodeSyncCompleteMessage(payload)
	if err != nil {
		r.log.Warn("malformed sync-complete message", "error", err)
		return
	}

	chunkList := make([]delta.ChunkSignature, len(msg.ChunkList))
	for i, c := range msg.ChunkList {
		chunkList[i] = delta.ChunkSignature{Index: c.Index, Offset: c.Offset, Size: c.Size, Hash: c.Hash}
	}

	clock := r.clocks.Merge(r.nodeID, vclock.VectorClock(msg.Clock))

	var parentIDs []string
	if heads, err := r.versions.Head(msg.FileID); err == nil {
		for _, h := range heads {
			parentIDs = append(parentIDs, h.VersionID)
		}
	}

	v, conflict, err := r.versions.CreateVersion(msg.FileID, parentIDs, clock, chunkList, msg.SourceNodeID)
	if err != nil {
		r.log.Warn("rejecting replicated version", "file_id", msg.FileID, "source", msg.SourceNodeID, "error", err)
		return
	}

	r.eventsMgr.Append(events.Event{
		NodeID:    r.nodeID,
		FileID:    msg.FileID,
		EventType: events.TypeFileModified,
		Clock:     clock,
		Data: map[string]any{
			"version_id":  v.VersionID,
			"source_node": msg.SourceNodeID,
			"replicated":  true,
			"bytes_saved": msg.BytesSaved,
		},
	})

	if conflict != nil {
		r.eventsMgr.Append(events.Event{
			NodeID:    r.nodeID,
			FileID:    msg.FileID,
			EventType: events.TypeConflictDetected,
			Clock:     clock,
			Data: map[string]any{
				"conflict_id": conflict.ConflictID,
				"version_a":   conflict.VersionA,
				"version_b":   conflict.VersionB,
			},
		})
	}
}

func (r *Receiver) handleSyncError(payload []byte) {
	msg, err := protocol.DecodeSyncErrorMessage(payload)
	if err != nil {
		return
	}
	r.log.Warn("peer reported sync error", "code", msg.Code, "message", msg.Message)
}
