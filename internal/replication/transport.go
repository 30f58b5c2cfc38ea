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
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"syncd/internal/cluster"
	"syncd/internal/compression"
	"syncd/internal/delta"
	syncderrors "syncd/internal/errors"
	"syncd/internal/protocol"
	"syncd/internal/vclock"
)

// SyncResult carries everything a target needs to apply a completed
// replication session locally: the full ordered chunk list so content
// already held under those hashes can be reassembled without a second
// transfer, and the originator's vector clock for a causal merge.
type SyncResult struct {
	FileID       string
	VersionID    string
	SourceNodeID string
	ContentHash  string
	ChunkList    []delta.ChunkSignature
	Clock        vclock.VectorClock
	BytesSaved   int64
}

// Transport carries the wire steps of a replication session to a target
// node. Orchestrator is transport-agnostic so tests can substitute a fake
// that never touches the network.
type Transport interface {
	// RequestSignature asks target what base signature it holds for
	// fileID, so the orchestrator can compute a minimal delta.
	RequestSignature(ctx context.Context, target *cluster.Node, fileID string) (*protocol.DeltaResponseMessage, error)
	// SendChunk transmits one chunk body that target does not already hold.
	SendChunk(ctx context.Context, target *cluster.Node, hash string, data []byte) error
	// Finalize tells target the session's delta has been fully
	// transmitted and the new version can be considered applied.
	Finalize(ctx context.Context, target *cluster.Node, result SyncResult) error
	// Fail best-effort notifies target that the session was abandoned.
	// Errors from Fail are never fatal to the orchestrator, which has
	// already decided the session failed for its own reasons.
	Fail(ctx context.Context, target *cluster.Node, fileID, code, message string)
}

// TCPTransport is the real Transport: one multiplexed TCP connection per
// target node, reused across sessions. Each Transport call opens its own
// stream on that connection and closes it when the call returns.
type TCPTransport struct {
	sourceNodeID string
	capabilities []string
	tlsConfig    *tls.Config
	compressor   *compression.Compressor

	mu    sync.Mutex
	conns map[string]*protocol.MultiplexConn
}

// NewTCPTransport returns a Transport that dials targets lazily and
// caches one connection per node for the lifetime of the transport.
// Connections are plain TCP until WithTLS is called.
func NewTCPTransport(sourceNodeID string, capabilities []string) *TCPTransport {
	return &TCPTransport{
		sourceNodeID: sourceNodeID,
		capabilities: capabilities,
		conns:        make(map[string]*protocol.MultiplexConn),
	}
}

// WithTLS arms the transport to dial every future connection over TLS
// using cfg. Connections already cached are unaffected; call before the
// transport handles its first session.
func (t *TCPTransport) WithTLS(cfg *tls.Config) *TCPTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tlsConfig = cfg
	return t
}

// WithCompression arms the transport to compress chunk bodies before
// sending them, using compressor's configured algorithm. Chunks shorter
// than the compressor's MinSize are sent uncompressed. The receiving end
// must be configured with a compressor using the same algorithm to
// decompress them; flags alone identify a payload as compressed, not
// which algorithm was used.
func (t *TCPTransport) WithCompression(compressor *compression.Compressor) *TCPTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.compressor = compressor
	return t
}

// Close tears down every cached connection.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for id, c := range t.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.conns, id)
	}
	return firstErr
}

func (t *TCPTransport) connFor(target *cluster.Node) (*protocol.MultiplexConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.conns[target.ID]; ok {
		return c, nil
	}

	addr := fmt.Sprintf("%s:%d", target.Address, target.Port)
	var conn net.Conn
	var err error
	if t.tlsConfig != nil {
		conn, err = tls.Dial("tcp", addr, t.tlsConfig)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, syncderrors.TransportError(err).WithDetail(addr)
	}

	mc := protocol.NewMultiplexConn(conn, true)
	t.conns[target.ID] = mc
	return mc, nil
}

// invalidate drops a cached connection, e.g. after a transport error, so
// the next session dials fresh.
func (t *TCPTransport) invalidate(targetID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[targetID]; ok {
		c.Close()
		delete(t.conns, targetID)
	}
}

func (t *TCPTransport) openStream(target *cluster.Node) (*protocol.Stream, error) {
	mc, err := t.connFor(target)
	if err != nil {
		return nil, err
	}
	stream, err := mc.OpenStream()
	if err != nil {
		t.invalidate(target.ID)
		return nil, syncderrors.TransportError(err)
	}
	return stream, nil
}

type readResult struct {
	msgType protocol.MessageType
	payload []byte
	err     error
}

func readWithContext(ctx context.Context, stream *protocol.Stream) (protocol.MessageType, []byte, error) {
	ch := make(chan readResult, 1)
	go func() {
		t, p, err := stream.ReadMessage()
		ch <- readResult{t, p, err}
	}()
	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case r := <-ch:
		return r.msgType, r.payload, r.err
	}
}

// RequestSignature implements Transport.
func (t *TCPTransport) RequestSignature(ctx context.Context, target *cluster.Node, fileID string) (*protocol.DeltaResponseMessage, error) {
	stream, err := t.openStream(target)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	hs := &protocol.HandshakeMessage{NodeID: t.sourceNodeID, Capabilities: t.capabilities}
	hsBytes, err := hs.Encode()
	if err != nil {
		return nil, syncderrors.TransportError(err)
	}
	if err := stream.WriteMessage(protocol.MsgHandshake, hsBytes); err != nil {
		t.invalidate(target.ID)
		return nil, syncderrors.TransportError(err)
	}

	req := &protocol.DeltaRequestMessage{FileID: fileID}
	reqBytes, err := req.Encode()
	if err != nil {
		return nil, syncderrors.TransportError(err)
	}
	if err := stream.WriteMessage(protocol.MsgDeltaRequest, reqBytes); err != nil {
		t.invalidate(target.ID)
		return nil, syncderrors.TransportError(err)
	}

	msgType, payload, err := readWithContext(ctx, stream)
	if err != nil {
		t.invalidate(target.ID)
		return nil, syncderrors.TransportError(err)
	}
	if msgType != protocol.MsgDeltaResponse {
		return nil, syncderrors.InvalidRequest(fmt.Sprintf("expected delta response, got message type %x", msgType))
	}
	return protocol.DecodeDeltaResponseMessage(payload)
}

// SendChunk implements Transport. Chunk bodies above the transport's
// compressor's MinSize are compressed before sending and flagged
// FlagCompressed; smaller chunks go over the wire as-is.
func (t *TCPTransport) SendChunk(ctx context.Context, target *cluster.Node, hash string, data []byte) error {
	stream, err := t.openStream(target)
	if err != nil {
		return err
	}
	defer stream.Close()

	body := data
	flags := protocol.FlagNone
	if t.compressor != nil {
		compressed, cerr := t.compressor.Compress(data)
		switch {
		case cerr == nil:
			body = compressed
			flags = protocol.FlagCompressed
		case cerr == compression.ErrDataTooSmall:
			// Fall through uncompressed.
		default:
			return syncderrors.TransportError(cerr)
		}
	}

	msg := &protocol.ChunkDataMessage{Hash: hash, Bytes: body}
	encoded, err := msg.Encode()
	if err != nil {
		return syncderrors.TransportError(err)
	}
	if err := stream.WriteMessageFlags(protocol.MsgChunkData, flags, encoded); err != nil {
		t.invalidate(target.ID)
		return syncderrors.TransportError(err)
	}

	msgType, payload, err := readWithContext(ctx, stream)
	if err != nil {
		t.invalidate(target.ID)
		return syncderrors.TransportError(err)
	}
	if msgType != protocol.MsgChunkAck {
		return syncderrors.InvalidRequest(fmt.Sprintf("expected chunk ack, got message type %x", msgType))
	}
	ack, err := protocol.DecodeChunkAckMessage(payload)
	if err != nil {
		return err
	}
	if !ack.Success {
		return syncderrors.TransportError(fmt.Errorf("target rejected chunk %s", hash))
	}
	return nil
}

// Finalize implements Transport.
func (t *TCPTransport) Finalize(ctx context.Context, target *cluster.Node, result SyncResult) error {
	stream, err := t.openStream(target)
	if err != nil {
		return err
	}
	defer stream.Close()

	refs := make([]protocol.ChunkRef, len(result.ChunkList))
	for i, c := range result.ChunkList {
		refs[i] = protocol.ChunkRef{Index: c.Index, Offset: c.Offset, Size: c.Size, Hash: c.Hash}
	}

	msg := &protocol.SyncCompleteMessage{
		FileID:       result.FileID,
		VersionID:    result.VersionID,
		BytesSaved:   result.BytesSaved,
		ContentHash:  result.ContentHash,
		SourceNodeID: result.SourceNodeID,
		ChunkList:    refs,
		Clock:        map[string]uint64(result.Clock),
	}
	encoded, err := msg.Encode()
	if err != nil {
		return syncderrors.TransportError(err)
	}
	if err := stream.WriteMessage(protocol.MsgSyncComplete, encoded); err != nil {
		t.invalidate(target.ID)
		return syncderrors.TransportError(err)
	}
	return nil
}

// Fail implements Transport.
func (t *TCPTransport) Fail(ctx context.Context, target *cluster.Node, fileID, code, message string) {
	stream, err := t.openStream(target)
	if err != nil {
		return
	}
	defer stream.Close()

	msg := &protocol.SyncErrorMessage{Code: code, Message: message}
	encoded, err := msg.Encode()
	if err != nil {
		return
	}
	_ = stream.WriteMessage(protocol.MsgSyncError, encoded)
}
