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
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"syncd/internal/chunkstore"
	"syncd/internal/cluster"
	"syncd/internal/compression"
	"syncd/internal/delta"
	"syncd/internal/events"
	"syncd/internal/metadata"
	"syncd/internal/vclock"
	"syncd/internal/version"
)

// newLoopbackReceiver starts a Receiver on an ephemeral loopback port and
// returns a *cluster.Node a TCPTransport can dial to reach it.
func newLoopbackReceiver(t *testing.T, compressor *compression.Compressor) (*Receiver, *cluster.Node, *version.Store, *chunkstore.Store) {
	t.Helper()

	clocks := vclock.NewManager()
	chunks := chunkstore.New()
	versions := version.New(clocks, chunks)
	eventsMgr := events.NewManager(metadata.NewMemoryEngine(), events.Config{
		BufferSize: 16, FlushInterval: time.Second, SubscriberBuffer: 4,
	})
	t.Cleanup(eventsMgr.Stop)

	recv := NewReceiver("target-1", chunks, versions, clocks, eventsMgr)
	if compressor != nil {
		recv.WithCompression(compressor)
	}
	if err := recv.Listen("127.0.0.1:0", nil); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go recv.Serve()
	t.Cleanup(func() { recv.Close() })

	addr := recv.listener.Addr().(*net.TCPAddr)
	node := &cluster.Node{ID: "target-1", Address: "127.0.0.1", Port: addr.Port}
	return recv, node, versions, chunks
}

func TestTCPTransportSendChunkAndFinalize(t *testing.T) {
	compressCfg := compression.DefaultConfig()
	compressCfg.Algorithm = compression.AlgorithmGzip
	compressCfg.MinSize = 1
	compressor := compression.NewCompressor(compressCfg)

	_, node, recvVersions, recvChunks := newLoopbackReceiver(t, compressor)

	transport := NewTCPTransport("source-1", nil).WithCompression(compressor)
	t.Cleanup(func() { transport.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	content := bytes.Repeat([]byte("replicated content body "), 64)
	hash := chunkstore.Hash(content)

	if err := transport.SendChunk(ctx, node, hash, content); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}

	if !recvChunks.Has(hash) {
		t.Fatalf("receiver did not store chunk %s", hash)
	}
	got, err := recvChunks.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("chunk body mismatch after compressed round trip")
	}

	clock := vclock.VectorClock{"source-1": 1}
	chunkList := []delta.ChunkSignature{{Index: 0, Offset: 0, Size: int64(len(content)), Hash: hash}}

	if err := transport.Finalize(ctx, node, SyncResult{
		FileID:       "file-1",
		VersionID:    "v-source-1",
		SourceNodeID: "source-1",
		ContentHash:  chunkstore.Hash(content),
		ChunkList:    chunkList,
		Clock:        clock,
		BytesSaved:   0,
	}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// handleSyncComplete runs on its own goroutine inside the receiver's
	// accept loop; give it a moment to apply the version.
	deadline := time.Now().Add(2 * time.Second)
	var heads []*version.FileVersion
	for time.Now().Before(deadline) {
		heads, err = recvVersions.Head("file-1")
		if err == nil && len(heads) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(heads) != 1 {
		t.Fatalf("expected one head version on the receiver, got %d (err=%v)", len(heads), err)
	}
	if heads[0].CreatedByNode != "source-1" {
		t.Errorf("CreatedByNode = %q, want source-1", heads[0].CreatedByNode)
	}
	if heads[0].Clock.Get("source-1") != 1 {
		t.Errorf("merged clock missing source-1 tick: %+v", heads[0].Clock)
	}
}
