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
Package protocol provides connection multiplexing for syncd's
replication channel.

Multiplexing Overview:
======================

This module implements connection multiplexing to allow multiple logical
connections (streams) over a single TCP connection:

- Reduces connection overhead
- Enables concurrent requests on one connection

Streams have no per-stream flow control and no priorities: frames are
written in the order callers send them.

Frame Format:
=============

Multiplexed frames add a stream ID to the standard protocol:

  +--------+--------+--------+--------+--------+--------+--------+--------+...
  | Magic  | Version| MsgType| Flags  | StreamID (4B)   |    Length (4B)   | Payload...
  +--------+--------+--------+--------+--------+--------+--------+--------+...

Stream Lifecycle:
=================

1. Client opens stream with unique ID
2. Messages are tagged with stream ID
3. Server routes responses to correct stream
4. Either side can close stream
*/
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// Multiplexing constants
const (
	MultiplexHeaderSize = 12 // Magic + Version + Type + Flags + StreamID + Length
	MaxStreams          = 65536
)

// Stream states
const (
	StreamOpen uint32 = iota
	StreamHalfClosed
	StreamClosed
)

// Errors
var (
	ErrStreamClosed    = errors.New("stream is closed")
	ErrTooManyStreams  = errors.New("too many streams")
	ErrStreamNotFound  = errors.New("stream not found")
	ErrInvalidStreamID = errors.New("invalid stream ID")
)

// MultiplexFrame represents a multiplexed message frame
type MultiplexFrame struct {
	Header   Header
	StreamID uint32
	Payload  []byte
}

// Stream represents a logical stream within a multiplexed connection
type Stream struct {
	ID       uint32
	state    uint32
	recvChan chan *MultiplexFrame
	sendChan chan *MultiplexFrame
	mu       sync.Mutex
	conn     *MultiplexConn
}

// MultiplexConn manages a multiplexed connection
type MultiplexConn struct {
	conn       io.ReadWriteCloser
	mu         sync.RWMutex
	streams    map[uint32]*Stream
	nextID     uint32
	isClient   bool
	closed     atomic.Bool
	closeChan  chan struct{}
	acceptChan chan *Stream
	writeMu    sync.Mutex
	headerBuf  []byte
	bufferPool *BufferPool
}

// NewMultiplexConn creates a new multiplexed connection
func NewMultiplexConn(conn io.ReadWriteCloser, isClient bool) *MultiplexConn {
	mc := &MultiplexConn{
		conn:       conn,
		streams:    make(map[uint32]*Stream),
		isClient:   isClient,
		closeChan:  make(chan struct{}),
		acceptChan: make(chan *Stream, 64),
		headerBuf:  make([]byte, MultiplexHeaderSize),
		bufferPool: DefaultBufferPool,
	}

	// Client uses odd stream IDs, server uses even
	if isClient {
		mc.nextID = 1
	} else {
		mc.nextID = 2
	}

	// Start read loop
	go mc.readLoop()

	return mc
}

// OpenStream opens a new stream
func (mc *MultiplexConn) OpenStream() (*Stream, error) {
	if mc.closed.Load() {
		return nil, ErrStreamClosed
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.streams) >= MaxStreams {
		return nil, ErrTooManyStreams
	}

	streamID := mc.nextID
	mc.nextID += 2 // Increment by 2 to maintain odd/even

	stream := &Stream{
		ID:       streamID,
		state:    StreamOpen,
		recvChan: make(chan *MultiplexFrame, 64),
		sendChan: make(chan *MultiplexFrame, 64),
		conn:     mc,
	}

	mc.streams[streamID] = stream
	return stream, nil
}

// acceptStream registers a stream for a peer-initiated streamID and
// publishes it on acceptChan for a concurrent AcceptStream call to pick up.
// Only called from readLoop on the server side.
func (mc *MultiplexConn) acceptStream(streamID uint32) (*Stream, error) {
	mc.mu.Lock()
	if len(mc.streams) >= MaxStreams {
		mc.mu.Unlock()
		return nil, ErrTooManyStreams
	}
	stream := &Stream{
		ID:       streamID,
		state:    StreamOpen,
		recvChan: make(chan *MultiplexFrame, 64),
		sendChan: make(chan *MultiplexFrame, 64),
		conn:     mc,
	}
	mc.streams[streamID] = stream
	mc.mu.Unlock()

	select {
	case mc.acceptChan <- stream:
	case <-mc.closeChan:
		return nil, ErrStreamClosed
	default:
		// Backlog full: still register the stream so its frames aren't lost,
		// but nobody is waiting on AcceptStream right now.
	}
	return stream, nil
}

// AcceptStream blocks until a peer opens a new stream on this connection
// and returns it. Only meaningful on the server side (isClient == false).
func (mc *MultiplexConn) AcceptStream() (*Stream, error) {
	select {
	case stream, ok := <-mc.acceptChan:
		if !ok {
			return nil, ErrStreamClosed
		}
		return stream, nil
	case <-mc.closeChan:
		return nil, ErrStreamClosed
	}
}

// BufferPool recycles byte slices used for frame payloads so the
// multiplexer doesn't allocate on every read.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool returns a pool that hands out buffers of at least size bytes.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		},
	}
}

// Get returns a buffer of at least n bytes, growing the pooled slice if needed.
func (p *BufferPool) Get(n int) []byte {
	ptr := p.pool.Get().(*[]byte)
	buf := *ptr
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	return buf[:n]
}

// Put returns buf to the pool for reuse.
func (p *BufferPool) Put(buf []byte) {
	p.pool.Put(&buf)
}

// DefaultBufferPool is shared by MultiplexConns that don't supply their own.
var DefaultBufferPool = NewBufferPool(32 * 1024)

// readLoop continuously reads frames off the underlying connection and
// routes each to its stream's receive channel until the connection closes.
func (mc *MultiplexConn) readLoop() {
	defer mc.Close()

	for {
		frame, err := mc.readFrame()
		if err != nil {
			return
		}

		mc.mu.RLock()
		stream, ok := mc.streams[frame.StreamID]
		mc.mu.RUnlock()

		if !ok {
			if mc.isClient {
				// A client never accepts peer-initiated streams: drop the frame.
				continue
			}
			var acceptErr error
			stream, acceptErr = mc.acceptStream(frame.StreamID)
			if acceptErr != nil {
				continue
			}
		}

		select {
		case stream.recvChan <- frame:
		case <-mc.closeChan:
			return
		}

		if frame.Header.Type == MsgSyncComplete || frame.Header.Type == MsgSyncError {
			mc.closeStream(frame.StreamID)
		}
	}
}

// readFrame reads one multiplexed frame from the underlying connection.
func (mc *MultiplexConn) readFrame() (*MultiplexFrame, error) {
	header := make([]byte, MultiplexHeaderSize)
	if _, err := io.ReadFull(mc.conn, header); err != nil {
		return nil, err
	}

	h := Header{
		Magic:   header[0],
		Version: header[1],
		Type:    MessageType(header[2]),
		Flags:   MessageFlag(header[3]),
	}
	if h.Magic != MagicByte {
		return nil, ErrInvalidMagic
	}
	if h.Version != ProtocolVersion {
		return nil, ErrInvalidVersion
	}

	streamID := binary.BigEndian.Uint32(header[4:8])
	length := binary.BigEndian.Uint32(header[8:12])
	h.Length = length
	if length > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	var payload []byte
	if length > 0 {
		payload = mc.bufferPool.Get(int(length))
		if _, err := io.ReadFull(mc.conn, payload); err != nil {
			return nil, err
		}
	}

	return &MultiplexFrame{Header: h, StreamID: streamID, Payload: payload}, nil
}

// writeFrame serializes and writes a single multiplexed frame.
func (mc *MultiplexConn) writeFrame(streamID uint32, msgType MessageType, flags MessageFlag, payload []byte) error {
	mc.writeMu.Lock()
	defer mc.writeMu.Unlock()

	header := make([]byte, MultiplexHeaderSize)
	header[0] = MagicByte
	header[1] = ProtocolVersion
	header[2] = byte(msgType)
	header[3] = byte(flags)
	binary.BigEndian.PutUint32(header[4:8], streamID)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(payload)))

	if _, err := mc.conn.Write(header); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := mc.conn.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// closeStream removes a stream from the connection's table and marks it closed.
func (mc *MultiplexConn) closeStream(streamID uint32) {
	mc.mu.Lock()
	stream, ok := mc.streams[streamID]
	if ok {
		delete(mc.streams, streamID)
	}
	mc.mu.Unlock()

	if ok {
		atomic.StoreUint32(&stream.state, StreamClosed)
		close(stream.recvChan)
	}
}

// Close shuts down the multiplexed connection and all of its open streams.
func (mc *MultiplexConn) Close() error {
	if !mc.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(mc.closeChan)
	close(mc.acceptChan)

	mc.mu.Lock()
	for id, stream := range mc.streams {
		atomic.StoreUint32(&stream.state, StreamClosed)
		close(stream.recvChan)
		delete(mc.streams, id)
	}
	mc.mu.Unlock()

	return mc.conn.Close()
}

// Read blocks until a frame arrives for this stream and returns its payload.
// It satisfies io.Reader by copying the frame payload into p.
func (s *Stream) Read(p []byte) (int, error) {
	if atomic.LoadUint32(&s.state) == StreamClosed {
		return 0, ErrStreamClosed
	}

	frame, ok := <-s.recvChan
	if !ok {
		return 0, io.EOF
	}
	if frame.Header.Type == MsgSyncError {
		return 0, ErrInvalidMessage
	}

	n := copy(p, frame.Payload)
	return n, nil
}

// Write sends p as a single frame's payload on this stream.
func (s *Stream) Write(p []byte) (int, error) {
	if atomic.LoadUint32(&s.state) == StreamClosed {
		return 0, ErrStreamClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.writeFrame(s.ID, MsgChunkData, FlagNone, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteMessage sends payload on this stream tagged with an explicit
// message type, for callers that need more than the single MsgChunkData
// type Write assumes (a handshake, a delta request/response, a sync
// completion or error).
func (s *Stream) WriteMessage(msgType MessageType, payload []byte) error {
	return s.WriteMessageFlags(msgType, FlagNone, payload)
}

// WriteMessageFlags is WriteMessage with explicit control over the frame's
// flag byte, for callers that need to mark a payload compressed or encrypted.
func (s *Stream) WriteMessageFlags(msgType MessageType, flags MessageFlag, payload []byte) error {
	if atomic.LoadUint32(&s.state) == StreamClosed {
		return ErrStreamClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.writeFrame(s.ID, msgType, flags, payload)
}

// ReadMessage blocks for the next frame on this stream and returns both
// its message type and payload, for callers that dispatch on type rather
// than assuming MsgChunkData.
func (s *Stream) ReadMessage() (MessageType, []byte, error) {
	msgType, _, payload, err := s.ReadMessageFlags()
	return msgType, payload, err
}

// ReadMessageFlags is ReadMessage but also returns the frame's flag byte,
// so a reader can tell a compressed or encrypted payload from a plain one.
func (s *Stream) ReadMessageFlags() (MessageType, MessageFlag, []byte, error) {
	if atomic.LoadUint32(&s.state) == StreamClosed {
		return 0, FlagNone, nil, ErrStreamClosed
	}
	frame, ok := <-s.recvChan
	if !ok {
		return 0, FlagNone, nil, io.EOF
	}
	return frame.Header.Type, frame.Header.Flags, frame.Payload, nil
}

// Close fully closes the stream and removes it from its connection's table.
func (s *Stream) Close() error {
	if !atomic.CompareAndSwapUint32(&s.state, StreamOpen, StreamClosed) &&
		!atomic.CompareAndSwapUint32(&s.state, StreamHalfClosed, StreamClosed) {
		return nil
	}
	s.conn.closeStream(s.ID)
	return nil
}

