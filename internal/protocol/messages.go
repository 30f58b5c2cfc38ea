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

package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrShortBuffer is returned when a BinaryDecoder runs out of bytes
// before finishing a read.
var ErrShortBuffer = errors.New("protocol: short buffer")

// BinaryEncoder appends length-prefixed fields to a growing byte
// buffer. Every message type in this package encodes itself with one.
type BinaryEncoder struct {
	buf []byte
}

// NewBinaryEncoder returns an empty encoder.
func NewBinaryEncoder() *BinaryEncoder {
	return &BinaryEncoder{buf: make([]byte, 0, 64)}
}

// Bytes returns the encoded payload built so far.
func (e *BinaryEncoder) Bytes() []byte { return e.buf }

// WriteString appends a length-prefixed UTF-8 string.
func (e *BinaryEncoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

// WriteBytes appends a length-prefixed byte slice.
func (e *BinaryEncoder) WriteBytes(b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	e.buf = append(e.buf, lenBuf[:]...)
	e.buf = append(e.buf, b...)
}

// WriteInt64 appends a fixed-width big-endian int64.
func (e *BinaryEncoder) WriteInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf = append(e.buf, b[:]...)
}

// WriteUint32 appends a fixed-width big-endian uint32.
func (e *BinaryEncoder) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// WriteFloat64 appends a fixed-width big-endian float64.
func (e *BinaryEncoder) WriteFloat64(v float64) {
	e.WriteInt64(int64(math.Float64bits(v)))
}

// WriteBool appends a single-byte bool.
func (e *BinaryEncoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// WriteStringSlice appends a count-prefixed sequence of strings.
func (e *BinaryEncoder) WriteStringSlice(ss []string) {
	e.WriteUint32(uint32(len(ss)))
	for _, s := range ss {
		e.WriteString(s)
	}
}

// WriteUint64Map appends a count-prefixed sequence of (string, uint64)
// pairs, used to carry a vector clock across the wire.
func (e *BinaryEncoder) WriteUint64Map(m map[string]uint64) {
	e.WriteUint32(uint32(len(m)))
	for k, v := range m {
		e.WriteString(k)
		e.WriteInt64(int64(v))
	}
}

// ChunkRef identifies one fixed-offset chunk of a file's content by
// position and hash, the wire form of delta.ChunkSignature.
type ChunkRef struct {
	Index  int
	Offset int64
	Size   int64
	Hash   string
}

// WriteChunkRefs appends a count-prefixed sequence of ChunkRefs.
func (e *BinaryEncoder) WriteChunkRefs(refs []ChunkRef) {
	e.WriteUint32(uint32(len(refs)))
	for _, c := range refs {
		e.WriteUint32(uint32(c.Index))
		e.WriteInt64(c.Offset)
		e.WriteInt64(c.Size)
		e.WriteString(c.Hash)
	}
}

// BinaryDecoder reads fields out of a buffer written by BinaryEncoder,
// in the same order they were written.
type BinaryDecoder struct {
	buf []byte
	pos int
}

// NewBinaryDecoder wraps buf for sequential reads.
func NewBinaryDecoder(buf []byte) *BinaryDecoder {
	return &BinaryDecoder{buf: buf}
}

func (d *BinaryDecoder) remaining() int { return len(d.buf) - d.pos }

// ReadBytes reads a length-prefixed byte slice.
func (d *BinaryDecoder) ReadBytes() ([]byte, error) {
	if d.remaining() < 4 {
		return nil, ErrShortBuffer
	}
	n := int(binary.BigEndian.Uint32(d.buf[d.pos:]))
	d.pos += 4
	if d.remaining() < n {
		return nil, ErrShortBuffer
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (d *BinaryDecoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadInt64 reads a fixed-width big-endian int64.
func (d *BinaryDecoder) ReadInt64() (int64, error) {
	if d.remaining() < 8 {
		return 0, ErrShortBuffer
	}
	v := int64(binary.BigEndian.Uint64(d.buf[d.pos:]))
	d.pos += 8
	return v, nil
}

// ReadUint32 reads a fixed-width big-endian uint32.
func (d *BinaryDecoder) ReadUint32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

// ReadFloat64 reads a fixed-width big-endian float64.
func (d *BinaryDecoder) ReadFloat64() (float64, error) {
	bits, err := d.ReadInt64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(bits)), nil
}

// ReadBool reads a single-byte bool.
func (d *BinaryDecoder) ReadBool() (bool, error) {
	if d.remaining() < 1 {
		return false, ErrShortBuffer
	}
	v := d.buf[d.pos] != 0
	d.pos++
	return v, nil
}

// ReadStringSlice reads a count-prefixed sequence of strings.
func (d *BinaryDecoder) ReadStringSlice() ([]string, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// ReadUint64Map reads a count-prefixed sequence of (string, uint64) pairs.
func (d *BinaryDecoder) ReadUint64Map() (map[string]uint64, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint64, n)
	for i := uint32(0); i < n; i++ {
		k, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := d.ReadInt64()
		if err != nil {
			return nil, err
		}
		out[k] = uint64(v)
	}
	return out, nil
}

// ReadChunkRefs reads a count-prefixed sequence of ChunkRefs.
func (d *BinaryDecoder) ReadChunkRefs() ([]ChunkRef, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]ChunkRef, n)
	for i := range out {
		idx, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		offset, err := d.ReadInt64()
		if err != nil {
			return nil, err
		}
		size, err := d.ReadInt64()
		if err != nil {
			return nil, err
		}
		hash, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		out[i] = ChunkRef{Index: int(idx), Offset: offset, Size: size, Hash: hash}
	}
	return out, nil
}

// HandshakeMessage opens a replication connection: the dialing side
// announces itself and the capabilities it supports.
type HandshakeMessage struct {
	NodeID       string
	Capabilities []string
}

func (m *HandshakeMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteString(m.NodeID)
	e.WriteStringSlice(m.Capabilities)
	return e.Bytes(), nil
}

func DecodeHandshakeMessage(data []byte) (*HandshakeMessage, error) {
	d := NewBinaryDecoder(data)
	nodeID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	caps, err := d.ReadStringSlice()
	if err != nil {
		return nil, err
	}
	return &HandshakeMessage{NodeID: nodeID, Capabilities: caps}, nil
}

// HeartbeatMessage is sent periodically by a node to keep the
// coordinator's registry entry alive.
type HeartbeatMessage struct {
	NodeID    string
	Timestamp int64
}

func (m *HeartbeatMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteString(m.NodeID)
	e.WriteInt64(m.Timestamp)
	return e.Bytes(), nil
}

func DecodeHeartbeatMessage(data []byte) (*HeartbeatMessage, error) {
	d := NewBinaryDecoder(data)
	nodeID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	ts, err := d.ReadInt64()
	if err != nil {
		return nil, err
	}
	return &HeartbeatMessage{NodeID: nodeID, Timestamp: ts}, nil
}

// DeltaRequestMessage asks a target for its current signature digest
// so the sender can compute a delta against it.
type DeltaRequestMessage struct {
	FileID string
}

func (m *DeltaRequestMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteString(m.FileID)
	return e.Bytes(), nil
}

func DecodeDeltaRequestMessage(data []byte) (*DeltaRequestMessage, error) {
	d := NewBinaryDecoder(data)
	fileID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	return &DeltaRequestMessage{FileID: fileID}, nil
}

// DeltaResponseMessage carries the base signature digest a target
// already holds for a file, letting the sender compute a minimal delta.
type DeltaResponseMessage struct {
	FileID              string
	BaseSignatureDigest string
	HasExistingVersion  bool
}

func (m *DeltaResponseMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteString(m.FileID)
	e.WriteString(m.BaseSignatureDigest)
	e.WriteBool(m.HasExistingVersion)
	return e.Bytes(), nil
}

func DecodeDeltaResponseMessage(data []byte) (*DeltaResponseMessage, error) {
	d := NewBinaryDecoder(data)
	fileID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	digest, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	hasVersion, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	return &DeltaResponseMessage{FileID: fileID, BaseSignatureDigest: digest, HasExistingVersion: hasVersion}, nil
}

// ChunkDataMessage carries a single chunk body being transferred to a
// target that does not yet hold it.
type ChunkDataMessage struct {
	Hash  string
	Bytes []byte
}

func (m *ChunkDataMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteString(m.Hash)
	e.WriteBytes(m.Bytes)
	return e.Bytes(), nil
}

func DecodeChunkDataMessage(data []byte) (*ChunkDataMessage, error) {
	d := NewBinaryDecoder(data)
	hash, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	body, err := d.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &ChunkDataMessage{Hash: hash, Bytes: append([]byte(nil), body...)}, nil
}

// ChunkAckMessage acknowledges receipt (or rejection) of a ChunkDataMessage.
type ChunkAckMessage struct {
	Hash    string
	Success bool
}

func (m *ChunkAckMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteString(m.Hash)
	e.WriteBool(m.Success)
	return e.Bytes(), nil
}

func DecodeChunkAckMessage(data []byte) (*ChunkAckMessage, error) {
	d := NewBinaryDecoder(data)
	hash, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	ok, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	return &ChunkAckMessage{Hash: hash, Success: ok}, nil
}

// SyncCompleteMessage reports a replication session finished
// successfully. It carries everything a target needs to apply the
// version locally: the full ordered chunk list (so content already
// held under those hashes, whether just received via ChunkData or kept
// from an earlier sync, can be reassembled without a second transfer),
// the originator's vector clock for causal merge, and the source node's
// id.
type SyncCompleteMessage struct {
	FileID       string
	VersionID    string
	BytesSaved   int64
	ContentHash  string
	SourceNodeID string
	ChunkList    []ChunkRef
	Clock        map[string]uint64
}

func (m *SyncCompleteMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteString(m.FileID)
	e.WriteString(m.VersionID)
	e.WriteInt64(m.BytesSaved)
	e.WriteString(m.ContentHash)
	e.WriteString(m.SourceNodeID)
	e.WriteChunkRefs(m.ChunkList)
	e.WriteUint64Map(m.Clock)
	return e.Bytes(), nil
}

func DecodeSyncCompleteMessage(data []byte) (*SyncCompleteMessage, error) {
	d := NewBinaryDecoder(data)
	fileID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	versionID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	bytesSaved, err := d.ReadInt64()
	if err != nil {
		return nil, err
	}
	contentHash, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	sourceNodeID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	chunkList, err := d.ReadChunkRefs()
	if err != nil {
		return nil, err
	}
	clock, err := d.ReadUint64Map()
	if err != nil {
		return nil, err
	}
	return &SyncCompleteMessage{
		FileID:       fileID,
		VersionID:    versionID,
		BytesSaved:   bytesSaved,
		ContentHash:  contentHash,
		SourceNodeID: sourceNodeID,
		ChunkList:    chunkList,
		Clock:        clock,
	}, nil
}

// SyncErrorMessage reports a replication session failure, carrying the
// structured error kind as a stable string code.
type SyncErrorMessage struct {
	Code    string
	Message string
}

func (m *SyncErrorMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteString(m.Code)
	e.WriteString(m.Message)
	return e.Bytes(), nil
}

func DecodeSyncErrorMessage(data []byte) (*SyncErrorMessage, error) {
	d := NewBinaryDecoder(data)
	code, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	message, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	return &SyncErrorMessage{Code: code, Message: message}, nil
}
