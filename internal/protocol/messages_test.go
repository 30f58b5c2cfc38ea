/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package protocol

import (
	"bytes"
	"reflect"
	"testing"
)

func TestHandshakeMessageEncodeDecode(t *testing.T) {
	original := &HandshakeMessage{NodeID: "n1", Capabilities: []string{"delta-sync", "tls"}}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeHandshakeMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.NodeID != original.NodeID {
		t.Errorf("NodeID mismatch: got %q, want %q", decoded.NodeID, original.NodeID)
	}
	if len(decoded.Capabilities) != 2 || decoded.Capabilities[0] != "delta-sync" {
		t.Errorf("Capabilities mismatch: %v", decoded.Capabilities)
	}
}

func TestHeartbeatMessageEncodeDecode(t *testing.T) {
	original := &HeartbeatMessage{NodeID: "n1", Timestamp: 1234567890}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeHeartbeatMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.NodeID != original.NodeID || decoded.Timestamp != original.Timestamp {
		t.Errorf("mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestDeltaRequestMessageEncodeDecode(t *testing.T) {
	original := &DeltaRequestMessage{FileID: "f1"}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := DecodeDeltaRequestMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.FileID != original.FileID {
		t.Errorf("FileID mismatch: got %q, want %q", decoded.FileID, original.FileID)
	}
}

func TestDeltaResponseMessageEncodeDecode(t *testing.T) {
	original := &DeltaResponseMessage{FileID: "f1", BaseSignatureDigest: "abc123", HasExistingVersion: true}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := DecodeDeltaResponseMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.FileID != original.FileID || decoded.BaseSignatureDigest != original.BaseSignatureDigest || decoded.HasExistingVersion != original.HasExistingVersion {
		t.Errorf("mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestChunkDataMessageEncodeDecode(t *testing.T) {
	original := &ChunkDataMessage{Hash: "deadbeef", Bytes: []byte("chunk body")}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := DecodeChunkDataMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Hash != original.Hash || !bytes.Equal(decoded.Bytes, original.Bytes) {
		t.Errorf("mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestChunkAckMessageEncodeDecode(t *testing.T) {
	original := &ChunkAckMessage{Hash: "deadbeef", Success: true}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := DecodeChunkAckMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Hash != original.Hash || decoded.Success != original.Success {
		t.Errorf("mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestSyncCompleteMessageEncodeDecode(t *testing.T) {
	original := &SyncCompleteMessage{
		FileID:       "f1",
		VersionID:    "v1",
		BytesSaved:   8192,
		ContentHash:  "deadbeef",
		SourceNodeID: "node-a",
		ChunkList: []ChunkRef{
			{Index: 0, Offset: 0, Size: 4096, Hash: "h0"},
			{Index: 1, Offset: 4096, Size: 4096, Hash: "h1"},
		},
		Clock: map[string]uint64{"node-a": 3, "node-b": 1},
	}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := DecodeSyncCompleteMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestSyncErrorMessageEncodeDecode(t *testing.T) {
	original := &SyncErrorMessage{Code: "target_offline", Message: "node n2 unreachable"}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := DecodeSyncErrorMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if *decoded != *original {
		t.Errorf("mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestBinaryEncoderDecoder(t *testing.T) {
	encoder := NewBinaryEncoder()

	encoder.WriteString("hello")
	encoder.WriteInt64(12345)
	encoder.WriteFloat64(3.14159)
	encoder.WriteBool(true)
	encoder.WriteBytes([]byte{1, 2, 3})
	encoder.WriteStringSlice([]string{"a", "b"})

	decoder := NewBinaryDecoder(encoder.Bytes())

	str, err := decoder.ReadString()
	if err != nil || str != "hello" {
		t.Errorf("String mismatch: %v, %s", err, str)
	}

	i64, err := decoder.ReadInt64()
	if err != nil || i64 != 12345 {
		t.Errorf("Int64 mismatch: %v, %d", err, i64)
	}

	f64, err := decoder.ReadFloat64()
	if err != nil || f64 != 3.14159 {
		t.Errorf("Float64 mismatch: %v, %f", err, f64)
	}

	b, err := decoder.ReadBool()
	if err != nil || !b {
		t.Errorf("Bool mismatch: %v, %v", err, b)
	}

	raw, err := decoder.ReadBytes()
	if err != nil || len(raw) != 3 {
		t.Errorf("Bytes mismatch: %v, %v", err, raw)
	}

	ss, err := decoder.ReadStringSlice()
	if err != nil || len(ss) != 2 || ss[0] != "a" || ss[1] != "b" {
		t.Errorf("StringSlice mismatch: %v, %v", err, ss)
	}
}

func TestBinaryDecoderShortBufferErrors(t *testing.T) {
	decoder := NewBinaryDecoder([]byte{0x00, 0x01})
	if _, err := decoder.ReadInt64(); err != ErrShortBuffer {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}
