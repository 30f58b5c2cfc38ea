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
Package protocol implements syncd's binary replication wire protocol:
the framing coordinators and nodes use to exchange handshakes,
heartbeats, delta requests/responses and chunk bodies over a plain TCP
connection (optionally TLS-wrapped; see internal/tls).

Message Format:

	+--------+--------+--------+--------+--------+--------+--------+--------+--------+--------+--------+--------+
	| Magic  | Version| MsgType| Flags  |            Length (4B)             | Payload...
	+--------+--------+--------+--------+--------+--------+--------+--------+--------+--------+--------+--------+

  - Magic (1 byte): protocol magic number (0xFD)
  - Version (1 byte): protocol version (currently 0x01)
  - MsgType (1 byte): message type identifier
  - Flags (1 byte): message flags (compression, ...)
  - Length (4 bytes): payload length in big-endian
  - Payload: variable-length message data, itself binary-encoded via
    BinaryEncoder/BinaryDecoder in messages.go
*/
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// Protocol constants.
const (
	MagicByte       byte = 0xFD
	ProtocolVersion byte = 0x01

	// MaxMessageSize bounds a single payload (16 MiB).
	MaxMessageSize = 16 * 1024 * 1024

	// HeaderSize is the fixed framing header size in bytes.
	HeaderSize = 8
)

// MessageType identifies the kind of a protocol message.
type MessageType byte

// Message type constants for the replication wire protocol.
const (
	MsgHandshake     MessageType = 0x01
	MsgHandshakeAck  MessageType = 0x02
	MsgHeartbeat     MessageType = 0x03
	MsgDeltaRequest  MessageType = 0x04
	MsgDeltaResponse MessageType = 0x05
	MsgChunkData     MessageType = 0x06
	MsgChunkAck      MessageType = 0x07
	MsgSyncComplete  MessageType = 0x08
	MsgSyncError     MessageType = 0x09
)

// MessageFlag represents message flags.
type MessageFlag byte

// Message flag constants.
const (
	FlagNone       MessageFlag = 0x00
	FlagCompressed MessageFlag = 0x01
	FlagEncrypted  MessageFlag = 0x02
)

// Header is a protocol message header.
type Header struct {
	Magic   byte
	Version byte
	Type    MessageType
	Flags   MessageFlag
	Length  uint32
}

// Message is a complete protocol message: header plus payload.
type Message struct {
	Header  Header
	Payload []byte
}

// Common errors.
var (
	ErrInvalidMagic    = errors.New("invalid protocol magic byte")
	ErrInvalidVersion  = errors.New("unsupported protocol version")
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrInvalidMessage  = errors.New("invalid message format")
)

// WriteHeader writes a message header to w.
func WriteHeader(w io.Writer, h Header) error {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Magic
	buf[1] = h.Version
	buf[2] = byte(h.Type)
	buf[3] = byte(h.Flags)
	binary.BigEndian.PutUint32(buf[4:], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a message header from r.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}

	h := Header{
		Magic:   buf[0],
		Version: buf[1],
		Type:    MessageType(buf[2]),
		Flags:   MessageFlag(buf[3]),
		Length:  binary.BigEndian.Uint32(buf[4:]),
	}

	if h.Magic != MagicByte {
		return Header{}, ErrInvalidMagic
	}
	if h.Version != ProtocolVersion {
		return Header{}, ErrInvalidVersion
	}
	if h.Length > MaxMessageSize {
		return Header{}, ErrMessageTooLarge
	}

	return h, nil
}

// WriteMessage writes a complete message to w.
func WriteMessage(w io.Writer, msgType MessageType, payload []byte) error {
	return WriteMessageFlags(w, msgType, FlagNone, payload)
}

// WriteMessageFlags writes a complete message to w with explicit flags.
func WriteMessageFlags(w io.Writer, msgType MessageType, flags MessageFlag, payload []byte) error {
	h := Header{
		Magic:   MagicByte,
		Version: ProtocolVersion,
		Type:    msgType,
		Flags:   flags,
		Length:  uint32(len(payload)),
	}

	if err := WriteHeader(w, h); err != nil {
		return err
	}
	if len(payload) > 0 {
		_, err := w.Write(payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from r.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	msg := &Message{Header: h}
	if h.Length > 0 {
		msg.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			return nil, err
		}
	}

	return msg, nil
}
