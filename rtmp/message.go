// Copyright © 2021 Kris Nóva <kris@nivenly.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// ────────────────────────────────────────────────────────────────────────────
//
//  ████████╗██╗    ██╗██╗███╗   ██╗██╗  ██╗
//  ╚══██╔══╝██║    ██║██║████╗  ██║╚██╗██╔╝
//     ██║   ██║ █╗ ██║██║██╔██╗ ██║ ╚███╔╝
//     ██║   ██║███╗██║██║██║╚██╗██║ ██╔██╗
//     ██║   ╚███╔███╔╝██║██║ ╚████║██╔╝ ██╗
//     ╚═╝    ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝
//
// ────────────────────────────────────────────────────────────────────────────

package rtmp

import "fmt"

// Message
//
// 5.1. Message Format
//
// A message is the application level unit carried by one or more
// chunks. Once a Message has been handed out by a Pipeline the
// pipeline keeps no reference to it or to its Payload.
type Message struct {
	// ChunkStreamID is the chunk stream the message arrived on. When
	// sending, zero selects a chunk stream from the type ID.
	ChunkStreamID uint32

	// StreamID is the message stream ID. Opaque to the chunk layer.
	StreamID uint32

	// TypeID identifies the content of the payload.
	TypeID uint32

	// Timestamp is the absolute timestamp in milliseconds relative
	// to the handshake epoch.
	Timestamp uint32

	// Payload is exactly as long as the length declared in the
	// message header.
	Payload []byte
}

func (m *Message) String() string {
	return fmt.Sprintf("<csid: %d, stream: %d, type: %s(%d), ts: %d, len: %d>",
		m.ChunkStreamID, m.StreamID, typeIDString(m.TypeID), m.TypeID, m.Timestamp, len(m.Payload))
}

// defaultChunkStreamID picks the chunk stream a message is sent on
// when the caller did not choose one.
func defaultChunkStreamID(typeID uint32) uint32 {
	switch typeID {
	case SetChunkSizeMessageID, AbortMessageID, AcknowledgementMessageID,
		UserControlMessageID, WindowAcknowledgementSizeMessageID, SetPeerBandwidthMessageID:
		return ChunkStreamControl
	case AudioMessageID:
		return ChunkStreamAudio
	case VideoMessageID, DataMessageAMF0ID, DataMessageAMF3ID:
		return ChunkStreamVideo
	}
	return ChunkStreamCommand
}
