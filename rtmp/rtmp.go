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

import (
	"time"

	"github.com/gwuhaolin/livego/av"
)

const (
	DefaultProtocol          string = "tcp"
	DefaultLocalHost         string = "localhost"
	DefaultLocalPort         string = "1935"
	DefaultScheme            string = "rtmp"
	DefaultRTMPApp           string = "twinx"
	DefaultGenerateKeyLength int    = 20
	DefaultGenerateKeyPrefix string = "twinx_"

	// StreamKeyRandomBytePool is the pool of characters to generate a stream key from
	StreamKeyRandomBytePool string = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

const (
	// DefaultChunkSize is the chunk size both peers assume until
	// a Set Chunk Size message says otherwise.
	DefaultChunkSize uint32 = 128

	// MaximumChunkSize is the largest value a Set Chunk Size
	// message may carry. The top bit of the field must be zero.
	MaximumChunkSize uint32 = 0x7FFFFFFF

	// MaximumMessageLength is the largest length the 3 byte
	// message length field can express.
	MaximumMessageLength uint32 = 0xFFFFFF

	// ExtendedTimestampMarker is the raw value of a 3 byte timestamp
	// (or timestamp delta) field announcing that a 4 byte extended
	// timestamp follows the message header.
	ExtendedTimestampMarker uint32 = 0xFFFFFF

	DefaultWindowAcknowledgementSize uint32 = 2500000
	DefaultPeerBandwidthSize         uint32 = 2500000
	DefaultConnBufferSizeBytes       int    = 4 * 1024

	// TimeoutDuration bounds every blocking read or write performed
	// while the handshake is running.
	TimeoutDuration time.Duration = 5 * time.Second
)

// 5.4. Protocol Control Messages and 7.1. Types of Messages
const (
	SetChunkSizeMessageID              uint32 = 1
	AbortMessageID                     uint32 = 2
	AcknowledgementMessageID           uint32 = 3
	UserControlMessageID               uint32 = 4
	WindowAcknowledgementSizeMessageID uint32 = 5
	SetPeerBandwidthMessageID          uint32 = 6
	AudioMessageID                     uint32 = av.TAG_AUDIO
	VideoMessageID                     uint32 = av.TAG_VIDEO
	DataMessageAMF3ID                  uint32 = av.TAG_SCRIPTDATAAMF3
	SharedObjectMessageAMF3ID          uint32 = 16
	CommandMessageAMF3ID               uint32 = 17
	DataMessageAMF0ID                  uint32 = av.TAG_SCRIPTDATAAMF0
	SharedObjectMessageAMF0ID          uint32 = 19
	CommandMessageAMF0ID               uint32 = 20
	AggregateMessageID                 uint32 = 22
)

// Well known chunk stream IDs. Chunk stream 2 is reserved for
// low level protocol control messages.
const (
	ChunkStreamControl uint32 = 2
	ChunkStreamCommand uint32 = 3
	ChunkStreamAudio   uint32 = 4
	ChunkStreamVideo   uint32 = 6
)

// 7.1.7. User Control Message Events
const (
	StreamBegin      uint32 = 0
	StreamEOF        uint32 = 1
	StreamDry        uint32 = 2
	SetBufferLength  uint32 = 3
	StreamIsRecorded uint32 = 4
	PingRequest      uint32 = 6
	PingResponse     uint32 = 7
)

// isControlMessage reports whether typeID names one of the protocol
// control messages that always travel on chunk stream 2.
func isControlMessage(typeID uint32) bool {
	return typeID >= SetChunkSizeMessageID && typeID <= SetPeerBandwidthMessageID
}

func typeIDString(typeID uint32) string {
	switch typeID {
	case SetChunkSizeMessageID:
		return "SetChunkSize"
	case AbortMessageID:
		return "Abort"
	case AcknowledgementMessageID:
		return "Acknowledgement"
	case UserControlMessageID:
		return "UserControl"
	case WindowAcknowledgementSizeMessageID:
		return "WindowAcknowledgementSize"
	case SetPeerBandwidthMessageID:
		return "SetPeerBandwidth"
	case AudioMessageID:
		return "Audio"
	case VideoMessageID:
		return "Video"
	case DataMessageAMF3ID:
		return "DataAMF3"
	case SharedObjectMessageAMF3ID:
		return "SharedObjectAMF3"
	case CommandMessageAMF3ID:
		return "CommandAMF3"
	case DataMessageAMF0ID:
		return "DataAMF0"
	case SharedObjectMessageAMF0ID:
		return "SharedObjectAMF0"
	case CommandMessageAMF0ID:
		return "CommandAMF0"
	case AggregateMessageID:
		return "Aggregate"
	}
	return "Unknown"
}
