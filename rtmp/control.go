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
	"fmt"

	"github.com/gwuhaolin/livego/utils/pio"
)

// 5.4. Protocol Control Messages
//
// Protocol control messages are sent on chunk stream 2 with message
// stream ID 0. They take effect as soon as they are received.

func newControlMessage(typeID uint32, payload []byte) *Message {
	return &Message{
		ChunkStreamID: ChunkStreamControl,
		StreamID:      0,
		TypeID:        typeID,
		Payload:       payload,
	}
}

// NewSetChunkSize returns a 5.4.1. Set Chunk Size message.
func NewSetChunkSize(size uint32) *Message {
	return newControlMessage(SetChunkSizeMessageID, putUint32(size&MaximumChunkSize))
}

// NewAbortMessage returns a 5.4.2. Abort Message for csid.
func NewAbortMessage(csid uint32) *Message {
	return newControlMessage(AbortMessageID, putUint32(csid))
}

// NewAcknowledgement returns a 5.4.3. Acknowledgement carrying the
// number of bytes received so far.
func NewAcknowledgement(sequence uint32) *Message {
	return newControlMessage(AcknowledgementMessageID, putUint32(sequence))
}

// NewWindowAckSize returns a 5.4.4. Window Acknowledgement Size message.
func NewWindowAckSize(size uint32) *Message {
	return newControlMessage(WindowAcknowledgementSizeMessageID, putUint32(size))
}

// Limit types of a Set Peer Bandwidth message
const (
	LimitHard    byte = 0
	LimitSoft    byte = 1
	LimitDynamic byte = 2
)

// NewSetPeerBandwidth returns a 5.4.5. Set Peer Bandwidth message.
func NewSetPeerBandwidth(size uint32, limit byte) *Message {
	payload := make([]byte, 5)
	pio.PutU32BE(payload[0:4], size)
	payload[4] = limit
	return newControlMessage(SetPeerBandwidthMessageID, payload)
}

/*
   +------------------------------+-------------------------
   |     Event Type ( 2- bytes )  | Event Data
   +------------------------------+-------------------------
   Pay load for the ‘User Control Message’.
*/
func NewUserControl(event uint32, data ...uint32) *Message {
	payload := make([]byte, 2+4*len(data))
	payload[0] = byte(event >> 8 & 0xff)
	payload[1] = byte(event & 0xff)
	for i, d := range data {
		pio.PutU32BE(payload[2+4*i:6+4*i], d)
	}
	return newControlMessage(UserControlMessageID, payload)
}

// NewStreamBegin tells the peer that stream is ready for use.
func NewStreamBegin(stream uint32) *Message {
	return NewUserControl(StreamBegin, stream)
}

// NewStreamIsRecorded tells the peer that stream is a recorded stream.
func NewStreamIsRecorded(stream uint32) *Message {
	return NewUserControl(StreamIsRecorded, stream)
}

func NewPingRequest(timestamp uint32) *Message {
	return NewUserControl(PingRequest, timestamp)
}

func NewPingResponse(timestamp uint32) *Message {
	return NewUserControl(PingResponse, timestamp)
}

// ParseUint32Payload reads the 4 byte big endian value that Set Chunk
// Size, Abort, Acknowledgement and Window Acknowledgement Size carry.
func ParseUint32Payload(m *Message) (uint32, error) {
	if len(m.Payload) < 4 {
		return 0, fmt.Errorf("%s payload is %d bytes, expected 4", typeIDString(m.TypeID), len(m.Payload))
	}
	return pio.U32BE(m.Payload[0:4]), nil
}

// ParseUserControl splits a User Control message into its event type
// and event data.
func ParseUserControl(m *Message) (uint32, []byte, error) {
	if len(m.Payload) < 2 {
		return 0, nil, fmt.Errorf("user control payload is %d bytes, expected at least 2", len(m.Payload))
	}
	return uint32(m.Payload[0])<<8 | uint32(m.Payload[1]), m.Payload[2:], nil
}
