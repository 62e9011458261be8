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

	"github.com/gwuhaolin/livego/av"
	"github.com/kris-nova/logger"
)

// ControlHandler receives protocol control and user control messages
// after the connection has applied them.
type ControlHandler interface {
	HandleControl(conn *Conn, m *Message) error
}

// CommandHandler receives AMF command and data messages.
type CommandHandler interface {
	HandleCommand(conn *Conn, cmd *Command, m *Message) error
	HandleData(conn *Conn, values []interface{}, m *Message) error
}

// MediaSink receives audio and video messages as packets.
type MediaSink interface {
	WritePacket(conn *Conn, p *av.Packet) error
}

// Dispatcher routes complete messages by type ID. Nil handlers drop
// the messages they would have received.
type Dispatcher struct {
	Control ControlHandler
	Command CommandHandler
	Media   MediaSink
}

func (d *Dispatcher) Dispatch(conn *Conn, m *Message) error {
	switch m.TypeID {
	case SetChunkSizeMessageID, AbortMessageID, AcknowledgementMessageID,
		UserControlMessageID, WindowAcknowledgementSizeMessageID, SetPeerBandwidthMessageID:
		logger.Debug(rtmpMessage(m.String(), ctrl))
		if d.Control != nil {
			return d.Control.HandleControl(conn, m)
		}
	case CommandMessageAMF0ID, CommandMessageAMF3ID:
		cmd, err := DecodeCommand(m)
		if err != nil {
			return fmt.Errorf("command message: %v", err)
		}
		logger.Debug(rtmpMessage(cmd.Name, invoke))
		if d.Command != nil {
			return d.Command.HandleCommand(conn, cmd, m)
		}
	case DataMessageAMF0ID, DataMessageAMF3ID:
		vs, err := DecodeData(m)
		if err != nil {
			return fmt.Errorf("data message: %v", err)
		}
		if d.Command != nil {
			return d.Command.HandleData(conn, vs, m)
		}
	case AudioMessageID, VideoMessageID:
		if d.Media != nil {
			return d.Media.WritePacket(conn, NewPacket(m))
		}
	default:
		logger.Warning(rtmpMessage(fmt.Sprintf("unsupported message %s", m), warn))
	}
	return nil
}

// NewPacket converts an audio, video or data message to a packet.
// Data packets always hold AMF0 values so they go back out as AMF0
// data messages.
func NewPacket(m *Message) *av.Packet {
	return &av.Packet{
		IsAudio:    m.TypeID == AudioMessageID,
		IsVideo:    m.TypeID == VideoMessageID,
		IsMetadata: m.TypeID == DataMessageAMF0ID || m.TypeID == DataMessageAMF3ID,
		TimeStamp:  m.Timestamp,
		StreamID:   m.StreamID,
		Data:       amfPayload(m),
	}
}

// NewPacketMessage is the inverse of NewPacket.
func NewPacketMessage(p *av.Packet) *Message {
	m := &Message{
		StreamID:  p.StreamID,
		Timestamp: p.TimeStamp,
		Payload:   p.Data,
	}
	switch {
	case p.IsVideo:
		m.TypeID = VideoMessageID
	case p.IsMetadata:
		m.TypeID = DataMessageAMF0ID
	default:
		m.TypeID = AudioMessageID
	}
	return m
}
