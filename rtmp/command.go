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
	"bytes"
	"fmt"
	"io"

	"github.com/gwuhaolin/livego/protocol/amf"
)

// 7.2. Command Types
const (
	CommandConnect         = "connect"
	CommandCall            = "call"
	CommandCreateStream    = "createStream"
	CommandDeleteStream    = "deleteStream"
	CommandCloseStream     = "closeStream"
	CommandPlay            = "play"
	CommandPublish         = "publish"
	CommandFCPublish       = "FCPublish"
	CommandFCUnpublish     = "FCUnpublish"
	CommandReleaseStream   = "releaseStream"
	CommandGetStreamLength = "getStreamLength"

	CommandResult   = "_result"
	CommandError    = "_error"
	CommandOnStatus = "onStatus"
	CommandOnBWDone = "onBWDone"

	PublishTypeLive = "live"

	SetDataFrame = "@setDataFrame"
	OnMetaData   = "onMetaData"
)

// Status codes carried in onStatus and _result info objects
const (
	StatusConnectSuccess = "NetConnection.Connect.Success"
	StatusPublishStart   = "NetStream.Publish.Start"
	StatusPublishBadName = "NetStream.Publish.BadName"
	StatusPlayReset      = "NetStream.Play.Reset"
	StatusPlayStart      = "NetStream.Play.Start"
	StatusDataStart      = "NetStream.Data.Start"
	StatusPublishNotify  = "NetStream.Play.PublishNotify"
)

// Command is a decoded AMF command message.
//
//   +----------------+---------+---------------------------------------+
//   |  Field Name    |  Type   |               Description             |
//   +--------------- +---------+---------------------------------------+
//   | Command Name   | String  | Name of the command.                  |
//   | Transaction ID | Number  | Transaction ID.                       |
//   | Command Object | Object  | Command information object, or null.  |
//   | Optional Args  |         | Any further values.                   |
//   +--------------- +---------+---------------------------------------+
type Command struct {
	Name          string
	TransactionID float64
	Object        amf.Object
	Args          []interface{}
}

// StringArg returns Args[i] when it is a string.
func (c *Command) StringArg(i int) (string, bool) {
	if i >= len(c.Args) {
		return "", false
	}
	s, ok := c.Args[i].(string)
	return s, ok
}

// amfPayload strips the leading format byte that AMF3 command and data
// messages put in front of their AMF0 encoded values.
func amfPayload(m *Message) []byte {
	if (m.TypeID == CommandMessageAMF3ID || m.TypeID == DataMessageAMF3ID) && len(m.Payload) > 0 {
		return m.Payload[1:]
	}
	return m.Payload
}

func decodeValues(m *Message) ([]interface{}, error) {
	decoder := &amf.Decoder{}
	vs, err := decoder.DecodeBatch(bytes.NewReader(amfPayload(m)), amf.AMF0)
	if err != nil && err != io.EOF {
		return vs, fmt.Errorf("decoding amf: %v", err)
	}
	return vs, nil
}

// DecodeCommand decodes a type 17 or type 20 message.
func DecodeCommand(m *Message) (*Command, error) {
	if m.TypeID != CommandMessageAMF0ID && m.TypeID != CommandMessageAMF3ID {
		return nil, fmt.Errorf("message type %s is not a command", typeIDString(m.TypeID))
	}
	vs, err := decodeValues(m)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, fmt.Errorf("empty command message")
	}
	name, ok := vs[0].(string)
	if !ok {
		return nil, fmt.Errorf("command name is %T, expected string", vs[0])
	}
	cmd := &Command{Name: name}
	if len(vs) > 1 {
		if id, ok := vs[1].(float64); ok {
			cmd.TransactionID = id
		}
	}
	if len(vs) > 2 {
		if obj, ok := vs[2].(amf.Object); ok {
			cmd.Object = obj
		}
	}
	if len(vs) > 3 {
		cmd.Args = vs[3:]
	}
	return cmd, nil
}

// DecodeData decodes the values of a type 15 or type 18 data message
// such as @setDataFrame or onMetaData.
func DecodeData(m *Message) ([]interface{}, error) {
	if m.TypeID != DataMessageAMF0ID && m.TypeID != DataMessageAMF3ID {
		return nil, fmt.Errorf("message type %s is not data", typeIDString(m.TypeID))
	}
	return decodeValues(m)
}

// NewCommandMessage encodes args as an AMF0 command message.
func NewCommandMessage(csid, streamID uint32, args ...interface{}) (*Message, error) {
	return newAMFMessage(CommandMessageAMF0ID, csid, streamID, args...)
}

// NewDataMessage encodes args as an AMF0 data message.
func NewDataMessage(csid, streamID uint32, args ...interface{}) (*Message, error) {
	return newAMFMessage(DataMessageAMF0ID, csid, streamID, args...)
}

func newAMFMessage(typeID, csid, streamID uint32, args ...interface{}) (*Message, error) {
	encoder := &amf.Encoder{}
	buf := bytes.NewBuffer(nil)
	for _, v := range args {
		if _, err := encoder.Encode(buf, v, amf.AMF0); err != nil {
			return nil, fmt.Errorf("encoding amf: %v", err)
		}
	}
	return &Message{
		ChunkStreamID: csid,
		StreamID:      streamID,
		TypeID:        typeID,
		Payload:       buf.Bytes(),
	}, nil
}
