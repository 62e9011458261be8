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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControlMessages(t *testing.T) {
	m := NewSetChunkSize(4096)
	require.Equal(t, ChunkStreamControl, m.ChunkStreamID)
	require.Equal(t, uint32(0), m.StreamID)
	require.Equal(t, []byte{0, 0, 0x10, 0}, m.Payload)

	// The top bit is always cleared
	size, err := ParseUint32Payload(NewSetChunkSize(0xFFFFFFFF))
	require.NoError(t, err)
	require.Equal(t, MaximumChunkSize, size)

	csid, err := ParseUint32Payload(NewAbortMessage(7))
	require.NoError(t, err)
	require.Equal(t, uint32(7), csid)

	seq, err := ParseUint32Payload(NewAcknowledgement(123456))
	require.NoError(t, err)
	require.Equal(t, uint32(123456), seq)

	m = NewSetPeerBandwidth(DefaultPeerBandwidthSize, LimitDynamic)
	require.Len(t, m.Payload, 5)
	require.Equal(t, LimitDynamic, m.Payload[4])
	bw, err := ParseUint32Payload(m)
	require.NoError(t, err)
	require.Equal(t, DefaultPeerBandwidthSize, bw)

	_, err = ParseUint32Payload(&Message{TypeID: WindowAcknowledgementSizeMessageID, Payload: []byte{1, 2}})
	require.Error(t, err)
}

func TestUserControl(t *testing.T) {
	m := NewStreamBegin(1)
	require.Equal(t, UserControlMessageID, m.TypeID)
	require.Equal(t, []byte{0, 0, 0, 0, 0, 1}, m.Payload)

	event, data, err := ParseUserControl(NewStreamIsRecorded(3))
	require.NoError(t, err)
	require.Equal(t, StreamIsRecorded, event)
	require.Equal(t, []byte{0, 0, 0, 3}, data)

	event, data, err = ParseUserControl(NewPingRequest(0x01020304))
	require.NoError(t, err)
	require.Equal(t, PingRequest, event)
	require.Equal(t, []byte{1, 2, 3, 4}, data)

	_, _, err = ParseUserControl(&Message{TypeID: UserControlMessageID, Payload: []byte{0}})
	require.Error(t, err)
}
