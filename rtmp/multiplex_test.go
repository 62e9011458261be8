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

	"github.com/gwuhaolin/livego/av"
	"github.com/stretchr/testify/require"
)

func TestRelay(t *testing.T) {
	client, server := connPair(t)
	relay := NewRelay()

	// Cached before the player joins
	relay.Publish("twinx", &av.Packet{IsVideo: true, TimeStamp: 10, Data: avcSequenceHeader})
	relay.Publish("twinx", &av.Packet{IsVideo: true, TimeStamp: 20, Data: avcKeyFrame})
	relay.Subscribe("twinx", server, 1)
	require.Equal(t, 1, relay.Players("twinx"))
	require.Zero(t, relay.Players("other"))

	// Live
	relay.Publish("twinx", &av.Packet{IsAudio: true, TimeStamp: 30, Data: aacRaw})
	relay.Publish("other", &av.Packet{IsAudio: true, TimeStamp: 40, Data: aacRaw})

	for _, want := range []struct {
		typeID uint32
		ts     uint32
		data   []byte
	}{
		{VideoMessageID, 10, avcSequenceHeader},
		{VideoMessageID, 20, avcKeyFrame},
		{AudioMessageID, 30, aacRaw},
	} {
		m, err := client.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, want.typeID, m.TypeID)
		require.Equal(t, uint32(1), m.StreamID)
		require.Equal(t, want.ts, m.Timestamp)
		require.Equal(t, want.data, m.Payload)
	}

	relay.Unsubscribe("twinx", server)
	require.Zero(t, relay.Players("twinx"))
}

func TestRelayDropsWhenFull(t *testing.T) {
	relay := NewRelay()
	pl := &relayPlayer{packets: make(chan *av.Packet, 2)}
	s := relay.stream("twinx")
	s.players["slow"] = pl

	for i := 0; i < 5; i++ {
		relay.Publish("twinx", &av.Packet{IsAudio: true, Data: aacRaw})
	}
	require.Len(t, pl.packets, 2)
	require.Equal(t, 3, pl.dropped)
}

func TestRelayUnpublish(t *testing.T) {
	relay := NewRelay()
	relay.Publish("twinx", &av.Packet{IsVideo: true, Data: avcSequenceHeader})
	require.Equal(t, 1, relay.stream("twinx").cache.Len())
	relay.Unpublish("twinx")
	require.Zero(t, relay.stream("twinx").cache.Len())

	// Packets without a parsable tag header are not relayed
	relay.Publish("twinx", &av.Packet{IsVideo: true})
	require.Zero(t, relay.stream("twinx").cache.Len())
}
