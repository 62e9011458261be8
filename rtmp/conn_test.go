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
	"context"
	"net"
	"testing"

	"github.com/gwuhaolin/livego/av"
	"github.com/stretchr/testify/require"
)

// connPair returns both ends of an in memory connection after the
// handshake completed.
func connPair(t *testing.T) (*Conn, *Conn) {
	a, b := net.Pipe()
	client := NewConn(a, RoleInitiator)
	server := NewConn(b, RoleResponder)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	errs := make(chan error, 1)
	go func() {
		errs <- server.Handshake()
	}()
	require.NoError(t, client.Handshake())
	require.NoError(t, <-errs)
	return client, server
}

type packetSink struct {
	packets chan *av.Packet
}

func newPacketSink() *packetSink {
	return &packetSink{packets: make(chan *av.Packet, 16)}
}

func (s *packetSink) WritePacket(conn *Conn, p *av.Packet) error {
	s.packets <- p
	return nil
}

func TestConnHandshakeAndMessages(t *testing.T) {
	client, server := connPair(t)

	want := []*Message{
		NewSetChunkSize(64),
		{ChunkStreamID: 4, StreamID: 1, TypeID: AudioMessageID, Timestamp: 10, Payload: testPayload(200, 1)},
		{ChunkStreamID: 6, StreamID: 1, TypeID: VideoMessageID, Timestamp: 20, Payload: testPayload(1000, 2)},
	}
	errs := make(chan error, 1)
	go func() {
		errs <- client.WriteMessages(want...)
	}()

	for _, w := range want {
		m, err := server.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, w, m)
	}
	require.NoError(t, <-errs)
	require.Equal(t, uint32(64), client.Pipeline().WriteChunkSize())
	require.Equal(t, uint32(64), server.Pipeline().ReadChunkSize())

	snap := server.Metrics().Snapshot()
	require.Equal(t, uint64(3), snap.MessagesRX)
	require.Equal(t, uint64(1), snap.AudioRX)
	require.Equal(t, uint64(1), snap.VideoRX)
	require.Equal(t, uint64(3), client.Metrics().Snapshot().MessagesTX)
}

func TestConnPingResponse(t *testing.T) {
	client, server := connPair(t)

	errs := make(chan error, 1)
	go func() {
		_, err := server.ReadMessage()
		errs <- err
	}()

	require.NoError(t, client.WriteMessages(NewPingRequest(1234)))
	m, err := client.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-errs)

	event, data, err := ParseUserControl(m)
	require.NoError(t, err)
	require.Equal(t, PingResponse, event)
	require.Equal(t, []byte{0, 0, 0x04, 0xd2}, data)
}

func TestConnServe(t *testing.T) {
	client, server := connPair(t)
	sink := newPacketSink()

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(context.Background(), &Dispatcher{Media: sink})
	}()

	audio := &av.Packet{IsAudio: true, StreamID: 1, TimeStamp: 40, Data: testPayload(300, 3)}
	require.NoError(t, client.WriteMessages(NewPacketMessage(audio)))
	got := <-sink.packets
	require.True(t, got.IsAudio)
	require.Equal(t, audio.TimeStamp, got.TimeStamp)
	require.Equal(t, audio.Data, got.Data)

	client.Close()
	require.NoError(t, <-done)
}

func TestConnServeProtocolError(t *testing.T) {
	client, server := connPair(t)

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(context.Background(), &Dispatcher{})
	}()

	// Type 2 header on a chunk stream that has never been used
	_, err := client.Conn.Write([]byte{0x89, 0, 0, 1})
	require.NoError(t, err)
	err = <-done
	require.ErrorIs(t, err, ErrUnknownChunkStreamReference)
	require.Equal(t, uint64(1), server.Metrics().Snapshot().Errors)
}

func TestConnServeContextCancel(t *testing.T) {
	_, server := connPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, &Dispatcher{})
	}()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestConnHandshakeBadVersion(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	server := NewConn(b, RoleResponder)
	defer server.Close()

	errs := make(chan error, 1)
	go func() {
		errs <- server.Handshake()
	}()
	_, err := a.Write([]byte{6})
	require.NoError(t, err)
	require.ErrorIs(t, <-errs, ErrInvalidVersion)
}
