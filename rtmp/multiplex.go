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
	"sync"

	"github.com/gwuhaolin/livego/av"
	"github.com/kris-nova/logger"
)

// DefaultMaximumBufferSizePackets bounds the queue of every player. A
// player that falls further behind than this loses packets instead of
// slowing down the publisher.
const DefaultMaximumBufferSizePackets int = 1024

// Relay
//
// Relay multiplexes the media of each published channel onto every
// connection playing it. It is safe for concurrent use.
type Relay struct {
	mux *sync.Map
}

func NewRelay() *Relay {
	return &Relay{
		mux: &sync.Map{},
	}
}

// relayStream is one channel. Writes to the cache and to the player
// queues happen under the same lock so a joining player sees every
// packet exactly once.
type relayStream struct {
	name string

	sync.Mutex
	cache   *Cache
	players map[string]*relayPlayer
}

type relayPlayer struct {
	conn     *Conn
	streamID uint32
	packets  chan *av.Packet
	dropped  int
}

func (r *Relay) stream(channel string) *relayStream {
	v, ok := r.mux.Load(channel)
	if !ok {
		v, _ = r.mux.LoadOrStore(channel, &relayStream{
			name:    channel,
			cache:   NewCache(),
			players: make(map[string]*relayPlayer),
		})
	}
	return v.(*relayStream)
}

// Publish caches p and queues it for every player of channel.
//
// Publish is designed to drop any packets that cannot be managed
// instead of returning an error.
func (r *Relay) Publish(channel string, p *av.Packet) {
	if err := DemuxHeader(p); err != nil {
		logger.Warning(rtmpMessage(fmt.Sprintf("%s: %v", channel, err), warn))
		return
	}
	s := r.stream(channel)
	s.Lock()
	defer s.Unlock()
	s.cache.Write(p)
	for _, pl := range s.players {
		pl.enqueue(p)
	}
}

// Unpublish forgets the cached media of channel. Players stay attached
// and receive the next publisher.
func (r *Relay) Unpublish(channel string) {
	s := r.stream(channel)
	s.Lock()
	defer s.Unlock()
	s.cache = NewCache()
	logger.Debug(rtmpMessage(fmt.Sprintf("unpublish %s", channel), stop))
}

// Subscribe attaches conn as a player of channel. Cached media is sent
// first, then live packets, all on message stream streamID.
func (r *Relay) Subscribe(channel string, conn *Conn, streamID uint32) {
	pl := &relayPlayer{
		conn:     conn,
		streamID: streamID,
		packets:  make(chan *av.Packet, DefaultMaximumBufferSizePackets),
	}
	s := r.stream(channel)
	s.Lock()
	if old, ok := s.players[conn.ID()]; ok {
		close(old.packets)
	}
	s.cache.Send(func(p *av.Packet) error {
		pl.enqueue(p)
		return nil
	})
	s.players[conn.ID()] = pl
	s.Unlock()

	logger.Debug(rtmpMessage(fmt.Sprintf("%s plays %s", conn.ID(), channel), media))
	go pl.stream(channel)
}

// Unsubscribe detaches conn from channel.
func (r *Relay) Unsubscribe(channel string, conn *Conn) {
	s := r.stream(channel)
	s.Lock()
	defer s.Unlock()
	if pl, ok := s.players[conn.ID()]; ok {
		close(pl.packets)
		delete(s.players, conn.ID())
	}
}

// Players is the number of connections playing channel.
func (r *Relay) Players(channel string) int {
	s := r.stream(channel)
	s.Lock()
	defer s.Unlock()
	return len(s.players)
}

func (pl *relayPlayer) enqueue(p *av.Packet) {
	select {
	case pl.packets <- p:
	default:
		pl.dropped++
		logger.Debug("Dropping Audio/Video packet... Buffer overflow...")
	}
}

// stream writes queued packets to the player until the queue is closed
// or a write fails.
func (pl *relayPlayer) stream(channel string) {
	for p := range pl.packets {
		m := NewPacketMessage(p)
		m.StreamID = pl.streamID
		if err := pl.conn.WriteMessages(m); err != nil {
			logger.Warning(rtmpMessage(fmt.Sprintf("%s to %s: %v", channel, pl.conn.ID(), err), warn))
			for range pl.packets {
			}
			return
		}
	}
}
