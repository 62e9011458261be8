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
)

// Cache keeps what a player joining a live stream needs before the
// next keyframe: the metadata, the audio and video sequence headers and
// the packets of the current group of pictures.
type Cache struct {
	gop      *GopCache
	videoSeq *av.Packet
	audioSeq *av.Packet
	metadata *av.Packet
}

func NewCache() *Cache {
	return &Cache{
		gop: NewGopCache(),
	}
}

// Write caches p. The packet header must already be demuxed.
func (cache *Cache) Write(p *av.Packet) {
	if p.IsMetadata {
		cache.metadata = p
		return
	}
	if !p.IsVideo {
		ah, ok := p.Header.(av.AudioPacketHeader)
		if ok && ah.SoundFormat() == av.SOUND_AAC && ah.AACPacketType() == av.AAC_SEQHDR {
			cache.audioSeq = p
			return
		}
	} else {
		vh, ok := p.Header.(av.VideoPacketHeader)
		if !ok {
			return
		}
		if vh.IsSeq() {
			cache.videoSeq = p
			return
		}
	}
	cache.gop.Write(p)
}

// Send hands every cached packet to w in playback order.
func (cache *Cache) Send(w func(*av.Packet) error) error {
	for _, p := range []*av.Packet{cache.metadata, cache.videoSeq, cache.audioSeq} {
		if p == nil {
			continue
		}
		if err := w(p); err != nil {
			return err
		}
	}
	return cache.gop.Send(w)
}

// Len is the number of cached packets.
func (cache *Cache) Len() int {
	n := len(cache.gop.packets)
	for _, p := range []*av.Packet{cache.metadata, cache.videoSeq, cache.audioSeq} {
		if p != nil {
			n++
		}
	}
	return n
}

var (
	maxGOPCap    int = 1024
	ErrGopTooBig     = fmt.Errorf("gop to big")
)

// GopCache holds the packets since the most recent video keyframe.
// Nothing is cached until the first keyframe arrives.
type GopCache struct {
	start   bool
	packets []*av.Packet
}

func NewGopCache() *GopCache {
	return &GopCache{
		packets: make([]*av.Packet, 0, maxGOPCap),
	}
}

func (gopCache *GopCache) Write(p *av.Packet) error {
	var key bool
	if p.IsVideo {
		if vh, ok := p.Header.(av.VideoPacketHeader); ok && vh.IsKeyFrame() && !vh.IsSeq() {
			key = true
		}
	}
	if !key && !gopCache.start {
		return nil
	}
	gopCache.start = true
	if key {
		gopCache.packets = gopCache.packets[:0]
	}
	if len(gopCache.packets) >= maxGOPCap {
		return ErrGopTooBig
	}
	gopCache.packets = append(gopCache.packets, p)
	return nil
}

func (gopCache *GopCache) Send(w func(*av.Packet) error) error {
	for _, p := range gopCache.packets {
		if err := w(p); err != nil {
			return err
		}
	}
	return nil
}
