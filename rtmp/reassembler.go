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

	"github.com/gwuhaolin/livego/utils/pool"
)

// Payloads up to this size are carved out of the shared slab pool.
// Larger payloads get their own allocation.
const pooledPayloadSize = 64 * 1024

// PartialMessage is a message whose payload is still arriving.
type PartialMessage struct {
	ChunkStreamID uint32
	Length        uint32
	Received      uint32
	TypeID        uint32
	StreamID      uint32
	Timestamp     uint32

	payload []byte
}

func (pm *PartialMessage) Remaining() uint32 {
	return pm.Length - pm.Received
}

// Reassembler keeps one PartialMessage per chunk stream. Slots are
// correlated only by chunk stream ID, so any number of messages can be
// interleaved.
type Reassembler struct {
	slots map[uint32]*PartialMessage
	pool  *pool.Pool
}

func NewReassembler() *Reassembler {
	return &Reassembler{
		slots: make(map[uint32]*PartialMessage),
		pool:  pool.NewPool(),
	}
}

// Begin opens a slot for the message announced by hdr. A message of
// length zero is complete immediately and returned.
func (r *Reassembler) Begin(hdr *ChunkHeader) (*Message, error) {
	if _, ok := r.slots[hdr.ChunkStreamID]; ok {
		return nil, fmt.Errorf("%w: chunk stream %d", ErrIncompleteMessageOverwrite, hdr.ChunkStreamID)
	}
	pm := &PartialMessage{
		ChunkStreamID: hdr.ChunkStreamID,
		Length:        hdr.Length,
		TypeID:        hdr.TypeID,
		StreamID:      hdr.StreamID,
		Timestamp:     hdr.Timestamp,
	}
	if pm.Length == 0 {
		pm.payload = make([]byte, 0)
		return pm.message(), nil
	}
	r.slots[hdr.ChunkStreamID] = pm
	return nil, nil
}

// FragmentSize is the number of payload bytes the next chunk on csid
// carries for the given chunk size.
func (r *Reassembler) FragmentSize(csid, chunkSize uint32) uint32 {
	pm, ok := r.slots[csid]
	if !ok {
		return 0
	}
	if rem := pm.Remaining(); rem < chunkSize {
		return rem
	}
	return chunkSize
}

// Append adds one chunk of payload to the message in flight on csid.
// The completed Message is returned once the declared length arrived.
func (r *Reassembler) Append(csid uint32, fragment []byte, chunkSize uint32) (*Message, error) {
	pm, ok := r.slots[csid]
	if !ok {
		return nil, fmt.Errorf("%w: no message in flight on chunk stream %d", ErrUnknownChunkStreamReference, csid)
	}
	if want := r.FragmentSize(csid, chunkSize); uint32(len(fragment)) > want {
		return nil, fmt.Errorf("%w: %d byte fragment on chunk stream %d, expected at most %d",
			ErrChunkSizeViolation, len(fragment), csid, want)
	}
	r.grow(pm, fragment)
	pm.Received += uint32(len(fragment))
	if pm.Received < pm.Length {
		return nil, nil
	}
	delete(r.slots, csid)
	return pm.message(), nil
}

func (r *Reassembler) InFlight(csid uint32) bool {
	_, ok := r.slots[csid]
	return ok
}

// Remaining is the number of payload bytes still expected on csid.
func (r *Reassembler) Remaining(csid uint32) uint32 {
	if pm, ok := r.slots[csid]; ok {
		return pm.Remaining()
	}
	return 0
}

// Partial returns the message in flight on csid, if any.
func (r *Reassembler) Partial(csid uint32) *PartialMessage {
	return r.slots[csid]
}

// Abort discards the message in flight on csid. It reports whether
// there was one.
func (r *Reassembler) Abort(csid uint32) bool {
	if _, ok := r.slots[csid]; !ok {
		return false
	}
	delete(r.slots, csid)
	return true
}

// Len is the number of messages in flight.
func (r *Reassembler) Len() int {
	return len(r.slots)
}

// Buffered is the payload capacity held by messages in flight.
func (r *Reassembler) Buffered() int {
	n := 0
	for _, pm := range r.slots {
		n += cap(pm.payload)
	}
	return n
}

// grow appends fragment to the payload. Capacity stays within twice
// the bytes received, whatever length the header declared.
func (r *Reassembler) grow(pm *PartialMessage, fragment []byte) {
	if pm.payload == nil {
		size := pm.Length
		if limit := 2 * uint32(len(fragment)); size > limit {
			size = limit
		}
		pm.payload = r.alloc(size)[:0]
	}
	pm.payload = append(pm.payload, fragment...)
}

func (r *Reassembler) alloc(size uint32) []byte {
	if size == 0 || size > pooledPayloadSize {
		return make([]byte, size)
	}
	b := r.pool.Get(int(size))
	return b[:size:size]
}

func (pm *PartialMessage) message() *Message {
	return &Message{
		ChunkStreamID: pm.ChunkStreamID,
		StreamID:      pm.StreamID,
		TypeID:        pm.TypeID,
		Timestamp:     pm.Timestamp,
		Payload:       pm.payload,
	}
}
