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

// ChunkStreamContext
//
// 5.3.1.2. Chunk Message Header
//
// The last header fields observed on one chunk stream. Type 1, 2 and 3
// chunk headers omit fields and the receiver fills them in from here.
type ChunkStreamContext struct {
	// CSID is the chunk stream ID this row belongs to.
	CSID uint32

	// Timestamp is the absolute timestamp of the last message header
	// seen on this chunk stream.
	Timestamp uint32

	// TimestampDelta is the delta carried by the last type 1 or type 2
	// header. A type 0 header stores its timestamp field here.
	TimestampDelta uint32

	// Length of the message payload. This field occupies 3 bytes in
	// the chunk header.
	Length uint32

	// TypeID occupies 1 byte in the chunk header.
	TypeID uint32

	// The message stream ID can be any arbitrary value. This field
	// occupies 4 bytes in the chunk header in little endian format.
	StreamID uint32

	// Format is the format of the last header that carried a
	// timestamp field (0, 1 or 2).
	Format uint8

	// Extended is true when the raw 3 byte timestamp field of the last
	// header that carried one was 0xFFFFFF. Type 3 chunks on this
	// stream then carry a 4 byte extended timestamp too.
	Extended bool
}

// ContextTable maps chunk stream IDs to their context rows. One table
// per direction per connection.
type ContextTable struct {
	rows map[uint32]*ChunkStreamContext
}

func NewContextTable() *ContextTable {
	return &ContextTable{
		rows: make(map[uint32]*ChunkStreamContext),
	}
}

// Get returns the row for csid, or nil if the chunk stream has never
// carried a type 0 or type 1 header.
func (t *ContextTable) Get(csid uint32) *ChunkStreamContext {
	return t.rows[csid]
}

func (t *ContextTable) Len() int {
	return len(t.rows)
}

// Commit records the fields present in hdr. Type 0 and type 1 headers
// create the row when it is missing. Type 2 and type 3 headers on an
// unknown chunk stream are rejected with ErrUnknownChunkStreamReference.
func (t *ContextTable) Commit(hdr *ChunkHeader) error {
	row, ok := t.rows[hdr.ChunkStreamID]
	if !ok {
		if hdr.Format > 1 {
			return unknownChunkStream(hdr.ChunkStreamID, hdr.Format)
		}
		row = &ChunkStreamContext{CSID: hdr.ChunkStreamID}
		t.rows[hdr.ChunkStreamID] = row
	}
	switch hdr.Format {
	case 0:
		row.StreamID = hdr.StreamID
		fallthrough
	case 1:
		row.Length = hdr.Length
		row.TypeID = hdr.TypeID
		fallthrough
	case 2:
		row.Format = hdr.Format
		row.Extended = hdr.HasExtendedTimestamp
		row.TimestampDelta = hdr.TimestampDelta
		row.Timestamp = hdr.Timestamp
	case 3:
		if !hdr.Continuation {
			row.TimestampDelta = hdr.TimestampDelta
			row.Timestamp = hdr.Timestamp
		}
	}
	return nil
}
