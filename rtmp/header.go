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

// 5.3.1. Chunk Format
//
//   +--------------+----------------+--------------------+--------------+
//   | Basic Header | Message Header | Extended Timestamp |  Chunk Data  |
//   +--------------+----------------+--------------------+--------------+
//   |                                                    |
//   |<------------------- Chunk Header ----------------->|
const (
	MinimumChunkStreamID uint32 = 2
	MaximumChunkStreamID uint32 = 65599

	// Message header size by format
	messageHeaderSize0 = 11
	messageHeaderSize1 = 7
	messageHeaderSize2 = 3
	messageHeaderSize3 = 0

	extendedTimestampSize = 4
)

var messageHeaderSize = [4]int{messageHeaderSize0, messageHeaderSize1, messageHeaderSize2, messageHeaderSize3}

// ChunkHeader is one decoded chunk header with every field resolved
// against the chunk stream context. Timestamp is always absolute.
type ChunkHeader struct {
	Format        uint8
	ChunkStreamID uint32

	Timestamp      uint32
	TimestampDelta uint32
	Length         uint32
	TypeID         uint32
	StreamID       uint32

	// HasExtendedTimestamp is true when the chunk carries the 4 byte
	// extended timestamp field. ExtendedTimestamp is its raw value.
	HasExtendedTimestamp bool
	ExtendedTimestamp    uint32

	// Continuation is true for a type 3 chunk that carries more
	// payload of a message already in flight on this chunk stream.
	Continuation bool
}

// InFlightChecker reports whether a chunk stream has a partially
// received message. Reassembler implements it.
type InFlightChecker interface {
	InFlight(csid uint32) bool
}

// DecodeHeader decodes the chunk header at the start of p using the
// context rows in table. It returns the header and the number of bytes
// it occupies. Nothing is consumed or mutated: when p is too short the
// error is ErrNeedMoreData and the caller retries with more bytes.
//
// inflight decides whether a type 3 chunk continues a message or
// starts a new one. A nil inflight treats every type 3 chunk as the
// start of a new message.
func DecodeHeader(p []byte, table *ContextTable, inflight InFlightChecker) (ChunkHeader, int, error) {
	var hdr ChunkHeader
	if len(p) < 1 {
		return hdr, 0, ErrNeedMoreData
	}

	// 5.3.1.1. Chunk Basic Header
	hdr.Format = p[0] >> 6
	n := 1
	switch sel := uint32(p[0] & 0x3f); sel {
	case 0:
		if len(p) < 2 {
			return hdr, 0, ErrNeedMoreData
		}
		hdr.ChunkStreamID = 64 + uint32(p[1])
		n = 2
	case 1:
		if len(p) < 3 {
			return hdr, 0, ErrNeedMoreData
		}
		hdr.ChunkStreamID = 64 + uint32(p[1]) + uint32(p[2])*256
		n = 3
	default:
		hdr.ChunkStreamID = sel
	}

	row := table.Get(hdr.ChunkStreamID)
	if row == nil && hdr.Format > 1 {
		return hdr, 0, unknownChunkStream(hdr.ChunkStreamID, hdr.Format)
	}
	if row == nil {
		row = &ChunkStreamContext{CSID: hdr.ChunkStreamID}
	}

	// 5.3.1.2. Chunk Message Header
	size := messageHeaderSize[hdr.Format]
	if len(p) < n+size {
		return hdr, 0, ErrNeedMoreData
	}
	mh := p[n : n+size]
	n += size

	var field uint32
	switch hdr.Format {
	case 0:
		field = pio.U24BE(mh[0:3])
		hdr.Length = pio.U24BE(mh[3:6])
		hdr.TypeID = uint32(mh[6])
		hdr.StreamID = pio.U32LE(mh[7:11])
		hdr.HasExtendedTimestamp = field == ExtendedTimestampMarker
	case 1:
		field = pio.U24BE(mh[0:3])
		hdr.Length = pio.U24BE(mh[3:6])
		hdr.TypeID = uint32(mh[6])
		hdr.StreamID = row.StreamID
		hdr.HasExtendedTimestamp = field == ExtendedTimestampMarker
	case 2:
		field = pio.U24BE(mh[0:3])
		hdr.Length = row.Length
		hdr.TypeID = row.TypeID
		hdr.StreamID = row.StreamID
		hdr.HasExtendedTimestamp = field == ExtendedTimestampMarker
	case 3:
		hdr.Length = row.Length
		hdr.TypeID = row.TypeID
		hdr.StreamID = row.StreamID
		hdr.HasExtendedTimestamp = row.Extended
		hdr.Continuation = inflight != nil && inflight.InFlight(hdr.ChunkStreamID)
	}

	// 5.3.1.3. Extended Timestamp
	if hdr.HasExtendedTimestamp {
		if len(p) < n+extendedTimestampSize {
			return hdr, 0, ErrNeedMoreData
		}
		hdr.ExtendedTimestamp = pio.U32BE(p[n : n+extendedTimestampSize])
		n += extendedTimestampSize
		field = hdr.ExtendedTimestamp
	}

	switch hdr.Format {
	case 0:
		// The type 0 field doubles as the delta a following type 3
		// header starts a new message with.
		hdr.Timestamp = field
		hdr.TimestampDelta = field
	case 1, 2:
		hdr.TimestampDelta = field
		hdr.Timestamp = row.Timestamp + field
	case 3:
		hdr.TimestampDelta = row.TimestampDelta
		switch {
		case hdr.Continuation:
			hdr.Timestamp = row.Timestamp
		case row.Format == 0 && hdr.HasExtendedTimestamp:
			hdr.Timestamp = field
		case hdr.HasExtendedTimestamp:
			hdr.TimestampDelta = field
			hdr.Timestamp = row.Timestamp + field
		default:
			hdr.Timestamp = row.Timestamp + row.TimestampDelta
		}
	}
	return hdr, n, nil
}

// ParseHeader decodes the chunk header at the start of p and commits
// it to table. Type 3 chunks are always treated as the start of a new
// message; use DecodeHeader with an InFlightChecker when messages can
// span several chunks.
func ParseHeader(p []byte, table *ContextTable) (ChunkHeader, int, error) {
	hdr, n, err := DecodeHeader(p, table, nil)
	if err != nil {
		return hdr, 0, err
	}
	if err := table.Commit(&hdr); err != nil {
		return hdr, 0, err
	}
	return hdr, n, nil
}

// EncodeHeader appends the wire form of hdr to dst. Type 0 headers
// encode Timestamp and type 1 and 2 headers encode TimestampDelta,
// switching to the extended field when the value does not fit in 3
// bytes. Type 3 headers write ExtendedTimestamp when
// HasExtendedTimestamp is set.
func EncodeHeader(dst []byte, hdr *ChunkHeader) ([]byte, error) {
	if hdr.Format > 3 {
		return dst, fmt.Errorf("%w: format %d", ErrMalformedHeader, hdr.Format)
	}
	if hdr.Length > MaximumMessageLength {
		return dst, fmt.Errorf("%w: message length %d exceeds %d", ErrMalformedHeader, hdr.Length, MaximumMessageLength)
	}

	csid := hdr.ChunkStreamID
	f := hdr.Format << 6
	switch {
	case csid < MinimumChunkStreamID || csid > MaximumChunkStreamID:
		return dst, fmt.Errorf("%w: chunk stream id %d", ErrMalformedHeader, csid)
	case csid < 64:
		dst = append(dst, f|byte(csid))
	case csid < 64+256:
		dst = append(dst, f, byte(csid-64))
	default:
		id := csid - 64
		dst = append(dst, f|1, byte(id), byte(id>>8))
	}

	var field uint32
	switch hdr.Format {
	case 0:
		field = hdr.Timestamp
	case 1, 2:
		field = hdr.TimestampDelta
	}

	var b [messageHeaderSize0]byte
	mh := b[:messageHeaderSize[hdr.Format]]
	extended := hdr.HasExtendedTimestamp
	ext := hdr.ExtendedTimestamp
	if hdr.Format < 3 {
		extended = field >= ExtendedTimestampMarker
		ext = field
		if extended {
			pio.PutU24BE(mh[0:3], ExtendedTimestampMarker)
		} else {
			pio.PutU24BE(mh[0:3], field)
		}
	}
	if hdr.Format < 2 {
		pio.PutU24BE(mh[3:6], hdr.Length)
		mh[6] = byte(hdr.TypeID)
	}
	if hdr.Format == 0 {
		pio.PutU32LE(mh[7:11], hdr.StreamID)
	}
	dst = append(dst, mh...)

	if extended {
		var e [extendedTimestampSize]byte
		pio.PutU32BE(e[:], ext)
		dst = append(dst, e[:]...)
	}
	return dst, nil
}

func unknownChunkStream(csid uint32, format uint8) error {
	return fmt.Errorf("%w: type %d chunk on chunk stream %d", ErrUnknownChunkStreamReference, format, csid)
}
