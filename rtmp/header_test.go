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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, hdr ChunkHeader) []byte {
	b, err := EncodeHeader(nil, &hdr)
	require.NoError(t, err)
	return b
}

func TestEncodeHeaderLayout(t *testing.T) {
	b := encode(t, ChunkHeader{Format: 0, ChunkStreamID: 3, Timestamp: 1, Length: 2, TypeID: CommandMessageAMF0ID, StreamID: 1})
	require.Equal(t, []byte{0x03, 0, 0, 1, 0, 0, 2, 0x14, 1, 0, 0, 0}, b)

	b = encode(t, ChunkHeader{Format: 1, ChunkStreamID: 4, TimestampDelta: 0x10, Length: 0x0102, TypeID: AudioMessageID})
	require.Equal(t, []byte{0x44, 0, 0, 0x10, 0, 0x01, 0x02, 0x08}, b)

	b = encode(t, ChunkHeader{Format: 2, ChunkStreamID: 5, TimestampDelta: 33})
	require.Equal(t, []byte{0x85, 0, 0, 33}, b)

	b = encode(t, ChunkHeader{Format: 3, ChunkStreamID: 6})
	require.Equal(t, []byte{0xC6}, b)
}

func TestBasicHeaderForms(t *testing.T) {
	happyCases := map[uint32][]byte{
		2:     {0x02},
		63:    {0x3f},
		64:    {0x00, 0x00},
		319:   {0x00, 0xff},
		320:   {0x01, 0x00, 0x01},
		65599: {0x01, 0xff, 0xff},
	}
	for csid, basic := range happyCases {
		b := encode(t, ChunkHeader{Format: 0, ChunkStreamID: csid, Timestamp: 5, Length: 9, TypeID: VideoMessageID})
		require.Equal(t, basic, b[:len(basic)], "csid %d", csid)
		require.Len(t, b, len(basic)+messageHeaderSize0)

		table := NewContextTable()
		hdr, n, err := ParseHeader(b, table)
		require.NoError(t, err)
		require.Equal(t, len(b), n)
		require.Equal(t, csid, hdr.ChunkStreamID)
		require.Equal(t, uint32(5), hdr.Timestamp)
		require.NotNil(t, table.Get(csid))
	}
}

func TestEncodeHeaderMalformed(t *testing.T) {
	sadCases := map[string]ChunkHeader{
		"csid 0":      {Format: 0, ChunkStreamID: 0},
		"csid 1":      {Format: 0, ChunkStreamID: 1},
		"csid 65600":  {Format: 0, ChunkStreamID: 65600},
		"format 4":    {Format: 4, ChunkStreamID: 3},
		"length 2^24": {Format: 0, ChunkStreamID: 3, Length: 1 << 24},
	}
	for name, hdr := range sadCases {
		_, err := EncodeHeader(nil, &hdr)
		require.True(t, errors.Is(err, ErrMalformedHeader), name)
	}
}

func TestDecodeHeaderNeedMoreData(t *testing.T) {
	b := encode(t, ChunkHeader{Format: 0, ChunkStreamID: 400, Timestamp: 0x01000000, Length: 10, TypeID: VideoMessageID, StreamID: 1})
	require.Len(t, b, 3+11+4)
	table := NewContextTable()
	for i := 0; i < len(b); i++ {
		_, n, err := DecodeHeader(b[:i], table, nil)
		require.Equal(t, ErrNeedMoreData, err, "prefix %d", i)
		require.Zero(t, n)
		require.Zero(t, table.Len())
	}
	hdr, n, err := ParseHeader(b, table)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
	require.True(t, hdr.HasExtendedTimestamp)
	require.Equal(t, uint32(0x01000000), hdr.Timestamp)
}

func TestDecodeHeaderUnknownReference(t *testing.T) {
	table := NewContextTable()
	for _, b := range [][]byte{{0x83, 0, 0, 1}, {0xC3}, {0xC0, 0x10}} {
		_, _, err := DecodeHeader(b, table, nil)
		require.True(t, errors.Is(err, ErrUnknownChunkStreamReference), "% x", b)
	}
	hdr := ChunkHeader{Format: 2, ChunkStreamID: 3}
	require.True(t, errors.Is(table.Commit(&hdr), ErrUnknownChunkStreamReference))
	require.Zero(t, table.Len())

	// Type 1 creates the row
	_, _, err := ParseHeader([]byte{0x43, 0, 0, 1, 0, 0, 4, 0x09}, table)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
}

func TestFormat3InheritsFormat0(t *testing.T) {
	table := NewContextTable()
	first := encode(t, ChunkHeader{Format: 0, ChunkStreamID: 7, Timestamp: 1000, Length: 50, TypeID: VideoMessageID, StreamID: 1})
	_, _, err := ParseHeader(first, table)
	require.NoError(t, err)

	hdr, n, err := ParseHeader([]byte{0xC7}, table)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, uint8(3), hdr.Format)
	require.Equal(t, uint32(2000), hdr.Timestamp)
	require.Equal(t, uint32(1000), hdr.TimestampDelta)
	require.Equal(t, uint32(50), hdr.Length)
	require.Equal(t, VideoMessageID, hdr.TypeID)
	require.Equal(t, uint32(1), hdr.StreamID)
}

func TestFormat3ReusesDelta(t *testing.T) {
	table := NewContextTable()
	_, _, err := ParseHeader(encode(t, ChunkHeader{Format: 0, ChunkStreamID: 4, Timestamp: 1000, Length: 20, TypeID: AudioMessageID, StreamID: 1}), table)
	require.NoError(t, err)
	hdr, _, err := ParseHeader(encode(t, ChunkHeader{Format: 2, ChunkStreamID: 4, TimestampDelta: 40}), table)
	require.NoError(t, err)
	require.Equal(t, uint32(1040), hdr.Timestamp)
	require.Equal(t, uint32(20), hdr.Length)

	hdr, _, err = ParseHeader([]byte{0xC4}, table)
	require.NoError(t, err)
	require.Equal(t, uint32(1080), hdr.Timestamp)
	require.Equal(t, uint32(40), hdr.TimestampDelta)

	hdr, _, err = ParseHeader(encode(t, ChunkHeader{Format: 1, ChunkStreamID: 4, TimestampDelta: 5, Length: 7, TypeID: VideoMessageID}), table)
	require.NoError(t, err)
	require.Equal(t, uint32(1085), hdr.Timestamp)
	require.Equal(t, uint32(1), hdr.StreamID)
	require.Equal(t, uint32(7), table.Get(4).Length)
}

func TestExtendedTimestamp(t *testing.T) {
	table := NewContextTable()
	b := []byte{0x03, 0xff, 0xff, 0xff, 0, 0, 1, 0x12, 0, 0, 0, 0, 0x7f, 0x00, 0x00, 0x01}
	hdr, n, err := ParseHeader(b, table)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
	require.True(t, hdr.HasExtendedTimestamp)
	require.Equal(t, uint32(0x7f000001), hdr.Timestamp)
	require.True(t, table.Get(3).Extended)

	// A type 3 chunk after an extended header carries the field too
	hdr, n, err = ParseHeader([]byte{0xC3, 0x7f, 0x00, 0x00, 0x05}, table)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, uint32(0x7f000005), hdr.Timestamp)

	// Type 1 delta that is extended accumulates
	hdr, _, err = ParseHeader([]byte{0x43, 0xff, 0xff, 0xff, 0, 0, 1, 0x12, 0x01, 0x00, 0x00, 0x00}, table)
	require.NoError(t, err)
	require.Equal(t, uint32(0x7f000005+0x01000000), hdr.Timestamp)
	require.Equal(t, uint32(0x01000000), hdr.TimestampDelta)
}

func TestExtendedTimestampRawDetection(t *testing.T) {
	table := NewContextTable()
	_, _, err := ParseHeader(encode(t, ChunkHeader{Format: 0, ChunkStreamID: 3, Timestamp: 0xFFFFF0, Length: 1, TypeID: AudioMessageID}), table)
	require.NoError(t, err)
	require.False(t, table.Get(3).Extended)

	// The accumulated timestamp passes 0xFFFFFF but the raw delta does
	// not, so no extended field follows.
	hdr, n, err := ParseHeader([]byte{0x83, 0x00, 0x00, 0x20}, table)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.False(t, hdr.HasExtendedTimestamp)
	require.Equal(t, uint32(0x1000010), hdr.Timestamp)
}

type inFlightSet map[uint32]bool

func (s inFlightSet) InFlight(csid uint32) bool { return s[csid] }

func TestFormat3Continuation(t *testing.T) {
	table := NewContextTable()
	_, _, err := ParseHeader(encode(t, ChunkHeader{Format: 0, ChunkStreamID: 3, Timestamp: 10, Length: 300, TypeID: VideoMessageID}), table)
	require.NoError(t, err)
	_, _, err = ParseHeader(encode(t, ChunkHeader{Format: 2, ChunkStreamID: 3, TimestampDelta: 30}), table)
	require.NoError(t, err)

	hdr, _, err := DecodeHeader([]byte{0xC3}, table, inFlightSet{3: true})
	require.NoError(t, err)
	require.True(t, hdr.Continuation)
	require.Equal(t, uint32(40), hdr.Timestamp)
	require.NoError(t, table.Commit(&hdr))
	require.Equal(t, uint32(40), table.Get(3).Timestamp)

	hdr, _, err = DecodeHeader([]byte{0xC3}, table, inFlightSet{})
	require.NoError(t, err)
	require.False(t, hdr.Continuation)
	require.Equal(t, uint32(70), hdr.Timestamp)
}
