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
	"io"

	"github.com/gwuhaolin/livego/utils/pio"
	"github.com/kris-nova/logger"
)

// Pipeline is the chunk stream engine of one connection. Inbound bytes
// go in through Feed and come out as complete messages. Outbound
// messages are split into chunks by Serialize.
//
// Each direction has its own context table and chunk size. A Pipeline
// is not safe for concurrent use; one goroutine owns it for the life of
// the connection.
type Pipeline struct {
	in    *ContextTable
	out   *ContextTable
	reasm *Reassembler

	readChunkSize    uint32
	writeChunkSize   uint32
	maxMessageLength uint32

	buf []byte
	err error
}

type PipelineOption func(*Pipeline)

// WithChunkSize sets the initial chunk size of both directions.
func WithChunkSize(size uint32) PipelineOption {
	return func(p *Pipeline) {
		p.readChunkSize = size
		p.writeChunkSize = size
	}
}

// WithMaxMessageLength caps the length a peer may declare for one
// message. Longer declarations fail with ErrMalformedHeader.
func WithMaxMessageLength(length uint32) PipelineOption {
	return func(p *Pipeline) {
		p.maxMessageLength = length
	}
}

func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		in:               NewContextTable(),
		out:              NewContextTable(),
		reasm:            NewReassembler(),
		readChunkSize:    DefaultChunkSize,
		writeChunkSize:   DefaultChunkSize,
		maxMessageLength: MaximumMessageLength,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) ReadChunkSize() uint32  { return p.readChunkSize }
func (p *Pipeline) WriteChunkSize() uint32 { return p.writeChunkSize }

// SetReadChunkSize changes the chunk size expected from the peer.
// Set Chunk Size messages received through Feed do this automatically.
func (p *Pipeline) SetReadChunkSize(size uint32) error {
	if err := validChunkSize(size); err != nil {
		return err
	}
	p.readChunkSize = size
	return nil
}

// SetWriteChunkSize changes the chunk size used by Serialize. The peer
// must be told with a Set Chunk Size message first; serializing one
// does this automatically.
func (p *Pipeline) SetWriteChunkSize(size uint32) error {
	if err := validChunkSize(size); err != nil {
		return err
	}
	p.writeChunkSize = size
	return nil
}

// InFlight is the number of inbound messages partially received.
func (p *Pipeline) InFlight() int { return p.reasm.Len() }

// Buffered is the number of inbound bytes held back waiting for the
// rest of a chunk.
func (p *Pipeline) Buffered() int { return len(p.buf) }

// Feed appends b to the inbound buffer and decodes every chunk that is
// now complete. It returns the messages those chunks completed, in
// arrival order. Feed never blocks and never waits for more bytes; an
// incomplete trailing chunk stays buffered for the next call.
//
// Errors are fatal. The failing call still returns the messages
// completed before the failure and every later call returns
// ErrPipelineClosed.
func (p *Pipeline) Feed(b []byte) ([]*Message, error) {
	if p.err != nil {
		return nil, ErrPipelineClosed
	}
	p.buf = append(p.buf, b...)

	var messages []*Message
	off := 0
	defer func() {
		p.buf = append(p.buf[:0], p.buf[off:]...)
	}()
	for {
		hdr, n, err := DecodeHeader(p.buf[off:], p.in, p.reasm)
		if err == ErrNeedMoreData {
			return messages, nil
		}
		if err != nil {
			return messages, p.fail(err)
		}
		csid := hdr.ChunkStreamID
		if hdr.Format < 2 && hdr.Length > p.maxMessageLength {
			return messages, p.fail(fmt.Errorf("%w: message length %d on chunk stream %d exceeds %d",
				ErrMalformedHeader, hdr.Length, csid, p.maxMessageLength))
		}
		if hdr.Format < 3 && p.reasm.InFlight(csid) {
			return messages, p.fail(fmt.Errorf("%w: type %d chunk on chunk stream %d with %d bytes outstanding",
				ErrIncompleteMessageOverwrite, hdr.Format, csid, p.reasm.Remaining(csid)))
		}

		frag := p.reasm.FragmentSize(csid, p.readChunkSize)
		if !hdr.Continuation {
			frag = hdr.Length
			if frag > p.readChunkSize {
				frag = p.readChunkSize
			}
		}
		if uint32(len(p.buf)-off-n) < frag {
			return messages, nil
		}
		if err := p.in.Commit(&hdr); err != nil {
			return messages, p.fail(err)
		}
		payload := p.buf[off+n : off+n+int(frag)]
		off += n + int(frag)

		if !hdr.Continuation {
			m, err := p.reasm.Begin(&hdr)
			if err != nil {
				return messages, p.fail(err)
			}
			if m != nil {
				if err := p.control(m); err != nil {
					return messages, p.fail(err)
				}
				messages = append(messages, m)
				continue
			}
		}
		m, err := p.reasm.Append(csid, payload, p.readChunkSize)
		if err != nil {
			return messages, p.fail(err)
		}
		if m == nil {
			continue
		}
		if err := p.control(m); err != nil {
			return messages, p.fail(err)
		}
		logger.Debug(rtmpMessage(fmt.Sprintf("message %s", m), rx))
		messages = append(messages, m)
	}
}

// control applies the chunk layer control messages the moment they
// complete, so the rest of the buffer is read with the new state.
func (p *Pipeline) control(m *Message) error {
	switch m.TypeID {
	case SetChunkSizeMessageID:
		size, err := ParseUint32Payload(m)
		if err != nil {
			return fmt.Errorf("%w: set chunk size: %v", ErrChunkSizeViolation, err)
		}
		if err := p.SetReadChunkSize(size); err != nil {
			return err
		}
		logger.Debug(rtmpMessage(fmt.Sprintf("read chunk size %d", size), ctrl))
	case AbortMessageID:
		csid, err := ParseUint32Payload(m)
		if err != nil {
			return fmt.Errorf("%w: abort: %v", ErrMalformedHeader, err)
		}
		if p.reasm.Abort(csid) {
			logger.Debug(rtmpMessage(fmt.Sprintf("abort chunk stream %d", csid), ctrl))
		}
	}
	return nil
}

// Serialize splits m into chunks using the outbound context table and
// chunk size. The first chunk gets the narrowest header that decodes
// back to m's fields. The others are type 3 continuations.
func (p *Pipeline) Serialize(m *Message) ([]byte, error) {
	csid := m.ChunkStreamID
	if csid == 0 {
		csid = defaultChunkStreamID(m.TypeID)
	}
	length := uint32(len(m.Payload))
	if uint64(len(m.Payload)) > uint64(MaximumMessageLength) {
		return nil, fmt.Errorf("%w: message length %d exceeds %d", ErrMalformedHeader, len(m.Payload), MaximumMessageLength)
	}
	if csid < MinimumChunkStreamID || csid > MaximumChunkStreamID {
		return nil, fmt.Errorf("%w: chunk stream id %d", ErrMalformedHeader, csid)
	}

	hdr := ChunkHeader{
		ChunkStreamID: csid,
		Timestamp:     m.Timestamp,
		Length:        length,
		TypeID:        m.TypeID,
		StreamID:      m.StreamID,
	}
	row := p.out.Get(csid)
	var delta uint32
	if row != nil {
		delta = m.Timestamp - row.Timestamp
	}
	switch {
	case row == nil || row.StreamID != m.StreamID || m.Timestamp < row.Timestamp:
		hdr.Format = 0
		hdr.TimestampDelta = m.Timestamp
		hdr.HasExtendedTimestamp = m.Timestamp >= ExtendedTimestampMarker
		hdr.ExtendedTimestamp = m.Timestamp
	case row.Length != length || row.TypeID != m.TypeID:
		hdr.Format = 1
	case row.Extended || delta != row.TimestampDelta:
		hdr.Format = 2
	case row.Format == 0 && row.Timestamp != 0:
		// Type 3 after type 0 reuses the type 0 field as its delta.
		hdr.Format = 2
	default:
		hdr.Format = 3
		hdr.TimestampDelta = row.TimestampDelta
	}
	if hdr.Format == 1 || hdr.Format == 2 {
		hdr.TimestampDelta = delta
		hdr.HasExtendedTimestamp = delta >= ExtendedTimestampMarker
		hdr.ExtendedTimestamp = delta
	}

	size := p.writeChunkSize
	chunks := (length + size - 1) / size
	if chunks == 0 {
		chunks = 1
	}
	out := make([]byte, 0, int(length)+int(chunks)*(3+messageHeaderSize0+extendedTimestampSize))
	out, err := EncodeHeader(out, &hdr)
	if err != nil {
		return nil, err
	}
	if err := p.out.Commit(&hdr); err != nil {
		return nil, err
	}

	cont := ChunkHeader{
		Format:               3,
		ChunkStreamID:        csid,
		HasExtendedTimestamp: hdr.HasExtendedTimestamp,
		ExtendedTimestamp:    hdr.ExtendedTimestamp,
		Continuation:         true,
	}
	for i := uint32(0); i < chunks; i++ {
		if i > 0 {
			if out, err = EncodeHeader(out, &cont); err != nil {
				return nil, err
			}
		}
		start := i * size
		end := start + size
		if end > length {
			end = length
		}
		out = append(out, m.Payload[start:end]...)
	}

	if m.TypeID == SetChunkSizeMessageID {
		if size, err := ParseUint32Payload(m); err == nil && validChunkSize(size) == nil {
			p.writeChunkSize = size
			logger.Debug(rtmpMessage(fmt.Sprintf("write chunk size %d", size), ctrl))
		}
	}
	return out, nil
}

// WriteMessage serializes m and writes every chunk to w.
func (p *Pipeline) WriteMessage(w io.Writer, m *Message) error {
	b, err := p.Serialize(m)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	logger.Debug(rtmpMessage(fmt.Sprintf("message %s", m), tx))
	return nil
}

// Close drops all inbound state. Later calls to Feed return
// ErrPipelineClosed.
func (p *Pipeline) Close() {
	if p.err == nil {
		p.err = ErrPipelineClosed
	}
	p.buf = nil
	p.reasm = NewReassembler()
}

func (p *Pipeline) fail(err error) error {
	p.err = err
	logger.Debug(rtmpMessage(err.Error(), danger))
	return err
}

// 5.4.1. Set Chunk Size (1)
//
// Bit 0 of the chunk size field must be zero. Valid sizes range from
// 1 to 2147483647.
func validChunkSize(size uint32) error {
	if size < 1 || size > MaximumChunkSize {
		return fmt.Errorf("%w: chunk size %d", ErrChunkSizeViolation, size)
	}
	return nil
}

func putUint32(v uint32) []byte {
	b := make([]byte, 4)
	pio.PutU32BE(b, v)
	return b
}
