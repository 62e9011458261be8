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
	"sync"

	"github.com/gwuhaolin/livego/av"
	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/gwuhaolin/livego/utils/pio"
	"github.com/kris-nova/logger"
)

// Tag is the media header at the front of the payload of an audio or
// video message. It implements av.AudioPacketHeader and
// av.VideoPacketHeader.
type Tag struct {
	/*
		SoundFormat: UB[4]
		0 = Linear PCM, platform endian
		1 = ADPCM
		2 = MP3
		3 = Linear PCM, little endian
		4 = Nellymoser 16-kHz mono
		5 = Nellymoser 8-kHz mono
		6 = Nellymoser
		7 = G.711 A-law logarithmic PCM
		8 = G.711 mu-law logarithmic PCM
		10 = AAC
		11 = Speex
		14 = MP3 8-Khz
		15 = Device-specific sound
	*/
	soundFormat uint8
	soundRate   uint8
	soundSize   uint8
	soundType   uint8

	/*
		0: AAC sequence header
		1: AAC raw
	*/
	aacPacketType uint8

	/*
		1: keyframe (for AVC, a seekable frame)
		2: inter frame (for AVC, a non- seekable frame)
		3: disposable inter frame (H.263 only)
		4: generated keyframe (reserved for server use only)
		5: video info/command frame
	*/
	frameType uint8

	/*
		2: Sorenson H.263
		3: Screen video
		4: On2 VP6
		5: On2 VP6 with alpha channel
		6: Screen video version 2
		7: AVC
	*/
	codecID uint8

	/*
		0: AVC sequence header
		1: AVC NALU
		2: AVC end of sequence
	*/
	avcPacketType uint8

	compositionTime int32
}

func (tag *Tag) SoundFormat() uint8     { return tag.soundFormat }
func (tag *Tag) AACPacketType() uint8   { return tag.aacPacketType }
func (tag *Tag) CodecID() uint8         { return tag.codecID }
func (tag *Tag) CompositionTime() int32 { return tag.compositionTime }

func (tag *Tag) IsKeyFrame() bool {
	return tag.frameType == av.FRAME_KEY
}

func (tag *Tag) IsSeq() bool {
	return tag.frameType == av.FRAME_KEY &&
		tag.avcPacketType == av.AVC_SEQHDR
}

// ParseMediaTagHeader parses the audio or video tag header at the start
// of b and returns its length.
func (tag *Tag) ParseMediaTagHeader(b []byte, isVideo bool) (int, error) {
	if isVideo {
		return tag.parseVideoHeader(b)
	}
	return tag.parseAudioHeader(b)
}

func (tag *Tag) parseAudioHeader(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, fmt.Errorf("invalid audio data len=%d", len(b))
	}
	flags := b[0]
	tag.soundFormat = flags >> 4
	tag.soundRate = (flags >> 2) & 0x3
	tag.soundSize = (flags >> 1) & 0x1
	tag.soundType = flags & 0x1
	if tag.soundFormat != av.SOUND_AAC {
		return 1, nil
	}
	if len(b) < 2 {
		return 0, fmt.Errorf("invalid aac data len=%d", len(b))
	}
	tag.aacPacketType = b[1]
	return 2, nil
}

func (tag *Tag) parseVideoHeader(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, fmt.Errorf("invalid video data len=%d", len(b))
	}
	flags := b[0]
	tag.frameType = flags >> 4
	tag.codecID = flags & 0xf
	if tag.frameType != av.FRAME_INTER && tag.frameType != av.FRAME_KEY {
		return 1, nil
	}
	if len(b) < 5 {
		return 0, fmt.Errorf("invalid video data len=%d", len(b))
	}
	tag.avcPacketType = b[1]
	tag.compositionTime = int32(pio.I24BE(b[2:5]))
	return 5, nil
}

// DemuxHeader parses the tag header of an audio or video packet into
// p.Header. The payload is left untouched.
func DemuxHeader(p *av.Packet) error {
	if p.IsMetadata {
		return nil
	}
	tag := &Tag{}
	if _, err := tag.ParseMediaTagHeader(p.Data, p.IsVideo); err != nil {
		return err
	}
	p.Header = tag
	return nil
}

var flvHeader = []byte{0x46, 0x4c, 0x56, 0x01, 0x05, 0x00, 0x00, 0x00, 0x09}

const flvTagHeaderLen = 11

// FLVWriter records every packet it receives as an FLV file. It is a
// MediaSink.
type FLVWriter struct {
	w   io.Writer
	buf []byte
	mu  sync.Mutex

	tags int
}

// NewFLVWriter writes the FLV file header to w.
func NewFLVWriter(w io.Writer) (*FLVWriter, error) {
	writer := &FLVWriter{
		w:   w,
		buf: make([]byte, flvTagHeaderLen),
	}
	pio.PutU32BE(writer.buf[:4], 0)
	if _, err := w.Write(flvHeader); err != nil {
		return nil, err
	}
	if _, err := w.Write(writer.buf[:4]); err != nil {
		return nil, err
	}
	return writer, nil
}

func (writer *FLVWriter) WritePacket(conn *Conn, p *av.Packet) error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	data := p.Data
	typeID := uint32(av.TAG_AUDIO)
	switch {
	case p.IsVideo:
		typeID = av.TAG_VIDEO
	case p.IsMetadata:
		var err error
		typeID = av.TAG_SCRIPTDATAAMF0
		data, err = amf.MetaDataReform(data, amf.DEL)
		if err != nil {
			return err
		}
	}

	h := writer.buf[:flvTagHeaderLen]
	h[0] = byte(typeID)
	pio.PutU24BE(h[1:4], uint32(len(data)))
	pio.PutU24BE(h[4:7], p.TimeStamp&0xFFFFFF)
	h[7] = byte(p.TimeStamp >> 24)
	pio.PutU24BE(h[8:11], 0)
	if _, err := writer.w.Write(h); err != nil {
		return err
	}
	if _, err := writer.w.Write(data); err != nil {
		return err
	}
	pio.PutU32BE(h[:4], uint32(flvTagHeaderLen+len(data)))
	if _, err := writer.w.Write(h[:4]); err != nil {
		return err
	}
	writer.tags++
	logger.Debug(rtmpMessage(fmt.Sprintf("flv tag %d type=%d len=%d", writer.tags, typeID, len(data)), media))
	return nil
}

// Tags is the number of tags written so far.
func (writer *FLVWriter) Tags() int {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	return writer.tags
}
