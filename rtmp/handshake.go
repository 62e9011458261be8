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
	"bytes"
	"fmt"
	"io"
	"math/rand"

	"github.com/gwuhaolin/livego/utils/pio"
	"github.com/kris-nova/logger"
)

// 5.2. Handshake
//
// An RTMP connection begins with a handshake. The handshake is unlike
// the rest of the protocol; it consists of three static-sized chunks
// rather than consisting of variable-sized chunks with headers.
//
//   +-------------+                            +-------------+
//   |   Client    |        TCP/IP Network      |    Server   |
//   +-------------+             |              +-------------+
//         |                     |                     |
//    Uninitialized              |               Uninitialized
//         |          C0         |                     |
//         |-------------------->|         C0          |
//         |                     |-------------------->|
//         |          C1         |                     |
//         |-------------------->|         S0          |
//         |                     |<--------------------|
//         |                     |         S1          |
//    Version sent               |<--------------------|
//         |          S0         |                     |
//         |<--------------------|                     |
//         |          S1         |                     |
//         |<--------------------|                Version sent
//         |                     |         C1          |
//         |                     |-------------------->|
//         |          C2         |                     |
//         |-------------------->|         S2          |
//         |                     |<--------------------|
//      Ack sent                 |                  Ack Sent
//         |          S2         |                     |
//         |<--------------------|                     |
//         |                     |         C2          |
//         |                     |-------------------->|
//  Handshake Done               |               Handshake Done
//         |                     |                     |
const (
	HandshakeVersion      byte = 3
	HandshakeVersionSize  int  = 1
	HandshakeFragmentSize int  = 1536
	HandshakePayloadSize  int  = HandshakeFragmentSize - 8
)

type HandshakeRole int

const (
	RoleInitiator HandshakeRole = iota
	RoleResponder
)

func (r HandshakeRole) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

type HandshakeState int

const (
	HandshakeStateUninitialized HandshakeState = iota
	HandshakeStateVersionSent
	HandshakeStateAckSent
	HandshakeStateDone
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeStateUninitialized:
		return "Uninitialized"
	case HandshakeStateVersionSent:
		return "VersionSent"
	case HandshakeStateAckSent:
		return "AckSent"
	case HandshakeStateDone:
		return "Done"
	}
	return "Unknown"
}

type HandshakeEventKind int

const (
	EventVersionReceived HandshakeEventKind = iota + 1
	EventFirstFragmentReceived
	EventSecondFragmentReceived
	EventReady
)

func (k HandshakeEventKind) String() string {
	switch k {
	case EventVersionReceived:
		return "VersionReceived"
	case EventFirstFragmentReceived:
		return "FirstFragmentReceived"
	case EventSecondFragmentReceived:
		return "SecondFragmentReceived"
	case EventReady:
		return "Ready"
	}
	return "Unknown"
}

// HandshakeEvent is a milestone produced by Handshake.Feed. Epoch and
// PeerEpoch are only meaningful on EventReady and on
// EventFirstFragmentReceived (PeerEpoch only).
type HandshakeEvent struct {
	Kind      HandshakeEventKind
	Epoch     uint32
	PeerEpoch uint32
}

type HandshakeConfig struct {
	// Epoch is the local time written into our first data fragment.
	Epoch uint32

	// Payload is the fill data of our first data fragment. Shorter
	// payloads are padded with random bytes, longer ones truncated.
	// When empty the whole payload is random.
	Payload []byte

	// StrictEcho fails the handshake when the peer's echo fragment
	// does not carry our time and payload back verbatim.
	StrictEcho bool
}

// Handshake is the negotiator for one side of one connection. It never
// reads from the network itself; bytes are pushed in with Feed and any
// reply is written to the io.Writer given to NewHandshake.
//
// A Handshake is not safe for concurrent use.
type Handshake struct {
	role  HandshakeRole
	state HandshakeState
	w     io.Writer
	cfg   HandshakeConfig

	localEpoch   uint32
	peerEpoch    uint32
	localPayload []byte
	peerPayload  []byte

	// recv counts the fragments read from the peer: 0 version, 1 first, 2 echo.
	recv      int
	buf       []byte
	remainder []byte
	started   bool
	err       error
}

func NewHandshake(role HandshakeRole, w io.Writer, cfg HandshakeConfig) *Handshake {
	payload := make([]byte, HandshakePayloadSize)
	n := copy(payload, cfg.Payload)
	if n < HandshakePayloadSize {
		rand.Read(payload[n:])
	}
	return &Handshake{
		role:         role,
		state:        HandshakeStateUninitialized,
		w:            w,
		cfg:          cfg,
		localEpoch:   cfg.Epoch,
		localPayload: payload,
	}
}

func (h *Handshake) Role() HandshakeRole   { return h.role }
func (h *Handshake) State() HandshakeState { return h.state }
func (h *Handshake) Done() bool            { return h.state == HandshakeStateDone }
func (h *Handshake) Epoch() uint32         { return h.localEpoch }
func (h *Handshake) PeerEpoch() uint32     { return h.peerEpoch }

// PeerPayload returns the fill data of the peer's first data fragment,
// or nil if it has not arrived yet.
func (h *Handshake) PeerPayload() []byte { return h.peerPayload }

// Start begins the handshake. A responder only starts listening. An
// initiator writes C0 and C1.
func (h *Handshake) Start() error {
	if h.err != nil {
		return ErrHandshakeClosed
	}
	if h.started {
		return fmt.Errorf("%w: already started", ErrHandshake)
	}
	h.started = true
	if h.role == RoleResponder {
		logger.Debug(rtmpMessage("handshake listening", hs))
		return nil
	}
	if err := h.write(h.versionAndFirst()); err != nil {
		return err
	}
	h.state = HandshakeStateVersionSent
	logger.Debug(rtmpMessage("C0C1", tx))
	return nil
}

// Feed consumes handshake bytes and returns the milestones they
// completed, in order. Partial fragments are buffered until the rest
// arrives. Bytes that follow the echo fragment are kept for Remainder.
//
// Every error returned by Feed is fatal. Later calls return
// ErrHandshakeClosed.
func (h *Handshake) Feed(p []byte) ([]HandshakeEvent, error) {
	if h.err != nil {
		return nil, ErrHandshakeClosed
	}
	if !h.started {
		return nil, h.fail(fmt.Errorf("%w: feed before start", ErrHandshake))
	}
	if h.state == HandshakeStateDone {
		h.remainder = append(h.remainder, p...)
		return nil, nil
	}
	h.buf = append(h.buf, p...)

	var events []HandshakeEvent
	for h.state != HandshakeStateDone {
		switch h.recv {
		case 0:
			if len(h.buf) < HandshakeVersionSize {
				return events, nil
			}
			if v := h.buf[0]; v != HandshakeVersion {
				return events, h.fail(fmt.Errorf("%w: received version %d", ErrInvalidVersion, v))
			}
			h.consume(HandshakeVersionSize)
			h.recv++
			events = append(events, HandshakeEvent{Kind: EventVersionReceived})
			logger.Debug(rtmpMessage("version", hs))
		case 1:
			if len(h.buf) < HandshakeFragmentSize {
				return events, nil
			}
			first := h.consume(HandshakeFragmentSize)
			h.recv++
			h.peerEpoch = pio.U32BE(first[0:4])
			h.peerPayload = append([]byte(nil), first[8:]...)
			events = append(events, HandshakeEvent{Kind: EventFirstFragmentReceived, PeerEpoch: h.peerEpoch})
			logger.Debug(rtmpMessage(fmt.Sprintf("first fragment peer epoch=%d", h.peerEpoch), hs))
			if err := h.reply(); err != nil {
				return events, h.fail(err)
			}
		case 2:
			if len(h.buf) < HandshakeFragmentSize {
				return events, nil
			}
			echo := h.consume(HandshakeFragmentSize)
			h.recv++
			if h.cfg.StrictEcho {
				if pio.U32BE(echo[0:4]) != h.localEpoch || !bytes.Equal(echo[8:], h.localPayload) {
					return events, h.fail(fmt.Errorf("%w: echo fragment does not match", ErrHandshake))
				}
			}
			events = append(events, HandshakeEvent{Kind: EventSecondFragmentReceived})
			h.state = HandshakeStateDone
			h.remainder = append(h.remainder, h.buf...)
			h.buf = nil
			events = append(events, HandshakeEvent{Kind: EventReady, Epoch: h.localEpoch, PeerEpoch: h.peerEpoch})
			logger.Debug(rtmpMessage(fmt.Sprintf("handshake done role=%s", h.role), ack))
		}
	}
	return events, nil
}

// Remainder returns the bytes that arrived after the handshake
// completed and clears them. They belong to the chunk stream.
func (h *Handshake) Remainder() []byte {
	r := h.remainder
	h.remainder = nil
	return r
}

// Close freezes the handshake. Closing with a partially received
// fragment is reported as ErrHandshake.
func (h *Handshake) Close() error {
	if h.err != nil {
		return nil
	}
	var err error
	if h.state != HandshakeStateDone && len(h.buf) > 0 {
		err = fmt.Errorf("%w: closed with %d bytes of incomplete fragment", ErrHandshake, len(h.buf))
	}
	h.err = ErrHandshakeClosed
	h.buf = nil
	return err
}

// reply answers the peer's first data fragment. A responder sends
// S0 and S1 followed by the S2 echo. An initiator sends the C2 echo.
func (h *Handshake) reply() error {
	if h.role == RoleResponder {
		if err := h.write(h.versionAndFirst()); err != nil {
			return err
		}
		h.state = HandshakeStateVersionSent
		logger.Debug(rtmpMessage("S0S1", tx))
	}
	if err := h.write(h.echo()); err != nil {
		return err
	}
	h.state = HandshakeStateAckSent
	logger.Debug(rtmpMessage("echo", tx))
	return nil
}

func (h *Handshake) versionAndFirst() []byte {
	p := make([]byte, HandshakeVersionSize+HandshakeFragmentSize)
	p[0] = HandshakeVersion
	pio.PutU32BE(p[1:5], h.localEpoch)
	pio.PutU32BE(p[5:9], 0)
	copy(p[9:], h.localPayload)
	return p
}

func (h *Handshake) echo() []byte {
	p := make([]byte, HandshakeFragmentSize)
	pio.PutU32BE(p[0:4], h.peerEpoch)
	pio.PutU32BE(p[4:8], h.localEpoch)
	copy(p[8:], h.peerPayload)
	return p
}

func (h *Handshake) write(p []byte) error {
	if _, err := h.w.Write(p); err != nil {
		return fmt.Errorf("%w: write: %v", ErrHandshake, err)
	}
	return nil
}

func (h *Handshake) consume(n int) []byte {
	p := h.buf[:n]
	h.buf = h.buf[n:]
	return p
}

func (h *Handshake) fail(err error) error {
	h.err = err
	h.buf = nil
	logger.Debug(rtmpMessage(err.Error(), danger))
	return err
}
