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
	"errors"
	"testing"

	"github.com/gwuhaolin/livego/utils/pio"
)

func kinds(events []HandshakeEvent) []HandshakeEventKind {
	var ks []HandshakeEventKind
	for _, e := range events {
		ks = append(ks, e.Kind)
	}
	return ks
}

func equalKinds(a, b []HandshakeEventKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHandshakeInitiatorResponder(t *testing.T) {
	iw := &bytes.Buffer{}
	rw := &bytes.Buffer{}
	initiator := NewHandshake(RoleInitiator, iw, HandshakeConfig{Epoch: 1000, Payload: []byte("initiator"), StrictEcho: true})
	responder := NewHandshake(RoleResponder, rw, HandshakeConfig{Epoch: 2000, StrictEcho: true})

	if err := responder.Start(); err != nil {
		t.Fatalf("responder start: %v", err)
	}
	if rw.Len() != 0 {
		t.Errorf("responder wrote %d bytes on start", rw.Len())
	}
	if err := initiator.Start(); err != nil {
		t.Fatalf("initiator start: %v", err)
	}
	if initiator.State() != HandshakeStateVersionSent {
		t.Errorf("initiator state %s", initiator.State())
	}
	c0c1 := append([]byte(nil), iw.Bytes()...)
	iw.Reset()
	if len(c0c1) != HandshakeVersionSize+HandshakeFragmentSize || c0c1[0] != HandshakeVersion {
		t.Fatalf("bad C0C1 length=%d version=%d", len(c0c1), c0c1[0])
	}
	if pio.U32BE(c0c1[1:5]) != 1000 || pio.U32BE(c0c1[5:9]) != 0 {
		t.Errorf("bad C1 time fields")
	}
	if !bytes.HasPrefix(c0c1[9:], []byte("initiator")) {
		t.Errorf("C1 payload does not start with configured payload")
	}

	// One byte at a time
	var events []HandshakeEvent
	for i := range c0c1 {
		e, err := responder.Feed(c0c1[i : i+1])
		if err != nil {
			t.Fatalf("responder feed byte %d: %v", i, err)
		}
		events = append(events, e...)
	}
	if !equalKinds(kinds(events), []HandshakeEventKind{EventVersionReceived, EventFirstFragmentReceived}) {
		t.Errorf("responder events %v", kinds(events))
	}
	if responder.State() != HandshakeStateAckSent {
		t.Errorf("responder state %s", responder.State())
	}
	s0s1s2 := append([]byte(nil), rw.Bytes()...)
	rw.Reset()
	if len(s0s1s2) != 1+2*HandshakeFragmentSize {
		t.Fatalf("responder wrote %d bytes", len(s0s1s2))
	}
	s2 := s0s1s2[1+HandshakeFragmentSize:]
	if pio.U32BE(s2[0:4]) != 1000 || pio.U32BE(s2[4:8]) != 2000 {
		t.Errorf("bad S2 time fields")
	}
	if !bytes.Equal(s2[8:], c0c1[9:]) {
		t.Errorf("S2 does not echo the C1 payload")
	}

	events, err := initiator.Feed(s0s1s2)
	if err != nil {
		t.Fatalf("initiator feed: %v", err)
	}
	want := []HandshakeEventKind{EventVersionReceived, EventFirstFragmentReceived, EventSecondFragmentReceived, EventReady}
	if !equalKinds(kinds(events), want) {
		t.Errorf("initiator events %v", kinds(events))
	}
	if !initiator.Done() {
		t.Errorf("initiator not done")
	}
	ready := events[len(events)-1]
	if ready.Epoch != 1000 || ready.PeerEpoch != 2000 {
		t.Errorf("initiator ready %+v", ready)
	}

	c2 := append([]byte(nil), iw.Bytes()...)
	if len(c2) != HandshakeFragmentSize {
		t.Fatalf("initiator wrote %d bytes for C2", len(c2))
	}
	events, err = responder.Feed(c2)
	if err != nil {
		t.Fatalf("responder feed C2: %v", err)
	}
	if !equalKinds(kinds(events), []HandshakeEventKind{EventSecondFragmentReceived, EventReady}) {
		t.Errorf("responder events %v", kinds(events))
	}
	if !responder.Done() || responder.PeerEpoch() != 1000 {
		t.Errorf("responder done=%v peer epoch=%d", responder.Done(), responder.PeerEpoch())
	}
}

func TestHandshakeInvalidVersion(t *testing.T) {
	w := &bytes.Buffer{}
	h := NewHandshake(RoleResponder, w, HandshakeConfig{})
	h.Start()
	_, err := h.Feed([]byte{0x02})
	if !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("expected ErrInvalidVersion, got %v", err)
	}
	if w.Len() != 0 {
		t.Errorf("reply of %d bytes sent after invalid version", w.Len())
	}
	if _, err := h.Feed([]byte{0x03}); !errors.Is(err, ErrHandshakeClosed) {
		t.Errorf("expected ErrHandshakeClosed, got %v", err)
	}
}

func TestHandshakeRemainder(t *testing.T) {
	w := &bytes.Buffer{}
	h := NewHandshake(RoleResponder, w, HandshakeConfig{})
	h.Start()

	peer := NewHandshake(RoleInitiator, &bytes.Buffer{}, HandshakeConfig{})
	stream := append(peer.versionAndFirst(), make([]byte, HandshakeFragmentSize)...)
	stream = append(stream, 0xC3, 0x01)

	events, err := h.Feed(stream)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(events) != 4 || !h.Done() {
		t.Fatalf("expected a completed handshake, got %v", kinds(events))
	}
	if r := h.Remainder(); !bytes.Equal(r, []byte{0xC3, 0x01}) {
		t.Errorf("remainder %v", r)
	}
	h.Feed([]byte{0x02})
	if r := h.Remainder(); !bytes.Equal(r, []byte{0x02}) {
		t.Errorf("remainder after done %v", r)
	}
}

func TestHandshakeCloseIncomplete(t *testing.T) {
	h := NewHandshake(RoleResponder, &bytes.Buffer{}, HandshakeConfig{})
	h.Start()
	if _, err := h.Feed(append([]byte{HandshakeVersion}, make([]byte, 100)...)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := h.Close(); !errors.Is(err, ErrHandshake) {
		t.Errorf("expected ErrHandshake, got %v", err)
	}
}

func TestHandshakeStrictEchoMismatch(t *testing.T) {
	w := &bytes.Buffer{}
	h := NewHandshake(RoleInitiator, w, HandshakeConfig{Epoch: 7, StrictEcho: true})
	h.Start()
	peer := NewHandshake(RoleResponder, &bytes.Buffer{}, HandshakeConfig{Epoch: 9})
	stream := append(peer.versionAndFirst(), make([]byte, HandshakeFragmentSize)...)
	_, err := h.Feed(stream)
	if !errors.Is(err, ErrHandshake) {
		t.Errorf("expected ErrHandshake, got %v", err)
	}
}

func TestHandshakeFeedBeforeStart(t *testing.T) {
	h := NewHandshake(RoleInitiator, &bytes.Buffer{}, HandshakeConfig{})
	if _, err := h.Feed([]byte{HandshakeVersion}); !errors.Is(err, ErrHandshake) {
		t.Errorf("expected ErrHandshake, got %v", err)
	}
}
