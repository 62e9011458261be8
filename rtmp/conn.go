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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gwuhaolin/livego/utils/pio"
	"github.com/gwuhaolin/livego/utils/uid"
	"github.com/kris-nova/logger"
)

// Conn
//
// Conn is one RTMP connection. It owns exactly one Handshake and one
// Pipeline and drives them from the bytes of an embedded net.Conn.
//
// ReadMessage (and Serve, which calls it) must be used from a single
// goroutine. WriteMessage and Flush may be called from any goroutine.
type Conn struct {
	net.Conn

	// URLAddr is set for client connections.
	URLAddr *URLAddr

	id      string
	role    HandshakeRole
	pipe    *Pipeline
	metrics *Metrics

	w   *bufio.Writer
	wmu sync.Mutex

	readBuf []byte
	queue   []*Message
	readErr error

	windowAckSize       uint32
	remoteWindowAckSize uint32
	received            uint32
	ackReceived         uint32
}

type ConnOption func(*Conn)

// WithMetrics counts the connection in a parent Metrics.
func WithMetrics(parent *Metrics) ConnOption {
	return func(c *Conn) {
		c.metrics = parent.Child(c.id)
	}
}

// WithPipelineOptions configures the connection's Pipeline.
func WithPipelineOptions(opts ...PipelineOption) ConnOption {
	return func(c *Conn) {
		c.pipe = NewPipeline(opts...)
	}
}

func NewConn(nc net.Conn, role HandshakeRole, opts ...ConnOption) *Conn {
	conn := &Conn{
		Conn:                nc,
		id:                  uid.NewId(),
		role:                role,
		pipe:                NewPipeline(),
		w:                   bufio.NewWriterSize(nc, DefaultConnBufferSizeBytes),
		readBuf:             make([]byte, DefaultConnBufferSizeBytes),
		windowAckSize:       DefaultWindowAcknowledgementSize,
		remoteWindowAckSize: DefaultWindowAcknowledgementSize,
	}
	for _, opt := range opts {
		opt(conn)
	}
	if conn.metrics == nil {
		conn.metrics = NewMetrics(conn.id)
	}
	return conn
}

func (conn *Conn) ID() string          { return conn.id }
func (conn *Conn) Role() HandshakeRole { return conn.role }
func (conn *Conn) Metrics() *Metrics   { return conn.metrics }
func (conn *Conn) Pipeline() *Pipeline { return conn.pipe }

// Handshake runs the handshake to completion. Every read and write is
// bounded by TimeoutDuration. Chunk bytes that arrive together with the
// end of the handshake are fed to the pipeline.
func (conn *Conn) Handshake() error {
	conn.Conn.SetDeadline(time.Now().Add(TimeoutDuration))
	defer conn.Conn.SetDeadline(time.Time{})

	h := NewHandshake(conn.role, conn.w, HandshakeConfig{
		Epoch: uint32(time.Now().UnixNano() / int64(time.Millisecond)),
	})
	if err := h.Start(); err != nil {
		return err
	}
	if err := conn.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrHandshake, err)
	}
	for !h.Done() {
		n, rerr := conn.Conn.Read(conn.readBuf)
		if n > 0 {
			conn.metrics.addRX(n)
			events, err := h.Feed(conn.readBuf[:n])
			for _, e := range events {
				logger.Debug(rtmpMessage(fmt.Sprintf("%s %s", conn.role, e.Kind), hs))
			}
			if err != nil {
				return err
			}
			if err := conn.w.Flush(); err != nil {
				return fmt.Errorf("%w: flush: %v", ErrHandshake, err)
			}
		}
		if rerr != nil && !h.Done() {
			if err := h.Close(); err != nil {
				return fmt.Errorf("%v: %w", rerr, err)
			}
			return fmt.Errorf("%w: read: %v", ErrHandshake, rerr)
		}
	}
	if rem := h.Remainder(); len(rem) > 0 {
		conn.feed(rem)
	}
	logger.Debug(rtmpMessage(fmt.Sprintf("%s handshake complete", conn.id), ack))
	return nil
}

// ReadMessage returns the next complete message. Messages already
// decoded are returned before any read error.
func (conn *Conn) ReadMessage() (*Message, error) {
	for len(conn.queue) == 0 && conn.readErr == nil {
		n, err := conn.Conn.Read(conn.readBuf)
		if n > 0 {
			conn.metrics.addRX(n)
			conn.feed(conn.readBuf[:n])
			if aerr := conn.ack(uint32(n)); aerr != nil && conn.readErr == nil {
				conn.readErr = aerr
			}
		}
		if err != nil && conn.readErr == nil {
			conn.readErr = err
		}
	}
	if len(conn.queue) == 0 {
		return nil, conn.readErr
	}
	m := conn.queue[0]
	conn.queue[0] = nil
	conn.queue = conn.queue[1:]
	conn.metrics.addMessage(m)
	if err := conn.handleControl(m); err != nil {
		return m, err
	}
	return m, nil
}

func (conn *Conn) feed(p []byte) {
	msgs, err := conn.pipe.Feed(p)
	conn.queue = append(conn.queue, msgs...)
	if err != nil && conn.readErr == nil {
		conn.readErr = err
	}
}

// WriteMessage serializes m into the write buffer. Call Flush to send.
func (conn *Conn) WriteMessage(m *Message) error {
	conn.wmu.Lock()
	defer conn.wmu.Unlock()
	b, err := conn.pipe.Serialize(m)
	if err != nil {
		return err
	}
	if _, err := conn.w.Write(b); err != nil {
		return err
	}
	conn.metrics.addTX(len(b))
	logger.Debug(rtmpMessage(m.String(), tx))
	return nil
}

func (conn *Conn) Flush() error {
	conn.wmu.Lock()
	defer conn.wmu.Unlock()
	return conn.w.Flush()
}

// WriteMessages writes ms and flushes once.
func (conn *Conn) WriteMessages(ms ...*Message) error {
	for _, m := range ms {
		if err := conn.WriteMessage(m); err != nil {
			return err
		}
	}
	return conn.Flush()
}

func (conn *Conn) Close() error {
	conn.pipe.Close()
	return conn.Conn.Close()
}

// Serve reads messages and hands them to d until the peer goes away,
// ctx is cancelled or an error occurs. Protocol errors are logged and
// close the connection.
func (conn *Conn) Serve(ctx context.Context, d *Dispatcher) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Conn.Close()
		case <-done:
		}
	}()

	for {
		m, err := conn.ReadMessage()
		if err == nil {
			err = d.Dispatch(conn, m)
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			logger.Info(rtmpMessage(fmt.Sprintf("%s closed by peer", conn.id), stop))
			return nil
		}
		conn.metrics.addError()
		logger.Critical("rtmp connection %s: %v", conn.id, err)
		conn.Close()
		return err
	}
}

// ack counts received bytes and acknowledges them once the peer's
// window is full.
//
// 5.4.3. Acknowledgement (3)
func (conn *Conn) ack(size uint32) error {
	conn.received += size
	conn.ackReceived += size
	if conn.received >= 0xf0000000 {
		conn.received = 0
	}
	if conn.remoteWindowAckSize == 0 || conn.ackReceived < conn.remoteWindowAckSize {
		return nil
	}
	conn.ackReceived = 0
	logger.Debug(rtmpMessage(fmt.Sprintf("ack %d", conn.received), ack))
	return conn.WriteMessages(NewAcknowledgement(conn.received))
}

// handleControl keeps the session parameters the connection itself is
// responsible for. Chunk size and abort are handled by the pipeline.
func (conn *Conn) handleControl(m *Message) error {
	switch m.TypeID {
	case WindowAcknowledgementSizeMessageID:
		size, err := ParseUint32Payload(m)
		if err != nil {
			return err
		}
		conn.remoteWindowAckSize = size
		logger.Debug(rtmpMessage(fmt.Sprintf("remote window ack size %d", size), ctrl))
	case SetPeerBandwidthMessageID:
		size, err := ParseUint32Payload(m)
		if err != nil {
			return err
		}
		if size != conn.windowAckSize {
			conn.windowAckSize = size
			return conn.WriteMessages(NewWindowAckSize(size))
		}
	case UserControlMessageID:
		event, data, err := ParseUserControl(m)
		if err != nil {
			return err
		}
		if event == PingRequest && len(data) >= 4 {
			ts := pio.U32BE(data[0:4])
			logger.Debug(rtmpMessage(fmt.Sprintf("ping %d", ts), ctrl))
			return conn.WriteMessages(NewPingResponse(ts))
		}
	}
	return nil
}
