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
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/gwuhaolin/livego/av"
	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/kris-nova/logger"
	"github.com/patrickmn/go-cache"
)

// Server accepts RTMP connections and answers the NetConnection and
// NetStream commands needed to publish or play a stream. Published
// media is relayed to the players of the same channel and handed to
// Sink.
type Server struct {
	Config *ServerConfig
	Keys   *StreamKeys
	Relay  *Relay

	// Sink receives the audio and video of every publisher. Nil drops it.
	Sink MediaSink

	sessions *cache.Cache
	metrics  *Metrics
	wg       sync.WaitGroup
}

func NewServer(cfg *ServerConfig) *Server {
	if cfg == nil {
		c := defaultConf
		cfg = &c
	}
	keys := NewStreamKeys()
	for channel, key := range cfg.Keys {
		keys.Add(channel, key)
	}
	return &Server{
		Config:   cfg,
		Keys:     keys,
		Relay:    NewRelay(),
		sessions: cache.New(cache.NoExpiration, 0),
		metrics:  NewMetrics("server"),
	}
}

func (s *Server) Metrics() *Metrics { return s.metrics }

// Sessions is the number of connections currently being served.
func (s *Server) Sessions() int { return s.sessions.ItemCount() }

// Session returns the session of the connection with the given id.
func (s *Server) Session(id string) (*ServerSession, bool) {
	x, ok := s.sessions.Get(id)
	if !ok {
		return nil, false
	}
	return x.(*ServerSession), true
}

// ListenAndServe listens on Config.RTMPAddr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := Listen(DefaultProtocol, s.Config.RTMPAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections from listener until ctx is done or Accept
// fails. Each connection is served on its own goroutine.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	logger.Info(rtmpServerMessage(fmt.Sprintf("listening %s", listener.Addr()), listen))
	for {
		netConn, err := listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		conn := NewConn(netConn, RoleResponder,
			WithMetrics(s.metrics),
			WithPipelineOptions(WithMaxMessageLength(s.Config.MaxMessageLength)))
		logger.Info(rtmpServerMessage("new client connected", serve))
		logger.Info("   Remote : %s", netConn.RemoteAddr().String())
		logger.Info("   Local  : %s", netConn.LocalAddr().String())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn is the entry point for every new client to our RTMP
// server.
func (s *Server) handleConn(ctx context.Context, conn *Conn) error {
	defer conn.Close()
	if err := conn.Handshake(); err != nil {
		conn.metrics.addError()
		logger.Critical("RTMP Handshake: %v", err)
		return err
	}
	session := newServerSession(s, conn)
	s.sessions.SetDefault(conn.ID(), session)
	defer s.sessions.Delete(conn.ID())
	defer session.stop()

	d := &Dispatcher{Command: session, Media: session}
	return conn.Serve(ctx, d)
}

// ServerSession is the server side state of one connection.
type ServerSession struct {
	server *Server
	conn   *Conn

	App         string
	TcURL       string
	FlashVer    string
	StreamName  string
	Channel     string
	IsPublisher bool
	Playing     string

	objectEncoding float64
	streamID       uint32
}

func newServerSession(s *Server, conn *Conn) *ServerSession {
	return &ServerSession{
		server:   s,
		conn:     conn,
		streamID: 1,
	}
}

func (ss *ServerSession) HandleCommand(conn *Conn, cmd *Command, m *Message) error {
	switch cmd.Name {
	case CommandConnect:
		return ss.connect(cmd, m)
	case CommandCreateStream:
		return ss.reply(m, CommandResult, cmd.TransactionID, nil, float64(ss.streamID))
	case CommandPublish:
		return ss.publish(cmd, m)
	case CommandPlay:
		return ss.play(cmd, m)
	case CommandDeleteStream, CommandCloseStream, CommandFCUnpublish:
		ss.stop()
	case CommandFCPublish, CommandReleaseStream, CommandGetStreamLength:
	default:
		logger.Warning(rtmpServerMessage(fmt.Sprintf("unknown command %s", cmd.Name), warn))
	}
	return nil
}

// HandleData relays @setDataFrame and onMetaData from a publisher.
func (ss *ServerSession) HandleData(conn *Conn, values []interface{}, m *Message) error {
	if !ss.IsPublisher || len(values) == 0 {
		return nil
	}
	if name, _ := values[0].(string); name != SetDataFrame && name != OnMetaData {
		return nil
	}
	return ss.WritePacket(conn, NewPacket(m))
}

func (ss *ServerSession) WritePacket(conn *Conn, p *av.Packet) error {
	if !ss.IsPublisher {
		return fmt.Errorf("media from connection %s that is not publishing", conn.ID())
	}
	ss.server.Relay.Publish(ss.Channel, p)
	if ss.server.Sink == nil {
		return nil
	}
	return ss.server.Sink.WritePacket(conn, p)
}

// stop ends publishing or playing.
func (ss *ServerSession) stop() {
	if ss.IsPublisher && ss.Channel != "" {
		logger.Info(rtmpServerMessage(fmt.Sprintf("unpublish %s", ss.Channel), stop))
		ss.server.Relay.Unpublish(ss.Channel)
	}
	ss.IsPublisher = false
	if ss.Playing != "" {
		ss.server.Relay.Unsubscribe(ss.Playing, ss.conn)
		ss.Playing = ""
	}
}

// 7.2.1.1. connect
func (ss *ServerSession) connect(cmd *Command, m *Message) error {
	logger.Debug(rtmpServerMessage(thisFunctionName(), invoke))
	if cmd.Object != nil {
		if app, ok := cmd.Object["app"].(string); ok {
			ss.App = app
		}
		if flashVer, ok := cmd.Object["flashVer"].(string); ok {
			ss.FlashVer = flashVer
		}
		if tcurl, ok := cmd.Object["tcUrl"].(string); ok {
			ss.TcURL = tcurl
		}
		if encoding, ok := cmd.Object["objectEncoding"].(float64); ok {
			ss.objectEncoding = encoding
		}
	}
	if !ss.server.Config.CheckAppName(ss.App) {
		event := statusEvent("error", "NetConnection.Connect.Rejected", fmt.Sprintf("unknown app %s", ss.App))
		ss.reply(m, CommandError, cmd.TransactionID, nil, event)
		return fmt.Errorf("connect to unknown app %q", ss.App)
	}
	logger.Info(rtmpServerMessage(fmt.Sprintf("connect app=%s", ss.App), dial))

	cfg := ss.server.Config
	if err := ss.conn.WriteMessage(NewWindowAckSize(cfg.WindowAckSize)); err != nil {
		return err
	}
	if err := ss.conn.WriteMessage(NewSetPeerBandwidth(cfg.PeerBandwidth, LimitDynamic)); err != nil {
		return err
	}
	if err := ss.conn.WriteMessage(NewSetChunkSize(cfg.ChunkSize)); err != nil {
		return err
	}

	resp := make(amf.Object)
	resp["fmsVer"] = "FMS/3,0,1,123"
	resp["capabilities"] = 31

	event := statusEvent("status", StatusConnectSuccess, "Connection succeeded.")
	event["objectEncoding"] = ss.objectEncoding
	return ss.reply(m, CommandResult, cmd.TransactionID, resp, event)
}

// 7.2.2.6. publish
func (ss *ServerSession) publish(cmd *Command, m *Message) error {
	logger.Debug(rtmpServerMessage(thisFunctionName(), invoke))
	key, _ := cmd.StringArg(0)
	channel, err := ss.server.Keys.GetChannel(key)
	if err != nil {
		event := statusEvent("error", StatusPublishBadName, "Unknown stream key.")
		ss.reply(m, CommandOnStatus, 0, nil, event)
		return fmt.Errorf("publish: %v", err)
	}
	ss.StreamName = key
	ss.Channel = channel
	ss.IsPublisher = true
	logger.Info(rtmpServerMessage(fmt.Sprintf("publish channel=%s", channel), media))
	event := statusEvent("status", StatusPublishStart, "Start publishing.")
	return ss.reply(m, CommandOnStatus, 0, nil, event)
}

// 7.2.2.1. play
func (ss *ServerSession) play(cmd *Command, m *Message) error {
	logger.Debug(rtmpServerMessage(thisFunctionName(), invoke))
	ss.StreamName, _ = cmd.StringArg(0)
	ss.stop()
	channel, err := ss.server.Keys.GetChannel(ss.StreamName)
	if err != nil {
		channel = ss.StreamName
	}
	if err := ss.conn.WriteMessage(NewStreamIsRecorded(ss.streamID)); err != nil {
		return err
	}
	if err := ss.conn.WriteMessage(NewStreamBegin(ss.streamID)); err != nil {
		return err
	}
	for _, status := range [][2]string{
		{StatusPlayReset, "Playing and resetting stream."},
		{StatusPlayStart, "Started playing stream."},
		{StatusDataStart, "Started playing stream."},
		{StatusPublishNotify, "Started playing notify."},
	} {
		msg, err := NewCommandMessage(m.ChunkStreamID, m.StreamID, CommandOnStatus, 0, nil, statusEvent("status", status[0], status[1]))
		if err != nil {
			return err
		}
		if err := ss.conn.WriteMessage(msg); err != nil {
			return err
		}
	}
	if err := ss.conn.Flush(); err != nil {
		return err
	}
	logger.Info(rtmpServerMessage(fmt.Sprintf("play channel=%s", channel), media))
	ss.Playing = channel
	ss.server.Relay.Subscribe(channel, ss.conn, ss.streamID)
	return nil
}

func (ss *ServerSession) reply(m *Message, args ...interface{}) error {
	msg, err := NewCommandMessage(m.ChunkStreamID, m.StreamID, args...)
	if err != nil {
		return err
	}
	return ss.conn.WriteMessages(msg)
}

func statusEvent(level, code, description string) amf.Object {
	event := make(amf.Object)
	event["level"] = level
	event["code"] = code
	event["description"] = description
	return event
}
