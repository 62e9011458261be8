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
	"net"

	"github.com/gwuhaolin/livego/av"
	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/kris-nova/logger"
)

// Client is the publishing or playing side of an RTMP connection.
type Client struct {
	*Conn

	transactionID float64
	streamID      uint32
}

// Dial connects to raw, such as rtmp://localhost:1935/twinx/key, and
// performs the handshake.
func Dial(raw string) (*Client, error) {
	addr, err := NewURLAddr(raw)
	if err != nil {
		return nil, err
	}
	netConn, err := net.DialTimeout(DefaultProtocol, addr.Host(), TimeoutDuration)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %v", addr.SafeURL(), err)
	}
	c, err := NewClient(netConn, addr)
	if err != nil {
		netConn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient performs the handshake on an established connection.
func NewClient(netConn net.Conn, addr *URLAddr) (*Client, error) {
	conn := NewConn(netConn, RoleInitiator)
	conn.URLAddr = addr
	if err := conn.Handshake(); err != nil {
		return nil, err
	}
	logger.Info(rtmpClientMessage(fmt.Sprintf("connected %s", addr.SafeURL()), dial))
	return &Client{Conn: conn}, nil
}

func (c *Client) StreamID() uint32 { return c.streamID }

// Connect sends the 7.2.1.1. connect command for the app of URLAddr.
func (c *Client) Connect() error {
	event := make(amf.Object)
	event["app"] = c.URLAddr.App()
	event["type"] = "nonprivate"
	event["flashVer"] = "FMS.3.1"
	event["tcUrl"] = c.URLAddr.SafeURL()
	resp, err := c.call(CommandConnect, event)
	if err != nil {
		return err
	}
	if resp.Name != CommandResult {
		return fmt.Errorf("connect: %s", statusCode(resp))
	}
	return nil
}

// CreateStream sends 7.2.1.3. createStream and keeps the stream ID.
func (c *Client) CreateStream() error {
	resp, err := c.call(CommandCreateStream, nil)
	if err != nil {
		return err
	}
	if resp.Name != CommandResult || len(resp.Args) == 0 {
		return fmt.Errorf("createStream: %s", statusCode(resp))
	}
	id, ok := resp.Args[0].(float64)
	if !ok {
		return fmt.Errorf("createStream: stream id is %T", resp.Args[0])
	}
	c.streamID = uint32(id)
	return nil
}

// Publish sends 7.2.2.6. publish with the key of URLAddr.
func (c *Client) Publish() error {
	resp, err := c.call(CommandPublish, nil, c.URLAddr.Key(), PublishTypeLive)
	if err != nil {
		return err
	}
	if code := statusCode(resp); code != StatusPublishStart {
		return fmt.Errorf("publish: %s", code)
	}
	return nil
}

// Play sends 7.2.2.1. play with the key of URLAddr.
func (c *Client) Play() error {
	resp, err := c.call(CommandPlay, nil, c.URLAddr.Key())
	if err != nil {
		return err
	}
	if code := statusCode(resp); code != StatusPlayReset && code != StatusPlayStart {
		return fmt.Errorf("play: %s", code)
	}
	return nil
}

// WritePacket sends one media packet on the client's stream.
func (c *Client) WritePacket(p *av.Packet) error {
	m := NewPacketMessage(p)
	m.StreamID = c.streamID
	return c.WriteMessages(m)
}

// call sends a command and reads messages until its response arrives.
func (c *Client) call(name string, object amf.Object, args ...interface{}) (*Command, error) {
	c.transactionID++
	vs := append([]interface{}{name, c.transactionID, object}, args...)
	m, err := NewCommandMessage(ChunkStreamCommand, c.streamID, vs...)
	if err != nil {
		return nil, err
	}
	if err := c.WriteMessages(m); err != nil {
		return nil, err
	}
	logger.Debug(rtmpClientMessage(name, tx))
	for {
		msg, err := c.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("reading response to %s: %v", name, err)
		}
		if msg.TypeID != CommandMessageAMF0ID && msg.TypeID != CommandMessageAMF3ID {
			continue
		}
		resp, err := DecodeCommand(msg)
		if err != nil {
			return nil, err
		}
		switch resp.Name {
		case CommandResult, CommandError:
			if resp.TransactionID != c.transactionID {
				return nil, fmt.Errorf("unexpected transaction id from server expected [%v] actual [%v]", c.transactionID, resp.TransactionID)
			}
			return resp, nil
		case CommandOnStatus:
			return resp, nil
		}
		logger.Debug(rtmpClientMessage(fmt.Sprintf("ignoring %s", resp.Name), rx))
	}
}

// statusCode returns the code of the info object a response carries.
func statusCode(cmd *Command) string {
	for _, a := range cmd.Args {
		if obj, ok := a.(amf.Object); ok {
			if code, ok := obj["code"].(string); ok {
				return code
			}
		}
	}
	return cmd.Name
}
