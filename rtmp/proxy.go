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

	"github.com/gwuhaolin/livego/av"
	"github.com/kris-nova/logger"
)

// Proxy plays a stream from one RTMP server and publishes it to
// another, such as from a local twinx server to a streaming platform.
type Proxy struct {
	PlayURL    string
	PublishURL string

	publisher *Client
}

func NewProxy(playURL, publishURL string) *Proxy {
	return &Proxy{
		PlayURL:    playURL,
		PublishURL: publishURL,
	}
}

// Run connects both ends and forwards media until ctx is done or either
// connection fails.
func (p *Proxy) Run(ctx context.Context) error {
	publisher, err := dialStream(p.PublishURL, false)
	if err != nil {
		return fmt.Errorf("proxy publish: %v", err)
	}
	defer publisher.Close()
	p.publisher = publisher

	player, err := dialStream(p.PlayURL, true)
	if err != nil {
		return fmt.Errorf("proxy play: %v", err)
	}
	defer player.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// The publishing side only carries control messages back to us.
	go func() {
		publisher.Serve(ctx, &Dispatcher{})
		cancel()
	}()
	logger.Info(rtmpClientMessage(fmt.Sprintf("proxy %s -> %s", player.URLAddr.SafeURL(), publisher.URLAddr.SafeURL()), media))
	return player.Serve(ctx, &Dispatcher{Command: p, Media: p})
}

func (p *Proxy) WritePacket(conn *Conn, pkt *av.Packet) error {
	return p.publisher.WritePacket(pkt)
}

func (p *Proxy) HandleCommand(conn *Conn, cmd *Command, m *Message) error {
	logger.Debug(rtmpClientMessage(fmt.Sprintf("proxy ignoring %s", cmd.Name), invoke))
	return nil
}

// HandleData forwards stream metadata.
func (p *Proxy) HandleData(conn *Conn, values []interface{}, m *Message) error {
	return p.publisher.WritePacket(NewPacket(m))
}

func dialStream(raw string, play bool) (*Client, error) {
	client, err := Dial(raw)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.CreateStream(); err != nil {
		client.Close()
		return nil, err
	}
	if play {
		err = client.Play()
	} else {
		err = client.Publish()
	}
	if err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
