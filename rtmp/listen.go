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
)

// Listener is a net.Listener whose Addr is a *URLAddr.
type Listener struct {
	net.Listener
	addr *URLAddr
}

// NewListener wraps an existing listener, such as one from a test.
func NewListener(l net.Listener) (*Listener, error) {
	urlAddr, err := NewURLAddr(l.Addr().String())
	if err != nil {
		return nil, fmt.Errorf("urlAddr: %v", err)
	}
	return &Listener{
		Listener: l,
		addr:     urlAddr,
	}, nil
}

// Listen announces on address. The URLAddr of the listener carries the
// port actually bound, so ":0" is usable in tests.
func Listen(network string, address string) (*Listener, error) {
	if _, err := NewURLAddr(address); err != nil {
		return nil, fmt.Errorf("rtmp URL addr: %v", err)
	}
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("rtmp listen: %v", err)
	}
	l, err := NewListener(listener)
	if err != nil {
		listener.Close()
		return nil, err
	}
	return l, nil
}

func (l *Listener) Addr() net.Addr {
	return l.addr
}

func (l *Listener) URLAddr() *URLAddr {
	return l.addr
}
