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
	"math/rand"
	"net"
	"net/url"
	"strings"
)

// URLAddr is a flexible RTMP address member that resembles url.URL.
// It implements net.Addr.
type URLAddr struct {
	// raw can be any string, which we hope we can turn
	// into a valid *URLAddr
	raw string

	// scheme should always be DefaultScheme "rtmp://"
	scheme string

	// host is the host:port combination for the server
	// host should be valid with net.Listen() and net.Dial()
	host string

	// app is the first parameter to the RTMP URL
	// such as rtmp://host:port/app/key
	app string

	// key is the 2nd and final parameter to the RTMP URL
	// such as rtmp://host:port/app/key
	key string
}

func NewURLAddr(raw string) (*URLAddr, error) {
	var scheme, host, app, key string

	path := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to url.Parse raw rtmp string: %s", err)
		}
		if u.Scheme != DefaultScheme {
			return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		scheme = u.Scheme
		path = strings.TrimPrefix(raw, fmt.Sprintf("%s://", scheme))
	}

	splt := strings.Split(path, "/")
	switch len(splt) {
	case 3:
		key = splt[2]
		fallthrough
	case 2:
		app = splt[1]
		fallthrough
	case 1:
		host = splt[0]
	default:
		return nil, fmt.Errorf("too many slashes: %s", raw)
	}

	if scheme == "" {
		scheme = DefaultScheme
	}
	if app == "" {
		app = DefaultRTMPApp
	}
	if key == "" {
		key = generateKey()
	}

	// localhost:, :1935 and : all complete to localhost:1935
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		if !strings.Contains(err.Error(), "missing port in address") {
			return nil, fmt.Errorf("split host port: %v", err)
		}
		h, port = host, ""
	}
	if h == "" {
		h = DefaultLocalHost
	}
	if port == "" {
		port = DefaultLocalPort
	}

	return &URLAddr{
		raw:    raw,
		scheme: scheme,
		host:   net.JoinHostPort(h, port),
		app:    app,
		key:    key,
	}, nil
}

// Host will return a net.Listener compatible host string as verbosely as possible.
// Given inputs such as:
//   localhost:
//   localhost:1935
//   :1935
//   :
// We should see
//   localhost:1935
func (a *URLAddr) Host() string {
	return a.host
}

// SafeURL will log the StreamURL() without the key.
//  rtmp://localhost:1935/app
func (a *URLAddr) SafeURL() string {
	return fmt.Sprintf("%s://%s/%s", a.scheme, a.host, a.app)
}

// StreamURL is a resolvable stream URL that can be played or published.
//  rtmp://localhost:1935/app/key
func (a *URLAddr) StreamURL() string {
	return fmt.Sprintf("%s://%s/%s/%s", a.scheme, a.host, a.app, a.key)
}

// generateKey will generate a random stream key
func generateKey() string {
	b := make([]byte, DefaultGenerateKeyLength)
	for i := range b {
		b[i] = StreamKeyRandomBytePool[rand.Intn(len(StreamKeyRandomBytePool))]
	}
	return fmt.Sprintf("%s%s", DefaultGenerateKeyPrefix, string(b))
}

// Scheme should always return DefaultScheme "rtmp://"
func (a *URLAddr) Scheme() string {
	return a.scheme
}

// Key should return the stream key for this instance of *URLAddr.
// All instances will generate a key if one is not provided.
func (a *URLAddr) Key() string {
	return a.key
}

// App will return the first parameter of the path.
// Such as rtmp://host:port/app/key
func (a *URLAddr) App() string {
	return a.app
}

func (a *URLAddr) Network() string {
	return DefaultProtocol
}

func (a *URLAddr) String() string {
	return a.host
}
