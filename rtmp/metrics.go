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
	"sync"
	"time"
)

// Metrics aggregates counters for one connection or, with connections
// attached as children, for a whole server.
type Metrics struct {
	Name       string
	BytesRX    uint64
	BytesTX    uint64
	MessagesRX uint64
	MessagesTX uint64
	AudioRX    uint64
	VideoRX    uint64
	Errors     uint64
	StartTime  time.Time

	parent *Metrics
	sync.Mutex
}

func NewMetrics(name string) *Metrics {
	return &Metrics{
		Name:      name,
		StartTime: time.Now(),
	}
}

// Child returns a Metrics whose updates are also counted in metrics.
func (metrics *Metrics) Child(name string) *Metrics {
	c := NewMetrics(name)
	c.parent = metrics
	return c
}

func (metrics *Metrics) update(f func(m *Metrics)) {
	for m := metrics; m != nil; m = m.parent {
		m.Lock()
		f(m)
		m.Unlock()
	}
}

func (metrics *Metrics) addRX(bytes int) {
	metrics.update(func(m *Metrics) { m.BytesRX += uint64(bytes) })
}

func (metrics *Metrics) addTX(bytes int) {
	metrics.update(func(m *Metrics) {
		m.BytesTX += uint64(bytes)
		m.MessagesTX++
	})
}

func (metrics *Metrics) addMessage(msg *Message) {
	metrics.update(func(m *Metrics) {
		m.MessagesRX++
		switch msg.TypeID {
		case AudioMessageID:
			m.AudioRX++
		case VideoMessageID:
			m.VideoRX++
		}
	})
}

func (metrics *Metrics) addError() {
	metrics.update(func(m *Metrics) { m.Errors++ })
}

// Snapshot returns a copy of the counters that is safe to read.
func (metrics *Metrics) Snapshot() Metrics {
	metrics.Lock()
	defer metrics.Unlock()
	return Metrics{
		Name:       metrics.Name,
		BytesRX:    metrics.BytesRX,
		BytesTX:    metrics.BytesTX,
		MessagesRX: metrics.MessagesRX,
		MessagesTX: metrics.MessagesTX,
		AudioRX:    metrics.AudioRX,
		VideoRX:    metrics.VideoRX,
		Errors:     metrics.Errors,
		StartTime:  metrics.StartTime,
	}
}

func (metrics *Metrics) String() string {
	m := metrics.Snapshot()
	var s string
	s += fmt.Sprintf("*************************************************************\n")
	s += fmt.Sprintf(" RTMP [%s] up %s\n", m.Name, time.Since(m.StartTime).Round(time.Second))
	s += fmt.Sprintf("      Bytes RX :  [%d]\n", m.BytesRX)
	s += fmt.Sprintf("      Bytes TX :  [%d]\n", m.BytesTX)
	s += fmt.Sprintf("   Messages RX :  [%d]\n", m.MessagesRX)
	s += fmt.Sprintf("   Messages TX :  [%d]\n", m.MessagesTX)
	s += fmt.Sprintf("      Audio RX :  [%d]\n", m.AudioRX)
	s += fmt.Sprintf("      Video RX :  [%d]\n", m.VideoRX)
	s += fmt.Sprintf("        Errors :  [%d]\n", m.Errors)
	return s
}
