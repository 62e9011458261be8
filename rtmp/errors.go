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

import "errors"

// Every error below except ErrNeedMoreData is fatal to the connection
// that produced it. RTMP has no way to resynchronize a chunk stream,
// so the only recovery is a new connection and a new handshake.
var (
	// ErrNeedMoreData is not a failure. It reports that the bytes
	// fed so far end in the middle of a fragment or a chunk.
	ErrNeedMoreData = errors.New("rtmp: need more data")

	ErrInvalidVersion              = errors.New("rtmp: invalid handshake version")
	ErrHandshake                   = errors.New("rtmp: handshake failed")
	ErrMalformedHeader             = errors.New("rtmp: malformed chunk header")
	ErrUnknownChunkStreamReference = errors.New("rtmp: unknown chunk stream reference")
	ErrIncompleteMessageOverwrite  = errors.New("rtmp: new message on chunk stream with incomplete message")
	ErrChunkSizeViolation          = errors.New("rtmp: chunk size violation")

	ErrHandshakeClosed = errors.New("rtmp: handshake closed")
	ErrPipelineClosed  = errors.New("rtmp: pipeline closed")
)
