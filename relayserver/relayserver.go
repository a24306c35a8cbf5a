/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package relayserver is the server-side half of the relay: it owns every
// connected client, every channel (bound port) a client has registered,
// and every TCP connection accepted against a bound channel. It is a pure
// state machine — every exported method takes the current event and
// returns the operations its embedder must carry out, in order, with no
// I/O and no concurrency of its own. A Handler is not safe for concurrent
// use; callers own it exclusively between calls, the same way the wire
// codec it sits on top of is exclusively owned while decoding one frame.
package relayserver

import (
	"github.com/nabbar/dsrp/ids"
	"github.com/nabbar/dsrp/wire"
)

type clientState struct {
	id       ids.ClientId
	channels map[ids.ChannelId]struct{}
}

type channelState struct {
	id                  ids.ChannelId
	port                uint16
	connType            wire.ConnectionType
	owner               ids.ClientId
	connections         map[ids.ConnectionId]struct{}
	bound               bool
	registrationRequest ids.RequestId
}

type tcpConnectionState struct {
	id      ids.ConnectionId
	channel ids.ChannelId
	client  ids.ClientId
}

// Handler is the relay server's state machine. Build one per listening
// relay server; it outlives every client connection it ever admits.
type Handler struct {
	version string

	clients     map[ids.ClientId]*clientState
	channels    map[ids.ChannelId]*channelState
	ports       map[uint16]ids.ChannelId
	connections map[ids.ConnectionId]*tcpConnectionState

	clientAlloc  ids.Allocator
	channelAlloc ids.Allocator
	connAlloc    ids.Allocator
}

// New returns a Handler that admits only handshakes whose version is
// byte-equal to currentVersion, per spec.md's version handshake contract.
func New(currentVersion string) *Handler {
	return &Handler{
		version:     currentVersion,
		clients:     make(map[ids.ClientId]*clientState),
		channels:    make(map[ids.ChannelId]*channelState),
		ports:       make(map[uint16]ids.ChannelId),
		connections: make(map[ids.ConnectionId]*tcpConnectionState),
	}
}

// ClientCount reports the number of currently admitted clients. Exposed
// for embedder introspection (status dashboards, metrics); not part of the
// protocol contract itself.
func (h *Handler) ClientCount() int { return len(h.clients) }

// ChannelCount reports the number of currently registered channels,
// bound or not.
func (h *Handler) ChannelCount() int { return len(h.channels) }

// ConnectionCount reports the number of currently accepted TCP
// connections across all channels.
func (h *Handler) ConnectionCount() int { return len(h.connections) }
