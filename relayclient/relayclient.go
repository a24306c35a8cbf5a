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

// Package relayclient is the client-side half of the relay: it tracks
// registration requests it has sent but not yet resolved, the channels the
// server has opened on its behalf, and the connections forwarded over each
// TCP channel. Like relayserver.Handler, it is a pure state machine with
// no I/O and no internal concurrency.
package relayclient

import (
	"github.com/nabbar/dsrp/ids"
	"github.com/nabbar/dsrp/wire"
)

type outstandingRequest struct {
	request        ids.RequestId
	connectionType wire.ConnectionType
	port           uint16
}

type activeChannel struct {
	id             ids.ChannelId
	connectionType wire.ConnectionType
	connections    map[ids.ConnectionId]struct{}
}

type activeConnection struct {
	channel ids.ChannelId
}

// Handler is the relay client's state machine. Build one per control
// connection; New also produces the handshake request the caller must
// send before anything else.
type Handler struct {
	outstanding map[ids.RequestId]*outstandingRequest
	channels    map[ids.ChannelId]*activeChannel
	connections map[ids.ConnectionId]*activeConnection

	requestAlloc ids.Allocator
}

// New constructs a Handler and the HandshakeRequest the caller must send
// first, advertising version as this client's protocol version.
func New(version string) (*Handler, wire.HandshakeRequest) {
	h := &Handler{
		outstanding: make(map[ids.RequestId]*outstandingRequest),
		channels:    make(map[ids.ChannelId]*activeChannel),
		connections: make(map[ids.ConnectionId]*activeConnection),
	}
	return h, wire.HandshakeRequest{Version: version}
}

// ChannelCount reports the number of channels currently open on this
// client. Exposed for embedder introspection, not part of the protocol
// contract.
func (h *Handler) ChannelCount() int { return len(h.channels) }

// OutstandingCount reports the number of registration requests sent but
// not yet resolved.
func (h *Handler) OutstandingCount() int { return len(h.outstanding) }
