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

package relayserver

import (
	"sort"

	"github.com/nabbar/dsrp/ids"
	"github.com/nabbar/dsrp/wire"
)

// AddClient admits a new client iff handshake.Version is byte-equal to the
// Handler's configured version. On success it mints a ClientId and returns
// a success response; on failure it returns a rejection response and a
// zero ClientId that the caller must not treat as valid.
func (h *Handler) AddClient(handshake wire.HandshakeRequest) (ids.ClientId, wire.HandshakeResponse) {
	if handshake.Version != h.version {
		return 0, wire.HandshakeFailure("unsupported protocol version")
	}

	id := ids.ClientId(h.clientAlloc.Next(func(v uint32) bool {
		_, live := h.clients[ids.ClientId(v)]
		return live
	}))
	h.clients[id] = &clientState{id: id, channels: make(map[ids.ChannelId]struct{})}
	return id, wire.HandshakeSuccess()
}

// RemoveClient erases a client and every channel and connection it owned,
// emitting a DisconnectConnection per live connection followed by the
// owning channel's StopTcp/StopUdp, channel by channel in ascending
// ChannelId order and connection by connection in ascending ConnectionId
// order. That order is an implementation choice spec.md leaves open; fixing
// it makes operation sequences reproducible across runs. Unknown ids
// return nil.
func (h *Handler) RemoveClient(id ids.ClientId) []Operation {
	cl, ok := h.clients[id]
	if !ok {
		return nil
	}

	var ops []Operation
	for _, chID := range sortedChannelIds(cl.channels) {
		ch := h.channels[chID]
		for _, cid := range sortedConnectionIds(ch.connections) {
			ops = append(ops, opDisconnect(cid))
			delete(h.connections, cid)
		}
		delete(h.ports, ch.port)
		delete(h.channels, chID)

		if ch.connType == wire.ConnectionTCP {
			ops = append(ops, opStopTcp(ch.port))
		} else {
			ops = append(ops, opStopUdp(ch.port))
		}
	}

	delete(h.clients, id)
	return ops
}

// HandleClientMessage dispatches msg, sent by the client known as id,
// through the variant semantics spec.md §4.2 defines. Returning an error
// leaves the Handler's state exactly as it was before the call.
func (h *Handler) HandleClientMessage(id ids.ClientId, msg wire.ClientMessage) ([]Operation, error) {
	switch msg.Kind {
	case wire.ClientRegister:
		return h.handleRegister(id, msg)
	case wire.ClientUnregister:
		return h.handleUnregister(id, msg)
	case wire.ClientTcpConnectionDisconnected:
		return h.handleTcpConnectionDisconnected(id, msg), nil
	case wire.ClientDataBeingSent:
		return h.handleDataBeingSent(id, msg), nil
	default:
		return nil, ErrUnknownMessageKind
	}
}

func (h *Handler) handleRegister(id ids.ClientId, msg wire.ClientMessage) ([]Operation, error) {
	cl, ok := h.clients[id]
	if !ok {
		return nil, ErrUnknownClientId
	}

	if _, taken := h.ports[msg.Port]; taken {
		return []Operation{
			opSendMessage(id, wire.NewServerRegistrationFailed(msg.Request, wire.CausePortAlreadyRegistered)),
		}, nil
	}

	chID := ids.ChannelId(h.channelAlloc.Next(func(v uint32) bool {
		_, live := h.channels[ids.ChannelId(v)]
		return live
	}))

	h.channels[chID] = &channelState{
		id:                  chID,
		port:                msg.Port,
		connType:            msg.ConnectionType,
		owner:               id,
		connections:         make(map[ids.ConnectionId]struct{}),
		bound:               false,
		registrationRequest: msg.Request,
	}
	h.ports[msg.Port] = chID
	cl.channels[chID] = struct{}{}

	if msg.ConnectionType == wire.ConnectionTCP {
		return []Operation{opStartTcp(msg.Port, chID)}, nil
	}
	return []Operation{opStartUdp(msg.Port, chID)}, nil
}

func (h *Handler) handleUnregister(id ids.ClientId, msg wire.ClientMessage) ([]Operation, error) {
	ch, ok := h.channels[msg.Channel]
	if !ok {
		return nil, ErrChannelNotFound
	}
	if ch.owner != id {
		return nil, &ErrChannelNotOwnedByRequester{Channel: msg.Channel, Requesting: id, Owning: ch.owner}
	}

	ops := make([]Operation, 0, len(ch.connections)+1)
	for _, cid := range sortedConnectionIds(ch.connections) {
		ops = append(ops, opDisconnect(cid))
		delete(h.connections, cid)
	}

	delete(h.ports, ch.port)
	delete(h.channels, msg.Channel)
	if cl, ok := h.clients[id]; ok {
		delete(cl.channels, msg.Channel)
	}

	if ch.connType == wire.ConnectionTCP {
		ops = append(ops, opStopTcp(ch.port))
	} else {
		ops = append(ops, opStopUdp(ch.port))
	}
	return ops, nil
}

// handleTcpConnectionDisconnected is a soft-ignore event: any mismatch
// against the current ownership graph returns an empty op list rather
// than an error, since it can legitimately race the handler's own
// teardown of the same connection.
func (h *Handler) handleTcpConnectionDisconnected(id ids.ClientId, msg wire.ClientMessage) []Operation {
	if msg.Connection == nil {
		return nil
	}
	conn, ok := h.connections[*msg.Connection]
	if !ok || conn.channel != msg.Channel {
		return nil
	}
	ch, ok := h.channels[msg.Channel]
	if !ok || ch.owner != id {
		return nil
	}

	delete(h.connections, *msg.Connection)
	delete(ch.connections, *msg.Connection)
	return []Operation{opDisconnect(*msg.Connection)}
}

func (h *Handler) handleDataBeingSent(id ids.ClientId, msg wire.ClientMessage) []Operation {
	ch, ok := h.channels[msg.Channel]
	if !ok || ch.owner != id {
		return nil
	}

	if ch.connType == wire.ConnectionTCP {
		if msg.Connection == nil {
			return nil
		}
		if _, ok := ch.connections[*msg.Connection]; !ok {
			return nil
		}
	} else if msg.Connection != nil {
		return nil
	}

	return []Operation{opSendByteData(msg.Channel, msg.Connection, msg.Data)}
}

// SocketBindingSuccessful transitions an unbound channel to bound and
// returns the deferred RegistrationSuccessful notification. Unknown or
// already-bound channels return nil.
func (h *Handler) SocketBindingSuccessful(channel ids.ChannelId) *Operation {
	ch, ok := h.channels[channel]
	if !ok || ch.bound {
		return nil
	}
	ch.bound = true
	op := opSendMessage(ch.owner, wire.NewServerRegistrationSuccessful(ch.registrationRequest, channel))
	return &op
}

// SocketBindingFailed erases an unbound channel and its port reservation,
// returning the RegistrationFailed notification to send its owner. The
// port becomes registerable again immediately. Unknown channels return
// nil.
func (h *Handler) SocketBindingFailed(channel ids.ChannelId) *Operation {
	ch, ok := h.channels[channel]
	if !ok {
		return nil
	}

	op := opSendMessage(ch.owner, wire.NewServerRegistrationFailed(ch.registrationRequest, wire.CauseSocketBindingFailed))

	delete(h.ports, ch.port)
	delete(h.channels, channel)
	if cl, ok := h.clients[ch.owner]; ok {
		delete(cl.channels, channel)
	}
	return &op
}

// NewChannelTcpConnection registers an externally accepted TCP connection
// against channel, returning the minted ConnectionId and the
// NewIncomingTcpConnection notification for the channel's owner.
func (h *Handler) NewChannelTcpConnection(channel ids.ChannelId) (ids.ConnectionId, Operation, error) {
	ch, ok := h.channels[channel]
	if !ok {
		return 0, Operation{}, ErrUnknownChannelId
	}
	if ch.connType != wire.ConnectionTCP {
		return 0, Operation{}, ErrConnectionAddedToNonTcpChannel
	}
	if !ch.bound {
		return 0, Operation{}, ErrConnectionAddedToUnboundChannel
	}

	cid := ids.ConnectionId(h.connAlloc.Next(func(v uint32) bool {
		_, live := h.connections[ids.ConnectionId(v)]
		return live
	}))
	h.connections[cid] = &tcpConnectionState{id: cid, channel: channel, client: ch.owner}
	ch.connections[cid] = struct{}{}

	return cid, opSendMessage(ch.owner, wire.NewServerNewIncomingTcpConnection(channel, cid)), nil
}

// TcpConnectionDisconnected erases connection on its first call and
// returns the TcpConnectionClosed notification for its owner. Repeated
// calls for the same id, or unknown ids, return nil.
func (h *Handler) TcpConnectionDisconnected(connection ids.ConnectionId) *Operation {
	conn, ok := h.connections[connection]
	if !ok {
		return nil
	}

	delete(h.connections, connection)
	if ch, ok := h.channels[conn.channel]; ok {
		delete(ch.connections, connection)
	}

	op := opSendMessage(conn.client, wire.NewServerTcpConnectionClosed(conn.channel, connection))
	return &op
}

// TcpDataReceived forwards bytes read from an accepted connection to its
// owning client. data is copied into the returned operation; the caller's
// buffer may be reused immediately after this returns. Unknown or
// already-erased connections return nil.
func (h *Handler) TcpDataReceived(connection ids.ConnectionId, data []byte) *Operation {
	conn, ok := h.connections[connection]
	if !ok {
		return nil
	}

	cp := append([]byte(nil), data...)
	cid := connection
	op := opSendMessage(conn.client, wire.NewServerDataReceived(conn.channel, &cid, cp))
	return &op
}

// UdpDataReceived forwards a datagram read on channel's bound port to its
// owning client, with no connection id (UDP channels have none). Unknown
// channels return nil.
func (h *Handler) UdpDataReceived(channel ids.ChannelId, data []byte) *Operation {
	ch, ok := h.channels[channel]
	if !ok {
		return nil
	}

	cp := append([]byte(nil), data...)
	op := opSendMessage(ch.owner, wire.NewServerDataReceived(channel, nil, cp))
	return &op
}

func sortedChannelIds(m map[ids.ChannelId]struct{}) []ids.ChannelId {
	out := make([]ids.ChannelId, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedConnectionIds(m map[ids.ConnectionId]struct{}) []ids.ConnectionId {
	out := make([]ids.ConnectionId, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
