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

package relayclient

import (
	"github.com/nabbar/dsrp/ids"
	"github.com/nabbar/dsrp/wire"
)

// RequestRegistration allocates a fresh RequestId, records the request as
// outstanding, and returns it along with the Register message the caller
// must send to the server.
func (h *Handler) RequestRegistration(ct wire.ConnectionType, port uint16) (ids.RequestId, wire.ClientMessage) {
	req := ids.RequestId(h.requestAlloc.Next(func(v uint32) bool {
		_, live := h.outstanding[ids.RequestId(v)]
		return live
	}))

	h.outstanding[req] = &outstandingRequest{request: req, connectionType: ct, port: port}
	return req, wire.NewClientRegister(req, ct, port)
}

// HandleServerMessage dispatches msg, received from the relay server,
// through the variant semantics spec.md §4.3 defines. Returning an error
// leaves the Handler's state exactly as it was before the call.
func (h *Handler) HandleServerMessage(msg wire.ServerMessage) ([]Operation, error) {
	switch msg.Kind {
	case wire.ServerRegistrationSuccessful:
		return h.handleRegistrationSuccessful(msg)
	case wire.ServerRegistrationFailed:
		return h.handleRegistrationFailed(msg)
	case wire.ServerNewIncomingTcpConnection:
		return h.handleNewIncomingTcpConnection(msg), nil
	case wire.ServerTcpConnectionClosed:
		return h.handleTcpConnectionClosed(msg), nil
	case wire.ServerDataReceived:
		return h.handleDataReceived(msg), nil
	default:
		return nil, ErrUnknownMessageKind
	}
}

func (h *Handler) handleRegistrationSuccessful(msg wire.ServerMessage) ([]Operation, error) {
	req, ok := h.outstanding[msg.Request]
	if !ok {
		return nil, &ErrUnknownRequest{Request: msg.Request}
	}

	delete(h.outstanding, msg.Request)
	h.channels[msg.Channel] = &activeChannel{
		id:             msg.Channel,
		connectionType: req.connectionType,
		connections:    make(map[ids.ConnectionId]struct{}),
	}
	return []Operation{opNotifyChannelOpened(msg.Request, msg.Channel)}, nil
}

func (h *Handler) handleRegistrationFailed(msg wire.ServerMessage) ([]Operation, error) {
	if _, ok := h.outstanding[msg.Request]; !ok {
		return nil, &ErrUnknownRequest{Request: msg.Request}
	}

	delete(h.outstanding, msg.Request)
	return []Operation{opNotifyRegistrationFailed(msg.Request, msg.Cause)}, nil
}

// handleNewIncomingTcpConnection is a soft-ignore event: an unknown or
// non-TCP channel yields no operations rather than an error.
func (h *Handler) handleNewIncomingTcpConnection(msg wire.ServerMessage) []Operation {
	if msg.Connection == nil {
		return nil
	}
	ch, ok := h.channels[msg.Channel]
	if !ok || ch.connectionType != wire.ConnectionTCP {
		return nil
	}

	ch.connections[*msg.Connection] = struct{}{}
	h.connections[*msg.Connection] = &activeConnection{channel: msg.Channel}
	return []Operation{opCreateTcpConnection(msg.Channel, *msg.Connection)}
}

func (h *Handler) handleTcpConnectionClosed(msg wire.ServerMessage) []Operation {
	if msg.Connection == nil {
		return nil
	}
	conn, ok := h.connections[*msg.Connection]
	if !ok || conn.channel != msg.Channel {
		return nil
	}

	delete(h.connections, *msg.Connection)
	if ch, ok := h.channels[msg.Channel]; ok {
		delete(ch.connections, *msg.Connection)
	}
	return []Operation{opCloseTcpConnection(msg.Channel, *msg.Connection)}
}

func (h *Handler) handleDataReceived(msg wire.ServerMessage) []Operation {
	ch, ok := h.channels[msg.Channel]
	if !ok {
		return nil
	}

	if ch.connectionType == wire.ConnectionTCP {
		if msg.Connection == nil {
			return nil
		}
		if _, ok := ch.connections[*msg.Connection]; !ok {
			return nil
		}
	} else if msg.Connection != nil {
		return nil
	}

	return []Operation{opRelayRemotePacket(msg.Channel, msg.Connection, msg.Data)}
}
