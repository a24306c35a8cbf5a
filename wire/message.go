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

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nabbar/dsrp/ids"
)

// ConnectionType distinguishes a TCP channel, which carries a live set of
// accepted connections, from a UDP channel, which never does.
type ConnectionType uint8

const (
	ConnectionTCP ConnectionType = iota
	ConnectionUDP
)

func (t ConnectionType) String() string {
	switch t {
	case ConnectionTCP:
		return "tcp"
	case ConnectionUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// RegistrationFailureCause is why RelayServerHandler refused a Register
// request.
type RegistrationFailureCause uint8

const (
	CausePortAlreadyRegistered RegistrationFailureCause = iota
	CauseSocketBindingFailed
)

func (c RegistrationFailureCause) String() string {
	switch c {
	case CausePortAlreadyRegistered:
		return "port already registered"
	case CauseSocketBindingFailed:
		return "socket binding failed"
	default:
		return "unknown cause"
	}
}

// ClientMessageKind tags the variant of a ClientMessage.
type ClientMessageKind uint8

const (
	ClientRegister ClientMessageKind = iota
	ClientUnregister
	ClientTcpConnectionDisconnected
	ClientDataBeingSent
)

// ClientMessage is the closed set of frames a relay client may send to the
// relay server over the control connection. Only the fields relevant to
// Kind are meaningful; see the per-kind constructors.
type ClientMessage struct {
	Kind ClientMessageKind

	Request        ids.RequestId
	ConnectionType ConnectionType
	Port           uint16

	Channel    ids.ChannelId
	Connection *ids.ConnectionId

	Data []byte
}

func NewClientRegister(request ids.RequestId, ct ConnectionType, port uint16) ClientMessage {
	return ClientMessage{Kind: ClientRegister, Request: request, ConnectionType: ct, Port: port}
}

func NewClientUnregister(channel ids.ChannelId) ClientMessage {
	return ClientMessage{Kind: ClientUnregister, Channel: channel}
}

func NewClientTcpConnectionDisconnected(channel ids.ChannelId, connection ids.ConnectionId) ClientMessage {
	return ClientMessage{Kind: ClientTcpConnectionDisconnected, Channel: channel, Connection: &connection}
}

func NewClientDataBeingSent(channel ids.ChannelId, connection *ids.ConnectionId, data []byte) ClientMessage {
	return ClientMessage{Kind: ClientDataBeingSent, Channel: channel, Connection: connection, Data: data}
}

// ServerMessageKind tags the variant of a ServerMessage.
type ServerMessageKind uint8

const (
	ServerRegistrationSuccessful ServerMessageKind = iota
	ServerRegistrationFailed
	ServerNewIncomingTcpConnection
	ServerTcpConnectionClosed
	ServerDataReceived
)

// ServerMessage is the closed set of frames the relay server may send to a
// relay client over the control connection. Only the fields relevant to
// Kind are meaningful; see the per-kind constructors.
type ServerMessage struct {
	Kind ServerMessageKind

	Request ids.RequestId
	Cause   RegistrationFailureCause

	Channel    ids.ChannelId
	Connection *ids.ConnectionId

	Data []byte
}

func NewServerRegistrationSuccessful(request ids.RequestId, channel ids.ChannelId) ServerMessage {
	return ServerMessage{Kind: ServerRegistrationSuccessful, Request: request, Channel: channel}
}

func NewServerRegistrationFailed(request ids.RequestId, cause RegistrationFailureCause) ServerMessage {
	return ServerMessage{Kind: ServerRegistrationFailed, Request: request, Cause: cause}
}

func NewServerNewIncomingTcpConnection(channel ids.ChannelId, connection ids.ConnectionId) ServerMessage {
	return ServerMessage{Kind: ServerNewIncomingTcpConnection, Channel: channel, Connection: &connection}
}

func NewServerTcpConnectionClosed(channel ids.ChannelId, connection ids.ConnectionId) ServerMessage {
	return ServerMessage{Kind: ServerTcpConnectionClosed, Channel: channel, Connection: &connection}
}

func NewServerDataReceived(channel ids.ChannelId, connection *ids.ConnectionId, data []byte) ServerMessage {
	return ServerMessage{Kind: ServerDataReceived, Channel: channel, Connection: connection, Data: data}
}

var (
	ErrTruncatedMessage  = errors.New("wire: truncated message body")
	ErrUnknownMessageKind = errors.New("wire: unknown message kind byte")
)

// Wire layout, all integers big-endian:
//
//	kind byte
//	ClientRegister:                  request u32, connType u8, port u16
//	ClientUnregister:                channel u32
//	ClientTcpConnectionDisconnected: channel u32, connection u32
//	ClientDataBeingSent:             channel u32, hasConn u8 [, connection u32], data (u32 len + bytes)
func EncodeClientMessage(m ClientMessage) []byte {
	switch m.Kind {
	case ClientRegister:
		b := make([]byte, 1+4+1+2)
		b[0] = byte(m.Kind)
		binary.BigEndian.PutUint32(b[1:5], uint32(m.Request))
		b[5] = byte(m.ConnectionType)
		binary.BigEndian.PutUint16(b[6:8], m.Port)
		return b

	case ClientUnregister:
		b := make([]byte, 1+4)
		b[0] = byte(m.Kind)
		binary.BigEndian.PutUint32(b[1:5], uint32(m.Channel))
		return b

	case ClientTcpConnectionDisconnected:
		b := make([]byte, 1+4+4)
		b[0] = byte(m.Kind)
		binary.BigEndian.PutUint32(b[1:5], uint32(m.Channel))
		binary.BigEndian.PutUint32(b[5:9], uint32(derefConn(m.Connection)))
		return b

	case ClientDataBeingSent:
		return encodeChannelOptConnData(byte(m.Kind), m.Channel, m.Connection, m.Data)

	default:
		panic(fmt.Sprintf("wire: unknown ClientMessageKind %d", m.Kind))
	}
}

func DecodeClientMessage(b []byte) (ClientMessage, []byte, error) {
	if len(b) < 1 {
		return ClientMessage{}, b, ErrTruncatedMessage
	}
	kind := ClientMessageKind(b[0])
	rest := b[1:]

	switch kind {
	case ClientRegister:
		if len(rest) < 4+1+2 {
			return ClientMessage{}, b, ErrTruncatedMessage
		}
		req := ids.RequestId(binary.BigEndian.Uint32(rest[0:4]))
		ct := ConnectionType(rest[4])
		port := binary.BigEndian.Uint16(rest[5:7])
		return NewClientRegister(req, ct, port), rest[7:], nil

	case ClientUnregister:
		if len(rest) < 4 {
			return ClientMessage{}, b, ErrTruncatedMessage
		}
		ch := ids.ChannelId(binary.BigEndian.Uint32(rest[0:4]))
		return NewClientUnregister(ch), rest[4:], nil

	case ClientTcpConnectionDisconnected:
		if len(rest) < 8 {
			return ClientMessage{}, b, ErrTruncatedMessage
		}
		ch := ids.ChannelId(binary.BigEndian.Uint32(rest[0:4]))
		cn := ids.ConnectionId(binary.BigEndian.Uint32(rest[4:8]))
		return NewClientTcpConnectionDisconnected(ch, cn), rest[8:], nil

	case ClientDataBeingSent:
		ch, cn, data, tail, err := decodeChannelOptConnData(rest)
		if err != nil {
			return ClientMessage{}, b, err
		}
		return NewClientDataBeingSent(ch, cn, data), tail, nil

	default:
		return ClientMessage{}, b, ErrUnknownMessageKind
	}
}

// Wire layout, all integers big-endian:
//
//	kind byte
//	ServerRegistrationSuccessful:   request u32, channel u32
//	ServerRegistrationFailed:       request u32, cause u8
//	ServerNewIncomingTcpConnection: channel u32, connection u32
//	ServerTcpConnectionClosed:      channel u32, connection u32
//	ServerDataReceived:             channel u32, hasConn u8 [, connection u32], data (u32 len + bytes)
func EncodeServerMessage(m ServerMessage) []byte {
	switch m.Kind {
	case ServerRegistrationSuccessful:
		b := make([]byte, 1+4+4)
		b[0] = byte(m.Kind)
		binary.BigEndian.PutUint32(b[1:5], uint32(m.Request))
		binary.BigEndian.PutUint32(b[5:9], uint32(m.Channel))
		return b

	case ServerRegistrationFailed:
		b := make([]byte, 1+4+1)
		b[0] = byte(m.Kind)
		binary.BigEndian.PutUint32(b[1:5], uint32(m.Request))
		b[5] = byte(m.Cause)
		return b

	case ServerNewIncomingTcpConnection:
		b := make([]byte, 1+4+4)
		b[0] = byte(m.Kind)
		binary.BigEndian.PutUint32(b[1:5], uint32(m.Channel))
		binary.BigEndian.PutUint32(b[5:9], uint32(derefConn(m.Connection)))
		return b

	case ServerTcpConnectionClosed:
		b := make([]byte, 1+4+4)
		b[0] = byte(m.Kind)
		binary.BigEndian.PutUint32(b[1:5], uint32(m.Channel))
		binary.BigEndian.PutUint32(b[5:9], uint32(derefConn(m.Connection)))
		return b

	case ServerDataReceived:
		return encodeChannelOptConnData(byte(m.Kind), m.Channel, m.Connection, m.Data)

	default:
		panic(fmt.Sprintf("wire: unknown ServerMessageKind %d", m.Kind))
	}
}

func DecodeServerMessage(b []byte) (ServerMessage, []byte, error) {
	if len(b) < 1 {
		return ServerMessage{}, b, ErrTruncatedMessage
	}
	kind := ServerMessageKind(b[0])
	rest := b[1:]

	switch kind {
	case ServerRegistrationSuccessful:
		if len(rest) < 8 {
			return ServerMessage{}, b, ErrTruncatedMessage
		}
		req := ids.RequestId(binary.BigEndian.Uint32(rest[0:4]))
		ch := ids.ChannelId(binary.BigEndian.Uint32(rest[4:8]))
		return NewServerRegistrationSuccessful(req, ch), rest[8:], nil

	case ServerRegistrationFailed:
		if len(rest) < 5 {
			return ServerMessage{}, b, ErrTruncatedMessage
		}
		req := ids.RequestId(binary.BigEndian.Uint32(rest[0:4]))
		cause := RegistrationFailureCause(rest[4])
		return NewServerRegistrationFailed(req, cause), rest[5:], nil

	case ServerNewIncomingTcpConnection:
		if len(rest) < 8 {
			return ServerMessage{}, b, ErrTruncatedMessage
		}
		ch := ids.ChannelId(binary.BigEndian.Uint32(rest[0:4]))
		cn := ids.ConnectionId(binary.BigEndian.Uint32(rest[4:8]))
		return NewServerNewIncomingTcpConnection(ch, cn), rest[8:], nil

	case ServerTcpConnectionClosed:
		if len(rest) < 8 {
			return ServerMessage{}, b, ErrTruncatedMessage
		}
		ch := ids.ChannelId(binary.BigEndian.Uint32(rest[0:4]))
		cn := ids.ConnectionId(binary.BigEndian.Uint32(rest[4:8]))
		return NewServerTcpConnectionClosed(ch, cn), rest[8:], nil

	case ServerDataReceived:
		ch, cn, data, tail, err := decodeChannelOptConnData(rest)
		if err != nil {
			return ServerMessage{}, b, err
		}
		return NewServerDataReceived(ch, cn, data), tail, nil

	default:
		return ServerMessage{}, b, ErrUnknownMessageKind
	}
}

func derefConn(c *ids.ConnectionId) ids.ConnectionId {
	if c == nil {
		return 0
	}
	return *c
}

func encodeChannelOptConnData(kind byte, channel ids.ChannelId, connection *ids.ConnectionId, data []byte) []byte {
	hasConn := byte(0)
	connLen := 0
	if connection != nil {
		hasConn = 1
		connLen = 4
	}

	b := make([]byte, 1+4+1+connLen+4+len(data))
	b[0] = kind
	binary.BigEndian.PutUint32(b[1:5], uint32(channel))
	b[5] = hasConn
	off := 6
	if connection != nil {
		binary.BigEndian.PutUint32(b[off:off+4], uint32(*connection))
		off += 4
	}
	binary.BigEndian.PutUint32(b[off:off+4], uint32(len(data)))
	off += 4
	copy(b[off:], data)
	return b
}

func decodeChannelOptConnData(rest []byte) (ids.ChannelId, *ids.ConnectionId, []byte, []byte, error) {
	if len(rest) < 4+1 {
		return 0, nil, nil, nil, ErrTruncatedMessage
	}
	ch := ids.ChannelId(binary.BigEndian.Uint32(rest[0:4]))
	hasConn := rest[4] != 0
	rest = rest[5:]

	var conn *ids.ConnectionId
	if hasConn {
		if len(rest) < 4 {
			return 0, nil, nil, nil, ErrTruncatedMessage
		}
		v := ids.ConnectionId(binary.BigEndian.Uint32(rest[0:4]))
		conn = &v
		rest = rest[4:]
	}

	if len(rest) < 4 {
		return 0, nil, nil, nil, ErrTruncatedMessage
	}
	n := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if uint32(len(rest)) < n {
		return 0, nil, nil, nil, ErrTruncatedMessage
	}

	data := make([]byte, n)
	copy(data, rest[:n])
	return ch, conn, data, rest[n:], nil
}
