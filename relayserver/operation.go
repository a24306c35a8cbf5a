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
	"github.com/nabbar/dsrp/ids"
	"github.com/nabbar/dsrp/wire"
)

// OperationKind tags the variant of an Operation.
type OperationKind uint8

const (
	OpStartTcpOperations OperationKind = iota
	OpStopTcpOperations
	OpStartUdpOperations
	OpStopUdpOperations
	OpDisconnectConnection
	OpSendMessageToDsrpClient
	OpSendByteData
)

// Operation is one instruction a Handler hands back to its embedder. A
// call returns these as a totally ordered slice; the embedder must apply
// them in order. Only the fields relevant to Kind are meaningful.
type Operation struct {
	Kind OperationKind

	Port    uint16
	Channel ids.ChannelId

	Connection    ids.ConnectionId
	hasConnection bool

	Client  ids.ClientId
	Message wire.ServerMessage

	Data []byte
}

// HasConnection reports whether Connection is meaningful for this
// operation's Kind (OpDisconnectConnection always sets it; OpSendByteData
// sets it only for TCP channels).
func (o Operation) HasConnection() bool { return o.hasConnection }

func opStartTcp(port uint16, channel ids.ChannelId) Operation {
	return Operation{Kind: OpStartTcpOperations, Port: port, Channel: channel}
}

func opStopTcp(port uint16) Operation {
	return Operation{Kind: OpStopTcpOperations, Port: port}
}

func opStartUdp(port uint16, channel ids.ChannelId) Operation {
	return Operation{Kind: OpStartUdpOperations, Port: port, Channel: channel}
}

func opStopUdp(port uint16) Operation {
	return Operation{Kind: OpStopUdpOperations, Port: port}
}

func opDisconnect(connection ids.ConnectionId) Operation {
	return Operation{Kind: OpDisconnectConnection, Connection: connection, hasConnection: true}
}

func opSendMessage(client ids.ClientId, msg wire.ServerMessage) Operation {
	return Operation{Kind: OpSendMessageToDsrpClient, Client: client, Message: msg}
}

func opSendByteData(channel ids.ChannelId, connection *ids.ConnectionId, data []byte) Operation {
	op := Operation{Kind: OpSendByteData, Channel: channel, Data: data}
	if connection != nil {
		op.Connection = *connection
		op.hasConnection = true
	}
	return op
}
