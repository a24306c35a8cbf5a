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

package relayserver_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/dsrp/ids"
	"github.com/nabbar/dsrp/relayserver"
	"github.com/nabbar/dsrp/wire"
)

const version = "dsrp/1"

var _ = Describe("Handler.AddClient", func() {
	It("admits a client whose version matches byte-exact", func() {
		h := relayserver.New(version)
		id, resp := h.AddClient(wire.HandshakeRequest{Version: version})

		Expect(resp.Success).To(BeTrue())
		Expect(h.ClientCount()).To(Equal(1))
		_ = id
	})

	It("rejects a client whose version does not match", func() {
		h := relayserver.New(version)
		_, resp := h.AddClient(wire.HandshakeRequest{Version: "dsrp/2"})

		Expect(resp.Success).To(BeFalse())
		Expect(h.ClientCount()).To(Equal(0))
	})

	It("mints distinct client ids for successive clients", func() {
		h := relayserver.New(version)
		a, _ := h.AddClient(wire.HandshakeRequest{Version: version})
		b, _ := h.AddClient(wire.HandshakeRequest{Version: version})
		Expect(a).ToNot(Equal(b))
	})
})

// Scenario 1: register TCP, bind succeeds, accept, data, close.
var _ = Describe("Handler end-to-end: TCP register through close", func() {
	It("follows the full accept/data/close lifecycle in order", func() {
		h := relayserver.New(version)
		client, resp := h.AddClient(wire.HandshakeRequest{Version: version})
		Expect(resp.Success).To(BeTrue())

		ops, err := h.HandleClientMessage(client, wire.NewClientRegister(ids.RequestId(1), wire.ConnectionTCP, 23))
		Expect(err).ToNot(HaveOccurred())
		Expect(ops).To(HaveLen(1))
		Expect(ops[0].Kind).To(Equal(relayserver.OpStartTcpOperations))
		Expect(ops[0].Port).To(Equal(uint16(23)))
		channel := ops[0].Channel

		successOp := h.SocketBindingSuccessful(channel)
		Expect(successOp).ToNot(BeNil())
		Expect(successOp.Kind).To(Equal(relayserver.OpSendMessageToDsrpClient))
		Expect(successOp.Client).To(Equal(client))
		Expect(successOp.Message.Kind).To(Equal(wire.ServerRegistrationSuccessful))
		Expect(successOp.Message.Request).To(Equal(ids.RequestId(1)))
		Expect(successOp.Message.Channel).To(Equal(channel))

		conn, connOp, err := h.NewChannelTcpConnection(channel)
		Expect(err).ToNot(HaveOccurred())
		Expect(connOp.Message.Kind).To(Equal(wire.ServerNewIncomingTcpConnection))
		Expect(connOp.Message.Channel).To(Equal(channel))
		Expect(*connOp.Message.Connection).To(Equal(conn))

		dataOp := h.TcpDataReceived(conn, []byte{1, 2, 3})
		Expect(dataOp).ToNot(BeNil())
		Expect(dataOp.Message.Kind).To(Equal(wire.ServerDataReceived))
		Expect(*dataOp.Message.Connection).To(Equal(conn))
		Expect(dataOp.Message.Data).To(Equal([]byte{1, 2, 3}))

		closeOp := h.TcpConnectionDisconnected(conn)
		Expect(closeOp).ToNot(BeNil())
		Expect(closeOp.Message.Kind).To(Equal(wire.ServerTcpConnectionClosed))
		Expect(closeOp.Message.Channel).To(Equal(channel))
		Expect(*closeOp.Message.Connection).To(Equal(conn))
	})
})

// Scenario 2: port conflict.
var _ = Describe("Handler end-to-end: port conflict", func() {
	It("fails registration for the second client only", func() {
		h := relayserver.New(version)
		c1, _ := h.AddClient(wire.HandshakeRequest{Version: version})
		c2, _ := h.AddClient(wire.HandshakeRequest{Version: version})

		ops1, err := h.HandleClientMessage(c1, wire.NewClientRegister(ids.RequestId(1), wire.ConnectionTCP, 23))
		Expect(err).ToNot(HaveOccurred())
		Expect(ops1[0].Kind).To(Equal(relayserver.OpStartTcpOperations))

		ops2, err := h.HandleClientMessage(c2, wire.NewClientRegister(ids.RequestId(9), wire.ConnectionTCP, 23))
		Expect(err).ToNot(HaveOccurred())
		Expect(ops2).To(HaveLen(1))
		Expect(ops2[0].Kind).To(Equal(relayserver.OpSendMessageToDsrpClient))
		Expect(ops2[0].Client).To(Equal(c2))
		Expect(ops2[0].Message.Kind).To(Equal(wire.ServerRegistrationFailed))
		Expect(ops2[0].Message.Cause).To(Equal(wire.CausePortAlreadyRegistered))
	})
})

// Scenario 3: unregister with live connections.
var _ = Describe("Handler end-to-end: unregister with live connections", func() {
	It("disconnects every connection before stopping the channel", func() {
		h := relayserver.New(version)
		client, _ := h.AddClient(wire.HandshakeRequest{Version: version})

		ops, _ := h.HandleClientMessage(client, wire.NewClientRegister(ids.RequestId(1), wire.ConnectionTCP, 23))
		channel := ops[0].Channel
		Expect(h.SocketBindingSuccessful(channel)).ToNot(BeNil())

		k1, _, err := h.NewChannelTcpConnection(channel)
		Expect(err).ToNot(HaveOccurred())
		k2, _, err := h.NewChannelTcpConnection(channel)
		Expect(err).ToNot(HaveOccurred())

		unregOps, err := h.HandleClientMessage(client, wire.NewClientUnregister(channel))
		Expect(err).ToNot(HaveOccurred())
		Expect(unregOps).To(HaveLen(3))

		disconnected := []ids.ConnectionId{}
		for _, op := range unregOps[:2] {
			Expect(op.Kind).To(Equal(relayserver.OpDisconnectConnection))
			disconnected = append(disconnected, op.Connection)
		}
		Expect(disconnected).To(ConsistOf(k1, k2))
		Expect(unregOps[2].Kind).To(Equal(relayserver.OpStopTcpOperations))
		Expect(unregOps[2].Port).To(Equal(uint16(23)))
	})
})

// Scenario 4: binding failure reopens the port.
var _ = Describe("Handler end-to-end: binding failure reopens the port", func() {
	It("lets the same client re-register the freed port", func() {
		h := relayserver.New(version)
		client, _ := h.AddClient(wire.HandshakeRequest{Version: version})

		ops, _ := h.HandleClientMessage(client, wire.NewClientRegister(ids.RequestId(1), wire.ConnectionTCP, 23))
		channel := ops[0].Channel

		failOp := h.SocketBindingFailed(channel)
		Expect(failOp).ToNot(BeNil())
		Expect(failOp.Message.Kind).To(Equal(wire.ServerRegistrationFailed))
		Expect(failOp.Message.Cause).To(Equal(wire.CauseSocketBindingFailed))

		ops2, err := h.HandleClientMessage(client, wire.NewClientRegister(ids.RequestId(2), wire.ConnectionTCP, 23))
		Expect(err).ToNot(HaveOccurred())
		Expect(ops2[0].Kind).To(Equal(relayserver.OpStartTcpOperations))
	})
})

var _ = Describe("Handler.HandleClientMessage validation", func() {
	It("rejects messages from an unknown client", func() {
		h := relayserver.New(version)
		_, err := h.HandleClientMessage(ids.ClientId(999), wire.NewClientRegister(ids.RequestId(1), wire.ConnectionTCP, 1))
		Expect(err).To(MatchError(relayserver.ErrUnknownClientId))
	})

	It("rejects Unregister for an unknown channel", func() {
		h := relayserver.New(version)
		client, _ := h.AddClient(wire.HandshakeRequest{Version: version})
		_, err := h.HandleClientMessage(client, wire.NewClientUnregister(ids.ChannelId(123)))
		Expect(err).To(MatchError(relayserver.ErrChannelNotFound))
	})

	It("rejects Unregister from a client that does not own the channel", func() {
		h := relayserver.New(version)
		owner, _ := h.AddClient(wire.HandshakeRequest{Version: version})
		other, _ := h.AddClient(wire.HandshakeRequest{Version: version})

		ops, _ := h.HandleClientMessage(owner, wire.NewClientRegister(ids.RequestId(1), wire.ConnectionTCP, 23))
		channel := ops[0].Channel

		_, err := h.HandleClientMessage(other, wire.NewClientUnregister(channel))
		Expect(err).To(HaveOccurred())

		var notOwned *relayserver.ErrChannelNotOwnedByRequester
		Expect(err).To(BeAssignableToTypeOf(notOwned))
	})

	It("leaves state untouched after a failed call", func() {
		h := relayserver.New(version)
		client, _ := h.AddClient(wire.HandshakeRequest{Version: version})
		h.HandleClientMessage(client, wire.NewClientRegister(ids.RequestId(1), wire.ConnectionTCP, 23))

		before := h.ChannelCount()
		_, err := h.HandleClientMessage(client, wire.NewClientUnregister(ids.ChannelId(999)))
		Expect(err).To(HaveOccurred())
		Expect(h.ChannelCount()).To(Equal(before))
	})

	It("soft-ignores a second disconnect notification for the same connection", func() {
		h := relayserver.New(version)
		client, _ := h.AddClient(wire.HandshakeRequest{Version: version})
		ops, _ := h.HandleClientMessage(client, wire.NewClientRegister(ids.RequestId(1), wire.ConnectionTCP, 23))
		channel := ops[0].Channel
		h.SocketBindingSuccessful(channel)
		conn, _, _ := h.NewChannelTcpConnection(channel)

		first := h.TcpConnectionDisconnected(conn)
		Expect(first).ToNot(BeNil())

		second := h.TcpConnectionDisconnected(conn)
		Expect(second).To(BeNil())
	})

	It("soft-ignores DataBeingSent against a channel the client does not own", func() {
		h := relayserver.New(version)
		owner, _ := h.AddClient(wire.HandshakeRequest{Version: version})
		other, _ := h.AddClient(wire.HandshakeRequest{Version: version})
		ops, _ := h.HandleClientMessage(owner, wire.NewClientRegister(ids.RequestId(1), wire.ConnectionUDP, 53))
		channel := ops[0].Channel

		result, err := h.HandleClientMessage(other, wire.NewClientDataBeingSent(channel, nil, []byte("x")))
		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(BeEmpty())
	})
})

var _ = Describe("Handler.RemoveClient", func() {
	It("emits a disconnect per connection and a stop per channel, then erases all state", func() {
		h := relayserver.New(version)
		client, _ := h.AddClient(wire.HandshakeRequest{Version: version})

		ops, _ := h.HandleClientMessage(client, wire.NewClientRegister(ids.RequestId(1), wire.ConnectionTCP, 23))
		channel := ops[0].Channel
		h.SocketBindingSuccessful(channel)
		k1, _, _ := h.NewChannelTcpConnection(channel)
		k2, _, _ := h.NewChannelTcpConnection(channel)

		removeOps := h.RemoveClient(client)
		Expect(removeOps).To(HaveLen(3))

		var disconnected []ids.ConnectionId
		for _, op := range removeOps {
			if op.Kind == relayserver.OpDisconnectConnection {
				disconnected = append(disconnected, op.Connection)
			}
		}
		Expect(disconnected).To(ConsistOf(k1, k2))
		Expect(removeOps[len(removeOps)-1].Kind).To(Equal(relayserver.OpStopTcpOperations))

		Expect(h.ClientCount()).To(Equal(0))
		Expect(h.ChannelCount()).To(Equal(0))
		Expect(h.ConnectionCount()).To(Equal(0))
	})

	It("returns an empty list for an unknown client", func() {
		h := relayserver.New(version)
		Expect(h.RemoveClient(ids.ClientId(1))).To(BeEmpty())
	})
})

var _ = Describe("Handler UDP path", func() {
	It("forwards datagrams without a connection id", func() {
		h := relayserver.New(version)
		client, _ := h.AddClient(wire.HandshakeRequest{Version: version})
		ops, _ := h.HandleClientMessage(client, wire.NewClientRegister(ids.RequestId(1), wire.ConnectionUDP, 53))
		Expect(ops[0].Kind).To(Equal(relayserver.OpStartUdpOperations))
		channel := ops[0].Channel

		op := h.UdpDataReceived(channel, []byte("dns query"))
		Expect(op).ToNot(BeNil())
		Expect(op.Message.Connection).To(BeNil())
		Expect(op.Message.Data).To(Equal([]byte("dns query")))
	})
})
