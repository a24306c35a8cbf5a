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

package relayclient_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/dsrp/ids"
	"github.com/nabbar/dsrp/relayclient"
	"github.com/nabbar/dsrp/wire"
)

var _ = Describe("New", func() {
	It("returns the initial handshake request to send", func() {
		_, handshake := relayclient.New("dsrp/1")
		Expect(handshake.Version).To(Equal("dsrp/1"))
	})
})

var _ = Describe("Handler.RequestRegistration", func() {
	It("returns a Register message carrying a fresh request id", func() {
		h, _ := relayclient.New("dsrp/1")
		req, msg := h.RequestRegistration(wire.ConnectionTCP, 23)

		Expect(msg.Kind).To(Equal(wire.ClientRegister))
		Expect(msg.Request).To(Equal(req))
		Expect(msg.Port).To(Equal(uint16(23)))
		Expect(h.OutstandingCount()).To(Equal(1))
	})

	It("mints distinct request ids across calls", func() {
		h, _ := relayclient.New("dsrp/1")
		r1, _ := h.RequestRegistration(wire.ConnectionTCP, 23)
		r2, _ := h.RequestRegistration(wire.ConnectionTCP, 80)
		Expect(r1).ToNot(Equal(r2))
	})
})

var _ = Describe("Handler.HandleServerMessage: registration resolution", func() {
	It("turns a successful registration into an active channel and a notification", func() {
		h, _ := relayclient.New("dsrp/1")
		req, _ := h.RequestRegistration(wire.ConnectionTCP, 23)

		ops, err := h.HandleServerMessage(wire.NewServerRegistrationSuccessful(req, ids.ChannelId(7)))
		Expect(err).ToNot(HaveOccurred())
		Expect(ops).To(HaveLen(1))
		Expect(ops[0].Kind).To(Equal(relayclient.OpNotifyChannelOpened))
		Expect(ops[0].Request).To(Equal(req))
		Expect(ops[0].Channel).To(Equal(ids.ChannelId(7)))
		Expect(h.OutstandingCount()).To(Equal(0))
		Expect(h.ChannelCount()).To(Equal(1))
	})

	It("notifies registration failure and drops the outstanding request", func() {
		h, _ := relayclient.New("dsrp/1")
		req, _ := h.RequestRegistration(wire.ConnectionTCP, 23)

		ops, err := h.HandleServerMessage(wire.NewServerRegistrationFailed(req, wire.CausePortAlreadyRegistered))
		Expect(err).ToNot(HaveOccurred())
		Expect(ops[0].Kind).To(Equal(relayclient.OpNotifyRegistrationFailed))
		Expect(ops[0].Cause).To(Equal(wire.CausePortAlreadyRegistered))
		Expect(h.OutstandingCount()).To(Equal(0))
	})

	It("fails with UnknownRequest for a request it never sent", func() {
		h, _ := relayclient.New("dsrp/1")
		_, err := h.HandleServerMessage(wire.NewServerRegistrationSuccessful(ids.RequestId(999), ids.ChannelId(1)))

		var unknown *relayclient.ErrUnknownRequest
		Expect(err).To(BeAssignableToTypeOf(unknown))
	})

	It("never emits both a success and a failure notification for one request", func() {
		h, _ := relayclient.New("dsrp/1")
		req, _ := h.RequestRegistration(wire.ConnectionTCP, 23)
		h.HandleServerMessage(wire.NewServerRegistrationSuccessful(req, ids.ChannelId(1)))

		_, err := h.HandleServerMessage(wire.NewServerRegistrationFailed(req, wire.CauseSocketBindingFailed))
		Expect(err).To(HaveOccurred())
	})
})

// Scenario 5: client ignores orphan TCP notifications.
var _ = Describe("Handler soft-ignore behavior", func() {
	It("ignores NewIncomingTcpConnection for an unknown channel", func() {
		h, _ := relayclient.New("dsrp/1")
		ops := mustHandle(h, wire.NewServerNewIncomingTcpConnection(ids.ChannelId(404), ids.ConnectionId(1)))
		Expect(ops).To(BeEmpty())
	})

	It("ignores NewIncomingTcpConnection for a known UDP channel", func() {
		h, _ := relayclient.New("dsrp/1")
		req, _ := h.RequestRegistration(wire.ConnectionUDP, 53)
		h.HandleServerMessage(wire.NewServerRegistrationSuccessful(req, ids.ChannelId(1)))

		ops := mustHandle(h, wire.NewServerNewIncomingTcpConnection(ids.ChannelId(1), ids.ConnectionId(9)))
		Expect(ops).To(BeEmpty())
	})

	// Scenario 6: UDP data with a connection id is discarded.
	It("discards DataReceived for a UDP channel that carries a connection id", func() {
		h, _ := relayclient.New("dsrp/1")
		req, _ := h.RequestRegistration(wire.ConnectionUDP, 53)
		h.HandleServerMessage(wire.NewServerRegistrationSuccessful(req, ids.ChannelId(1)))

		cid := ids.ConnectionId(1)
		ops := mustHandle(h, wire.NewServerDataReceived(ids.ChannelId(1), &cid, []byte("x")))
		Expect(ops).To(BeEmpty())
	})
})

var _ = Describe("Handler TCP connection lifecycle", func() {
	It("registers a connection on NewIncomingTcpConnection and relays data through it", func() {
		h, _ := relayclient.New("dsrp/1")
		req, _ := h.RequestRegistration(wire.ConnectionTCP, 23)
		h.HandleServerMessage(wire.NewServerRegistrationSuccessful(req, ids.ChannelId(1)))

		ops := mustHandle(h, wire.NewServerNewIncomingTcpConnection(ids.ChannelId(1), ids.ConnectionId(5)))
		Expect(ops).To(HaveLen(1))
		Expect(ops[0].Kind).To(Equal(relayclient.OpCreateTcpConnectionForChannel))

		dataCid := ids.ConnectionId(5)
		dataOps := mustHandle(h, wire.NewServerDataReceived(ids.ChannelId(1), &dataCid, []byte("payload")))
		Expect(dataOps).To(HaveLen(1))
		Expect(dataOps[0].Kind).To(Equal(relayclient.OpRelayRemotePacket))
		Expect(dataOps[0].Data).To(Equal([]byte("payload")))

		closeOps := mustHandle(h, wire.NewServerTcpConnectionClosed(ids.ChannelId(1), ids.ConnectionId(5)))
		Expect(closeOps).To(HaveLen(1))
		Expect(closeOps[0].Kind).To(Equal(relayclient.OpCloseTcpConnection))
	})
})

func mustHandle(h *relayclient.Handler, msg wire.ServerMessage) []relayclient.Operation {
	ops, err := h.HandleServerMessage(msg)
	Expect(err).ToNot(HaveOccurred())
	return ops
}
