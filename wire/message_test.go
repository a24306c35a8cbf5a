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

package wire_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/dsrp/ids"
	"github.com/nabbar/dsrp/wire"
)

var _ = Describe("ClientMessage codec", func() {
	It("round-trips Register", func() {
		m := wire.NewClientRegister(ids.RequestId(1), wire.ConnectionTCP, 8080)
		got, rest, err := wire.DecodeClientMessage(wire.EncodeClientMessage(m))

		Expect(err).ToNot(HaveOccurred())
		Expect(rest).To(BeEmpty())
		Expect(got).To(Equal(m))
	})

	It("round-trips Unregister", func() {
		m := wire.NewClientUnregister(ids.ChannelId(42))
		got, _, err := wire.DecodeClientMessage(wire.EncodeClientMessage(m))

		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(m))
	})

	It("round-trips TcpConnectionDisconnected", func() {
		m := wire.NewClientTcpConnectionDisconnected(ids.ChannelId(1), ids.ConnectionId(2))
		got, _, err := wire.DecodeClientMessage(wire.EncodeClientMessage(m))

		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(m))
	})

	It("round-trips DataBeingSent for a TCP connection", func() {
		cid := ids.ConnectionId(9)
		m := wire.NewClientDataBeingSent(ids.ChannelId(1), &cid, []byte("hello"))
		got, _, err := wire.DecodeClientMessage(wire.EncodeClientMessage(m))

		Expect(err).ToNot(HaveOccurred())
		Expect(got.Channel).To(Equal(m.Channel))
		Expect(*got.Connection).To(Equal(cid))
		Expect(got.Data).To(Equal([]byte("hello")))
	})

	It("round-trips DataBeingSent for a UDP channel with no connection", func() {
		m := wire.NewClientDataBeingSent(ids.ChannelId(1), nil, []byte("datagram"))
		got, _, err := wire.DecodeClientMessage(wire.EncodeClientMessage(m))

		Expect(err).ToNot(HaveOccurred())
		Expect(got.Connection).To(BeNil())
		Expect(got.Data).To(Equal([]byte("datagram")))
	})

	It("returns an error for a truncated body", func() {
		b := wire.EncodeClientMessage(wire.NewClientUnregister(ids.ChannelId(1)))
		_, _, err := wire.DecodeClientMessage(b[:len(b)-1])
		Expect(err).To(MatchError(wire.ErrTruncatedMessage))
	})

	It("returns an error for an unknown kind byte", func() {
		_, _, err := wire.DecodeClientMessage([]byte{0xff})
		Expect(err).To(MatchError(wire.ErrUnknownMessageKind))
	})
})

var _ = Describe("ServerMessage codec", func() {
	It("round-trips RegistrationSuccessful", func() {
		m := wire.NewServerRegistrationSuccessful(ids.RequestId(1), ids.ChannelId(2))
		got, _, err := wire.DecodeServerMessage(wire.EncodeServerMessage(m))

		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(m))
	})

	It("round-trips RegistrationFailed", func() {
		m := wire.NewServerRegistrationFailed(ids.RequestId(1), wire.CausePortAlreadyRegistered)
		got, _, err := wire.DecodeServerMessage(wire.EncodeServerMessage(m))

		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(m))
	})

	It("round-trips NewIncomingTcpConnection", func() {
		m := wire.NewServerNewIncomingTcpConnection(ids.ChannelId(1), ids.ConnectionId(2))
		got, _, err := wire.DecodeServerMessage(wire.EncodeServerMessage(m))

		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(m))
	})

	It("round-trips DataReceived carrying large payloads", func() {
		data := bytes.Repeat([]byte{0xAB}, 4096)
		cid := ids.ConnectionId(3)
		m := wire.NewServerDataReceived(ids.ChannelId(1), &cid, data)
		got, _, err := wire.DecodeServerMessage(wire.EncodeServerMessage(m))

		Expect(err).ToNot(HaveOccurred())
		Expect(got.Data).To(Equal(data))
	})
})

var _ = Describe("Frame reader/writer", func() {
	It("delivers messages written to the same stream in order", func() {
		buf := &bytes.Buffer{}
		w := wire.NewFrameWriter(buf)

		Expect(w.WriteClientMessage(wire.NewClientUnregister(ids.ChannelId(1)))).To(Succeed())
		Expect(w.WriteClientMessage(wire.NewClientUnregister(ids.ChannelId(2)))).To(Succeed())

		r := wire.NewFrameReader(buf)
		first, err := r.ReadClientMessage()
		Expect(err).ToNot(HaveOccurred())
		Expect(first.Channel).To(Equal(ids.ChannelId(1)))

		second, err := r.ReadClientMessage()
		Expect(err).ToNot(HaveOccurred())
		Expect(second.Channel).To(Equal(ids.ChannelId(2)))
	})

	It("rejects a frame length above MaxFrameSize", func() {
		buf := &bytes.Buffer{}
		w := wire.NewFrameWriter(buf)
		Expect(w.WriteFrame(make([]byte, wire.MaxFrameSize+1))).To(MatchError(wire.ErrFrameTooLarge))
	})
})
