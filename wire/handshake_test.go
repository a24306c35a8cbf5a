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
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/dsrp/wire"
)

var _ = Describe("Handshake request", func() {
	It("round-trips a version string through encode/decode", func() {
		b := wire.EncodeHandshakeRequest("dsrp/1")
		req, rest, err := wire.DecodeHandshakeRequest(b)

		Expect(err).ToNot(HaveOccurred())
		Expect(req.Version).To(Equal("dsrp/1"))
		Expect(rest).To(BeEmpty())
	})

	It("returns the remainder of the buffer untouched", func() {
		b := wire.EncodeHandshakeRequest("dsrp/1")
		b = append(b, []byte("trailing")...)

		req, rest, err := wire.DecodeHandshakeRequest(b)
		Expect(err).ToNot(HaveOccurred())
		Expect(req.Version).To(Equal("dsrp/1"))
		Expect(string(rest)).To(Equal("trailing"))
	})

	It("rejects a wrong prefix", func() {
		_, _, err := wire.DecodeHandshakeRequest([]byte("XXXXX\x00"))
		Expect(err).To(MatchError(wire.ErrInvalidPrefix))
	})

	It("rejects a truncated frame", func() {
		_, _, err := wire.DecodeHandshakeRequest([]byte("DSRPA"))
		Expect(err).To(MatchError(wire.ErrInvalidNumberOfBytes))
	})

	It("rejects a length prefix that promises more bytes than are present", func() {
		b := append([]byte("DSRPA"), 10)
		b = append(b, []byte("short")...)
		_, _, err := wire.DecodeHandshakeRequest(b)
		Expect(err).To(MatchError(wire.ErrInvalidNumberOfBytes))
	})

	It("rejects invalid utf-8 in the version string", func() {
		b := append([]byte("DSRPA"), 2, 0xff, 0xfe)
		_, _, err := wire.DecodeHandshakeRequest(b)
		Expect(err).To(MatchError(wire.ErrBadUtf8))
	})

	It("panics when asked to encode a version longer than 255 bytes", func() {
		Expect(func() {
			wire.EncodeHandshakeRequest(strings.Repeat("x", 256))
		}).To(Panic())
	})
})

var _ = Describe("Handshake response", func() {
	It("round-trips a success response", func() {
		b, err := wire.EncodeHandshakeResponse(wire.HandshakeSuccess())
		Expect(err).ToNot(HaveOccurred())

		resp, rest, err := wire.DecodeHandshakeResponse(b)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Success).To(BeTrue())
		Expect(rest).To(BeEmpty())
	})

	It("round-trips a failure response and preserves trailing bytes", func() {
		b, err := wire.EncodeHandshakeResponse(wire.HandshakeFailure("unsupported version"))
		Expect(err).ToNot(HaveOccurred())
		b = append(b, []byte("extra")...)

		resp, rest, err := wire.DecodeHandshakeResponse(b)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Success).To(BeFalse())
		Expect(resp.Reason).To(Equal("unsupported version"))
		Expect(string(rest)).To(Equal("extra"))
	})

	It("fails to encode a reason of 128 bytes or more", func() {
		_, err := wire.EncodeHandshakeResponse(wire.HandshakeFailure(strings.Repeat("x", 128)))
		Expect(err).To(MatchError(wire.ErrFailureMessageTooLong))
	})

	It("accepts a reason of exactly 127 bytes", func() {
		_, err := wire.EncodeHandshakeResponse(wire.HandshakeFailure(strings.Repeat("x", 127)))
		Expect(err).ToNot(HaveOccurred())
	})

	It("rejects a reserved marker byte above the success marker", func() {
		b := append([]byte("DSRPB"), 0x81)
		_, _, err := wire.DecodeHandshakeResponse(b)
		Expect(err).To(MatchError(wire.ErrInvalidMarkerByte))
	})

	It("rejects a wrong prefix", func() {
		_, _, err := wire.DecodeHandshakeResponse([]byte("XXXXX\x80"))
		Expect(err).To(MatchError(wire.ErrInvalidPrefix))
	})
})
