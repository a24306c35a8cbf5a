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

package ids_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/dsrp/ids"
)

var _ = Describe("Allocator", func() {
	var (
		a    *ids.Allocator
		live map[uint32]bool
	)

	BeforeEach(func() {
		a = &ids.Allocator{}
		live = make(map[uint32]bool)
	})

	isLive := func() func(uint32) bool {
		return func(v uint32) bool { return live[v] }
	}

	It("hands out ascending values starting at zero", func() {
		Expect(a.Next(isLive())).To(Equal(uint32(0)))
		Expect(a.Next(isLive())).To(Equal(uint32(1)))
		Expect(a.Next(isLive())).To(Equal(uint32(2)))
	})

	It("never returns a value the caller reports live", func() {
		live[0] = true
		live[1] = true
		Expect(a.Next(isLive())).To(Equal(uint32(2)))
	})

	It("skips past a block of live values to find the next free one", func() {
		live[5] = true
		live[6] = true
		live[7] = true
		a.Reset(5)
		Expect(a.Next(isLive())).To(Equal(uint32(8)))
	})

	It("wraps from the top of the 32-bit space back to zero", func() {
		a.Reset(math.MaxUint32)
		Expect(a.Next(isLive())).To(Equal(uint32(math.MaxUint32)))
		Expect(a.Next(isLive())).To(Equal(uint32(0)))
	})

	It("probes past a live value it wraps into", func() {
		live[0] = true
		a.Reset(math.MaxUint32)
		Expect(a.Next(isLive())).To(Equal(uint32(math.MaxUint32)))
		Expect(a.Next(isLive())).To(Equal(uint32(1)))
	})
})

var _ = Describe("Id stringers", func() {
	It("renders a readable label per id kind", func() {
		Expect(ids.ClientId(7).String()).To(Equal("client#7"))
		Expect(ids.ChannelId(7).String()).To(Equal("channel#7"))
		Expect(ids.ConnectionId(7).String()).To(Equal("connection#7"))
		Expect(ids.RequestId(7).String()).To(Equal("request#7"))
	})
})
