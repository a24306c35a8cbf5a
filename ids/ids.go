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

// Package ids defines the opaque 32-bit identifiers the relay hands out to
// clients, channels, connections and outstanding requests, plus the
// wrapping allocator both handler cores use to mint them.
package ids

import "fmt"

// ClientId names one connected DSRP client on the server side.
type ClientId uint32

// ChannelId names one registered forwarding channel (a bound port) on the
// server side and its mirror on the client side.
type ChannelId uint32

// ConnectionId names one TCP connection accepted on a channel's bound port,
// or one client-side connection forwarded over the control channel.
type ConnectionId uint32

// RequestId names one outstanding registration request made by a client
// that has not yet received a RegistrationSuccessful/RegistrationFailed
// response.
type RequestId uint32

func (c ClientId) String() string     { return fmt.Sprintf("client#%d", uint32(c)) }
func (c ChannelId) String() string    { return fmt.Sprintf("channel#%d", uint32(c)) }
func (c ConnectionId) String() string { return fmt.Sprintf("connection#%d", uint32(c)) }
func (r RequestId) String() string    { return fmt.Sprintf("request#%d", uint32(r)) }

// Allocator mints uint32 ids from a monotonically wrapping counter, probing
// past ids a caller still considers live. It is not safe for concurrent
// use; both RelayServerHandler and RelayClientHandler are single-threaded
// and own one Allocator per id space.
//
// The counter wraps silently at 1<<32: once every value has been handed
// out, allocation resumes from zero and skips anything still reported live
// by isLive. A relay that runs long enough to allocate 2^32 ids of one kind
// without ever freeing any will loop forever; that is an accepted
// consequence of staying within a fixed-width wire id, not a bug to guard
// against here.
type Allocator struct {
	next uint32
}

// Next returns the next free value, treating isLive(v) == true as "already
// in use" and skipping it. isLive must be a pure membership check with no
// side effects; Next may call it more than once per allocation while
// probing past collisions.
func (a *Allocator) Next(isLive func(v uint32) bool) uint32 {
	v := a.next
	for isLive(v) {
		v++
	}
	a.next = v + 1
	return v
}

// Reset sets the value the allocator tries first on its next call to Next.
// Exposed for tests exercising wraparound without allocating 2^32 ids.
func (a *Allocator) Reset(next uint32) {
	a.next = next
}
