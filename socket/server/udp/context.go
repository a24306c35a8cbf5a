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

package udp

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	libsck "github.com/nabbar/dsrp/socket"
)

// peerContext is the socket.Context for one UDP peer address: Read drains
// datagrams the server loop has demultiplexed to this peer, Write sends a
// datagram back to it over the shared PacketConn.
type peerContext struct {
	parent context.Context
	cancel context.CancelFunc
	pc     net.PacketConn
	remote net.Addr

	in     chan []byte
	pend   []byte
	closed int32
}

func newPeerContext(parent context.Context, pc net.PacketConn, remote net.Addr) *peerContext {
	ctx, cancel := context.WithCancel(parent)
	return &peerContext{
		parent: ctx,
		cancel: cancel,
		pc:     pc,
		remote: remote,
		in:     make(chan []byte, 64),
	}
}

func (p *peerContext) deliver(data []byte) {
	if atomic.LoadInt32(&p.closed) == 1 {
		return
	}
	select {
	case p.in <- data:
	case <-p.parent.Done():
	}
}

func (p *peerContext) Deadline() (time.Time, bool) { return p.parent.Deadline() }
func (p *peerContext) Done() <-chan struct{}       { return p.parent.Done() }
func (p *peerContext) Err() error                  { return p.parent.Err() }
func (p *peerContext) Value(key interface{}) interface{} {
	return p.parent.Value(key)
}

func (p *peerContext) IsConnected() bool {
	return atomic.LoadInt32(&p.closed) == 0
}

func (p *peerContext) LocalAddr() net.Addr {
	return p.pc.LocalAddr()
}

func (p *peerContext) RemoteAddr() net.Addr {
	return p.remote
}

func (p *peerContext) LocalHost() string {
	if a := p.LocalAddr(); a != nil {
		return a.String()
	}
	return ""
}

func (p *peerContext) RemoteHost() string {
	if a := p.remote; a != nil {
		return a.String()
	}
	return ""
}

// Read returns the next datagram payload queued for this peer, or io.EOF
// once the peer context is closed with nothing left pending.
func (p *peerContext) Read(b []byte) (int, error) {
	if len(p.pend) > 0 {
		n := copy(b, p.pend)
		p.pend = p.pend[n:]
		return n, nil
	}

	select {
	case data, ok := <-p.in:
		if !ok {
			return 0, io.EOF
		}
		n := copy(b, data)
		if n < len(data) {
			p.pend = data[n:]
		}
		return n, nil
	case <-p.parent.Done():
		return 0, io.EOF
	}
}

func (p *peerContext) Write(b []byte) (int, error) {
	return p.pc.WriteTo(b, p.remote)
}

func (p *peerContext) Close() error {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return nil
	}
	p.cancel()
	close(p.in)
	return nil
}

func (p *peerContext) SetDeadline(t time.Time) error      { return nil }
func (p *peerContext) SetReadDeadline(t time.Time) error   { return nil }
func (p *peerContext) SetWriteDeadline(t time.Time) error  { return nil }

var _ libsck.Context = (*peerContext)(nil)
