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

package tcp

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	libsck "github.com/nabbar/dsrp/socket"
)

// connContext adapts one accepted net.Conn to socket.Context: it cancels
// when the parent server context is done or the connection closes,
// whichever happens first.
type connContext struct {
	net.Conn
	parent context.Context
	cancel context.CancelFunc
	closed int32
}

func newConnContext(parent context.Context, c net.Conn) *connContext {
	ctx, cancel := context.WithCancel(parent)
	cc := &connContext{Conn: c, parent: ctx, cancel: cancel}
	go func() {
		<-ctx.Done()
	}()
	return cc
}

func (c *connContext) Deadline() (time.Time, bool) {
	return c.parent.Deadline()
}

func (c *connContext) Done() <-chan struct{} {
	return c.parent.Done()
}

func (c *connContext) Err() error {
	return c.parent.Err()
}

func (c *connContext) Value(key interface{}) interface{} {
	return c.parent.Value(key)
}

func (c *connContext) IsConnected() bool {
	return atomic.LoadInt32(&c.closed) == 0
}

func (c *connContext) LocalHost() string {
	if a := c.Conn.LocalAddr(); a != nil {
		return a.String()
	}
	return ""
}

func (c *connContext) RemoteHost() string {
	if a := c.Conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

func (c *connContext) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	c.cancel()
	return c.Conn.Close()
}

var _ libsck.Context = (*connContext)(nil)
