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

// Package udp is the UDP dialer adapter used for the relay's per-channel
// datagram forwarding.
package udp

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	libsck "github.com/nabbar/dsrp/socket"
)

var (
	ErrInstance   = errors.New("socket/client/udp: nil client instance")
	ErrConnection = errors.New("socket/client/udp: not connected")
	ErrAddress    = errors.New("socket/client/udp: invalid dial address")
)

// ClientUDP dials one remote UDP address and exchanges datagrams with it.
type ClientUDP struct {
	mu   sync.Mutex
	addr string

	fnErr libsck.FuncError
	fnInf libsck.FuncInfo

	con  net.Conn
	open int32
}

// New resolves addr as a UDP address and returns a not-yet-connected
// *ClientUDP.
func New(addr string) (*ClientUDP, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, ErrAddress
	}
	if _, err := net.ResolveUDPAddr("udp", addr); err != nil {
		return nil, ErrAddress
	}

	return &ClientUDP{addr: addr}, nil
}

func (c *ClientUDP) RegisterFuncError(f libsck.FuncError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fnErr = f
}

func (c *ClientUDP) RegisterFuncInfo(f libsck.FuncInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fnInf = f
}

func (c *ClientUDP) reportErr(err error) {
	if err = libsck.ErrorFilter(err); err == nil {
		return
	}
	c.mu.Lock()
	fn := c.fnErr
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Connect opens the local UDP socket bound to the configured remote
// address; UDP has no handshake, so this only allocates the socket.
func (c *ClientUDP) Connect(ctx context.Context) error {
	if c == nil {
		return ErrInstance
	}

	d := net.Dialer{}
	con, err := d.DialContext(ctx, "udp", c.addr)
	if err != nil {
		c.reportErr(err)
		return err
	}

	c.mu.Lock()
	c.con = con
	c.mu.Unlock()
	atomic.StoreInt32(&c.open, 1)

	c.mu.Lock()
	fn := c.fnInf
	c.mu.Unlock()
	if fn != nil {
		fn(con.LocalAddr(), con.RemoteAddr(), libsck.ConnectionDial)
	}
	return nil
}

func (c *ClientUDP) IsConnected() bool {
	if c == nil {
		return false
	}
	return atomic.LoadInt32(&c.open) == 1
}

func (c *ClientUDP) conn() (net.Conn, error) {
	if c == nil {
		return nil, ErrInstance
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.con == nil {
		return nil, ErrConnection
	}
	return c.con, nil
}

func (c *ClientUDP) Read(p []byte) (int, error) {
	con, err := c.conn()
	if err != nil {
		return 0, err
	}
	n, err := con.Read(p)
	if err != nil {
		c.reportErr(err)
	}
	return n, err
}

func (c *ClientUDP) Write(p []byte) (int, error) {
	con, err := c.conn()
	if err != nil {
		return 0, err
	}
	n, err := con.Write(p)
	if err != nil {
		c.reportErr(err)
	}
	return n, err
}

func (c *ClientUDP) Close() error {
	con, err := c.conn()
	if err != nil {
		return err
	}
	atomic.StoreInt32(&c.open, 0)
	c.mu.Lock()
	c.con = nil
	c.mu.Unlock()
	return con.Close()
}

func (c *ClientUDP) LocalAddr() net.Addr {
	if con, err := c.conn(); err == nil {
		return con.LocalAddr()
	}
	return nil
}

func (c *ClientUDP) RemoteAddr() net.Addr {
	if con, err := c.conn(); err == nil {
		return con.RemoteAddr()
	}
	return nil
}

func (c *ClientUDP) SetDeadline(t time.Time) error {
	con, err := c.conn()
	if err != nil {
		return err
	}
	return con.SetDeadline(t)
}

func (c *ClientUDP) SetReadDeadline(t time.Time) error {
	con, err := c.conn()
	if err != nil {
		return err
	}
	return con.SetReadDeadline(t)
}

func (c *ClientUDP) SetWriteDeadline(t time.Time) error {
	con, err := c.conn()
	if err != nil {
		return err
	}
	return con.SetWriteDeadline(t)
}

// Once writes p, then hands the connection's remaining response stream to
// r for a single request/response exchange.
func (c *ClientUDP) Once(ctx context.Context, p []byte, r func(reader io.Reader)) error {
	con, err := c.conn()
	if err != nil {
		return err
	}
	if _, err = con.Write(p); err != nil {
		c.reportErr(err)
		return err
	}
	if r != nil {
		r(con)
	}
	return nil
}

var _ libsck.Client = (*ClientUDP)(nil)
