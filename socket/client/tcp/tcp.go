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

// Package tcp is the TCP dialer adapter used by the relay's control
// connection and by its loopback connection to the locally-exposed
// service.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	libtls "github.com/nabbar/dsrp/certificates"
	libsck "github.com/nabbar/dsrp/socket"
)

var (
	ErrInvalidAddress = errors.New("socket/client/tcp: invalid dial address")
	ErrResolveAddress = errors.New("socket/client/tcp: address resolution failed")
	ErrNotConnected   = errors.New("socket/client/tcp: not connected")
)

// ClientTCP is the Client contract plus SetTLS, which toggles transport
// security before Connect is called.
type ClientTCP interface {
	libsck.Client

	// SetTLS enables or disables TLS for the next Connect call. cfg is
	// ignored when enabled is false.
	SetTLS(enabled bool, cfg libtls.TLSConfig, serverName string) error
}

type client struct {
	mu   sync.Mutex
	addr string

	tlsEnabled bool
	tlsCfg     libtls.TLSConfig
	tlsServer  string

	fnErr libsck.FuncError
	fnInf libsck.FuncInfo

	con  net.Conn
	open int32
}

// New resolves addr as a TCP address and returns a not-yet-connected
// ClientTCP. Connect must be called before any I/O.
func New(addr string) (ClientTCP, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, ErrInvalidAddress
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return nil, ErrResolveAddress
	}

	return &client{addr: addr}, nil
}

func (c *client) SetTLS(enabled bool, cfg libtls.TLSConfig, serverName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tlsEnabled = enabled
	c.tlsCfg = cfg
	c.tlsServer = serverName
	return nil
}

func (c *client) RegisterFuncError(f libsck.FuncError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fnErr = f
}

func (c *client) RegisterFuncInfo(f libsck.FuncInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fnInf = f
}

func (c *client) reportErr(err error) {
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

// Connect dials the configured address, wrapping the stream in TLS if
// SetTLS(true, ...) was called beforehand.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	addr := c.addr
	enabled := c.tlsEnabled
	tlsCfg := c.tlsCfg
	serverName := c.tlsServer
	c.mu.Unlock()

	d := net.Dialer{}
	con, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.reportErr(err)
		return err
	}

	if enabled && tlsCfg != nil {
		con = tls.Client(con, tlsCfg.TlsConfig(serverName))
	}

	c.mu.Lock()
	c.con = con
	c.mu.Unlock()
	atomic.StoreInt32(&c.open, 1)
	return nil
}

func (c *client) IsConnected() bool {
	return atomic.LoadInt32(&c.open) == 1
}

func (c *client) conn() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.con == nil {
		return nil, ErrNotConnected
	}
	return c.con, nil
}

func (c *client) Read(p []byte) (int, error) {
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

func (c *client) Write(p []byte) (int, error) {
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

func (c *client) Close() error {
	c.mu.Lock()
	con := c.con
	c.mu.Unlock()

	atomic.StoreInt32(&c.open, 0)
	if con == nil {
		return nil
	}
	return con.Close()
}

func (c *client) LocalAddr() net.Addr {
	if con, err := c.conn(); err == nil {
		return con.LocalAddr()
	}
	return nil
}

func (c *client) RemoteAddr() net.Addr {
	if con, err := c.conn(); err == nil {
		return con.RemoteAddr()
	}
	return nil
}

func (c *client) SetDeadline(t time.Time) error {
	con, err := c.conn()
	if err != nil {
		return err
	}
	return con.SetDeadline(t)
}

func (c *client) SetReadDeadline(t time.Time) error {
	con, err := c.conn()
	if err != nil {
		return err
	}
	return con.SetReadDeadline(t)
}

func (c *client) SetWriteDeadline(t time.Time) error {
	con, err := c.conn()
	if err != nil {
		return err
	}
	return con.SetWriteDeadline(t)
}

// Once writes p, then hands the connection's remaining response stream to
// r for a single request/response exchange. The connection stays open
// afterward; Close it explicitly when done.
func (c *client) Once(ctx context.Context, p []byte, r func(reader io.Reader)) error {
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

var _ libsck.Client = (*client)(nil)
