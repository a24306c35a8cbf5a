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

// Package tcp is the TCP listener adapter: it accepts connections, wraps
// each in a socket.Context and hands it to the caller's HandlerFunc, one
// goroutine per connection.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	libtls "github.com/nabbar/dsrp/certificates"
	libptc "github.com/nabbar/dsrp/network/protocol"
	libsck "github.com/nabbar/dsrp/socket"
	sckcfg "github.com/nabbar/dsrp/socket/config"
)

var (
	ErrInvalidAddress = errors.New("socket/server/tcp: invalid address")
	ErrInvalidHandler = errors.New("socket/server/tcp: handler is required")
)

// ServerTcp is the Server contract implemented by the TCP listener; it adds
// no methods of its own.
type ServerTcp interface {
	libsck.Server
}

type srv struct {
	mu  sync.Mutex
	cfg sckcfg.Server
	upd libsck.UpdateConn
	hdl libsck.HandlerFunc
	tls libtls.Config

	fnErr libsck.FuncError
	fnInf libsck.FuncInfo

	lst net.Listener
	run int32
	gon int32
	cnt int64
	don chan struct{}
}

// New validates cfg and returns a ServerTcp bound to it. upd may be nil; it
// is invoked on each accepted net.Conn before the connection is wrapped.
// The listener is not created until Listen is called.
func New(upd libsck.UpdateConn, handler libsck.HandlerFunc, cfg sckcfg.Server) (ServerTcp, error) {
	if handler == nil {
		return nil, ErrInvalidHandler
	}
	if !cfg.Network.IsTCP() {
		cfg.Network = libptc.NetworkTCP
	}
	if err := cfg.Validate(); err != nil {
		return nil, ErrInvalidAddress
	}

	return &srv{
		cfg: cfg,
		upd: upd,
		hdl: handler,
		gon: 1,
		don: make(chan struct{}),
	}, nil
}

func (s *srv) RegisterFuncError(f libsck.FuncError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fnErr = f
}

func (s *srv) RegisterFuncInfo(f libsck.FuncInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fnInf = f
}

func (s *srv) reportErr(err error) {
	if err = libsck.ErrorFilter(err); err == nil {
		return
	}
	s.mu.Lock()
	fn := s.fnErr
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (s *srv) reportInfo(local, remote net.Addr, state libsck.ConnState) {
	s.mu.Lock()
	fn := s.fnInf
	s.mu.Unlock()
	if fn != nil {
		fn(local, remote, state)
	}
}

// Listen binds the configured address and accepts connections until ctx is
// canceled, Close is called, or accept fails unrecoverably.
func (s *srv) Listen(ctx context.Context) error {
	lst, err := net.Listen(s.cfg.Network.Code(), s.cfg.Address)
	if err != nil {
		return err
	}
	if s.cfg.TLS.Enabled {
		lst = tls.NewListener(lst, s.cfg.TLS.Config.New().TlsConfig(""))
	}

	s.mu.Lock()
	s.lst = lst
	s.don = make(chan struct{})
	s.mu.Unlock()

	atomic.StoreInt32(&s.run, 1)
	atomic.StoreInt32(&s.gon, 0)

	defer func() {
		atomic.StoreInt32(&s.run, 0)
		atomic.StoreInt32(&s.gon, 1)
		s.mu.Lock()
		close(s.don)
		s.mu.Unlock()
	}()

	go func() {
		<-ctx.Done()
		_ = lst.Close()
	}()

	for {
		c, err := lst.Accept()
		if err != nil {
			if e := libsck.ErrorFilter(err); e == nil {
				return nil
			}
			s.reportErr(err)
			return err
		}

		if s.upd != nil {
			s.upd(c)
		}

		atomic.AddInt64(&s.cnt, 1)
		go s.serve(ctx, c)
	}
}

func (s *srv) serve(parent context.Context, c net.Conn) {
	defer atomic.AddInt64(&s.cnt, -1)

	s.reportInfo(c.LocalAddr(), c.RemoteAddr(), libsck.ConnectionNew)

	cc := newConnContext(parent, c)
	defer func() {
		s.reportInfo(c.LocalAddr(), c.RemoteAddr(), libsck.ConnectionClose)
		_ = cc.Close()
	}()

	s.reportInfo(c.LocalAddr(), c.RemoteAddr(), libsck.ConnectionHandler)
	s.hdl(cc)
}

// Shutdown stops accepting new connections; open ones keep running until
// ctx is done or they close on their own.
func (s *srv) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	l := s.lst
	s.mu.Unlock()

	if l != nil {
		_ = l.Close()
	}

	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close immediately tears down the listener.
func (s *srv) Close() error {
	s.mu.Lock()
	l := s.lst
	s.mu.Unlock()

	if l == nil {
		return nil
	}
	return l.Close()
}

func (s *srv) IsRunning() bool {
	return atomic.LoadInt32(&s.run) == 1
}

func (s *srv) IsGone() bool {
	return atomic.LoadInt32(&s.gon) == 1
}

func (s *srv) OpenConnections() int64 {
	return atomic.LoadInt64(&s.cnt)
}

func (s *srv) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.don
}

var _ io.Closer = (*srv)(nil)
