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

// Package udp is the UDP listener adapter. Since UDP has no per-connection
// accept, the server demultiplexes datagrams by source address into one
// socket.Context per peer, each driven by its own HandlerFunc goroutine.
package udp

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	libptc "github.com/nabbar/dsrp/network/protocol"
	libsck "github.com/nabbar/dsrp/socket"
	sckcfg "github.com/nabbar/dsrp/socket/config"
)

var (
	ErrInvalidAddress = errors.New("socket/server/udp: invalid address")
	ErrInvalidHandler = errors.New("socket/server/udp: handler is required")
)

// ServerUdp is the Server contract implemented over a single bound
// net.PacketConn.
type ServerUdp interface {
	libsck.Server
}

type srv struct {
	mu  sync.Mutex
	cfg sckcfg.Server
	upd libsck.UpdateConn
	hdl libsck.HandlerFunc

	fnErr libsck.FuncError
	fnInf libsck.FuncInfo

	pc    net.PacketConn
	peers sync.Map // string(remote addr) -> *peerContext

	run int32
	gon int32
	cnt int64
	don chan struct{}
}

// New validates cfg and returns a ServerUdp bound to it. The socket isn't
// opened until Listen is called.
func New(upd libsck.UpdateConn, handler libsck.HandlerFunc, cfg sckcfg.Server) (ServerUdp, error) {
	if handler == nil {
		return nil, ErrInvalidHandler
	}
	if !cfg.Network.IsUDP() {
		cfg.Network = libptc.NetworkUDP
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

// Listen binds the configured address and demultiplexes incoming datagrams
// by source address until ctx is canceled, Close is called, or the socket
// fails unrecoverably.
func (s *srv) Listen(ctx context.Context) error {
	pc, err := net.ListenPacket(s.cfg.Network.Code(), s.cfg.Address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pc = pc
	s.don = make(chan struct{})
	s.mu.Unlock()

	atomic.StoreInt32(&s.run, 1)
	atomic.StoreInt32(&s.gon, 0)

	defer func() {
		atomic.StoreInt32(&s.run, 0)
		atomic.StoreInt32(&s.gon, 1)
		s.peers.Range(func(k, v interface{}) bool {
			_ = v.(*peerContext).Close()
			return true
		})
		s.mu.Lock()
		close(s.don)
		s.mu.Unlock()
	}()

	go func() {
		<-ctx.Done()
		_ = pc.Close()
	}()

	buf := make([]byte, libsck.DefaultBufferSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if e := libsck.ErrorFilter(err); e == nil {
				return nil
			}
			s.reportErr(err)
			return err
		}

		key := addr.String()
		v, loaded := s.peers.Load(key)
		if !loaded {
			pcx := newPeerContext(ctx, pc, addr)
			v, loaded = s.peers.LoadOrStore(key, pcx)
			if !loaded {
				atomic.AddInt64(&s.cnt, 1)
				s.reportInfo(pc.LocalAddr(), addr, libsck.ConnectionNew)
				go s.serve(v.(*peerContext), key)
			}
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		v.(*peerContext).deliver(data)
	}
}

func (s *srv) serve(pcx *peerContext, key string) {
	defer func() {
		s.peers.Delete(key)
		atomic.AddInt64(&s.cnt, -1)
		s.reportInfo(pcx.LocalAddr(), pcx.RemoteAddr(), libsck.ConnectionClose)
		_ = pcx.Close()
	}()

	s.reportInfo(pcx.LocalAddr(), pcx.RemoteAddr(), libsck.ConnectionHandler)
	s.hdl(pcx)
}

func (s *srv) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()

	if pc != nil {
		_ = pc.Close()
	}

	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *srv) Close() error {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()

	if pc == nil {
		return nil
	}
	return pc.Close()
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
