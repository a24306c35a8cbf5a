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

// Package relaysvc is the embedder: it drives the pure relayserver.Handler
// and relayclient.Handler state machines with real sockets, turning the
// Operation values they emit into socket/server and socket/client calls and
// feeding the wire events those sockets observe back into the handlers.
package relaysvc

import (
	"context"
	"io"
	"sync"

	liblog "github.com/nabbar/dsrp/logger"
	loglvl "github.com/nabbar/dsrp/logger/level"

	"github.com/nabbar/dsrp/ids"
	"github.com/nabbar/dsrp/relayserver"
	libsck "github.com/nabbar/dsrp/socket"
	sckcfg "github.com/nabbar/dsrp/socket/config"
	scksrvtcp "github.com/nabbar/dsrp/socket/server/tcp"
	scksrvudp "github.com/nabbar/dsrp/socket/server/udp"
	"github.com/nabbar/dsrp/wire"
)

type tcpPeer struct {
	ctx  libsck.Context
	data chan []byte
}

// Server owns the control listener, every DSRP client's control connection,
// and every channel listener the registered clients currently own. It is
// the adapter spec.md's external interfaces section names "the embedder".
type Server struct {
	log liblog.Logger
	hdl *relayserver.Handler

	channelCfg func(port uint16, ct wire.ConnectionType) sckcfg.Server

	mu       sync.Mutex
	clients  map[ids.ClientId]*wire.FrameWriter
	listener map[uint16]libsck.Server
	tcpConns map[ids.ConnectionId]*tcpPeer
	udpPeers map[ids.ChannelId]libsck.Context
}

// NewServer builds a Server around hdl. channelCfg produces the per-channel
// listener configuration (address/TLS/idle-timeout) for a freshly-registered
// port; callers typically close over a fixed bind host and vary only the
// port and protocol.
func NewServer(log liblog.Logger, hdl *relayserver.Handler, channelCfg func(port uint16, ct wire.ConnectionType) sckcfg.Server) *Server {
	return &Server{
		log:        log,
		hdl:        hdl,
		channelCfg: channelCfg,
		clients:    make(map[ids.ClientId]*wire.FrameWriter),
		listener:   make(map[uint16]libsck.Server),
		tcpConns:   make(map[ids.ConnectionId]*tcpPeer),
		udpPeers:   make(map[ids.ChannelId]libsck.Context),
	}
}

// ListenAndServe runs the control listener until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, cfg sckcfg.Server) error {
	srv, err := scksrvtcp.New(nil, s.handleControlConn, cfg)
	if err != nil {
		return ErrorListenSetup.Error(err)
	}
	srv.RegisterFuncError(func(errs ...error) {
		for _, e := range errs {
			s.log.Entry(loglvl.ErrorLevel, "control listener error").ErrorAdd(true, e).Log()
		}
	})
	return srv.Listen(ctx)
}

func (s *Server) handleControlConn(cctx libsck.Context) {
	fr := wire.NewFrameReader(cctx)
	fw := wire.NewFrameWriter(cctx)

	req, err := fr.ReadHandshakeRequest()
	if err != nil {
		s.log.Entry(loglvl.WarnLevel, "handshake read failed from %s", cctx.RemoteHost()).ErrorAdd(true, err).Log()
		return
	}

	clientID, resp := s.hdl.AddClient(req)
	if err = fw.WriteHandshakeResponse(resp); err != nil {
		s.log.Entry(loglvl.WarnLevel, "handshake response write failed to %s", cctx.RemoteHost()).ErrorAdd(true, err).Log()
		return
	}
	if !resp.Success {
		return
	}

	s.mu.Lock()
	s.clients[clientID] = fw
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, clientID)
		s.mu.Unlock()
		s.runOps(s.hdl.RemoveClient(clientID))
	}()

	for {
		msg, err := fr.ReadClientMessage()
		if err != nil {
			if err != io.EOF {
				s.log.Entry(loglvl.InfoLevel, "client %s control read ended", clientID).ErrorAdd(true, err).Log()
			}
			return
		}

		ops, err := s.hdl.HandleClientMessage(clientID, msg)
		if err != nil {
			s.log.Entry(loglvl.WarnLevel, "client %s message rejected", clientID).ErrorAdd(true, err).Log()
			continue
		}
		s.runOps(ops)
	}
}

// runOps executes operations emitted by the handler, in the order given.
func (s *Server) runOps(ops []relayserver.Operation) {
	for _, op := range ops {
		s.runOp(op)
	}
}

func (s *Server) runOp(op relayserver.Operation) {
	switch op.Kind {
	case relayserver.OpStartTcpOperations:
		s.startChannelListener(op.Channel, op.Port, wire.ConnectionTCP)
	case relayserver.OpStartUdpOperations:
		s.startChannelListener(op.Channel, op.Port, wire.ConnectionUDP)
	case relayserver.OpStopTcpOperations, relayserver.OpStopUdpOperations:
		s.stopChannelListener(op.Port)
	case relayserver.OpDisconnectConnection:
		s.closeConnection(op.Connection)
	case relayserver.OpSendMessageToDsrpClient:
		s.sendToClient(op.Client, op.Message)
	case relayserver.OpSendByteData:
		if op.HasConnection() {
			s.deliverToTcpConnection(op.Connection, op.Data)
		} else {
			s.deliverToUdpChannel(op.Channel, op.Data)
		}
	}
}

func (s *Server) startChannelListener(channel ids.ChannelId, port uint16, ct wire.ConnectionType) {
	cfg := s.channelCfg(port, ct)

	var (
		srv libsck.Server
		err error
	)
	switch ct {
	case wire.ConnectionTCP:
		srv, err = scksrvtcp.New(nil, func(pctx libsck.Context) { s.handleChannelTcpConn(channel, pctx) }, cfg)
	case wire.ConnectionUDP:
		srv, err = scksrvudp.New(nil, func(pctx libsck.Context) { s.handleChannelUdpDatagram(channel, pctx) }, cfg)
	}

	if err != nil {
		s.notifyBindFailed(channel)
		return
	}

	s.mu.Lock()
	s.listener[port] = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Listen(context.Background()); err != nil {
			s.notifyBindFailed(channel)
		}
	}()

	if op := s.hdl.SocketBindingSuccessful(channel); op != nil {
		s.runOp(*op)
	}
}

func (s *Server) notifyBindFailed(channel ids.ChannelId) {
	if op := s.hdl.SocketBindingFailed(channel); op != nil {
		s.runOp(*op)
	}
}

func (s *Server) stopChannelListener(port uint16) {
	s.mu.Lock()
	srv, ok := s.listener[port]
	delete(s.listener, port)
	s.mu.Unlock()
	if ok {
		_ = srv.Close()
	}
}

func (s *Server) handleChannelTcpConn(channel ids.ChannelId, cctx libsck.Context) {
	connID, op, err := s.hdl.NewChannelTcpConnection(channel)
	if err != nil {
		_ = cctx.Close()
		return
	}
	s.runOp(op)

	data := make(chan []byte, 16)
	s.mu.Lock()
	s.tcpConns[connID] = &tcpPeer{ctx: cctx, data: data}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.tcpConns, connID)
		s.mu.Unlock()
		if op := s.hdl.TcpConnectionDisconnected(connID); op != nil {
			s.runOp(*op)
		}
	}()

	go func() {
		for b := range data {
			if _, err := cctx.Write(b); err != nil {
				return
			}
		}
	}()

	buf := make([]byte, libsck.DefaultBufferSize)
	for {
		n, err := cctx.Read(buf)
		if n > 0 {
			if op := s.hdl.TcpDataReceived(connID, buf[:n]); op != nil {
				s.runOp(*op)
			}
		}
		if err != nil {
			close(data)
			return
		}
	}
}

// handleChannelUdpDatagram is invoked once per inbound datagram. It remembers
// the peer context so a later OpSendByteData for this channel (the reply the
// DSRP client relays back) has somewhere to go; since UDP is connectionless,
// a reply always targets the most recently seen peer, not necessarily the
// one that sent the datagram which triggered it.
func (s *Server) handleChannelUdpDatagram(channel ids.ChannelId, cctx libsck.Context) {
	buf := make([]byte, libsck.DefaultBufferSize)
	n, err := cctx.Read(buf)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.udpPeers[channel] = cctx
	s.mu.Unlock()

	if op := s.hdl.UdpDataReceived(channel, buf[:n]); op != nil {
		s.runOp(*op)
	}
}

func (s *Server) closeConnection(conn ids.ConnectionId) {
	s.mu.Lock()
	p, ok := s.tcpConns[conn]
	s.mu.Unlock()
	if ok {
		_ = p.ctx.Close()
	}
}

func (s *Server) sendToClient(client ids.ClientId, msg wire.ServerMessage) {
	s.mu.Lock()
	fw, ok := s.clients[client]
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := fw.WriteServerMessage(msg); err != nil {
		s.log.Entry(loglvl.WarnLevel, "client %s control write failed", client).ErrorAdd(true, err).Log()
	}
}

func (s *Server) deliverToTcpConnection(conn ids.ConnectionId, data []byte) {
	s.mu.Lock()
	p, ok := s.tcpConns[conn]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case p.data <- data:
	default:
	}
}

func (s *Server) deliverToUdpChannel(channel ids.ChannelId, data []byte) {
	s.mu.Lock()
	cctx, ok := s.udpPeers[channel]
	s.mu.Unlock()
	if !ok {
		return
	}
	if _, err := cctx.Write(data); err != nil {
		s.log.Entry(loglvl.WarnLevel, "channel %s udp write failed", channel).ErrorAdd(true, err).Log()
	}
}
