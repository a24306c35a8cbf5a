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

package relaysvc

import (
	"context"
	"fmt"
	"io"
	"sync"

	liblog "github.com/nabbar/dsrp/logger"
	loglvl "github.com/nabbar/dsrp/logger/level"

	"github.com/nabbar/dsrp/ids"
	"github.com/nabbar/dsrp/relayclient"
	libsck "github.com/nabbar/dsrp/socket"
	sckctcp "github.com/nabbar/dsrp/socket/client/tcp"
	sckcudp "github.com/nabbar/dsrp/socket/client/udp"
	"github.com/nabbar/dsrp/wire"
)

// Client dials a DSRP relay server's control connection, performs the
// handshake, and drives the pure relayclient.Handler with it: every
// registered tunnel dials the corresponding local service and relays bytes
// between it and the control connection.
type Client struct {
	log liblog.Logger
	hdl *relayclient.Handler

	localAddr func(ct wire.ConnectionType, port uint16) string

	OnChannelOpened      func(channel ids.ChannelId, port uint16)
	OnRegistrationFailed func(request ids.RequestId, cause wire.RegistrationFailureCause)

	mu          sync.Mutex
	fw          *wire.FrameWriter
	pendingPort map[ids.RequestId]portSpec
	channelAddr map[ids.ChannelId]portSpec
	tcpConns    map[ids.ConnectionId]libsck.Client
	udpConns    map[ids.ChannelId]libsck.Client
}

type portSpec struct {
	ct   wire.ConnectionType
	port uint16
}

// NewClient builds a Client around hdl. localAddr resolves the dial address
// of the local service a registered tunnel forwards to; the default used by
// NewClientLoopback is 127.0.0.1:<port>.
func NewClient(log liblog.Logger, hdl *relayclient.Handler, localAddr func(ct wire.ConnectionType, port uint16) string) *Client {
	return &Client{
		log:         log,
		hdl:         hdl,
		localAddr:   localAddr,
		pendingPort: make(map[ids.RequestId]portSpec),
		channelAddr: make(map[ids.ChannelId]portSpec),
		tcpConns:    make(map[ids.ConnectionId]libsck.Client),
		udpConns:    make(map[ids.ChannelId]libsck.Client),
	}
}

// NewClientLoopback builds a Client that forwards every tunnel to
// 127.0.0.1:<registered-port>, the common case for exposing a locally-bound
// service through the relay.
func NewClientLoopback(log liblog.Logger, hdl *relayclient.Handler) *Client {
	return NewClient(log, hdl, func(_ wire.ConnectionType, port uint16) string {
		return fmt.Sprintf("127.0.0.1:%d", port)
	})
}

// Run performs the handshake over conn (already connected to the relay
// server) and then serves ServerMessage frames until ctx is done or the
// connection fails. handshake is the HandshakeRequest relayclient.New
// returned when hdl was built.
func (c *Client) Run(ctx context.Context, conn io.ReadWriteCloser, handshake wire.HandshakeRequest) error {
	fr := wire.NewFrameReader(conn)
	fw := wire.NewFrameWriter(conn)

	if err := fw.WriteHandshakeRequest(handshake.Version); err != nil {
		return ErrorControlWrite.Error(err)
	}
	resp, err := fr.ReadHandshakeResponse()
	if err != nil {
		return ErrorDialSetup.Error(err)
	}
	if !resp.Success {
		return fmt.Errorf("relaysvc: relay server rejected handshake: %s", resp.Reason)
	}

	c.mu.Lock()
	c.fw = fw
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		msg, err := fr.ReadServerMessage()
		if err != nil {
			return err
		}
		ops, err := c.hdl.HandleServerMessage(msg)
		if err != nil {
			c.log.Entry(loglvl.WarnLevel, "server message rejected").ErrorAdd(true, err).Log()
			continue
		}
		c.runOps(ctx, ops)
	}
}

// RequestTunnel asks the relay server to start forwarding port over ct. The
// outcome arrives asynchronously via OnChannelOpened/OnRegistrationFailed.
func (c *Client) RequestTunnel(ct wire.ConnectionType, port uint16) {
	req, msg := c.hdl.RequestRegistration(ct, port)

	c.mu.Lock()
	c.pendingPort[req] = portSpec{ct: ct, port: port}
	fw := c.fw
	c.mu.Unlock()

	if fw != nil {
		if err := fw.WriteClientMessage(msg); err != nil {
			c.log.Entry(loglvl.WarnLevel, "tunnel request write failed").ErrorAdd(true, err).Log()
		}
	}
}

func (c *Client) runOps(ctx context.Context, ops []relayclient.Operation) {
	for _, op := range ops {
		c.runOp(ctx, op)
	}
}

func (c *Client) runOp(ctx context.Context, op relayclient.Operation) {
	switch op.Kind {
	case relayclient.OpNotifyChannelOpened:
		c.handleChannelOpened(op)
	case relayclient.OpNotifyRegistrationFailed:
		c.handleRegistrationFailed(op)
	case relayclient.OpSendMessageToServer:
		c.sendToServer(op.Message)
	case relayclient.OpCreateTcpConnectionForChannel:
		c.dialTcpForChannel(ctx, op.Channel, op.Connection)
	case relayclient.OpCloseTcpConnection:
		c.closeTcpConnection(op.Connection)
	case relayclient.OpRelayRemotePacket:
		c.relayToLocal(ctx, op)
	}
}

func (c *Client) handleChannelOpened(op relayclient.Operation) {
	c.mu.Lock()
	spec, ok := c.pendingPort[op.Request]
	if ok {
		delete(c.pendingPort, op.Request)
		c.channelAddr[op.Channel] = spec
	}
	c.mu.Unlock()

	if c.OnChannelOpened != nil {
		c.OnChannelOpened(op.Channel, spec.port)
	}
}

func (c *Client) handleRegistrationFailed(op relayclient.Operation) {
	c.mu.Lock()
	delete(c.pendingPort, op.Request)
	c.mu.Unlock()

	if c.OnRegistrationFailed != nil {
		c.OnRegistrationFailed(op.Request, op.Cause)
	}
}

func (c *Client) sendToServer(msg wire.ClientMessage) {
	c.mu.Lock()
	fw := c.fw
	c.mu.Unlock()
	if fw == nil {
		return
	}
	if err := fw.WriteClientMessage(msg); err != nil {
		c.log.Entry(loglvl.WarnLevel, "control write failed").ErrorAdd(true, err).Log()
	}
}

func (c *Client) dialTcpForChannel(ctx context.Context, channel ids.ChannelId, conn ids.ConnectionId) {
	c.mu.Lock()
	spec, ok := c.channelAddr[channel]
	c.mu.Unlock()
	if !ok {
		return
	}

	cli, err := sckctcp.New(c.localAddr(spec.ct, spec.port))
	if err != nil || cli.Connect(ctx) != nil {
		if op := c.closeOpForDialFailure(channel, conn); op != nil {
			c.runOp(ctx, *op)
		}
		return
	}

	c.mu.Lock()
	c.tcpConns[conn] = cli
	c.mu.Unlock()

	go c.pumpLocalToServer(channel, conn, cli)
}

func (c *Client) closeOpForDialFailure(channel ids.ChannelId, conn ids.ConnectionId) *relayclient.Operation {
	c.log.Entry(loglvl.WarnLevel, "local dial failed for channel %s connection %s", channel, conn).Log()
	msg := wire.NewClientTcpConnectionDisconnected(channel, conn)
	op := relayclient.Operation{Kind: relayclient.OpSendMessageToServer, Message: msg}
	return &op
}

func (c *Client) pumpLocalToServer(channel ids.ChannelId, conn ids.ConnectionId, cli libsck.Client) {
	defer func() {
		c.mu.Lock()
		delete(c.tcpConns, conn)
		c.mu.Unlock()
		_ = cli.Close()
		c.sendToServer(wire.NewClientTcpConnectionDisconnected(channel, conn))
	}()

	buf := make([]byte, libsck.DefaultBufferSize)
	for {
		n, err := cli.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			c.sendToServer(wire.NewClientDataBeingSent(channel, &conn, data))
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) closeTcpConnection(conn ids.ConnectionId) {
	c.mu.Lock()
	cli, ok := c.tcpConns[conn]
	delete(c.tcpConns, conn)
	c.mu.Unlock()
	if ok {
		_ = cli.Close()
	}
}

func (c *Client) relayToLocal(ctx context.Context, op relayclient.Operation) {
	if op.HasConnection() {
		c.mu.Lock()
		cli, ok := c.tcpConns[op.Connection]
		c.mu.Unlock()
		if !ok {
			return
		}
		if _, err := cli.Write(op.Data); err != nil {
			c.log.Entry(loglvl.WarnLevel, "local write failed for connection %s", op.Connection).ErrorAdd(true, err).Log()
		}
		return
	}

	c.relayUdpToLocal(ctx, op.Channel, op.Data)
}

func (c *Client) relayUdpToLocal(ctx context.Context, channel ids.ChannelId, data []byte) {
	c.mu.Lock()
	cli, ok := c.udpConns[channel]
	spec := c.channelAddr[channel]
	c.mu.Unlock()

	if !ok {
		u, err := sckcudp.New(c.localAddr(spec.ct, spec.port))
		if err != nil || u.Connect(ctx) != nil {
			c.log.Entry(loglvl.WarnLevel, "udp dial failed for channel %s", channel).Log()
			return
		}
		c.mu.Lock()
		c.udpConns[channel] = u
		c.mu.Unlock()
		cli = u
		go c.pumpUdpToServer(channel, u)
	}

	if _, err := cli.Write(data); err != nil {
		c.log.Entry(loglvl.WarnLevel, "udp local write failed for channel %s", channel).ErrorAdd(true, err).Log()
	}
}

func (c *Client) pumpUdpToServer(channel ids.ChannelId, cli libsck.Client) {
	buf := make([]byte, libsck.DefaultBufferSize)
	for {
		n, err := cli.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			c.sendToServer(wire.NewClientDataBeingSent(channel, nil, data))
		}
		if err != nil {
			c.mu.Lock()
			delete(c.udpConns, channel)
			c.mu.Unlock()
			return
		}
	}
}
