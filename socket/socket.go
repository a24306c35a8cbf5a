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

// Package socket defines the shared contract between the relay's wire
// adapters (socket/client/*, socket/server/*) and the pure DSRP handlers:
// a Context given to a connection handler, and the Server/Client interfaces
// the protocol-specific packages implement.
package socket

import (
	"context"
	"errors"
	"io"
	"net"
)

// DefaultBufferSize is the read buffer size used by adapters that don't
// have a more specific sizing hint from the handshake.
const DefaultBufferSize = 32 * 1024

// EOL is the newline byte. The control channel does not use it: its
// framing is length-prefixed (see wire.FrameWriter).
const EOL = '\n'

// ConnState names a point in a connection's lifecycle, reported to a
// registered FuncInfo callback.
type ConnState uint8

const (
	ConnectionDial ConnState = iota
	ConnectionNew
	ConnectionRead
	ConnectionCloseRead
	ConnectionHandler
	ConnectionWrite
	ConnectionCloseWrite
	ConnectionClose
)

var connStateNames = map[ConnState]string{
	ConnectionDial:       "Dial Connection",
	ConnectionNew:        "New Connection",
	ConnectionRead:       "Read Incoming Stream",
	ConnectionCloseRead:  "Close Incoming Stream",
	ConnectionHandler:    "Run HandlerFunc",
	ConnectionWrite:      "Write Outgoing Steam",
	ConnectionCloseWrite: "Close Outgoing Stream",
	ConnectionClose:      "Close Connection",
}

// String renders s for logging. Unknown values report "unknown connection
// state" rather than a bare number.
func (s ConnState) String() string {
	if n, ok := connStateNames[s]; ok {
		return n
	}
	return "unknown connection state"
}

// ErrorFilter drops the noisy "use of closed network connection" error that
// net.Listener/net.Conn return on a deliberate Close during shutdown, so
// FuncError callbacks aren't spammed on every graceful stop. The error is
// recognised with errors.Is(err, net.ErrClosed), so it is dropped also when
// wrapped in a *net.OpError. Any other error, including one that merely
// mentions a closed connection in its text, passes through unchanged.
func ErrorFilter(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, net.ErrClosed) || err.Error() == "use of closed network connection" {
		return nil
	}
	return err
}

// FuncError receives errors encountered by a Server or Client outside the
// request/response path (accept failures, read/write failures on a
// connection that isn't the caller's to report on directly).
type FuncError func(errs ...error)

// FuncInfo receives a connection lifecycle notification.
type FuncInfo func(local, remote net.Addr, state ConnState)

// UpdateConn customizes a raw net.Conn before it is handed to a handler,
// e.g. to disable Nagle's algorithm or set keepalive/deadlines.
type UpdateConn func(conn net.Conn)

// HandlerFunc processes one connection. It must not retain ctx past return.
type HandlerFunc func(ctx Context)

// Context is the per-connection handle given to a HandlerFunc. It
// composes context.Context (canceled when the connection or the server's
// parent context is done) with raw stream I/O and addressing.
type Context interface {
	context.Context
	net.Conn

	// IsConnected reports whether the underlying connection is still open.
	IsConnected() bool

	// LocalHost and RemoteHost render the connection's two endpoints.
	LocalHost() string
	RemoteHost() string
}

// Server is implemented by each protocol-specific listener
// (socket/server/tcp, socket/server/udp, ...).
type Server interface {
	// RegisterFuncError sets the callback for out-of-band errors.
	RegisterFuncError(f FuncError)

	// RegisterFuncInfo sets the callback for connection lifecycle events.
	RegisterFuncInfo(f FuncInfo)

	// Listen binds and accepts connections until ctx is canceled or an
	// unrecoverable error occurs. It blocks; run it in a goroutine.
	Listen(ctx context.Context) error

	// Shutdown stops accepting new connections and waits (bounded by ctx)
	// for Listen to return. It does not wait for connections already handed
	// to a HandlerFunc.
	Shutdown(ctx context.Context) error

	// Close immediately closes the listening socket, which makes Listen
	// return. Connections already accepted are not closed by Close itself.
	Close() error

	// IsRunning reports whether Listen is currently accepting connections.
	IsRunning() bool

	// IsGone reports whether the server has fully stopped and released
	// its listener.
	IsGone() bool

	// OpenConnections reports the number of connections currently being
	// handled.
	OpenConnections() int64

	// Done returns a channel closed once the server has fully stopped.
	Done() <-chan struct{}
}

// Client is implemented by each protocol-specific dialer
// (socket/client/tcp, socket/client/udp, ...).
type Client interface {
	net.Conn

	// RegisterFuncError sets the callback for out-of-band errors.
	RegisterFuncError(f FuncError)

	// Connect dials the configured remote address.
	Connect(ctx context.Context) error

	// IsConnected reports whether the underlying connection is open.
	IsConnected() bool

	// Once sends p and invokes r with the response stream for a single
	// request/response exchange, without requiring the caller to manage
	// buffering.
	Once(ctx context.Context, p []byte, r func(reader io.Reader)) error
}
