/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
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

// Package config validates the socket configuration for the relay's control
// connection and per-channel TCP/UDP adapters: which network protocol,
// which address, and whether TLS wraps the stream.
package config

import (
	"errors"
	"net"
	"strings"

	libtls "github.com/nabbar/dsrp/certificates"
	libdur "github.com/nabbar/dsrp/duration"
	libptc "github.com/nabbar/dsrp/network/protocol"
)

var (
	ErrInvalidProtocol   = errors.New("socket/config: invalid or unset network protocol")
	ErrInvalidAddress    = errors.New("socket/config: invalid address for protocol")
	ErrInvalidTLSConfig  = errors.New("socket/config: TLS is only valid for TCP protocols")
	ErrMissingServerName = errors.New("socket/config: TLS client requires ServerName")
)

// TLS configures optional transport security for a socket. It is only
// meaningful over a TCP protocol.
type TLS struct {
	Enabled    bool
	Config     libtls.Config
	ServerName string
}

func (t TLS) validate(proto libptc.NetworkProtocol, isClient bool) error {
	if !t.Enabled {
		return nil
	}
	if !proto.IsTCP() {
		return ErrInvalidTLSConfig
	}
	if isClient && t.ServerName == "" {
		return ErrMissingServerName
	}
	return nil
}

// Client describes how the relay dials out: its process for the control
// connection to the relay server, and for the client's loopback connection
// to the locally-exposed service.
type Client struct {
	Network libptc.NetworkProtocol
	Address string
	TLS     TLS
}

// Validate checks the protocol, address shape and TLS settings. It does not
// attempt to connect.
func (c Client) Validate() error {
	if c.Network == libptc.NetworkEmpty {
		return ErrInvalidProtocol
	}
	if err := validateAddress(c.Network, c.Address); err != nil {
		return err
	}
	return c.TLS.validate(c.Network, true)
}

// Server describes how the relay listens: on the server side, the control
// listener accepting DSRP client connections and the per-channel listener
// bound for a registered client; TLS secures the former when configured.
type Server struct {
	Network        libptc.NetworkProtocol
	Address        string
	ConIdleTimeout libdur.Duration
	TLS            TLS
}

// Validate checks the protocol, address shape, and TLS settings. It does
// not attempt to bind.
func (s Server) Validate() error {
	if s.Network == libptc.NetworkEmpty {
		return ErrInvalidProtocol
	}
	if err := validateAddress(s.Network, s.Address); err != nil {
		return err
	}
	return s.TLS.validate(s.Network, false)
}

func validateAddress(proto libptc.NetworkProtocol, address string) error {
	if strings.TrimSpace(address) == "" {
		return ErrInvalidAddress
	}

	switch {
	case proto.IsUnix():
		if !strings.HasPrefix(address, "/") && !strings.HasPrefix(address, ".") {
			return ErrInvalidAddress
		}
		return nil
	case proto.IsTCP():
		if _, _, err := net.SplitHostPort(address); err != nil {
			return ErrInvalidAddress
		}
		return nil
	case proto.IsUDP():
		if _, _, err := net.SplitHostPort(address); err != nil {
			return ErrInvalidAddress
		}
		return nil
	default:
		return nil
	}
}
