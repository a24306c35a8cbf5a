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

// Package wire is the DSRP control-connection codec: the version handshake
// exchanged right after accept, and the typed ClientMessage/ServerMessage
// frames exchanged afterward. Nothing here touches a socket; every function
// is a pure []byte -> (value, remainder, error) or (value) -> []byte
// transform, so the handlers that consume the decoded values stay I/O-free.
package wire

import (
	"errors"
	"unicode/utf8"
)

const (
	reqPrefix  = "DSRPA"
	respPrefix = "DSRPB"

	// markerSuccess is the handshake response marker byte meaning the
	// server admitted the client. Values below it are failure-reason
	// lengths; values above it are reserved.
	markerSuccess byte = 0x80

	// maxReasonLen is the largest failure reason the marker byte can
	// carry: any value in [0, markerSuccess) is itself the length.
	maxReasonLen = int(markerSuccess)

	// maxVersionLen is the largest version string the one-byte length
	// prefix of a handshake request can carry.
	maxVersionLen = 255
)

var (
	ErrInvalidPrefix         = errors.New("wire: invalid handshake prefix")
	ErrInvalidNumberOfBytes  = errors.New("wire: not enough bytes for handshake frame")
	ErrBadUtf8               = errors.New("wire: handshake payload is not valid utf-8")
	ErrInvalidMarkerByte     = errors.New("wire: handshake response marker byte is reserved")
	ErrFailureMessageTooLong = errors.New("wire: handshake failure reason is too long")
)

// HandshakeRequest is the first frame a relay client sends after connecting:
// the protocol version it speaks.
type HandshakeRequest struct {
	Version string
}

// EncodeHandshakeRequest serializes a handshake request. Version must be at
// most 255 bytes; a longer version is a programmer error, not a protocol
// error, so this panics rather than returning one.
func EncodeHandshakeRequest(version string) []byte {
	if len(version) > maxVersionLen {
		panic("wire: handshake version exceeds 255 bytes")
	}

	b := make([]byte, 0, len(reqPrefix)+1+len(version))
	b = append(b, reqPrefix...)
	b = append(b, byte(len(version)))
	b = append(b, version...)
	return b
}

// DecodeHandshakeRequest parses a handshake request off the front of b,
// returning the decoded request and whatever bytes follow it. On error the
// original buffer is returned unconsumed.
func DecodeHandshakeRequest(b []byte) (HandshakeRequest, []byte, error) {
	if len(b) < len(reqPrefix)+1 {
		return HandshakeRequest{}, b, ErrInvalidNumberOfBytes
	}
	if string(b[:len(reqPrefix)]) != reqPrefix {
		return HandshakeRequest{}, b, ErrInvalidPrefix
	}

	rest := b[len(reqPrefix):]
	n := int(rest[0])
	rest = rest[1:]

	if len(rest) < n {
		return HandshakeRequest{}, b, ErrInvalidNumberOfBytes
	}

	version := rest[:n]
	if !utf8.Valid(version) {
		return HandshakeRequest{}, b, ErrBadUtf8
	}

	return HandshakeRequest{Version: string(version)}, rest[n:], nil
}

// HandshakeResponse is the server's reply to a HandshakeRequest: either
// admission, or a rejection carrying a short human-readable reason.
type HandshakeResponse struct {
	Success bool
	Reason  string
}

// HandshakeSuccess builds an admitting response.
func HandshakeSuccess() HandshakeResponse {
	return HandshakeResponse{Success: true}
}

// HandshakeFailure builds a rejecting response carrying reason.
func HandshakeFailure(reason string) HandshakeResponse {
	return HandshakeResponse{Success: false, Reason: reason}
}

// EncodeHandshakeResponse serializes a handshake response. A failure whose
// reason is 128 bytes or longer cannot be represented by the one-byte
// marker and fails with ErrFailureMessageTooLong.
func EncodeHandshakeResponse(r HandshakeResponse) ([]byte, error) {
	if r.Success {
		b := make([]byte, 0, len(respPrefix)+1)
		b = append(b, respPrefix...)
		b = append(b, markerSuccess)
		return b, nil
	}

	if len(r.Reason) >= maxReasonLen {
		return nil, ErrFailureMessageTooLong
	}

	b := make([]byte, 0, len(respPrefix)+1+len(r.Reason))
	b = append(b, respPrefix...)
	b = append(b, byte(len(r.Reason)))
	b = append(b, r.Reason...)
	return b, nil
}

// DecodeHandshakeResponse parses a handshake response off the front of b,
// returning the decoded response and the remainder of b — the handshake is
// streamable, so a caller may have buffered bytes past the response. On
// error the original buffer is returned unconsumed.
func DecodeHandshakeResponse(b []byte) (HandshakeResponse, []byte, error) {
	if len(b) < len(respPrefix)+1 {
		return HandshakeResponse{}, b, ErrInvalidNumberOfBytes
	}
	if string(b[:len(respPrefix)]) != respPrefix {
		return HandshakeResponse{}, b, ErrInvalidPrefix
	}

	rest := b[len(respPrefix):]
	marker := rest[0]
	rest = rest[1:]

	switch {
	case marker == markerSuccess:
		return HandshakeResponse{Success: true}, rest, nil

	case marker < markerSuccess:
		n := int(marker)
		if len(rest) < n {
			return HandshakeResponse{}, b, ErrInvalidNumberOfBytes
		}
		reason := rest[:n]
		if !utf8.Valid(reason) {
			return HandshakeResponse{}, b, ErrBadUtf8
		}
		return HandshakeResponse{Success: false, Reason: string(reason)}, rest[n:], nil

	default:
		return HandshakeResponse{}, b, ErrInvalidMarkerByte
	}
}
