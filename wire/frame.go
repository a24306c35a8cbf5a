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

package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"
)

// MaxFrameSize bounds a single typed-message frame. The core handlers place
// no limit on the data they forward, but the control channel is not meant
// to carry arbitrarily large allocations sight-unseen; an embedder that
// needs to move more must split the application data across several
// DataBeingSent/DataReceived operations upstream of the framer.
const MaxFrameSize = 16 * 1024 * 1024

var ErrFrameTooLarge = errors.New("wire: frame exceeds MaxFrameSize")

// FrameWriter writes length-prefixed typed-message frames to the control
// connection: a 4-byte big-endian length followed by the message body from
// EncodeClientMessage/EncodeServerMessage. It satisfies the "prefix-
// delimited and length-bounded" framing spec.md's external interfaces
// section requires of the codec adapter.
type FrameWriter struct {
	w io.Writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

func (f *FrameWriter) WriteFrame(body []byte) error {
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := f.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := f.w.Write(body)
	return err
}

func (f *FrameWriter) WriteClientMessage(m ClientMessage) error {
	return f.WriteFrame(EncodeClientMessage(m))
}

func (f *FrameWriter) WriteServerMessage(m ServerMessage) error {
	return f.WriteFrame(EncodeServerMessage(m))
}

// WriteHandshakeRequest writes a handshake request raw, without the 4-byte
// length prefix ClientMessage/ServerMessage frames carry: the handshake is
// self-delimiting (see DecodeHandshakeRequest) and precedes any framed
// traffic on the connection.
func (f *FrameWriter) WriteHandshakeRequest(version string) error {
	_, err := f.w.Write(EncodeHandshakeRequest(version))
	return err
}

// WriteHandshakeResponse writes a handshake response raw, for the same
// reason WriteHandshakeRequest does.
func (f *FrameWriter) WriteHandshakeResponse(r HandshakeResponse) error {
	b, err := EncodeHandshakeResponse(r)
	if err != nil {
		return err
	}
	_, err = f.w.Write(b)
	return err
}

// FrameReader reads length-prefixed frames written by a FrameWriter.
type FrameReader struct {
	r *bufio.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

func (f *FrameReader) ReadFrame() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(f.r, hdr[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(f.r, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *FrameReader) ReadClientMessage() (ClientMessage, error) {
	body, err := f.ReadFrame()
	if err != nil {
		return ClientMessage{}, err
	}
	m, _, err := DecodeClientMessage(body)
	return m, err
}

func (f *FrameReader) ReadServerMessage() (ServerMessage, error) {
	body, err := f.ReadFrame()
	if err != nil {
		return ServerMessage{}, err
	}
	m, _, err := DecodeServerMessage(body)
	return m, err
}

// ReadHandshakeRequest reads a raw (unframed) handshake request off the
// wrapped stream. It must be called before any ReadClientMessage/
// ReadServerMessage call on the same FrameReader, since the handshake has
// no length prefix of its own.
func (f *FrameReader) ReadHandshakeRequest() (HandshakeRequest, error) {
	hdr := make([]byte, len(reqPrefix)+1)
	if _, err := io.ReadFull(f.r, hdr); err != nil {
		return HandshakeRequest{}, err
	}
	if string(hdr[:len(reqPrefix)]) != reqPrefix {
		return HandshakeRequest{}, ErrInvalidPrefix
	}

	n := int(hdr[len(reqPrefix)])
	version := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(f.r, version); err != nil {
			return HandshakeRequest{}, err
		}
	}
	if !utf8.Valid(version) {
		return HandshakeRequest{}, ErrBadUtf8
	}
	return HandshakeRequest{Version: string(version)}, nil
}

// ReadHandshakeResponse reads a raw (unframed) handshake response off the
// wrapped stream, symmetric with ReadHandshakeRequest.
func (f *FrameReader) ReadHandshakeResponse() (HandshakeResponse, error) {
	hdr := make([]byte, len(respPrefix)+1)
	if _, err := io.ReadFull(f.r, hdr); err != nil {
		return HandshakeResponse{}, err
	}
	if string(hdr[:len(respPrefix)]) != respPrefix {
		return HandshakeResponse{}, ErrInvalidPrefix
	}

	marker := hdr[len(respPrefix)]
	switch {
	case marker == markerSuccess:
		return HandshakeResponse{Success: true}, nil
	case marker < markerSuccess:
		n := int(marker)
		reason := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(f.r, reason); err != nil {
				return HandshakeResponse{}, err
			}
		}
		if !utf8.Valid(reason) {
			return HandshakeResponse{}, ErrBadUtf8
		}
		return HandshakeResponse{Success: false, Reason: string(reason)}, nil
	default:
		return HandshakeResponse{}, ErrInvalidMarkerByte
	}
}
