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

package relayserver

import (
	"errors"
	"fmt"

	"github.com/nabbar/dsrp/ids"
)

// Handler-local errors: protocol-contract violations by the peer or the
// embedder. A failed call never mutates Handler state.
var (
	ErrUnknownClientId                = errors.New("relayserver: unknown client id")
	ErrChannelNotFound                = errors.New("relayserver: channel not found")
	ErrUnknownChannelId               = errors.New("relayserver: unknown channel id")
	ErrConnectionAddedToNonTcpChannel = errors.New("relayserver: connection added to a non-tcp channel")
	ErrConnectionAddedToUnboundChannel = errors.New("relayserver: connection added to an unbound channel")
	ErrUnknownMessageKind              = errors.New("relayserver: unknown client message kind")
)

// ErrChannelNotOwnedByRequester is returned when a client tries to act on
// a channel owned by a different client (e.g. Unregister on someone
// else's channel).
type ErrChannelNotOwnedByRequester struct {
	Channel    ids.ChannelId
	Requesting ids.ClientId
	Owning     ids.ClientId
}

func (e *ErrChannelNotOwnedByRequester) Error() string {
	return fmt.Sprintf("relayserver: channel %s not owned by requester %s (owner is %s)", e.Channel, e.Requesting, e.Owning)
}
