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

package relayclient

import (
	"errors"
	"fmt"

	"github.com/nabbar/dsrp/ids"
)

// ErrUnknownMessageKind is returned for a ServerMessage whose Kind is
// outside the closed set wire.ServerMessageKind defines.
var ErrUnknownMessageKind = errors.New("relayclient: unknown server message kind")

// ErrUnknownRequest is returned when the server resolves a RequestId the
// client has no record of sending.
type ErrUnknownRequest struct {
	Request ids.RequestId
}

func (e *ErrUnknownRequest) Error() string {
	return fmt.Sprintf("relayclient: unknown request %s", e.Request)
}
