/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

// Package runner gathers small lifecycle helpers for long-running
// goroutines (panic recovery, stack capture). Its caller is the logger's
// file hook (logger/hookfile).
package runner

import (
	"fmt"
	"log"
	"runtime/debug"
)

// RecoveryCaller logs a recovered panic along with the caller-supplied
// context, without re-panicking. It is meant to be called from a deferred
// recover() at the top of a goroutine so one misbehaving connection cannot
// take the whole relay process down.
func RecoveryCaller(caller string, recovered interface{}, context ...string) {
	if recovered == nil {
		return
	}

	msg := fmt.Sprintf("panic recovered in %s: %v", caller, recovered)
	if len(context) > 0 {
		msg += " (" + fmt.Sprint(context) + ")"
	}

	log.Println(msg)
	log.Println(string(debug.Stack()))
}
