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

// Package version carries the build-time identity of a DSRP binary: its
// release string, build date and commit. It is distinct from the protocol
// version string the DSRP handshake compares.
package version

import "fmt"

// Version describes the identity of a build; the cobra helper prints its
// String() as the CLI's startup banner.
type Version interface {
	fmt.Stringer

	Release() string
	BuildDate() string
	Commit() string
}

type version struct {
	release   string
	buildDate string
	commit    string
}

// New returns a Version carrying the given release, build date and commit.
func New(release, buildDate, commit string) Version {
	return &version{
		release:   release,
		buildDate: buildDate,
		commit:    commit,
	}
}

func (v *version) Release() string   { return v.release }
func (v *version) BuildDate() string { return v.buildDate }
func (v *version) Commit() string    { return v.commit }

func (v *version) String() string {
	return fmt.Sprintf("%s (built %s, commit %s)", v.release, v.buildDate, v.commit)
}
