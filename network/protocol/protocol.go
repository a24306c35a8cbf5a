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

// Package protocol enumerates the network transports the relay's socket
// adapters can bind or dial, and the config/viper decoding glue to read one
// from a string, byte slice or config-file integer.
package protocol

import "strings"

// NetworkProtocol identifies a network transport. The zero value is
// NetworkEmpty, so an unconfigured field parses as "no protocol" rather
// than silently picking one.
type NetworkProtocol uint8

const (
	NetworkEmpty NetworkProtocol = iota
	NetworkUnix
	NetworkTCP
	NetworkTCP4
	NetworkTCP6
	NetworkUDP
	NetworkUDP4
	NetworkUDP6
	NetworkIP
	NetworkIP4
	NetworkIP6
	NetworkUnixGram
)

var names = map[NetworkProtocol]string{
	NetworkUnix:     "unix",
	NetworkTCP:      "tcp",
	NetworkTCP4:     "tcp4",
	NetworkTCP6:     "tcp6",
	NetworkUDP:      "udp",
	NetworkUDP4:     "udp4",
	NetworkUDP6:     "udp6",
	NetworkIP:       "ip",
	NetworkIP4:      "ip4",
	NetworkIP6:      "ip6",
	NetworkUnixGram: "unixgram",
}

var byName = func() map[string]NetworkProtocol {
	m := make(map[string]NetworkProtocol, len(names))
	for p, s := range names {
		m[s] = p
	}
	return m
}()

// String returns the lowercase Go network name ("tcp", "udp4", ...), or
// the empty string for NetworkEmpty or any out-of-range value.
func (p NetworkProtocol) String() string {
	return names[p]
}

// Code is an alias for String, matching the naming socket adapters use when
// passing a protocol straight into net.Dial/net.Listen.
func (p NetworkProtocol) Code() string {
	return p.String()
}

// Int returns p as an int, or 0 for NetworkEmpty.
func (p NetworkProtocol) Int() int {
	return int(p)
}

// Int64 returns p as an int64, or 0 for NetworkEmpty.
func (p NetworkProtocol) Int64() int64 {
	return int64(p)
}

// Uint returns p as a uint, or 0 for NetworkEmpty.
func (p NetworkProtocol) Uint() uint {
	return uint(p)
}

// Uint64 returns p as a uint64, or 0 for NetworkEmpty.
func (p NetworkProtocol) Uint64() uint64 {
	return uint64(p)
}

// IsTCP reports whether p names one of the tcp family of protocols.
func (p NetworkProtocol) IsTCP() bool {
	return p == NetworkTCP || p == NetworkTCP4 || p == NetworkTCP6
}

// IsUDP reports whether p names one of the udp family of protocols.
func (p NetworkProtocol) IsUDP() bool {
	return p == NetworkUDP || p == NetworkUDP4 || p == NetworkUDP6
}

// IsUnix reports whether p is a unix-domain protocol (stream or datagram).
func (p NetworkProtocol) IsUnix() bool {
	return p == NetworkUnix || p == NetworkUnixGram
}

func clean(s string) string {
	s = strings.TrimSpace(s)

	for len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') ||
			(s[0] == '\'' && s[len(s)-1] == '\'') ||
			(s[0] == '`' && s[len(s)-1] == '`') {
			s = s[1 : len(s)-1]
			continue
		}
		break
	}

	return strings.TrimSpace(s)
}

// Parse maps a protocol name to its NetworkProtocol, case-insensitively and
// tolerant of surrounding whitespace and of any number of matching quote
// pairs around the name. Unknown input returns NetworkEmpty.
func Parse(s string) NetworkProtocol {
	if p, ok := byName[strings.ToLower(clean(s))]; ok {
		return p
	}
	return NetworkEmpty
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(b []byte) NetworkProtocol {
	return Parse(string(b))
}

// ParseInt64 maps a raw protocol code back to a NetworkProtocol. Values
// outside [NetworkUnix, NetworkUnixGram] return NetworkEmpty rather than
// wrapping or panicking.
func ParseInt64(i int64) NetworkProtocol {
	if i <= 0 || i > int64(NetworkUnixGram) {
		return NetworkEmpty
	}
	return NetworkProtocol(i)
}

// MarshalJSON renders p as its quoted name, or `""` for NetworkEmpty.
func (p NetworkProtocol) MarshalJSON() ([]byte, error) {
	s := p.String()
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	out = append(out, s...)
	out = append(out, '"')
	return out, nil
}

// UnmarshalJSON accepts a quoted protocol name via Parse.
func (p *NetworkProtocol) UnmarshalJSON(b []byte) error {
	*p = ParseBytes(b)
	return nil
}

// MarshalYAML renders p as its bare name string.
func (p NetworkProtocol) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// UnmarshalYAML accepts any scalar that unmarshals into a string.
func (p *NetworkProtocol) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if e := unmarshal(&s); e != nil {
		return e
	}
	*p = Parse(s)
	return nil
}

// MarshalTOML renders p as a double-quoted TOML string.
func (p NetworkProtocol) MarshalTOML() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalTOML accepts a string or a previously decoded NetworkProtocol.
func (p *NetworkProtocol) UnmarshalTOML(i interface{}) error {
	switch v := i.(type) {
	case string:
		*p = Parse(v)
	case NetworkProtocol:
		*p = v
	case int64:
		*p = ParseInt64(v)
	}
	return nil
}
