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

package protocol

import (
	"fmt"
	"reflect"
)

var protocolType = reflect.TypeOf(NetworkEmpty)

// ViperDecoderHook returns a mapstructure.DecodeHookFuncType compatible hook
// that decodes a string or any integer kind into a NetworkProtocol. Wire it
// into viper.Unmarshal via viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(...))
// to let config files express sockets as `protocol: "tcp"` or a raw code.
func ViperDecoderHook() func(reflect.Type, reflect.Type, interface{}) (interface{}, error) {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != protocolType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return Parse(v), nil
		case NetworkProtocol:
			return v, nil
		case int, int8, int16, int32, int64:
			return decodeSignedInt(from, data)
		case uint, uint8, uint16, uint32, uint64:
			return decodeUnsignedInt(from, data)
		default:
			return data, nil
		}
	}
}

func decodeSignedInt(from reflect.Type, data interface{}) (interface{}, error) {
	rv := reflect.ValueOf(data)
	i := rv.Int()

	p := ParseInt64(i)
	if p == NetworkEmpty {
		return nil, fmt.Errorf("protocol: invalid %s value %d", from, i)
	}
	return p, nil
}

func decodeUnsignedInt(from reflect.Type, data interface{}) (interface{}, error) {
	rv := reflect.ValueOf(data)
	i := rv.Uint()

	p := ParseInt64(int64(i))
	if p == NetworkEmpty {
		return nil, fmt.Errorf("protocol: invalid %s value %d", from, i)
	}
	return p, nil
}
