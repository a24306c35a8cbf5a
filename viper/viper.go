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

// Package viper thinly wraps spf13/viper so the cobra helper can hand the
// relay's CLI commands a configuration accessor without depending on the
// concrete spf13/viper type directly.
package viper

import spfvpr "github.com/spf13/viper"

// Viper is the subset of *viper.Viper the relay CLI needs: reading the
// config file and binding it to pflag-backed values.
type Viper interface {
	ConfigFileUsed() string
	Get(key string) interface{}
	GetString(key string) string
	Set(key string, value interface{})
	Unmarshal(rawVal interface{}, opts ...spfvpr.DecoderConfigOption) error
}

// New wraps an existing *viper.Viper instance.
func New(v *spfvpr.Viper) Viper {
	return v
}
