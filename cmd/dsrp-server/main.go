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

// Command dsrp-server runs the DSRP relay's control listener: it accepts
// DSRP client connections, negotiates the handshake, and opens/closes the
// per-channel TCP and UDP listeners those clients register.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	libval "github.com/go-playground/validator/v10"
	mapstruct "github.com/go-viper/mapstructure/v2"
	"github.com/mitchellh/go-homedir"
	spfcbr "github.com/spf13/cobra"
	spfvpr "github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	libcbr "github.com/nabbar/dsrp/cobra"
	"github.com/nabbar/dsrp/console"
	libdur "github.com/nabbar/dsrp/duration"
	liblog "github.com/nabbar/dsrp/logger"
	loglvl "github.com/nabbar/dsrp/logger/level"
	libptc "github.com/nabbar/dsrp/network/protocol"
	"github.com/nabbar/dsrp/relayserver"
	"github.com/nabbar/dsrp/relaysvc"
	sckcfg "github.com/nabbar/dsrp/socket/config"
	libver "github.com/nabbar/dsrp/version"
	libvpr "github.com/nabbar/dsrp/viper"
	"github.com/nabbar/dsrp/wire"
)

// ProtocolVersion is the handshake version string compared byte-exact
// between client and server; override with --protocol-version only for
// interop testing against a different build.
const ProtocolVersion = "dsrp/1"

// defaultListen matches the address the original dsrp-server scaffolding
// bound by default.
const defaultListen = "127.0.0.1:6142"

// release/buildDate/commit are overridden at link time with
// -ldflags "-X main.release=... -X main.buildDate=... -X main.commit=...".
var (
	release   = "dev"
	buildDate = "unknown"
	commit    = "unknown"
)

type serverConfig struct {
	Listen          string `mapstructure:"listen" yaml:"listen" validate:"required,hostname_port"`
	ChannelHost     string `mapstructure:"channelHost" yaml:"channelHost" validate:"required"`
	ProtocolVersion string `mapstructure:"protocolVersion" yaml:"protocolVersion" validate:"required"`
	LogLevel        string `mapstructure:"logLevel" yaml:"logLevel" validate:"required,oneof=debug info warn error"`
}

func init() {
	console.SetColor(console.ColorPrint, int(color.FgGreen), int(color.Bold))
	console.SetColor(console.ColorPrompt, int(color.FgCyan))
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Listen:          defaultListen,
		ChannelHost:     "0.0.0.0",
		ProtocolVersion: ProtocolVersion,
		LogLevel:        "info",
	}
}

// loadConfig binds the parsed flags onto viper, layers an optional config
// file underneath them, and decodes the result through
// protocol.ViperDecoderHook, so a config file can express network values
// viper's raw string/int decode would otherwise choke on.
func loadConfig(log liblog.Logger, root *spfcbr.Command, cfgFile string) (serverConfig, error) {
	cfg := defaultServerConfig()

	v := spfvpr.GetViper()
	if err := v.BindPFlags(root.Flags()); err != nil {
		return cfg, err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if home, err := homedir.Dir(); err == nil {
		v.SetConfigName(".dsrp-server")
		v.SetConfigType("yaml")
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(spfvpr.ConfigFileNotFoundError); !notFound {
			log.Entry(loglvl.WarnLevel, "reading config file").ErrorAdd(true, err).Log()
		}
	} else {
		log.Entry(loglvl.InfoLevel, "loaded config file %s", v.ConfigFileUsed()).Log()
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Entry(loglvl.InfoLevel, "config file changed: %s", e.Name).Log()
	})
	v.WatchConfig()

	if err := v.Unmarshal(&cfg, spfvpr.DecodeHook(mapstruct.ComposeDecodeHookFunc(libptc.ViperDecoderHook()))); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	var (
		cfgFile  string
		verbose  int
		listen   string
		channel  string
		protoVer string
	)

	log := liblog.New(context.Background())
	log.SetSPF13Level(loglvl.InfoLevel, nil)

	app := libcbr.New()
	app.SetVersion(libver.New(release, buildDate, commit))
	app.SetLogger(func() liblog.Logger { return log })
	app.SetViper(func() libvpr.Viper { return libvpr.New(spfvpr.GetViper()) })
	app.Init()

	if err := app.SetFlagConfig(true, &cfgFile); err != nil {
		log.Entry(loglvl.FatalLevel, "registering config flag").ErrorAdd(true, err).Log()
		os.Exit(1)
	}
	app.SetFlagVerbose(true, &verbose)
	app.AddFlagString(true, &listen, "listen", "l", defaultListen, "control listener address (host:port)")
	app.AddFlagString(true, &channel, "channel-host", "", "0.0.0.0", "bind host used for per-channel TCP/UDP listeners")
	app.AddFlagString(true, &protoVer, "protocol-version", "", ProtocolVersion, "handshake version string compared against connecting clients")

	app.AddCommandCompletion()
	app.AddCommandConfigure("cfg", "dsrp-server", defaultServerConfigReader)
	app.AddCommandPrintErrorCode(func(item, value string) {
		fmt.Printf("%-24s %s\n", item, value)
	})

	root := app.Cobra()
	root.Use = "dsrp-server"
	root.Short = "DSRP relay server"
	root.RunE = func(cmd *spfcbr.Command, args []string) error {
		cfg, err := loadConfig(log, root, cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		if cmd.Flags().Changed("channel-host") {
			cfg.ChannelHost = channel
		}
		if cmd.Flags().Changed("protocol-version") {
			cfg.ProtocolVersion = protoVer
		}
		return runServer(log, cfg)
	}

	app.AddCommand(newStatusCommand(listen))

	if err := app.Execute(); err != nil {
		log.Entry(loglvl.FatalLevel, "dsrp-server exited").ErrorAdd(true, err).Log()
		os.Exit(1)
	}
}

func defaultServerConfigReader() io.Reader {
	b, _ := yaml.Marshal(defaultServerConfig())
	return bytes.NewReader(b)
}

func runServer(log liblog.Logger, cfg serverConfig) error {
	if err := libval.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console.ColorPrint.Printf("dsrp-server %s starting on %s\n", ProtocolVersion, cfg.Listen)

	hdl := relayserver.New(cfg.ProtocolVersion)

	svc := relaysvc.NewServer(log, hdl, func(port uint16, ct wire.ConnectionType) sckcfg.Server {
		network := libptc.NetworkTCP
		if ct == wire.ConnectionUDP {
			network = libptc.NetworkUDP
		}
		return sckcfg.Server{
			Network:        network,
			Address:        fmt.Sprintf("%s:%d", cfg.ChannelHost, port),
			ConIdleTimeout: libdur.ParseDuration(5 * time.Minute),
		}
	})

	log.Entry(loglvl.InfoLevel, "dsrp-server listening on %s (protocol %s)", cfg.Listen, cfg.ProtocolVersion).Log()

	return svc.ListenAndServe(ctx, sckcfg.Server{
		Network: libptc.NetworkTCP,
		Address: cfg.Listen,
	})
}
