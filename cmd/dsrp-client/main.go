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

// Command dsrp-client dials a DSRP relay server's control connection and
// requests tunnels that forward a bound port on the relay back to a
// locally-reachable TCP or UDP service.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

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
	"github.com/nabbar/dsrp/ids"
	liblog "github.com/nabbar/dsrp/logger"
	loglvl "github.com/nabbar/dsrp/logger/level"
	libptc "github.com/nabbar/dsrp/network/protocol"
	"github.com/nabbar/dsrp/relayclient"
	"github.com/nabbar/dsrp/relaysvc"
	sckctcp "github.com/nabbar/dsrp/socket/client/tcp"
	libver "github.com/nabbar/dsrp/version"
	libvpr "github.com/nabbar/dsrp/viper"
	"github.com/nabbar/dsrp/wire"
)

const defaultServer = "127.0.0.1:6142"

var (
	release   = "dev"
	buildDate = "unknown"
	commit    = "unknown"
)

type clientConfig struct {
	Server          string `mapstructure:"server" yaml:"server" validate:"required,hostname_port"`
	ProtocolVersion string `mapstructure:"protocolVersion" yaml:"protocolVersion" validate:"required"`
	TcpPorts        []uint `mapstructure:"tcpPorts" yaml:"tcpPorts"`
	UdpPorts        []uint `mapstructure:"udpPorts" yaml:"udpPorts"`
}

func init() {
	console.SetColor(console.ColorPrint, int(color.FgGreen), int(color.Bold))
	console.SetColor(console.ColorPrompt, int(color.FgCyan))
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		Server:          defaultServer,
		ProtocolVersion: ProtocolVersion,
	}
}

// ProtocolVersion mirrors dsrp-server's handshake version default; the two
// binaries are built from the same module so the constant stays in sync.
const ProtocolVersion = "dsrp/1"

func loadConfig(log liblog.Logger, root *spfcbr.Command, cfgFile string) (clientConfig, error) {
	cfg := defaultClientConfig()

	v := spfvpr.GetViper()
	if err := v.BindPFlags(root.Flags()); err != nil {
		return cfg, err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if home, err := homedir.Dir(); err == nil {
		v.SetConfigName(".dsrp-client")
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
		server   string
		protoVer string
		tcpPorts []uint
		udpPorts []uint
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
	app.AddFlagString(true, &server, "server", "s", defaultServer, "relay server control address (host:port)")
	app.AddFlagString(true, &protoVer, "protocol-version", "", ProtocolVersion, "handshake version string sent to the relay server")
	app.AddFlagUintSlice(true, &tcpPorts, "tcp-port", "t", nil, "port to register as a TCP tunnel (repeatable)")
	app.AddFlagUintSlice(true, &udpPorts, "udp-port", "u", nil, "port to register as a UDP tunnel (repeatable)")

	app.AddCommandCompletion()
	app.AddCommandConfigure("cfg", "dsrp-client", defaultClientConfigReader)
	app.AddCommandPrintErrorCode(func(item, value string) {
		fmt.Printf("%-24s %s\n", item, value)
	})

	root := app.Cobra()
	root.Use = "dsrp-client"
	root.Short = "DSRP relay client"
	root.RunE = func(cmd *spfcbr.Command, args []string) error {
		cfg, err := loadConfig(log, root, cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		if cmd.Flags().Changed("protocol-version") {
			cfg.ProtocolVersion = protoVer
		}
		if cmd.Flags().Changed("tcp-port") {
			cfg.TcpPorts = tcpPorts
		}
		if cmd.Flags().Changed("udp-port") {
			cfg.UdpPorts = udpPorts
		}
		return runClient(log, cfg)
	}

	if err := app.Execute(); err != nil {
		log.Entry(loglvl.FatalLevel, "dsrp-client exited").ErrorAdd(true, err).Log()
		os.Exit(1)
	}
}

func defaultClientConfigReader() io.Reader {
	b, _ := yaml.Marshal(defaultClientConfig())
	return bytes.NewReader(b)
}

func runClient(log liblog.Logger, cfg clientConfig) error {
	if err := libval.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(cfg.TcpPorts) == 0 && len(cfg.UdpPorts) == 0 {
		return fmt.Errorf("at least one --tcp-port or --udp-port is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli, err := sckctcp.New(cfg.Server)
	if err != nil {
		return fmt.Errorf("dialing relay server: %w", err)
	}
	if err = cli.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to relay server %s: %w", cfg.Server, err)
	}
	defer func() { _ = cli.Close() }()

	console.ColorPrint.Printf("dsrp-client %s connecting to %s\n", cfg.ProtocolVersion, cfg.Server)

	hdl, handshake := relayclient.New(cfg.ProtocolVersion)
	svc := relaysvc.NewClientLoopback(log, hdl)

	svc.OnChannelOpened = func(channel ids.ChannelId, port uint16) {
		log.Entry(loglvl.InfoLevel, "channel %s opened, forwarding to local port %d", channel, port).Log()
	}
	svc.OnRegistrationFailed = func(request ids.RequestId, cause wire.RegistrationFailureCause) {
		log.Entry(loglvl.WarnLevel, "registration %s failed: %s", request, cause).Log()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx, cli, handshake) }()

	for _, p := range cfg.TcpPorts {
		log.Entry(loglvl.InfoLevel, "requesting TCP tunnel for local port %d", p).Log()
		svc.RequestTunnel(wire.ConnectionTCP, uint16(p))
	}
	for _, p := range cfg.UdpPorts {
		log.Entry(loglvl.InfoLevel, "requesting UDP tunnel for local port %d", p).Log()
		svc.RequestTunnel(wire.ConnectionUDP, uint16(p))
	}

	select {
	case <-ctx.Done():
		return nil
	case err = <-errCh:
		return err
	}
}
